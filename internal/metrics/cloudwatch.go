package metrics

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	appconfig "aggticker/config"
	"aggticker/logger"
)

type cloudWatchState struct {
	client    *cloudwatch.Client
	namespace string
	region    string
}

var (
	cwState   atomic.Pointer[cloudWatchState]
	cwHandler MetricHandlerID

	// cloudWatchPublishInterval throttles PutMetricData per metric series.
	cloudWatchPublishInterval = 10 * time.Second

	metricPublishMu    sync.Mutex
	metricPublishTimes = make(map[string]time.Time)

	timeNow            = time.Now
	publishMetricsFunc = publishMetrics
)

// InitCloudWatch creates the CloudWatch client and registers a metric handler that
// forwards numeric metrics to it. A disabled configuration is a no-op.
func InitCloudWatch(ctx context.Context, cfg appconfig.CloudWatchConfig) error {
	if !cfg.Enabled {
		return nil
	}
	log := logger.GetLogger().WithComponent("cloudwatch")

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}

	cwState.Store(&cloudWatchState{
		client:    cloudwatch.NewFromConfig(awsCfg),
		namespace: cfg.Namespace,
		region:    awsCfg.Region,
	})

	if cwHandler == 0 {
		cwHandler = RegisterMetricHandler(func(m Metric) {
			value, ok := toFloat64(m.Value)
			if !ok {
				return
			}
			publishMetricDatum(m, value)
		})
	}

	log.WithFields(logger.Fields{
		"region":    awsCfg.Region,
		"namespace": cfg.Namespace,
	}).Info("initialized CloudWatch client")
	return nil
}

// ShutdownCloudWatch stops forwarding metrics.
func ShutdownCloudWatch() {
	UnregisterMetricHandler(cwHandler)
	cwHandler = 0
	cwState.Store(nil)
}

func publishMetricDatum(metric Metric, value float64) {
	state := cwState.Load()
	if state == nil || state.client == nil {
		return
	}

	dims := []cwtypes.Dimension{{Name: aws.String("component"), Value: aws.String(metric.Component)}}
	for k, v := range metric.Fields {
		if k == "unit" {
			continue
		}
		if s, ok := v.(string); ok && s != "" {
			dims = append(dims, cwtypes.Dimension{Name: aws.String(k), Value: aws.String(s)})
		}
	}

	if !shouldPublish(seriesKey(metric)) {
		return
	}

	unit := cwtypes.StandardUnitCount
	if s, ok := metric.Fields["unit"].(string); ok {
		unit = metricUnitFromString(s)
	}

	publishMetricsFunc(context.Background(), state, []cwtypes.MetricDatum{{
		MetricName: aws.String(metric.Name),
		Dimensions: dims,
		Unit:       unit,
		Timestamp:  aws.Time(metric.Timestamp),
		Value:      aws.Float64(value),
	}})
}

func seriesKey(metric Metric) string {
	parts := []string{metric.Component, metric.Name}
	for _, k := range []string{"operation", "result", "venue"} {
		if s, ok := metric.Fields[k].(string); ok {
			parts = append(parts, k+"="+s)
		}
	}
	return strings.Join(parts, "|")
}

func shouldPublish(key string) bool {
	metricPublishMu.Lock()
	defer metricPublishMu.Unlock()

	now := timeNow()
	if last, ok := metricPublishTimes[key]; ok && now.Sub(last) < cloudWatchPublishInterval {
		return false
	}
	metricPublishTimes[key] = now
	return true
}

func resetMetricPublishTimes() {
	metricPublishMu.Lock()
	metricPublishTimes = make(map[string]time.Time)
	metricPublishMu.Unlock()
}

func publishMetrics(ctx context.Context, state *cloudWatchState, data []cwtypes.MetricDatum) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := state.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(state.namespace),
		MetricData: data,
	}); err != nil {
		logger.GetLogger().WithComponent("cloudwatch").WithError(err).Warn("failed to publish CloudWatch metrics")
	}
}

func toFloat64(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

func metricUnitFromString(unit string) cwtypes.StandardUnit {
	switch strings.ToLower(unit) {
	case "percent":
		return cwtypes.StandardUnitPercent
	case "milliseconds":
		return cwtypes.StandardUnitMilliseconds
	case "bytes":
		return cwtypes.StandardUnitBytes
	default:
		return cwtypes.StandardUnitCount
	}
}
