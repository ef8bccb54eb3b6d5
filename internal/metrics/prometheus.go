package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"aggticker/logger"
)

const namespace = "aggticker"

// Result labels shared by the request counters.
const (
	ResultOK            = "ok"
	ResultParseError    = "parse_error"
	ResultProviderError = "provider_error"
	ResultPriceError    = "price_error"
	ResultEncodeError   = "encode_error"
	ResultPublishError  = "publish_error"
)

var (
	registry = prometheus.NewRegistry()

	aggregations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregations_total",
			Help:      "Aggregation requests by entry point and outcome.",
		},
		[]string{"operation", "result"},
	)

	publishes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publishes_total",
			Help:      "Aggregated ticker publishes by outcome.",
		},
		[]string{"result"},
	)

	fetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_fetch_seconds",
			Help:      "Ticker provider fetch latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"venue", "result"},
	)
)

func init() {
	registry.MustRegister(
		aggregations,
		publishes,
		fetchDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler exposes the collectors in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}

// RecordAggregation counts one aggregate or aggregate-and-publish request.
func RecordAggregation(log *logger.Log, operation, result string) {
	aggregations.WithLabelValues(operation, result).Inc()
	EmitMetric(log, "service", "aggregations", 1, "counter", logger.Fields{
		"operation": operation,
		"result":    result,
		"unit":      "count",
	})
}

// RecordPublish counts one bus publish attempt.
func RecordPublish(log *logger.Log, result string) {
	publishes.WithLabelValues(result).Inc()
	EmitMetric(log, "publisher", "publishes", 1, "counter", logger.Fields{
		"result": result,
		"unit":   "count",
	})
}

// RecordFetch observes the latency of one venue fetch.
func RecordFetch(log *logger.Log, venue string, duration time.Duration, err error) {
	result := ResultOK
	if err != nil {
		result = ResultProviderError
	}
	fetchDuration.WithLabelValues(venue, result).Observe(duration.Seconds())
	EmitMetric(log, "provider", "fetch_duration_ms", float64(duration.Microseconds())/1000, "gauge", logger.Fields{
		"venue":  venue,
		"result": result,
		"unit":   "milliseconds",
	})
}
