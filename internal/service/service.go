package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	appconfig "aggticker/config"
	"aggticker/internal/aggregator"
	"aggticker/internal/codec"
	"aggticker/internal/instrument"
	"aggticker/internal/metrics"
	"aggticker/internal/models"
	"aggticker/internal/provider"
	"aggticker/internal/publisher"
	"aggticker/logger"
)

const (
	operationAggregate = "aggregate"
	operationPublish   = "aggregate_and_publish"
)

// AggTicker is the host-independent surface of the engine.
type AggTicker interface {
	// Aggregate returns the aggregated view of an instrument across all venue quotes.
	Aggregate(ctx context.Context, name string) (models.AggregatedTicker, error)
	// AggregateAndPublish aggregates the instrument and publishes the encoded result.
	// Failures are logged, never returned.
	AggregateAndPublish(ctx context.Context, name string)
}

// ProviderError wraps a failed venue fetch. Its message is the provider's message.
type ProviderError struct {
	Venue string
	Err   error
}

func (e *ProviderError) Error() string { return e.Err.Error() }

func (e *ProviderError) Unwrap() error { return e.Err }

type Service struct {
	provider     provider.Provider
	publisher    publisher.Publisher
	fetchTimeout time.Duration
	writeTimeout time.Duration
	log          *logger.Log
}

var _ AggTicker = (*Service)(nil)

func New(cfg *appconfig.Config, p provider.Provider, pub publisher.Publisher) *Service {
	s := &Service{
		provider:     p,
		publisher:    pub,
		fetchTimeout: cfg.Provider.Timeout,
		writeTimeout: cfg.Bus.WriteTimeout,
		log:          logger.GetLogger(),
	}

	s.log.WithComponent("service").WithFields(logger.Fields{
		"provider":      p.Name(),
		"fetch_timeout": s.fetchTimeout,
		"write_timeout": s.writeTimeout,
	}).Info("aggregation service initialized")
	return s
}

func (s *Service) Aggregate(ctx context.Context, name string) (models.AggregatedTicker, error) {
	log := s.log.WithComponent("service").WithFields(logger.Fields{
		"request_id": uuid.NewString(),
		"instrument": name,
		"operation":  operationAggregate,
	})

	agg, err := s.aggregate(ctx, log, name)
	metrics.RecordAggregation(s.log, operationAggregate, resultOf(err))
	if err != nil {
		log.WithError(err).Warn("aggregation failed")
		return models.AggregatedTicker{}, err
	}
	return agg, nil
}

func (s *Service) AggregateAndPublish(ctx context.Context, name string) {
	log := s.log.WithComponent("service").WithFields(logger.Fields{
		"request_id": uuid.NewString(),
		"instrument": name,
		"operation":  operationPublish,
	})

	agg, err := s.aggregate(ctx, log, name)
	if err != nil {
		metrics.RecordAggregation(s.log, operationPublish, resultOf(err))
		log.WithError(err).Error("aggregation failed, nothing published")
		return
	}

	payload, err := codec.Encode(agg)
	if err != nil {
		metrics.RecordAggregation(s.log, operationPublish, metrics.ResultEncodeError)
		log.WithError(err).Error("failed to encode aggregated ticker")
		return
	}

	topic := publisher.Topic(agg.InstrumentName)
	pubCtx := ctx
	if s.writeTimeout > 0 {
		var cancel context.CancelFunc
		pubCtx, cancel = context.WithTimeout(ctx, s.writeTimeout)
		defer cancel()
	}

	if err := s.publisher.Publish(pubCtx, topic, payload); err != nil {
		metrics.RecordPublish(s.log, metrics.ResultPublishError)
		metrics.RecordAggregation(s.log, operationPublish, metrics.ResultPublishError)
		log.WithError(err).WithFields(logger.Fields{"topic": topic}).Warn("failed to publish aggregated ticker")
		return
	}

	metrics.RecordPublish(s.log, metrics.ResultOK)
	metrics.RecordAggregation(s.log, operationPublish, metrics.ResultOK)
	logger.LogDataFlowEntry(log, "service", topic, len(payload), "bytes")
}

func (s *Service) aggregate(ctx context.Context, log *logger.Entry, name string) (models.AggregatedTicker, error) {
	desc, err := instrument.Parse(name)
	if err != nil {
		return models.AggregatedTicker{}, err
	}

	fetchCtx := ctx
	if s.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, s.fetchTimeout)
		defer cancel()
	}

	start := time.Now()
	tickers, err := s.fetch(fetchCtx, name, desc)
	if err != nil {
		return models.AggregatedTicker{}, &ProviderError{Venue: s.provider.Name(), Err: err}
	}

	agg, err := aggregator.Aggregate(name, tickers, desc)
	if err != nil {
		return models.AggregatedTicker{}, err
	}

	logger.LogPerformanceEntry(log, "service", "aggregate", time.Since(start), logger.Fields{
		"tickers": len(tickers),
		"bids":    len(agg.Bids),
		"asks":    len(agg.Asks),
	})
	return agg, nil
}

// fetch narrows the request to the instrument when the provider supports it.
func (s *Service) fetch(ctx context.Context, name string, desc instrument.Descriptor) ([]models.RawTicker, error) {
	if n, ok := s.provider.(provider.Narrower); ok {
		return n.FetchInstrument(ctx, desc.Currency, desc.Class, name)
	}
	return s.provider.Fetch(ctx, desc.Currency, desc.Class)
}

func resultOf(err error) string {
	var (
		parseErr    *instrument.ParseError
		providerErr *ProviderError
		priceErr    *aggregator.PriceError
	)
	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.As(err, &parseErr):
		return metrics.ResultParseError
	case errors.As(err, &providerErr):
		return metrics.ResultProviderError
	case errors.As(err, &priceErr):
		return metrics.ResultPriceError
	default:
		return "error"
	}
}
