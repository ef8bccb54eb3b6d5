package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"aggticker/internal/instrument"
	"aggticker/internal/models"
	"aggticker/logger"
)

// Multi fans a fetch out to several venues and concatenates their tickers in the
// order the venues were given. The fetch fails when any venue fails.
type Multi struct {
	venues []Provider
	log    *logger.Log
}

func NewMulti(venues ...Provider) *Multi {
	return &Multi{venues: venues, log: logger.GetLogger()}
}

func (m *Multi) Name() string {
	names := make([]string, len(m.venues))
	for i, v := range m.venues {
		names[i] = v.Name()
	}
	return strings.Join(names, "+")
}

func (m *Multi) Fetch(ctx context.Context, currency string, kind instrument.Kind) ([]models.RawTicker, error) {
	return m.fanOut(currency, func(venue Provider) ([]models.RawTicker, error) {
		return venue.Fetch(ctx, currency, kind)
	})
}

// FetchInstrument narrows every venue that supports it and fetches the full chain
// from the others.
func (m *Multi) FetchInstrument(ctx context.Context, currency string, kind instrument.Kind, name string) ([]models.RawTicker, error) {
	return m.fanOut(currency, func(venue Provider) ([]models.RawTicker, error) {
		if n, ok := venue.(Narrower); ok {
			return n.FetchInstrument(ctx, currency, kind, name)
		}
		return venue.Fetch(ctx, currency, kind)
	})
}

func (m *Multi) fanOut(currency string, fetch func(Provider) ([]models.RawTicker, error)) ([]models.RawTicker, error) {
	results := make([][]models.RawTicker, len(m.venues))
	errs := make([]error, len(m.venues))

	var wg sync.WaitGroup
	for i, venue := range m.venues {
		wg.Add(1)
		go func(i int, venue Provider) {
			defer wg.Done()
			tickers, err := fetch(venue)
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", venue.Name(), err)
				return
			}
			results[i] = tickers
		}(i, venue)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	total := 0
	for _, r := range results {
		total += len(r)
	}
	merged := make([]models.RawTicker, 0, total)
	for _, r := range results {
		merged = append(merged, r...)
	}

	m.log.WithComponent("multi_provider").WithFields(logger.Fields{
		"currency": currency,
		"venues":   len(m.venues),
		"tickers":  total,
	}).Debug("merged venue tickers")
	return merged, nil
}
