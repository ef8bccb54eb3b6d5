package provider

import (
	"context"
	"fmt"

	appconfig "aggticker/config"
	"aggticker/internal/instrument"
	"aggticker/internal/models"
)

// Provider fetches every ticker a venue quotes for a currency and instrument class.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, currency string, kind instrument.Kind) ([]models.RawTicker, error)
}

// Narrower is implemented by providers that can fetch the tickers of one instrument
// more cheaply than the whole chain. The result may still hold other instruments.
type Narrower interface {
	FetchInstrument(ctx context.Context, currency string, kind instrument.Kind, name string) ([]models.RawTicker, error)
}

// New builds the provider described by the configuration. A single venue is returned
// as is; several venues are merged in configured order.
func New(cfg appconfig.ProviderConfig) (Provider, error) {
	venues := make([]Provider, 0, len(cfg.Venues))
	for _, name := range cfg.Venues {
		switch name {
		case appconfig.VenueDeribit:
			venues = append(venues, NewDeribit(cfg.Deribit))
		case appconfig.VenueBybit:
			venues = append(venues, NewBybit(cfg.Bybit, cfg.Timeout))
		default:
			return nil, fmt.Errorf("unknown venue '%s'", name)
		}
	}

	switch len(venues) {
	case 0:
		return nil, fmt.Errorf("no venues configured")
	case 1:
		return venues[0], nil
	default:
		return NewMulti(venues...), nil
	}
}
