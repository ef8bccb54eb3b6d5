package aggregator

import (
	"fmt"
	"math"

	"aggticker/internal/instrument"
	"aggticker/internal/models"
)

// Side identifies the ladder a quote level belongs to.
type Side string

const (
	SideBid Side = "bid"
	SideAsk Side = "ask"
)

// PriceError is returned when a ticker carries a price that cannot be ranked.
type PriceError struct {
	Side   Side
	Source string
	Price  float64
}

func (e *PriceError) Error() string {
	return fmt.Sprintf("unrankable %s price %v from %s", e.Side, e.Price, e.Source)
}

// Aggregate reduces the tickers whose instrument name equals name into a single
// aggregated ticker. Tickers for other instruments are ignored. The strike always comes
// from the parsed descriptor; kind, delta and timestamp come from the first matching
// ticker in provider order.
func Aggregate(name string, tickers []models.RawTicker, d instrument.Descriptor) (models.AggregatedTicker, error) {
	agg := models.AggregatedTicker{
		InstrumentName: name,
		Strike:         d.Strike,
		Kind:           models.UnknownKind,
	}

	bids := newBidLadder()
	asks := newAskLadder()
	matched := false

	for _, t := range tickers {
		if t.InstrumentName != name {
			continue
		}
		if math.IsNaN(t.BestBidPrice) {
			return models.AggregatedTicker{}, &PriceError{Side: SideBid, Source: t.InstrumentName, Price: t.BestBidPrice}
		}
		if math.IsNaN(t.BestAskPrice) {
			return models.AggregatedTicker{}, &PriceError{Side: SideAsk, Source: t.InstrumentName, Price: t.BestAskPrice}
		}

		if !matched {
			matched = true
			agg.Kind = t.State
			agg.Delta = t.Delta()
			agg.Timestamp = t.Timestamp
		}

		bids.add(models.QuoteLevel{
			Price:      t.BestBidPrice,
			Amount:     t.BestBidAmount,
			ImpliedVol: t.BidIV,
			IndexPrice: t.IndexPrice,
			Source:     t.InstrumentName,
		})
		asks.add(models.QuoteLevel{
			Price:      t.BestAskPrice,
			Amount:     t.BestAskAmount,
			ImpliedVol: t.AskIV,
			IndexPrice: t.IndexPrice,
			Source:     t.InstrumentName,
		})
	}

	agg.Bids = bids.top(models.LadderDepth)
	agg.Asks = asks.top(models.LadderDepth)
	return agg, nil
}
