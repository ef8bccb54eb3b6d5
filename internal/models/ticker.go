package models

// LadderDepth is the number of ranked levels kept on each side of an aggregated ticker.
const LadderDepth = 5

// UnknownKind is reported when no venue returned a ticker for the instrument.
const UnknownKind = "Unknown"

// Greeks carries the option sensitivities a venue reports alongside its quote.
type Greeks struct {
	Delta *float64 `json:"delta,omitempty"`
}

// RawTicker is a single venue's quote snapshot for one instrument. Field names follow the
// Deribit ticker payload; other venues are converted into this shape by their provider.
type RawTicker struct {
	InstrumentName string  `json:"instrument_name"`
	BestBidPrice   float64 `json:"best_bid_price"`
	BestBidAmount  float64 `json:"best_bid_amount"`
	BidIV          float64 `json:"bid_iv"`
	BestAskPrice   float64 `json:"best_ask_price"`
	BestAskAmount  float64 `json:"best_ask_amount"`
	AskIV          float64 `json:"ask_iv"`
	IndexPrice     float64 `json:"index_price"`
	Greeks         *Greeks `json:"greeks,omitempty"`
	State          string  `json:"state"`
	Timestamp      int64   `json:"timestamp"`
}

// Delta returns the reported delta, or zero when the venue did not send greeks.
func (t RawTicker) Delta() float64 {
	if t.Greeks == nil || t.Greeks.Delta == nil {
		return 0
	}
	return *t.Greeks.Delta
}

// QuoteLevel is one ranked entry of a bid or ask ladder.
type QuoteLevel struct {
	Price      float64
	Amount     float64
	ImpliedVol float64
	IndexPrice float64
	Source     string
}

// AggregatedTicker is the reduced view of every venue quote for one instrument.
// Bids are sorted by price descending and asks ascending, each holding at most
// LadderDepth levels.
type AggregatedTicker struct {
	InstrumentName string
	Strike         float64
	Kind           string
	Delta          float64
	Bids           []QuoteLevel
	Asks           []QuoteLevel
	Timestamp      int64
}
