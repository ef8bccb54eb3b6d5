package codec

import (
	"encoding/json"
	"math"

	"github.com/shopspring/decimal"

	"aggticker/internal/models"
)

// ContentType is the media type of an encoded aggregated ticker.
const ContentType = "application/json"

const fixedPlaces = 2

// wireTicker pins the field order of the published object. Downstream consumers read
// ladder entries as [price, amount, iv, index_price, source] string tuples.
type wireTicker struct {
	InstrumentName string      `json:"instrument_name"`
	Strike         jsonFloat   `json:"strike"`
	Kind           string      `json:"kind"`
	Delta          jsonFloat   `json:"delta"`
	Bids           [][5]string `json:"bids"`
	Asks           [][5]string `json:"asks"`
	Timestamp      int64       `json:"timestamp"`
}

// jsonFloat encodes non-finite values as null instead of failing the whole payload.
type jsonFloat float64

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

// Encode serializes an aggregated ticker into the canonical bus payload.
func Encode(agg models.AggregatedTicker) ([]byte, error) {
	return json.Marshal(wireTicker{
		InstrumentName: agg.InstrumentName,
		Strike:         jsonFloat(agg.Strike),
		Kind:           agg.Kind,
		Delta:          jsonFloat(agg.Delta),
		Bids:           encodeLevels(agg.Bids),
		Asks:           encodeLevels(agg.Asks),
		Timestamp:      agg.Timestamp,
	})
}

func encodeLevels(levels []models.QuoteLevel) [][5]string {
	out := make([][5]string, 0, len(levels))
	for _, l := range levels {
		out = append(out, [5]string{
			FormatFixed(l.Price),
			FormatFixed(l.Amount),
			FormatFixed(l.ImpliedVol),
			FormatFixed(l.IndexPrice),
			l.Source,
		})
	}
	return out
}

// FormatFixed renders v with exactly two decimals. The shortest decimal representation
// of v is rounded half away from zero, so 1.005 becomes "1.01" and -1.005 becomes "-1.01".
func FormatFixed(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	return decimal.NewFromFloat(v).StringFixed(fixedPlaces)
}
