package codec

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"aggticker/internal/models"
)

func sample() models.AggregatedTicker {
	return models.AggregatedTicker{
		InstrumentName: "BTC-27DEC24-68000-C",
		Strike:         68000,
		Kind:           "open",
		Delta:          0.5,
		Bids: []models.QuoteLevel{
			{Price: 105, Amount: 1.5, ImpliedVol: 49.996, IndexPrice: 67123.456, Source: "BTC-27DEC24-68000-C"},
		},
		Asks: []models.QuoteLevel{
			{Price: 108.125, Amount: 2, ImpliedVol: 51, IndexPrice: 67123.456, Source: "BTC-27DEC24-68000-C"},
		},
		Timestamp: 1700000000000,
	}
}

func TestEncodeFieldOrder(t *testing.T) {
	data, err := Encode(sample())
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}

	want := `{"instrument_name":"BTC-27DEC24-68000-C","strike":68000,"kind":"open","delta":0.5,` +
		`"bids":[["105.00","1.50","50.00","67123.46","BTC-27DEC24-68000-C"]],` +
		`"asks":[["108.13","2.00","51.00","67123.46","BTC-27DEC24-68000-C"]],` +
		`"timestamp":1700000000000}`
	if string(data) != want {
		t.Fatalf("unexpected payload\n got: %s\nwant: %s", data, want)
	}
}

func TestEncodeEmptyLadders(t *testing.T) {
	agg := models.AggregatedTicker{InstrumentName: "BTC-27DEC24-68000-C", Strike: 68000, Kind: models.UnknownKind}

	data, err := Encode(agg)
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	if !strings.Contains(string(data), `"bids":[],"asks":[]`) {
		t.Fatalf("empty ladders should encode as arrays: %s", data)
	}
	if !strings.Contains(string(data), `"kind":"Unknown","delta":0`) {
		t.Fatalf("unexpected defaults: %s", data)
	}
}

func TestEncodeTupleShape(t *testing.T) {
	data, err := Encode(sample())
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	var bids [][]interface{}
	if err := json.Unmarshal(decoded["bids"], &bids); err != nil {
		t.Fatalf("decode bids: %v", err)
	}
	if len(bids) != 1 || len(bids[0]) != 5 {
		t.Fatalf("unexpected bid tuple: %v", bids)
	}
	for i, v := range bids[0] {
		if _, ok := v.(string); !ok {
			t.Fatalf("tuple position %d is %T, want string", i, v)
		}
	}
}

func TestFormatFixedRounding(t *testing.T) {
	cases := map[float64]string{
		1.005:   "1.01",
		-1.005:  "-1.01",
		1.004:   "1.00",
		2.675:   "2.68",
		0:       "0.00",
		100:     "100.00",
		0.125:   "0.13",
		68000.1: "68000.10",
	}
	for in, want := range cases {
		if got := FormatFixed(in); got != want {
			t.Fatalf("FormatFixed(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatFixedAppliesToAllPositions(t *testing.T) {
	agg := models.AggregatedTicker{
		Bids: []models.QuoteLevel{{Price: 1.005, Amount: 1.005, ImpliedVol: 1.005, IndexPrice: 1.005, Source: "x"}},
	}
	data, err := Encode(agg)
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	if !strings.Contains(string(data), `["1.01","1.01","1.01","1.01","x"]`) {
		t.Fatalf("rounding not applied consistently: %s", data)
	}
}

func TestEncodeNonFiniteValues(t *testing.T) {
	agg := sample()
	agg.Delta = math.NaN()
	agg.Bids[0].ImpliedVol = math.Inf(1)
	agg.Bids[0].Amount = math.NaN()

	data, err := Encode(agg)
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	if !strings.Contains(string(data), `"delta":null`) {
		t.Fatalf("NaN delta should encode as null: %s", data)
	}
	if !strings.Contains(string(data), `["105.00","NaN","inf",`) {
		t.Fatalf("non-finite tuple values not rendered: %s", data)
	}
}
