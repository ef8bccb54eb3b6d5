package instrument

import (
	"errors"
	"testing"
)

func TestParseWellFormedNames(t *testing.T) {
	cases := []struct {
		name     string
		currency string
		expiry   string
		strike   float64
		class    Kind
	}{
		{"BTC-27DEC24-68000-C", "BTC", "27DEC24", 68000, KindOption},
		{"ETH-28MAR25-3500-P", "ETH", "28MAR25", 3500, KindOption},
		{"SOL-1JAN25-187.5-C", "SOL", "1JAN25", 187.5, KindOption},
		{"BTC-PERPETUAL-0-X", "BTC", "PERPETUAL", 0, KindSpot},
		{"BTC-27DEC24-68000-USDC", "BTC", "27DEC24", 68000, KindOption},
	}

	for _, tc := range cases {
		d, err := Parse(tc.name)
		if err != nil {
			t.Fatalf("Parse(%q) returned error: %v", tc.name, err)
		}
		if d.Currency != tc.currency || d.Expiry != tc.expiry {
			t.Fatalf("Parse(%q) = %+v", tc.name, d)
		}
		if d.Strike != tc.strike {
			t.Fatalf("Parse(%q) strike = %v, want %v", tc.name, d.Strike, tc.strike)
		}
		if d.Class != tc.class {
			t.Fatalf("Parse(%q) class = %v, want %v", tc.name, d.Class, tc.class)
		}
	}
}

func TestParseMalformedName(t *testing.T) {
	for _, name := range []string{"", "BTC", "BTC-27DEC24-68000", "BTC-27DEC24-68000-C-X"} {
		_, err := Parse(name)
		if !errors.Is(err, ErrMalformedName) {
			t.Fatalf("Parse(%q) error = %v, want ErrMalformedName", name, err)
		}
		var perr *ParseError
		if !errors.As(err, &perr) || perr.Name != name {
			t.Fatalf("Parse(%q) expected *ParseError carrying the name, got %v", name, err)
		}
	}
}

func TestParseInvalidStrike(t *testing.T) {
	for _, name := range []string{"BTC-27DEC24-abc-C", "BTC-27DEC24--C", "BTC-27DEC24-NaN-C", "BTC-27DEC24-Inf-P"} {
		_, err := Parse(name)
		if !errors.Is(err, ErrInvalidStrike) {
			t.Fatalf("Parse(%q) error = %v, want ErrInvalidStrike", name, err)
		}
	}
}

func TestKindString(t *testing.T) {
	if KindOption.String() != "option" {
		t.Fatalf("unexpected option kind: %s", KindOption)
	}
	if KindSpot.String() != "spot" {
		t.Fatalf("unexpected spot kind: %s", KindSpot)
	}
}
