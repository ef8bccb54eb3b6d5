package instrument

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	delimiter     = "-"
	segmentCount  = 4
	callIndicator = "C"
	putIndicator  = "P"
)

var (
	// ErrMalformedName is returned when a name does not split into four segments.
	ErrMalformedName = errors.New("malformed instrument name")
	// ErrInvalidStrike is returned when the strike segment is not a finite decimal.
	ErrInvalidStrike = errors.New("invalid strike")
)

// Kind is the instrument class a ticker provider is queried with.
type Kind int

const (
	KindSpot Kind = iota
	KindOption
)

// String returns the value venues expect in their kind/category parameters.
func (k Kind) String() string {
	switch k {
	case KindOption:
		return "option"
	default:
		return "spot"
	}
}

// Descriptor is the decoded form of an instrument name such as BTC-27DEC24-68000-C.
type Descriptor struct {
	Currency string
	Expiry   string
	Strike   float64
	Class    Kind
}

// ParseError reports why an instrument name could not be decoded.
type ParseError struct {
	Name   string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%v: %q", e.Err, e.Name)
	}
	return fmt.Sprintf("%v: %q: %s", e.Err, e.Name, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse decodes "{CCY}-{EXPIRY}-{STRIKE}-{KIND}". Currency and expiry are not validated.
func Parse(name string) (Descriptor, error) {
	parts := strings.Split(name, delimiter)
	if len(parts) != segmentCount {
		return Descriptor{}, &ParseError{
			Name:   name,
			Reason: fmt.Sprintf("expected %d segments, got %d", segmentCount, len(parts)),
			Err:    ErrMalformedName,
		}
	}

	strike, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return Descriptor{}, &ParseError{Name: name, Reason: err.Error(), Err: ErrInvalidStrike}
	}
	if math.IsNaN(strike) || math.IsInf(strike, 0) {
		return Descriptor{}, &ParseError{Name: name, Reason: "strike is not finite", Err: ErrInvalidStrike}
	}

	return Descriptor{
		Currency: parts[0],
		Expiry:   parts[1],
		Strike:   strike,
		Class:    classify(parts[3]),
	}, nil
}

func classify(indicator string) Kind {
	if strings.Contains(indicator, callIndicator) || strings.Contains(indicator, putIndicator) {
		return KindOption
	}
	return KindSpot
}
