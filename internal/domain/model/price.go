package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the sign of a price move between two observations.
type Direction int

const (
	DirectionNeutral Direction = 0
	DirectionUp      Direction = +1
	DirectionDown    Direction = -1
)

func (d Direction) String() string {
	switch d {
	case DirectionUp:
		return "up"
	case DirectionDown:
		return "down"
	default:
		return "neutral"
	}
}

// PriceSample is one observed price for a symbol. It is a value type;
// replacing a sample never mutates the previous one.
type PriceSample struct {
	Symbol     string          `json:"symbol"`
	Price      decimal.Decimal `json:"price"`
	CapturedAt time.Time       `json:"captured_at"`
}

// NewPriceSample normalizes the symbol and rejects non-positive prices.
func NewPriceSample(symbol string, price decimal.Decimal, capturedAt time.Time) (PriceSample, error) {
	sym := NormalizeSymbol(symbol)
	if sym == "" {
		return PriceSample{}, fmt.Errorf("empty symbol: %w", ErrUpstreamMalformed)
	}
	if !price.IsPositive() {
		return PriceSample{}, fmt.Errorf("price %s for %s: %w", price.String(), sym, ErrUpstreamMalformed)
	}
	return PriceSample{Symbol: sym, Price: price, CapturedAt: capturedAt}, nil
}

// IsZero reports whether the sample was never populated.
func (s PriceSample) IsZero() bool {
	return s.Symbol == "" && s.CapturedAt.IsZero()
}

// Change is the delta of a sample against the previous one seen by a session.
type Change struct {
	Percent   decimal.Decimal
	Direction Direction
}

// NoChange is the delta reported for a first observation.
var NoChange = Change{Percent: decimal.Zero, Direction: DirectionNeutral}
