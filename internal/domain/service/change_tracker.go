package service

import (
	"github.com/shopspring/decimal"

	"pricestream/internal/domain/model"
)

var hundred = decimal.NewFromInt(100)

type observation struct {
	sample model.PriceSample
	change model.Change
}

// ChangeTracker remembers the last sample delivered per symbol within one
// session and derives the move of each new sample against it. It is owned
// by a single session goroutine and is not safe for concurrent use.
type ChangeTracker struct {
	last map[string]observation
}

func NewChangeTracker() *ChangeTracker {
	return &ChangeTracker{last: make(map[string]observation)}
}

// Update computes the change of sample against the previous observation of
// the same symbol, then records sample as the new previous value.
func (t *ChangeTracker) Update(sample model.PriceSample) model.Change {
	prev, seen := t.last[sample.Symbol]

	change := model.NoChange
	if seen && !prev.sample.Price.IsZero() {
		change = Compare(prev.sample.Price, sample.Price)
	}

	t.last[sample.Symbol] = observation{sample: sample, change: change}
	return change
}

// Last returns the most recent observation for symbol.
func (t *ChangeTracker) Last(symbol string) (model.PriceSample, model.Change, bool) {
	o, ok := t.last[symbol]
	return o.sample, o.change, ok
}

// Forget drops the state of symbols not present in keep.
func (t *ChangeTracker) Forget(keep []string) {
	want := make(map[string]struct{}, len(keep))
	for _, s := range keep {
		want[s] = struct{}{}
	}
	for sym := range t.last {
		if _, ok := want[sym]; !ok {
			delete(t.last, sym)
		}
	}
}

// Len reports how many symbols have an observation.
func (t *ChangeTracker) Len() int { return len(t.last) }

// Compare returns the percent move from prev to next. A zero prev yields
// no change instead of a division fault.
func Compare(prev, next decimal.Decimal) model.Change {
	if prev.IsZero() {
		return model.NoChange
	}
	// Direction comes from the prices; pct may round to zero on a tiny move.
	pct := next.Sub(prev).DivRound(prev, 16).Mul(hundred)
	switch next.Cmp(prev) {
	case 1:
		return model.Change{Percent: pct, Direction: model.DirectionUp}
	case -1:
		return model.Change{Percent: pct, Direction: model.DirectionDown}
	default:
		return model.NoChange
	}
}
