package stream

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pricestream/internal/domain/model"
)

// StockUpdate is one resolved symbol in a batch.
type StockUpdate struct {
	Ticker        string  `json:"ticker"`
	Price         float64 `json:"price"`
	ChangePercent float64 `json:"change_percent"`
	Direction     string  `json:"direction"`
	Stale         bool    `json:"stale,omitempty"`
}

// SymbolError reports why one symbol is missing from a batch.
type SymbolError struct {
	Ticker       string `json:"ticker"`
	Error        string `json:"error"`
	Kind         string `json:"kind"`
	RetryAfterMs int64  `json:"retry_after_ms,omitempty"`
}

// Batch is the message pushed to the client once per cycle.
type Batch struct {
	Stocks []StockUpdate `json:"stocks"`
	Errors []SymbolError `json:"errors,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// BatchBuilder collects one cycle worth of results in subscription order.
type BatchBuilder struct {
	b Batch
}

func NewBatchBuilder(size int) *BatchBuilder {
	return &BatchBuilder{b: Batch{Stocks: make([]StockUpdate, 0, size)}}
}

func (bb *BatchBuilder) Add(s model.PriceSample, ch model.Change, stale bool) {
	bb.b.Stocks = append(bb.b.Stocks, StockUpdate{
		Ticker:        s.Symbol,
		Price:         twoDecimals(s.Price),
		ChangePercent: twoDecimals(ch.Percent),
		Direction:     ch.Direction.String(),
		Stale:         stale,
	})
}

func (bb *BatchBuilder) AddError(symbol string, err error) {
	e := SymbolError{Ticker: symbol, Error: describe(err), Kind: model.ErrorKind(err)}
	var rl *model.RateLimitedError
	if errors.As(err, &rl) {
		e.RetryAfterMs = rl.RetryAfter.Milliseconds()
	}
	bb.b.Errors = append(bb.b.Errors, e)
}

// Build finalizes the batch. When nothing resolved the top level error is
// set as well, keeping the per symbol entries.
func (bb *BatchBuilder) Build() Batch {
	out := bb.b
	if len(out.Stocks) == 0 && len(out.Errors) > 0 {
		tickers := make([]string, 0, len(out.Errors))
		for _, e := range out.Errors {
			tickers = append(tickers, e.Ticker)
		}
		out.Error = "unable to fetch prices for " + strings.Join(tickers, ", ")
	}
	return out
}

func twoDecimals(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}

// describe turns err into the client facing text. Provider details stay in
// the logs.
func describe(err error) string {
	var rl *model.RateLimitedError
	if errors.As(err, &rl) {
		return fmt.Sprintf("rate limited, retry in %s", rl.RetryAfter.Round(time.Second))
	}
	switch model.ErrorKind(err) {
	case "not_found":
		return "symbol not found"
	case "timeout":
		return "upstream timeout"
	case "malformed":
		return "invalid upstream response"
	case "unavailable":
		return "quote provider unavailable"
	default:
		return "internal error"
	}
}
