package yahoo

import (
	"context"
	"errors"
	"fmt"
	"time"

	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/equity"
	"github.com/piquette/finance-go/quote"
	"github.com/shopspring/decimal"

	"pricestream/internal/application/port"
	"pricestream/internal/domain/model"
	quotereg "pricestream/internal/infrastructure/quote"
)

// Name is the registry key of this provider.
const Name = "yahoo"

const defaultHistoryDays = 30

type bar struct {
	At    time.Time
	Close decimal.Decimal
}

// Upstream calls, replaceable in tests.
var (
	getQuote  = quote.Get
	getEquity = equity.Get
	getBars   = func(symbol string, start, end time.Time) ([]bar, error) {
		iter := chart.Get(&chart.Params{
			Symbol:   symbol,
			Start:    datetime.New(&start),
			End:      datetime.New(&end),
			Interval: datetime.OneDay,
		})
		var out []bar
		for iter.Next() {
			b := iter.Bar()
			out = append(out, bar{At: time.Unix(int64(b.Timestamp), 0).UTC(), Close: b.Close})
		}
		if err := iter.Err(); err != nil {
			return nil, err
		}
		return out, nil
	}
)

// Backend reads quotes from Yahoo Finance through finance-go. It has no
// symbol search.
type Backend struct {
	historyDays int
	now         func() time.Time
}

func New(historyDays int) *Backend {
	if historyDays <= 0 {
		historyDays = defaultHistoryDays
	}
	return &Backend{historyDays: historyDays, now: time.Now}
}

func init() {
	quotereg.Register(Name, func(s quotereg.Settings) (port.QuoteProvider, error) {
		return New(s.HistoryDays), nil
	})
}

func (b *Backend) Name() string { return Name }

// call runs a blocking finance-go request but gives up when ctx ends.
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, model.ErrTimeout
		}
		return zero, fmt.Errorf("%v: %w", ctx.Err(), model.ErrUpstreamUnavailable)
	}
}

func classify(op, symbol string, err error) error {
	if errors.Is(err, model.ErrTimeout) {
		return fmt.Errorf("%s %s: %w", op, symbol, err)
	}
	return fmt.Errorf("%s %s: %v: %w", op, symbol, err, model.ErrUpstreamUnavailable)
}

func (b *Backend) Quote(ctx context.Context, symbol string) (model.PriceSample, error) {
	symbol = model.NormalizeSymbol(symbol)
	q, err := call(ctx, func() (*finance.Quote, error) { return getQuote(symbol) })
	if err != nil {
		return model.PriceSample{}, classify("quote", symbol, err)
	}
	if q == nil {
		return model.PriceSample{}, fmt.Errorf("quote %s: %w", symbol, model.ErrNotFound)
	}
	return model.NewPriceSample(symbol, decimal.NewFromFloat(q.RegularMarketPrice), b.now())
}

func (b *Backend) Details(ctx context.Context, symbol string) (model.StockDetails, error) {
	symbol = model.NormalizeSymbol(symbol)
	eq, err := call(ctx, func() (*finance.Equity, error) { return getEquity(symbol) })
	if err != nil {
		return model.StockDetails{}, classify("equity", symbol, err)
	}
	if eq == nil || eq.RegularMarketPrice <= 0 {
		return model.StockDetails{}, fmt.Errorf("equity %s: %w", symbol, model.ErrNotFound)
	}
	if eq.RegularMarketOpen <= 0 || eq.RegularMarketDayHigh <= 0 || eq.RegularMarketDayLow <= 0 {
		return model.StockDetails{}, fmt.Errorf("equity %s: incomplete quote: %w", symbol, model.ErrNotFound)
	}

	end := b.now()
	// Calendar days; weekends make the window thinner than historyDays.
	start := end.AddDate(0, 0, -2*b.historyDays)
	bars, err := call(ctx, func() ([]bar, error) { return getBars(symbol, start, end) })
	if err != nil {
		return model.StockDetails{}, classify("chart", symbol, err)
	}
	if len(bars) == 0 {
		return model.StockDetails{}, fmt.Errorf("chart %s: no bars: %w", symbol, model.ErrNotFound)
	}
	if len(bars) > b.historyDays {
		bars = bars[len(bars)-b.historyDays:]
	}
	history := make([]model.HistoryPoint, 0, len(bars))
	for _, bb := range bars {
		history = append(history, model.HistoryPoint{Date: bb.At.Format("2006-01-02"), Price: bb.Close})
	}

	name := eq.LongName
	if name == "" {
		name = eq.ShortName
	}
	d := model.StockDetails{
		Ticker:       symbol,
		Name:         name,
		CurrentPrice: decimal.NewFromFloat(eq.RegularMarketPrice),
		OpenPrice:    decimal.NewFromFloat(eq.RegularMarketOpen),
		HighPrice:    decimal.NewFromFloat(eq.RegularMarketDayHigh),
		LowPrice:     decimal.NewFromFloat(eq.RegularMarketDayLow),
		MarketCap:    decimal.NewFromInt(eq.MarketCap),
		PriceHistory: history,
	}
	if eq.TrailingPE > 0 {
		d.PERatio = decimal.NewNullDecimal(decimal.NewFromFloat(eq.TrailingPE))
	}
	return d, nil
}
