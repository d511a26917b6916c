package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"pricestream/internal/application/port"
	"pricestream/internal/domain/model"
)

const defaultFetchTimeout = 10 * time.Second

// QuoteFetcher is the only path from the service to the upstream provider.
// It bounds every call with a timeout and normalizes failures onto the
// model error taxonomy.
type QuoteFetcher struct {
	provider port.QuoteProvider
	timeout  time.Duration
	calls    atomic.Int64
}

func NewQuoteFetcher(provider port.QuoteProvider, timeout time.Duration) *QuoteFetcher {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &QuoteFetcher{provider: provider, timeout: timeout}
}

// Fetch gets the current price for symbol.
func (f *QuoteFetcher) Fetch(ctx context.Context, symbol string) (model.PriceSample, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	f.calls.Add(1)
	start := time.Now()
	s, err := f.provider.Quote(ctx, symbol)
	if err != nil {
		err = classify(ctx, err)
		logFailure("quote", symbol, err)
		return model.PriceSample{}, err
	}
	log.Debug().
		Str("provider", f.provider.Name()).
		Str("symbol", s.Symbol).
		Str("price", s.Price.String()).
		Dur("took", time.Since(start)).
		Msg("quote fetched")
	return s, nil
}

// FetchDetails gets the detail snapshot for symbol.
func (f *QuoteFetcher) FetchDetails(ctx context.Context, symbol string) (model.StockDetails, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	f.calls.Add(1)
	d, err := f.provider.Details(ctx, symbol)
	if err != nil {
		err = classify(ctx, err)
		logFailure("details", symbol, err)
		return model.StockDetails{}, err
	}
	return d, nil
}

// CanSearch reports whether the provider implements port.Searcher.
func (f *QuoteFetcher) CanSearch() bool {
	_, ok := f.provider.(port.Searcher)
	return ok
}

// Search looks symbols up by keyword.
func (f *QuoteFetcher) Search(ctx context.Context, query string) ([]model.SearchResult, error) {
	searcher, ok := f.provider.(port.Searcher)
	if !ok {
		return nil, ErrSearchUnsupported
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	f.calls.Add(1)
	res, err := searcher.Search(ctx, query)
	if err != nil {
		err = classify(ctx, err)
		logFailure("search", query, err)
		return nil, err
	}
	return res, nil
}

// Calls counts upstream requests issued so far.
func (f *QuoteFetcher) Calls() int64 { return f.calls.Load() }

func (f *QuoteFetcher) ProviderName() string { return f.provider.Name() }

// classify makes sure err matches one of the taxonomy sentinels.
func classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, model.ErrNotFound),
		errors.Is(err, model.ErrUpstreamMalformed),
		errors.Is(err, model.ErrUpstreamUnavailable):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%v: %w", err, model.ErrTimeout)
	default:
		return fmt.Errorf("%v: %w", err, model.ErrUpstreamUnavailable)
	}
}

func logFailure(op, subject string, err error) {
	log.Warn().
		Str("op", op).
		Str("symbol", subject).
		Str("kind", model.ErrorKind(err)).
		Err(err).
		Msg("upstream call failed")
}
