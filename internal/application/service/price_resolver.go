package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"pricestream/internal/application/port"
	"pricestream/internal/domain/model"
)

const persistTimeout = 2 * time.Second

// PriceResolver answers "what is the price of X now" for every session.
// A fresh cache entry is returned as is. On a miss the rate limiter is
// consulted and, when granted, the fetcher goes upstream; the result is
// cached and persisted. Concurrent misses for one symbol share a single
// flight, so they cost at most one upstream call.
type PriceResolver struct {
	cache   port.PriceCache
	limiter port.RateLimiter
	fetcher *QuoteFetcher
	repo    port.PriceRepository

	group singleflight.Group
}

func NewPriceResolver(cache port.PriceCache, limiter port.RateLimiter, fetcher *QuoteFetcher, repo port.PriceRepository) *PriceResolver {
	return &PriceResolver{
		cache:   cache,
		limiter: limiter,
		fetcher: fetcher,
		repo:    repo,
	}
}

// Resolve returns a fresh sample for symbol. When the limiter denies the
// upstream call and nothing fresh is cached, the error is a
// *model.RateLimitedError.
func (r *PriceResolver) Resolve(ctx context.Context, symbol string) (model.PriceSample, error) {
	symbol = model.NormalizeSymbol(symbol)
	if s, ok := r.cache.Get(symbol); ok {
		return s, nil
	}

	// The flight outlives any single caller; the fetcher bounds it.
	flightCtx := context.WithoutCancel(ctx)
	v, err, _ := r.group.Do(symbol, func() (any, error) {
		if s, ok := r.cache.Get(symbol); ok {
			return s, nil
		}
		granted, retryAfter := r.limiter.Allow(symbol)
		if !granted {
			return nil, &model.RateLimitedError{Symbol: symbol, RetryAfter: retryAfter}
		}
		s, err := r.fetcher.Fetch(flightCtx, symbol)
		if err != nil {
			return nil, err
		}
		r.cache.PutAt(symbol, s, s.CapturedAt)
		r.persist(flightCtx, s)
		return s, nil
	})
	if err != nil {
		return model.PriceSample{}, err
	}
	return v.(model.PriceSample), nil
}

// Fallback returns the newest known sample for symbol without going
// upstream: an expired cache entry first, then the repository.
func (r *PriceResolver) Fallback(ctx context.Context, symbol string) (model.PriceSample, bool) {
	symbol = model.NormalizeSymbol(symbol)
	if s, _, ok := r.cache.Last(symbol); ok {
		return s, true
	}
	if r.repo == nil {
		return model.PriceSample{}, false
	}

	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()
	s, err := r.repo.GetLatestPrice(ctx, symbol)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			log.Warn().Err(err).Str("symbol", symbol).Msg("load last price failed")
		}
		return model.PriceSample{}, false
	}
	return s, true
}

func (r *PriceResolver) persist(ctx context.Context, s model.PriceSample) {
	if r.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()
	if err := r.repo.UpsertLatestPrice(ctx, s); err != nil {
		log.Warn().Err(err).Str("symbol", s.Symbol).Msg("persist latest price failed")
	}
}
