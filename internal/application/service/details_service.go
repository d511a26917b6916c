package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"pricestream/internal/application/port"
	"pricestream/internal/domain/model"
)

// DetailsService serves the per-symbol detail snapshot behind its own
// cache, independent of the streaming price cache.
type DetailsService struct {
	fetcher *QuoteFetcher
	local   port.Cache[model.StockDetails]
	remote  port.ResultCache
	ttl     time.Duration

	group singleflight.Group
}

func NewDetailsService(fetcher *QuoteFetcher, local port.Cache[model.StockDetails], remote port.ResultCache, ttl time.Duration) *DetailsService {
	return &DetailsService{fetcher: fetcher, local: local, remote: remote, ttl: ttl}
}

// Details returns model.ErrNotFound when the provider has no usable data.
func (s *DetailsService) Details(ctx context.Context, symbol string) (model.StockDetails, error) {
	symbol = model.NormalizeSymbol(symbol)
	if symbol == "" {
		return model.StockDetails{}, model.ErrNotFound
	}
	if d, ok := s.lookup(ctx, symbol); ok {
		return d, nil
	}

	// The flight outlives any single caller; the fetcher bounds it.
	flightCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(symbol, func() (any, error) {
		d, err := s.fetcher.FetchDetails(flightCtx, symbol)
		if err != nil {
			return nil, err
		}
		s.store(flightCtx, symbol, d)
		log.Debug().Str("symbol", symbol).Int("history", len(d.PriceHistory)).Msg("details cached")
		return d, nil
	})
	select {
	case <-ctx.Done():
		return model.StockDetails{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return model.StockDetails{}, res.Err
		}
		return res.Val.(model.StockDetails), nil
	}
}

func (s *DetailsService) lookup(ctx context.Context, symbol string) (model.StockDetails, bool) {
	if s.local != nil {
		if d, ok := s.local.Get(symbol); ok {
			return d, true
		}
	}
	if s.remote == nil {
		return model.StockDetails{}, false
	}
	var d model.StockDetails
	ok, err := s.remote.GetJSON(ctx, "details:"+symbol, &d)
	if err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("details cache read failed")
		return model.StockDetails{}, false
	}
	if ok && s.local != nil {
		s.local.Put(symbol, d)
	}
	return d, ok
}

func (s *DetailsService) store(ctx context.Context, symbol string, d model.StockDetails) {
	if s.local != nil {
		s.local.Put(symbol, d)
	}
	if s.remote != nil {
		if err := s.remote.SetJSON(ctx, "details:"+symbol, d, s.ttl); err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("details cache write failed")
		}
	}
}
