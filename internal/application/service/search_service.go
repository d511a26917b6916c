package service

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"pricestream/internal/application/port"
	"pricestream/internal/domain/model"
)

// SearchService answers symbol lookups. Results are cached by normalized
// query in the shared result cache when one is configured, otherwise in
// process.
type SearchService struct {
	fetcher *QuoteFetcher
	local   port.Cache[[]model.SearchResult]
	remote  port.ResultCache
	ttl     time.Duration

	group singleflight.Group
}

func NewSearchService(fetcher *QuoteFetcher, local port.Cache[[]model.SearchResult], remote port.ResultCache, ttl time.Duration) *SearchService {
	return &SearchService{fetcher: fetcher, local: local, remote: remote, ttl: ttl}
}

func (s *SearchService) Enabled() bool { return s.fetcher.CanSearch() }

// Search returns matches for query. An empty query or no match yields an
// empty list.
func (s *SearchService) Search(ctx context.Context, query string) ([]model.SearchResult, error) {
	key := strings.ToLower(strings.TrimSpace(query))
	if key == "" {
		return []model.SearchResult{}, nil
	}
	if !s.fetcher.CanSearch() {
		return nil, ErrSearchUnsupported
	}

	if hit, ok := s.lookup(ctx, key); ok {
		return hit, nil
	}

	flightCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		res, err := s.fetcher.Search(flightCtx, key)
		if err != nil {
			return nil, err
		}
		if res == nil {
			res = []model.SearchResult{}
		}
		s.store(flightCtx, key, res)
		return res, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]model.SearchResult), nil
	}
}

func (s *SearchService) lookup(ctx context.Context, key string) ([]model.SearchResult, bool) {
	if s.remote != nil {
		var out []model.SearchResult
		ok, err := s.remote.GetJSON(ctx, "search:"+key, &out)
		if err != nil {
			log.Warn().Err(err).Str("query", key).Msg("search cache read failed")
		}
		if ok {
			return out, true
		}
	}
	if s.local != nil {
		return s.local.Get(key)
	}
	return nil, false
}

func (s *SearchService) store(ctx context.Context, key string, res []model.SearchResult) {
	if s.local != nil {
		s.local.Put(key, res)
	}
	if s.remote != nil {
		if err := s.remote.SetJSON(ctx, "search:"+key, res, s.ttl); err != nil {
			log.Warn().Err(err).Str("query", key).Msg("search cache write failed")
		}
	}
}
