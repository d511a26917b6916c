package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"pricestream/internal/domain/model"
	"pricestream/internal/infrastructure/cache"
)

type mapResultCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (c *mapResultCache) GetJSON(_ context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *mapResultCache) SetJSON(_ context.Context, key string, v any, _ time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = b
	return nil
}

func newSearching(ctrl *gomock.Controller) searchingProvider {
	return searchingProvider{MockQuoteProvider: newMockProvider(ctrl), MockSearcher: NewMockSearcher(ctrl)}
}

func TestSearchCachesByNormalizedQuery(t *testing.T) {
	ctrl := gomock.NewController(t)
	p := newSearching(ctrl)
	hits := []model.SearchResult{{Symbol: "AAPL", Name: "Apple Inc", Exchange: "United States"}}
	p.MockSearcher.EXPECT().Search(gomock.Any(), "apple").Return(hits, nil).Times(1)

	svc := NewSearchService(NewQuoteFetcher(p, time.Second), cache.New[[]model.SearchResult](time.Minute), nil, time.Minute)
	require.True(t, svc.Enabled())

	got, err := svc.Search(context.Background(), "Apple")
	require.NoError(t, err)
	require.Equal(t, hits, got)

	got, err = svc.Search(context.Background(), "  APPLE ")
	require.NoError(t, err)
	require.Equal(t, hits, got)
}

func TestSearchUsesRemoteCache(t *testing.T) {
	ctrl := gomock.NewController(t)
	p := newSearching(ctrl)
	p.MockSearcher.EXPECT().Search(gomock.Any(), "micro").Return([]model.SearchResult{{Symbol: "MSFT"}}, nil).Times(1)

	remote := &mapResultCache{data: map[string][]byte{}}
	first := NewSearchService(NewQuoteFetcher(p, time.Second), nil, remote, time.Minute)
	_, err := first.Search(context.Background(), "micro")
	require.NoError(t, err)
	require.Contains(t, remote.data, "search:micro")

	// A second instance sharing the remote cache does not go upstream.
	second := NewSearchService(NewQuoteFetcher(p, time.Second), nil, remote, time.Minute)
	got, err := second.Search(context.Background(), "micro")
	require.NoError(t, err)
	require.Equal(t, "MSFT", got[0].Symbol)
}

func TestSearchEmptyQuery(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := NewSearchService(NewQuoteFetcher(newSearching(ctrl), time.Second), nil, nil, time.Minute)

	got, err := svc.Search(context.Background(), "   ")
	require.NoError(t, err)
	require.Empty(t, got)
	require.NotNil(t, got)
}

func TestSearchNoMatchesIsEmptyList(t *testing.T) {
	ctrl := gomock.NewController(t)
	p := newSearching(ctrl)
	p.MockSearcher.EXPECT().Search(gomock.Any(), "zzzz").Return(nil, nil)

	svc := NewSearchService(NewQuoteFetcher(p, time.Second), nil, nil, time.Minute)
	got, err := svc.Search(context.Background(), "zzzz")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Empty(t, got)
}

func TestSearchUnsupportedProvider(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := NewSearchService(NewQuoteFetcher(newMockProvider(ctrl), time.Second), nil, nil, time.Minute)

	require.False(t, svc.Enabled())
	_, err := svc.Search(context.Background(), "apple")
	require.ErrorIs(t, err, ErrSearchUnsupported)
}

func TestSearchSharedFetchSurvivesCallerCancel(t *testing.T) {
	ctrl := gomock.NewController(t)
	p := newSearching(ctrl)
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	hits := []model.SearchResult{{Symbol: "MSFT", Name: "Microsoft Corporation"}}
	p.MockSearcher.EXPECT().Search(gomock.Any(), "micro").DoAndReturn(func(ctx context.Context, _ string) ([]model.SearchResult, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-release:
			return hits, nil
		}
	}).MinTimes(1)

	svc := NewSearchService(NewQuoteFetcher(p, 5*time.Second), cache.New[[]model.SearchResult](time.Minute), nil, time.Minute)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := svc.Search(ctxA, "micro")
		errA <- err
	}()
	<-started

	type result struct {
		hits []model.SearchResult
		err  error
	}
	resB := make(chan result, 1)
	go func() {
		got, err := svc.Search(context.Background(), "Micro")
		resB <- result{got, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	require.ErrorIs(t, <-errA, context.Canceled)

	close(release)
	got := <-resB
	require.NoError(t, got.err)
	require.Equal(t, hits, got.hits)
}
