package service

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/mock/gomock"

	"pricestream/internal/domain/model"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type memRepo struct {
	mu      sync.Mutex
	latest  map[string]model.PriceSample
	upserts int
}

func newMemRepo() *memRepo {
	return &memRepo{latest: make(map[string]model.PriceSample)}
}

func (r *memRepo) UpsertLatestPrice(_ context.Context, s model.PriceSample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latest[s.Symbol] = s
	r.upserts++
	return nil
}

func (r *memRepo) GetLatestPrice(_ context.Context, symbol string) (model.PriceSample, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.latest[symbol]
	if !ok {
		return model.PriceSample{}, model.ErrNotFound
	}
	return s, nil
}

func (r *memRepo) Close() error { return nil }

func newMockProvider(ctrl *gomock.Controller) *MockQuoteProvider {
	p := NewMockQuoteProvider(ctrl)
	p.EXPECT().Name().Return("mock").AnyTimes()
	return p
}

// searchingProvider is a provider that can also search.
type searchingProvider struct {
	*MockQuoteProvider
	*MockSearcher
}

func priceSample(symbol, price string, at time.Time) model.PriceSample {
	return model.PriceSample{Symbol: symbol, Price: decimal.RequireFromString(price), CapturedAt: at}
}
