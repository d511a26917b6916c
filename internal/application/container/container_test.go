package container

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pricestream/internal/application/service"
	"pricestream/internal/domain/model"
	"pricestream/internal/infrastructure/cache"
	"pricestream/internal/infrastructure/config"
	infracontainer "pricestream/internal/infrastructure/container"
	"pricestream/internal/infrastructure/ratelimit"
)

type stubProvider struct {
	calls atomic.Int32
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Quote(_ context.Context, symbol string) (model.PriceSample, error) {
	p.calls.Add(1)
	return model.NewPriceSample(symbol, decimal.RequireFromString("150.00"), time.Now())
}

func (p *stubProvider) Details(_ context.Context, symbol string) (model.StockDetails, error) {
	return model.StockDetails{Ticker: symbol, Name: symbol + " Inc"}, nil
}

func newContainer(t *testing.T, provider *stubProvider) (*Container, *infracontainer.Container) {
	t.Helper()
	cfg := &config.Config{}
	cfg.Storage.SQLite.Enabled = true
	cfg.Storage.SQLite.Path = filepath.Join(t.TempDir(), "container.db")

	infra, err := infracontainer.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("failed to create container: %v", err)
	}
	t.Cleanup(func() { _ = infra.Close() })

	c := New(Deps{
		Fetcher:      service.NewQuoteFetcher(provider, time.Second),
		Prices:       cache.New[model.PriceSample](time.Minute),
		Limiter:      ratelimit.New(time.Minute, ratelimit.PerSymbol),
		Repo:         infra.Repository(),
		SearchCache:  cache.New[[]model.SearchResult](time.Minute),
		DetailsCache: cache.New[model.StockDetails](time.Minute),
		Remote:       infra.ResultCache(),
		SearchTTL:    time.Minute,
		DetailsTTL:   time.Minute,
	})
	return c, infra
}

func TestContainerBuildsServicesOnce(t *testing.T) {
	c, _ := newContainer(t, &stubProvider{})

	if c.PriceResolver() != c.PriceResolver() {
		t.Errorf("expected the same resolver instance")
	}
	if c.SearchService() != c.SearchService() {
		t.Errorf("expected the same search service instance")
	}
	if c.DetailsService() != c.DetailsService() {
		t.Errorf("expected the same details service instance")
	}
	if c.SearchService().Enabled() {
		t.Errorf("stub provider cannot search")
	}
}

func TestContainerServiceWorkflow(t *testing.T) {
	provider := &stubProvider{}
	c, infra := newContainer(t, provider)
	ctx := context.Background()

	s, err := c.PriceResolver().Resolve(ctx, "aapl")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if s.Symbol != "AAPL" {
		t.Errorf("expected AAPL, got %s", s.Symbol)
	}

	// second call is served from cache
	if _, err := c.PriceResolver().Resolve(ctx, "AAPL"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if n := provider.calls.Load(); n != 1 {
		t.Errorf("expected 1 upstream call, got %d", n)
	}

	stored, err := infra.SQLiteRepo().GetLatestPrice(ctx, "AAPL")
	if err != nil {
		t.Fatalf("GetLatestPrice failed: %v", err)
	}
	if !stored.Price.Equal(decimal.RequireFromString("150")) {
		t.Errorf("expected 150, got %s", stored.Price)
	}

	d, err := c.DetailsService().Details(ctx, "aapl")
	if err != nil {
		t.Fatalf("Details failed: %v", err)
	}
	if d.Name != "AAPL Inc" {
		t.Errorf("unexpected details name %q", d.Name)
	}
}
