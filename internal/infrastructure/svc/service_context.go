package svc

import (
	"context"
	"fmt"
	"sync"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	appcontainer "pricestream/internal/application/container"
	"pricestream/internal/application/port"
	"pricestream/internal/application/service"
	"pricestream/internal/application/usecase/stream"
	"pricestream/internal/domain/model"
	"pricestream/internal/infrastructure/cache"
	"pricestream/internal/infrastructure/config"
	"pricestream/internal/infrastructure/container"
	"pricestream/internal/infrastructure/quote"
	_ "pricestream/internal/infrastructure/quote/alphavantage"
	_ "pricestream/internal/infrastructure/quote/binance"
	_ "pricestream/internal/infrastructure/quote/yahoo"
	"pricestream/internal/infrastructure/ratelimit"
	"pricestream/internal/infrastructure/websocket"
)

// ServiceContext holds the process-wide components. It is built once at
// startup and shared by the HTTP layer and every session.
type ServiceContext struct {
	Config *config.Config

	// infrastructure
	infra    *container.Container
	Prices   *cache.TTL[model.PriceSample]
	searches *cache.TTL[[]model.SearchResult]
	details  *cache.TTL[model.StockDetails]
	Limiter  *ratelimit.Limiter
	Sessions *websocket.Manager
	Upgrader *gws.Upgrader

	// application
	App *appcontainer.Container

	bgWG   sync.WaitGroup
	cancel context.CancelFunc
}

// New wires every dependency from cfg. On failure whatever was already
// opened is released.
func New(ctx context.Context, cfg *config.Config) (*ServiceContext, error) {
	provider, err := quote.New(cfg.Provider.Name, quote.Settings{
		APIKey:      cfg.Provider.APIKey,
		BaseURL:     cfg.Provider.BaseURL,
		Timeout:     cfg.ProviderTimeout(),
		HistoryDays: cfg.Provider.HistoryDays,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderInitFailed, err)
	}
	return NewWithProvider(ctx, cfg, provider)
}

// NewWithProvider uses the given upstream instead of the registry; tests
// inject fakes through it.
func NewWithProvider(ctx context.Context, cfg *config.Config, provider port.QuoteProvider) (*ServiceContext, error) {
	mode, err := ratelimit.ParseMode(cfg.RateLimit.Mode)
	if err != nil {
		return nil, err
	}

	infra, err := container.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageInitFailed, err)
	}

	sc := &ServiceContext{
		Config:   cfg,
		infra:    infra,
		Prices:   cache.New[model.PriceSample](cfg.PriceTTL()),
		searches: cache.New[[]model.SearchResult](cfg.SearchTTL()),
		details:  cache.New[model.StockDetails](cfg.DetailsTTL()),
		Limiter:  ratelimit.New(cfg.MinInterval(), mode),
		Sessions: websocket.NewManager(),
		Upgrader: websocket.NewUpgrader(cfg.Server.AllowedOrigins),
	}

	sc.App = appcontainer.New(appcontainer.Deps{
		Fetcher:      service.NewQuoteFetcher(provider, cfg.ProviderTimeout()),
		Prices:       sc.Prices,
		Limiter:      sc.Limiter,
		Repo:         infra.Repository(),
		SearchCache:  sc.searches,
		DetailsCache: sc.details,
		Remote:       infra.ResultCache(),
		SearchTTL:    cfg.SearchTTL(),
		DetailsTTL:   cfg.DetailsTTL(),
	})

	log.Info().
		Str("provider", provider.Name()).
		Dur("price_ttl", cfg.PriceTTL()).
		Dur("min_interval", cfg.MinInterval()).
		Str("ratelimit_mode", string(sc.Limiter.Mode())).
		Dur("interval", cfg.StreamInterval()).
		Bool("search", sc.App.SearchService().Enabled()).
		Msg("✓ All components initialized")
	return sc, nil
}

// Start launches the cache reaper and the limiter pruner.
func (sc *ServiceContext) Start(ctx context.Context) {
	ctx, sc.cancel = context.WithCancel(ctx)
	every := sc.Config.ReapEvery()
	// expired prices linger as the stale fallback for denied symbols
	grace := 10 * sc.Config.PriceTTL()

	sc.goBackground(func() {
		sc.Prices.RunReaper(ctx, every, grace, func(n int) {
			log.Debug().Int("entries", n).Msg("price cache reaped")
		})
	})
	sc.goBackground(func() { sc.searches.RunReaper(ctx, every, 0, nil) })
	sc.goBackground(func() { sc.details.RunReaper(ctx, every, 0, nil) })
	sc.goBackground(func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := sc.Limiter.Prune(); n > 0 {
					log.Debug().Int("windows", n).Msg("rate windows pruned")
				}
			}
		}
	})
}

func (sc *ServiceContext) goBackground(fn func()) {
	sc.bgWG.Add(1)
	go func() {
		defer sc.bgWG.Done()
		fn()
	}()
}

// Keepalive returns the websocket ping/pong settings.
func (sc *ServiceContext) Keepalive() websocket.Keepalive {
	return websocket.Keepalive{PongWait: sc.Config.PongWait(), PingEvery: sc.Config.PingEvery()}
}

// NewSession builds a streaming session for an upgraded connection.
func (sc *ServiceContext) NewSession(conn port.Conn) *stream.Session {
	return stream.NewSession(stream.SessionDeps{
		Conn:     conn,
		Resolver: sc.App.PriceResolver(),
		Registry: sc.Sessions,
		Config: stream.Config{
			Interval:     sc.Config.StreamInterval(),
			WriteTimeout: sc.Config.WriteTimeout(),
		},
	})
}

// Close disconnects clients first, then stops background work and
// releases storage last.
func (sc *ServiceContext) Close() error {
	sc.Sessions.CloseAll()
	if sc.cancel != nil {
		sc.cancel()
	}
	sc.bgWG.Wait()
	return sc.infra.Close()
}
