package container

import (
	"sync"
	"time"

	"pricestream/internal/application/port"
	"pricestream/internal/application/service"
	"pricestream/internal/domain/model"
)

// Deps are the ports the application services are built from.
type Deps struct {
	Fetcher      *service.QuoteFetcher
	Prices       port.PriceCache
	Limiter      port.RateLimiter
	Repo         port.PriceRepository
	SearchCache  port.Cache[[]model.SearchResult]
	DetailsCache port.Cache[model.StockDetails]
	Remote       port.ResultCache
	SearchTTL    time.Duration
	DetailsTTL   time.Duration
}

// Container builds each application service once, on first use.
type Container struct {
	deps Deps

	resolverOnce sync.Once
	resolver     *service.PriceResolver

	searchOnce sync.Once
	search     *service.SearchService

	detailsOnce sync.Once
	details     *service.DetailsService
}

func New(deps Deps) *Container {
	return &Container{deps: deps}
}

func (c *Container) Repository() port.PriceRepository {
	return c.deps.Repo
}

func (c *Container) Fetcher() *service.QuoteFetcher {
	return c.deps.Fetcher
}

func (c *Container) PriceResolver() *service.PriceResolver {
	c.resolverOnce.Do(func() {
		c.resolver = service.NewPriceResolver(c.deps.Prices, c.deps.Limiter, c.deps.Fetcher, c.deps.Repo)
	})
	return c.resolver
}

func (c *Container) SearchService() *service.SearchService {
	c.searchOnce.Do(func() {
		c.search = service.NewSearchService(c.deps.Fetcher, c.deps.SearchCache, c.deps.Remote, c.deps.SearchTTL)
	})
	return c.search
}

func (c *Container) DetailsService() *service.DetailsService {
	c.detailsOnce.Do(func() {
		c.details = service.NewDetailsService(c.deps.Fetcher, c.deps.DetailsCache, c.deps.Remote, c.deps.DetailsTTL)
	})
	return c.details
}
