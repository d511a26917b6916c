package container

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"pricestream/internal/application/port"
	"pricestream/internal/infrastructure/config"
	"pricestream/internal/infrastructure/storage"
	"pricestream/internal/infrastructure/storage/composite"
	pgrepo "pricestream/internal/infrastructure/storage/postgres"
	redisrepo "pricestream/internal/infrastructure/storage/redis"
	sqliterepo "pricestream/internal/infrastructure/storage/sqlite"
)

// Container owns the storage dependencies: memory, Redis, SQLite and Postgres.
type Container struct {
	cfg         *config.Config
	memory      *storage.Memory
	redisClient *redis.Client
	redisRepo   *redisrepo.Repo
	resultCache *redisrepo.ResultCache
	sqliteRepo  *sqliterepo.Repo
	pgRepo      *pgrepo.Repo
	repo        *composite.Repo
	closeOnce   sync.Once
	closerChain []func() error
}

// New opens the configured stores, releasing any already opened on failure.
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	c := &Container{
		cfg:         cfg,
		memory:      storage.NewMemory(),
		closerChain: make([]func() error, 0),
	}

	if err := c.initStorage(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}

	// memory first so reads hit it before any remote store
	c.repo = composite.New(c.memory, c.redisRepoOrNil(), c.sqliteRepoOrNil(), c.pgRepoOrNil())
	log.Info().Int("backends", c.repo.Len()).Msg("latest-price storage ready")
	return c, nil
}

func (c *Container) initStorage(ctx context.Context) error {
	if c.cfg.Storage.Redis.Enabled {
		if err := c.initRedis(ctx); err != nil {
			return fmt.Errorf("redis init failed: %w", err)
		}
	}
	if c.cfg.Storage.SQLite.Enabled {
		if err := c.initSQLite(); err != nil {
			return fmt.Errorf("sqlite init failed: %w", err)
		}
	}
	if c.cfg.Storage.Postgres.Enabled {
		if err := c.initPostgres(); err != nil {
			return fmt.Errorf("postgres init failed: %w", err)
		}
	}
	return nil
}

func (c *Container) initRedis(ctx context.Context) error {
	rcfg := c.cfg.Storage.Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     rcfg.Addr,
		Password: rcfg.Password,
		DB:       rcfg.DB,
	})

	// ping
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("redis ping failed: %w", err)
	}

	c.redisClient = rdb
	ttl := time.Duration(rcfg.TTLSeconds) * time.Second
	c.redisRepo = redisrepo.New(rdb, rcfg.Prefix, ttl, rcfg.Channel)
	c.resultCache = redisrepo.NewResultCache(rdb, rcfg.Prefix)

	c.closerChain = append(c.closerChain, func() error {
		log.Info().Msg("closing redis connection")
		return rdb.Close()
	})

	log.Info().
		Str("addr", rcfg.Addr).
		Int("db", rcfg.DB).
		Str("channel", c.redisRepo.Channel()).
		Msg("redis initialized")
	return nil
}

func (c *Container) initSQLite() error {
	repo, err := sqliterepo.New(c.cfg.Storage.SQLite.Path)
	if err != nil {
		return err
	}
	c.sqliteRepo = repo

	c.closerChain = append(c.closerChain, func() error {
		log.Info().Msg("closing sqlite connection")
		return repo.Close()
	})

	log.Info().Str("path", c.cfg.Storage.SQLite.Path).Msg("sqlite initialized")
	return nil
}

func (c *Container) initPostgres() error {
	repo, err := pgrepo.New(c.cfg.Storage.Postgres.DSN)
	if err != nil {
		return err
	}
	c.pgRepo = repo

	c.closerChain = append(c.closerChain, func() error {
		log.Info().Msg("closing postgres connection")
		return repo.Close()
	})

	log.Info().Msg("postgres initialized")
	return nil
}

// keeps a nil pointer out of the interface
func (c *Container) redisRepoOrNil() port.PriceRepository {
	if c.redisRepo == nil {
		return nil
	}
	return c.redisRepo
}

func (c *Container) sqliteRepoOrNil() port.PriceRepository {
	if c.sqliteRepo == nil {
		return nil
	}
	return c.sqliteRepo
}

func (c *Container) pgRepoOrNil() port.PriceRepository {
	if c.pgRepo == nil {
		return nil
	}
	return c.pgRepo
}

func (c *Container) Config() *config.Config { return c.cfg }

// Repository is the composite latest-price repository.
func (c *Container) Repository() port.PriceRepository { return c.repo }

// ResultCache is nil unless Redis is enabled.
func (c *Container) ResultCache() port.ResultCache {
	if c.resultCache == nil {
		return nil
	}
	return c.resultCache
}

func (c *Container) RedisClient() *redis.Client { return c.redisClient }

func (c *Container) SQLiteRepo() *sqliterepo.Repo { return c.sqliteRepo }

// Close releases resources in reverse order of opening.
func (c *Container) Close() error {
	var err error
	c.closeOnce.Do(func() {
		for i := len(c.closerChain) - 1; i >= 0; i-- {
			if e := c.closerChain[i](); e != nil {
				log.Error().Err(e).Msg("error closing resource")
				if err == nil {
					err = e
				}
			}
		}
		log.Info().Msg("container closed")
	})
	return err
}
