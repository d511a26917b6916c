package stream

import (
	"context"
	"time"

	"pricestream/internal/application/port"
	"pricestream/internal/domain/model"
)

// Resolver yields prices for a session; implemented by service.PriceResolver.
type Resolver interface {
	Resolve(ctx context.Context, symbol string) (model.PriceSample, error)
	Fallback(ctx context.Context, symbol string) (model.PriceSample, bool)
}

// Registry tracks live connections so they can be counted and closed on
// shutdown.
type Registry interface {
	Register(conn port.Conn) string
	Unregister(id string)
}

type Config struct {
	// Interval is the pause between two pushes.
	Interval time.Duration
	// WriteTimeout bounds one push.
	WriteTimeout time.Duration
}

const (
	DefaultInterval     = 5 * time.Second
	DefaultWriteTimeout = 5 * time.Second
)

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	return c
}

type SessionDeps struct {
	Conn     port.Conn
	Resolver Resolver
	Registry Registry
	Config   Config
}
