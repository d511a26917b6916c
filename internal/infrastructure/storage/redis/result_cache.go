package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"pricestream/internal/application/port"
)

// ResultCache stores JSON encoded lookup results under prefix:key with a
// per entry TTL, so several instances can share search and details hits.
type ResultCache struct {
	rdb    *redis.Client
	prefix string
}

func NewResultCache(rdb *redis.Client, prefix string) *ResultCache {
	return &ResultCache{rdb: rdb, prefix: prefix}
}

func (c *ResultCache) key(k string) string { return c.prefix + ":cache:" + k }

func (c *ResultCache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	b, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (c *ResultCache) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.rdb.Set(ctx, c.key(key), b, ttl).Err()
}

var _ port.ResultCache = (*ResultCache)(nil)
