package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"pricestream/internal/application/port"
	"pricestream/internal/domain/model"
)

type Repo struct {
	rdb       *redis.Client
	prefix    string
	ttl       time.Duration
	keyLatest string // prefix + ":latest"
	channel   string
}

type LatestPrice struct {
	Symbol     string          `json:"symbol"`
	Price      decimal.Decimal `json:"price"`
	CapturedMs int64           `json:"captured_ms"`
}

// New builds the Redis repository. An empty channel defaults to
// prefix + ":prices"; every new sample is published there.
func New(rdb *redis.Client, prefix string, ttl time.Duration, channel string) *Repo {
	if strings.TrimSpace(channel) == "" {
		channel = prefix + ":prices"
	}
	return &Repo{
		rdb:       rdb,
		prefix:    prefix,
		ttl:       ttl,
		keyLatest: prefix + ":latest",
		channel:   channel,
	}
}

func (r *Repo) UpsertLatestPrice(ctx context.Context, s model.PriceSample) error {
	if !s.Price.IsPositive() {
		return nil
	}
	lp := LatestPrice{Symbol: s.Symbol, Price: s.Price, CapturedMs: s.CapturedAt.UnixMilli()}
	b, err := json.Marshal(lp)
	if err != nil {
		return err
	}

	// Hash: field = "AAPL" -> json
	pipe := r.rdb.Pipeline()
	pipe.HSet(ctx, r.keyLatest, s.Symbol, string(b))
	if r.ttl > 0 {
		pipe.Expire(ctx, r.keyLatest, r.ttl)
	}
	pipe.Publish(ctx, r.channel, string(b))
	_, err = pipe.Exec(ctx)
	return err
}

func (r *Repo) GetLatestPrice(ctx context.Context, symbol string) (model.PriceSample, error) {
	symbol = model.NormalizeSymbol(symbol)
	raw, err := r.rdb.HGet(ctx, r.keyLatest, symbol).Result()
	if errors.Is(err, redis.Nil) {
		return model.PriceSample{}, model.ErrNotFound
	}
	if err != nil {
		return model.PriceSample{}, fmt.Errorf("hget latest price: %w", err)
	}
	var lp LatestPrice
	if err := json.Unmarshal([]byte(raw), &lp); err != nil {
		return model.PriceSample{}, fmt.Errorf("decode latest price: %w", err)
	}
	return model.PriceSample{Symbol: symbol, Price: lp.Price, CapturedAt: time.UnixMilli(lp.CapturedMs)}, nil
}

// Close is a no-op; the client is owned and closed by the service context.
func (r *Repo) Close() error { return nil }

func (r *Repo) Channel() string { return r.channel }

var _ port.PriceRepository = (*Repo)(nil)
