package container

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"pricestream/internal/domain/model"
	"pricestream/internal/infrastructure/config"
)

func sample(symbol, price string, at time.Time) model.PriceSample {
	return model.PriceSample{Symbol: symbol, Price: decimal.RequireFromString(price), CapturedAt: at}
}

func TestMemoryOnly(t *testing.T) {
	c, err := New(context.Background(), &config.Config{})
	require.NoError(t, err)
	defer c.Close()

	require.Nil(t, c.ResultCache())
	require.Nil(t, c.RedisClient())

	ctx := context.Background()
	_, err = c.Repository().GetLatestPrice(ctx, "AAPL")
	require.ErrorIs(t, err, model.ErrNotFound)

	at := time.Unix(1700000000, 0)
	require.NoError(t, c.Repository().UpsertLatestPrice(ctx, sample("AAPL", "150.00", at)))
	got, err := c.Repository().GetLatestPrice(ctx, "AAPL")
	require.NoError(t, err)
	require.True(t, got.Price.Equal(decimal.RequireFromString("150")))
}

func TestSQLiteAndRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := &config.Config{}
	cfg.Storage.SQLite.Enabled = true
	cfg.Storage.SQLite.Path = filepath.Join(t.TempDir(), "prices.db")
	cfg.Storage.Redis.Enabled = true
	cfg.Storage.Redis.Addr = mr.Addr()
	cfg.Storage.Redis.Prefix = "test"
	cfg.Storage.Redis.TTLSeconds = 60

	c, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer c.Close()

	require.NotNil(t, c.SQLiteRepo())
	require.NotNil(t, c.ResultCache())

	ctx := context.Background()
	at := time.Unix(1700000000, 0)
	require.NoError(t, c.Repository().UpsertLatestPrice(ctx, sample("MSFT", "410.25", at)))

	// every backend got the write
	got, err := c.SQLiteRepo().GetLatestPrice(ctx, "MSFT")
	require.NoError(t, err)
	require.True(t, got.Price.Equal(decimal.RequireFromString("410.25")))
	require.NotEmpty(t, mr.HGet("test:latest", "MSFT"))
}

func TestRedisUnreachable(t *testing.T) {
	cfg := &config.Config{}
	cfg.Storage.Redis.Enabled = true
	cfg.Storage.Redis.Addr = "127.0.0.1:1"

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
}

func TestCloseIsIdempotent(t *testing.T) {
	cfg := &config.Config{}
	cfg.Storage.SQLite.Enabled = true
	cfg.Storage.SQLite.Path = filepath.Join(t.TempDir(), "prices.db")

	c, err := New(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}
