package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"pricestream/internal/domain/model"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRepoUpsertAndGet(t *testing.T) {
	mr, rdb := newClient(t)
	repo := New(rdb, "pricestream", time.Hour, "")
	ctx := context.Background()

	sub := rdb.Subscribe(ctx, repo.Channel())
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	at := time.UnixMilli(1700000000000)
	require.NoError(t, repo.UpsertLatestPrice(ctx, model.PriceSample{Symbol: "AAPL", Price: decimal.RequireFromString("150.25"), CapturedAt: at}))

	require.True(t, mr.Exists("pricestream:latest"))
	require.Greater(t, mr.TTL("pricestream:latest"), time.Duration(0))

	got, err := repo.GetLatestPrice(ctx, "aapl")
	require.NoError(t, err)
	require.True(t, got.Price.Equal(decimal.RequireFromString("150.25")))
	require.True(t, got.CapturedAt.Equal(at))

	select {
	case msg := <-sub.Channel():
		var lp LatestPrice
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &lp))
		require.Equal(t, "AAPL", lp.Symbol)
	case <-time.After(time.Second):
		t.Fatal("no publish received")
	}
}

func TestRepoMissingSymbol(t *testing.T) {
	_, rdb := newClient(t)
	repo := New(rdb, "pricestream", 0, "")

	_, err := repo.GetLatestPrice(context.Background(), "NOPE")
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestResultCache(t *testing.T) {
	mr, rdb := newClient(t)
	c := NewResultCache(rdb, "pricestream")
	ctx := context.Background()

	var out []model.SearchResult
	ok, err := c.GetJSON(ctx, "search:apple", &out)
	require.NoError(t, err)
	require.False(t, ok)

	in := []model.SearchResult{{Symbol: "AAPL", Name: "Apple Inc", Exchange: "United States"}}
	require.NoError(t, c.SetJSON(ctx, "search:apple", in, time.Minute))

	ok, err = c.GetJSON(ctx, "search:apple", &out)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, in, out)

	mr.FastForward(2 * time.Minute)
	ok, err = c.GetJSON(ctx, "search:apple", &out)
	require.NoError(t, err)
	require.False(t, ok)
}
