package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"pricestream/internal/application/port"
	"pricestream/internal/application/service"
	"pricestream/internal/domain/model"
	"pricestream/internal/infrastructure/cache"
	"pricestream/internal/infrastructure/ratelimit"
)

var errConnClosed = errors.New("conn closed")

type fakeConn struct {
	in     chan string
	out    chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan string, 8),
		out:    make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadText(ctx context.Context) (string, error) {
	select {
	case msg := <-c.in:
		return msg, nil
	case <-c.closed:
		return "", io.EOF
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *fakeConn) WriteJSON(ctx context.Context, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case c.out <- b:
		return nil
	case <-c.closed:
		return errConnClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) RemoteAddr() string { return "test" }

func (c *fakeConn) send(msg string) { c.in <- msg }

// next waits for the next pushed batch.
func (c *fakeConn) next(t *testing.T) Batch {
	t.Helper()
	select {
	case b := <-c.out:
		var batch Batch
		require.NoError(t, json.Unmarshal(b, &batch))
		return batch
	case <-time.After(2 * time.Second):
		t.Fatal("no batch received")
		return Batch{}
	}
}

// scriptedProvider returns prices from a per symbol script; the last entry
// repeats once the script is exhausted.
type scriptedProvider struct {
	mu     sync.Mutex
	prices map[string][]string
	errs   map[string]error
	calls  map[string]int
}

func newScriptedProvider() *scriptedProvider {
	return &scriptedProvider{
		prices: map[string][]string{},
		errs:   map[string]error{},
		calls:  map[string]int{},
	}
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Quote(_ context.Context, symbol string) (model.PriceSample, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.calls[symbol]
	p.calls[symbol] = n + 1
	if err := p.errs[symbol]; err != nil {
		return model.PriceSample{}, err
	}
	script := p.prices[symbol]
	if len(script) == 0 {
		return model.PriceSample{}, model.ErrNotFound
	}
	if n >= len(script) {
		n = len(script) - 1
	}
	return model.NewPriceSample(symbol, decimal.RequireFromString(script[n]), time.Now())
}

func (p *scriptedProvider) Details(context.Context, string) (model.StockDetails, error) {
	return model.StockDetails{}, model.ErrNotFound
}

func (p *scriptedProvider) Calls(symbol string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[symbol]
}

type memRegistry struct {
	mu    sync.Mutex
	next  int
	conns map[string]port.Conn
}

func newMemRegistry() *memRegistry { return &memRegistry{conns: map[string]port.Conn{}} }

func (r *memRegistry) Register(c port.Conn) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	id := "s" + strconv.Itoa(r.next)
	r.conns[id] = c
	return id
}

func (r *memRegistry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
}

func (r *memRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

func newResolver(provider port.QuoteProvider, ttl, minInterval time.Duration) *service.PriceResolver {
	return service.NewPriceResolver(
		cache.New[model.PriceSample](ttl),
		ratelimit.New(minInterval, ratelimit.PerSymbol),
		service.NewQuoteFetcher(provider, time.Second),
		nil,
	)
}

type runningSession struct {
	sess *Session
	conn *fakeConn
	done chan error
}

func startSession(t *testing.T, ctx context.Context, resolver Resolver, reg Registry, interval time.Duration) *runningSession {
	t.Helper()
	conn := newFakeConn()
	sess := NewSession(SessionDeps{
		Conn:     conn,
		Resolver: resolver,
		Registry: reg,
		Config:   Config{Interval: interval, WriteTimeout: time.Second},
	})
	done := make(chan error, 1)
	go func() { done <- sess.Run(ctx) }()
	return &runningSession{sess: sess, conn: conn, done: done}
}

func (r *runningSession) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-r.done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop")
		return nil
	}
}
