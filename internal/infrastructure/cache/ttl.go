package cache

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 16

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

type shard[V any] struct {
	mu    sync.RWMutex
	items map[string]entry[V]
}

// TTL is a concurrency safe keyed cache whose entries expire a fixed
// duration after they were stored. Expired entries stay readable through
// Last until Reap removes them, so callers can serve a stale value when a
// refresh is not allowed.
type TTL[V any] struct {
	ttl    time.Duration
	now    func() time.Time
	shards [shardCount]*shard[V]
}

type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func New[V any](ttl time.Duration, opts ...Option) *TTL[V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	c := &TTL[V]{ttl: ttl, now: o.now}
	for i := range c.shards {
		c.shards[i] = &shard[V]{items: make(map[string]entry[V])}
	}
	return c
}

func (c *TTL[V]) shardFor(key string) *shard[V] {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return c.shards[h.Sum32()%shardCount]
}

// Get returns the value for key if it has not expired yet.
func (c *TTL[V]) Get(key string) (V, bool) {
	s := c.shardFor(key)
	s.mu.RLock()
	e, ok := s.items[key]
	s.mu.RUnlock()
	if !ok || !c.now().Before(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Put stores value under key, stamped with the current time.
func (c *TTL[V]) Put(key string, value V) {
	c.PutAt(key, value, c.now())
}

// PutAt stores value as if it was captured at the given instant. The entry
// expires ttl after at.
func (c *TTL[V]) PutAt(key string, value V, at time.Time) {
	s := c.shardFor(key)
	s.mu.Lock()
	s.items[key] = entry[V]{value: value, expiresAt: at.Add(c.ttl)}
	s.mu.Unlock()
}

// Last returns the most recent value for key regardless of expiry.
func (c *TTL[V]) Last(key string) (V, time.Time, bool) {
	s := c.shardFor(key)
	s.mu.RLock()
	e, ok := s.items[key]
	s.mu.RUnlock()
	return e.value, e.expiresAt, ok
}

// Delete drops key.
func (c *TTL[V]) Delete(key string) {
	s := c.shardFor(key)
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
}

// Reap removes entries that expired more than grace ago and returns how
// many were dropped.
func (c *TTL[V]) Reap(grace time.Duration) int {
	cutoff := c.now().Add(-grace)
	removed := 0
	for _, s := range c.shards {
		s.mu.Lock()
		for k, e := range s.items {
			if e.expiresAt.Before(cutoff) {
				delete(s.items, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// RunReaper calls Reap every interval until ctx is done.
func (c *TTL[V]) RunReaper(ctx context.Context, every, grace time.Duration, onReap func(int)) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := c.Reap(grace)
			if onReap != nil && n > 0 {
				onReap(n)
			}
		}
	}
}

// Len counts stored entries, expired ones included.
func (c *TTL[V]) Len() int {
	n := 0
	for _, s := range c.shards {
		s.mu.RLock()
		n += len(s.items)
		s.mu.RUnlock()
	}
	return n
}
