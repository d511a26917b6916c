package ratelimit

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Mode selects how the upstream call budget is keyed.
type Mode string

const (
	// PerSymbol gives every symbol its own window.
	PerSymbol Mode = "per_symbol"
	// Global shares one window across all symbols.
	Global Mode = "global"
)

const globalKey = "*"

// ParseMode accepts the config spelling of a Mode. Empty means PerSymbol.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", PerSymbol:
		return PerSymbol, nil
	case Global:
		return Global, nil
	default:
		return "", fmt.Errorf("unknown rate limit mode %q", s)
	}
}

// Decision is the outcome of TryAcquire. RetryAfter is set only when the
// permit was denied.
type Decision struct {
	Granted    bool
	RetryAfter time.Duration
}

// Limiter enforces a minimum interval between granted upstream calls.
// Each key gets a token bucket with burst 1 refilled every minInterval, so
// of N concurrent callers racing for a fresh key exactly one wins.
type Limiter struct {
	every rate.Limit
	mode  Mode
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

type Option func(*Limiter)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New builds a limiter. A non-positive minInterval disables limiting.
func New(minInterval time.Duration, mode Mode, opts ...Option) *Limiter {
	every := rate.Inf
	if minInterval > 0 {
		every = rate.Every(minInterval)
	}
	if mode == "" {
		mode = PerSymbol
	}
	l := &Limiter{
		every:   every,
		mode:    mode,
		now:     time.Now,
		buckets: make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// bucketLocked expects l.mu held.
func (l *Limiter) bucketLocked(key string) *rate.Limiter {
	if l.mode == Global {
		key = globalKey
	}
	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(l.every, 1)
		l.buckets[key] = b
	}
	return b
}

// TryAcquire grants or denies one upstream call for key without blocking.
// The lookup and the spend happen under l.mu so Prune cannot swap the bucket
// in between.
func (l *Limiter) TryAcquire(key string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.bucketLocked(key)
	now := l.now()
	if b.AllowN(now, 1) {
		return Decision{Granted: true}
	}
	missing := 1 - b.TokensAt(now)
	wait := time.Duration(missing / float64(b.Limit()) * float64(time.Second))
	if wait < 0 {
		wait = 0
	}
	return Decision{RetryAfter: wait}
}

// Prune drops buckets that are fully refilled; they carry no state a fresh
// bucket would not. Returns how many were dropped.
func (l *Limiter) Prune() int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for k, b := range l.buckets {
		if b.TokensAt(now) >= 1 {
			delete(l.buckets, k)
			removed++
		}
	}
	return removed
}

// Len reports how many buckets are tracked.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *Limiter) Mode() Mode { return l.mode }

// Allow is TryAcquire in the shape of port.RateLimiter.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	d := l.TryAcquire(key)
	return d.Granted, d.RetryAfter
}
