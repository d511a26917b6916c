package port

import (
	"time"

	"pricestream/internal/domain/model"
)

// Cache is an in-process keyed store with expiry.
type Cache[V any] interface {
	Get(key string) (V, bool)
	Put(key string, v V)
}

// PriceCache holds the last sample per symbol. Entries expire relative to
// the sample capture time; Last still returns an expired entry.
type PriceCache interface {
	Get(symbol string) (model.PriceSample, bool)
	PutAt(symbol string, sample model.PriceSample, at time.Time)
	Last(symbol string) (model.PriceSample, time.Time, bool)
}

// RateLimiter decides whether an upstream call for key may go out now.
type RateLimiter interface {
	Allow(key string) (granted bool, retryAfter time.Duration)
}
