package port

import (
	"context"
	"time"

	"pricestream/internal/domain/model"
)

// PriceRepository keeps the last sample seen per symbol.
type PriceRepository interface {
	UpsertLatestPrice(ctx context.Context, sample model.PriceSample) error
	// GetLatestPrice returns model.ErrNotFound when nothing was recorded.
	GetLatestPrice(ctx context.Context, symbol string) (model.PriceSample, error)
	Close() error
}

// ResultCache stores serialized lookup results (search hits, details)
// outside the process.
type ResultCache interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
}
