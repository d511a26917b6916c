package composite

import (
	"context"
	"errors"

	"pricestream/internal/application/port"
	"pricestream/internal/domain/model"
)

// Repo fans writes out to every backend and reads from the first one that
// has the symbol, in construction order.
type Repo struct {
	repos []port.PriceRepository
}

func New(repos ...port.PriceRepository) *Repo {
	// nil repos are skipped
	out := make([]port.PriceRepository, 0, len(repos))
	for _, r := range repos {
		if r != nil {
			out = append(out, r)
		}
	}
	return &Repo{repos: out}
}

func (r *Repo) Len() int { return len(r.repos) }

func (r *Repo) UpsertLatestPrice(ctx context.Context, s model.PriceSample) error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.UpsertLatestPrice(ctx, s); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Repo) GetLatestPrice(ctx context.Context, symbol string) (model.PriceSample, error) {
	var firstErr error
	for _, repo := range r.repos {
		s, err := repo.GetLatestPrice(ctx, symbol)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, model.ErrNotFound) && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return model.PriceSample{}, firstErr
	}
	return model.PriceSample{}, model.ErrNotFound
}

func (r *Repo) Close() error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ port.PriceRepository = (*Repo)(nil)
