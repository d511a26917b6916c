package storage

import (
	"context"
	"sync"

	"pricestream/internal/application/port"
	"pricestream/internal/domain/model"
)

// Memory keeps the last sample per symbol in process. It is the
// repository used when no external store is enabled.
type Memory struct {
	mu     sync.RWMutex
	latest map[string]model.PriceSample
}

func NewMemory() *Memory {
	return &Memory{latest: make(map[string]model.PriceSample)}
}

func (m *Memory) UpsertLatestPrice(_ context.Context, s model.PriceSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.latest[s.Symbol]; ok && prev.CapturedAt.After(s.CapturedAt) {
		return nil
	}
	m.latest[s.Symbol] = s
	return nil
}

func (m *Memory) GetLatestPrice(_ context.Context, symbol string) (model.PriceSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.latest[model.NormalizeSymbol(symbol)]
	if !ok {
		return model.PriceSample{}, model.ErrNotFound
	}
	return s, nil
}

func (m *Memory) Close() error { return nil }

var _ port.PriceRepository = (*Memory)(nil)
