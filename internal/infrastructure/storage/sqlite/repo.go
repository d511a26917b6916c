package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"pricestream/internal/application/port"
	"pricestream/internal/domain/model"
)

type Repo struct {
	db *sql.DB
}

func New(path string) (*Repo, error) {
	// ensure directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS latest_prices (
  symbol TEXT PRIMARY KEY,
  price TEXT NOT NULL,
  captured_ms INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_latest_prices_captured ON latest_prices(captured_ms);
`)
	return err
}

// UpsertLatestPrice keeps one row per symbol. An older sample never
// replaces a newer one.
func (r *Repo) UpsertLatestPrice(ctx context.Context, s model.PriceSample) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO latest_prices(symbol, price, captured_ms, updated_at)
		VALUES(?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
		price=excluded.price, captured_ms=excluded.captured_ms, updated_at=excluded.updated_at
		WHERE excluded.captured_ms >= latest_prices.captured_ms
	`, s.Symbol, s.Price.String(), s.CapturedAt.UnixMilli(), time.Now().UnixMilli())
	return err
}

func (r *Repo) GetLatestPrice(ctx context.Context, symbol string) (model.PriceSample, error) {
	symbol = model.NormalizeSymbol(symbol)
	var (
		price      decimal.Decimal
		capturedMs int64
	)
	err := r.db.QueryRowContext(ctx, `SELECT price, captured_ms FROM latest_prices WHERE symbol=?`, symbol).
		Scan(&price, &capturedMs)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PriceSample{}, model.ErrNotFound
	}
	if err != nil {
		return model.PriceSample{}, fmt.Errorf("query latest price: %w", err)
	}
	return model.PriceSample{Symbol: symbol, Price: price, CapturedAt: time.UnixMilli(capturedMs)}, nil
}

var _ port.PriceRepository = (*Repo)(nil)
