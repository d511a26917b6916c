package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"pricestream/internal/application/port"
	"pricestream/internal/domain/model"
)

type Repo struct {
	db *sql.DB
}

func New(dsn string) (*Repo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

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
  price NUMERIC(20, 6) NOT NULL,
  captured_ms BIGINT NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`)
	return err
}

func (r *Repo) UpsertLatestPrice(ctx context.Context, s model.PriceSample) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO latest_prices(symbol, price, captured_ms, updated_at)
		VALUES($1, $2, $3, now())
		ON CONFLICT(symbol) DO UPDATE SET
		price=EXCLUDED.price, captured_ms=EXCLUDED.captured_ms, updated_at=now()
		WHERE EXCLUDED.captured_ms >= latest_prices.captured_ms
	`, s.Symbol, s.Price.String(), s.CapturedAt.UnixMilli())
	return err
}

func (r *Repo) GetLatestPrice(ctx context.Context, symbol string) (model.PriceSample, error) {
	symbol = model.NormalizeSymbol(symbol)
	var (
		price      decimal.Decimal
		capturedMs int64
	)
	err := r.db.QueryRowContext(ctx, `SELECT price::text, captured_ms FROM latest_prices WHERE symbol=$1`, symbol).
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
