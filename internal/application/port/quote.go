package port

import (
	"context"

	"pricestream/internal/domain/model"
)

// QuoteProvider is an upstream market data source.
//
//go:generate mockgen -package=service -destination=../service/mock_quote_provider_test.go -source=quote.go
type QuoteProvider interface {
	Name() string
	// Quote returns the latest price for symbol.
	Quote(ctx context.Context, symbol string) (model.PriceSample, error)
	// Details returns the descriptive snapshot plus recent daily closes.
	Details(ctx context.Context, symbol string) (model.StockDetails, error)
}

// Searcher is implemented by providers that can look up symbols by keyword.
type Searcher interface {
	Search(ctx context.Context, query string) ([]model.SearchResult, error)
}
