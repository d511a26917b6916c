package model

import "github.com/shopspring/decimal"

// StockDetails is the on-demand snapshot behind the detail view.
type StockDetails struct {
	Ticker       string
	Name         string
	CurrentPrice decimal.Decimal
	OpenPrice    decimal.Decimal
	HighPrice    decimal.Decimal
	LowPrice     decimal.Decimal
	MarketCap    decimal.Decimal
	PERatio      decimal.NullDecimal
	PriceHistory []HistoryPoint
}

// HistoryPoint is one daily close. Date is formatted YYYY-MM-DD.
type HistoryPoint struct {
	Date  string
	Price decimal.Decimal
}

// SearchResult is one symbol match returned by the provider search.
type SearchResult struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Exchange string `json:"exchange"`
}
