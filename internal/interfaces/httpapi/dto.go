package httpapi

import (
	"github.com/shopspring/decimal"

	"pricestream/internal/domain/model"
)

type historyPoint struct {
	Date  string  `json:"date"`
	Price float64 `json:"price"`
}

type detailsResponse struct {
	Ticker       string         `json:"ticker"`
	Name         string         `json:"name"`
	CurrentPrice float64        `json:"current_price"`
	OpenPrice    float64        `json:"open_price"`
	HighPrice    float64        `json:"high_price"`
	LowPrice     float64        `json:"low_price"`
	MarketCap    float64        `json:"market_cap"`
	PERatio      *float64       `json:"pe_ratio"`
	PriceHistory []historyPoint `json:"price_history"`
}

type quoteResponse struct {
	Ticker     string  `json:"ticker"`
	Price      float64 `json:"price"`
	CapturedAt string  `json:"captured_at"`
	Stale      bool    `json:"stale,omitempty"`
}

type errorResponse struct {
	Error        string `json:"error"`
	Kind         string `json:"kind,omitempty"`
	RetryAfterMs int64  `json:"retry_after_ms,omitempty"`
}

type healthResponse struct {
	Status   string `json:"status"`
	Provider string `json:"provider"`
	Sessions int    `json:"sessions"`
	Cached   int    `json:"cached_prices"`
}

func round2(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

func toDetailsResponse(d model.StockDetails) detailsResponse {
	out := detailsResponse{
		Ticker:       d.Ticker,
		Name:         d.Name,
		CurrentPrice: round2(d.CurrentPrice),
		OpenPrice:    round2(d.OpenPrice),
		HighPrice:    round2(d.HighPrice),
		LowPrice:     round2(d.LowPrice),
		MarketCap:    d.MarketCap.InexactFloat64(),
		PriceHistory: make([]historyPoint, 0, len(d.PriceHistory)),
	}
	if d.PERatio.Valid {
		pe := round2(d.PERatio.Decimal)
		out.PERatio = &pe
	}
	for _, p := range d.PriceHistory {
		out.PriceHistory = append(out.PriceHistory, historyPoint{Date: p.Date, Price: round2(p.Price)})
	}
	return out
}
