package alphavantage

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"pricestream/internal/domain/model"
)

type globalQuoteResponse struct {
	Quote map[string]string `json:"Global Quote"`
}

type overviewResponse struct {
	Symbol               string `json:"Symbol"`
	Name                 string `json:"Name"`
	Exchange             string `json:"Exchange"`
	MarketCapitalization string `json:"MarketCapitalization"`
	PERatio              string `json:"PERatio"`
}

type dailySeriesResponse struct {
	Series map[string]map[string]string `json:"Time Series (Daily)"`
}

type searchResponse struct {
	BestMatches []map[string]string `json:"bestMatches"`
}

type globalQuote struct {
	price, open, high, low decimal.Decimal
	// ohlc is false when open, high or low was missing or unparsable.
	ohlc bool
}

func (c *Client) globalQuote(ctx context.Context, symbol string) (globalQuote, error) {
	var resp globalQuoteResponse
	if err := c.get(ctx, "GLOBAL_QUOTE", url.Values{"symbol": {symbol}}, &resp); err != nil {
		return globalQuote{}, err
	}
	if len(resp.Quote) == 0 || resp.Quote["05. price"] == "" {
		return globalQuote{}, fmt.Errorf("%s: empty quote: %w", symbol, model.ErrNotFound)
	}

	var (
		q   globalQuote
		err error
	)
	if q.price, err = parseNumber(resp.Quote["05. price"]); err != nil {
		return globalQuote{}, fmt.Errorf("%s: price: %w", symbol, err)
	}
	// Quote only needs the price; Details rejects a quote without ohlc.
	var errOpen, errHigh, errLow error
	q.open, errOpen = parseNumber(resp.Quote["02. open"])
	q.high, errHigh = parseNumber(resp.Quote["03. high"])
	q.low, errLow = parseNumber(resp.Quote["04. low"])
	q.ohlc = errOpen == nil && errHigh == nil && errLow == nil
	return q, nil
}

// Quote returns the latest traded price.
func (c *Client) Quote(ctx context.Context, symbol string) (model.PriceSample, error) {
	symbol = model.NormalizeSymbol(symbol)
	q, err := c.globalQuote(ctx, symbol)
	if err != nil {
		return model.PriceSample{}, err
	}
	return model.NewPriceSample(symbol, q.price, c.now())
}

// Details combines the quote, the company overview and the daily series.
func (c *Client) Details(ctx context.Context, symbol string) (model.StockDetails, error) {
	symbol = model.NormalizeSymbol(symbol)

	q, err := c.globalQuote(ctx, symbol)
	if err != nil {
		return model.StockDetails{}, err
	}
	if !q.ohlc {
		return model.StockDetails{}, fmt.Errorf("%s: incomplete quote: %w", symbol, model.ErrNotFound)
	}

	var ov overviewResponse
	if err := c.get(ctx, "OVERVIEW", url.Values{"symbol": {symbol}}, &ov); err != nil {
		return model.StockDetails{}, err
	}
	if ov.Name == "" {
		return model.StockDetails{}, fmt.Errorf("%s: no overview: %w", symbol, model.ErrNotFound)
	}

	var series dailySeriesResponse
	if err := c.get(ctx, "TIME_SERIES_DAILY", url.Values{"symbol": {symbol}, "outputsize": {"compact"}}, &series); err != nil {
		return model.StockDetails{}, err
	}
	if len(series.Series) == 0 {
		return model.StockDetails{}, fmt.Errorf("%s: no daily series: %w", symbol, model.ErrNotFound)
	}
	history, err := c.history(series.Series)
	if err != nil {
		return model.StockDetails{}, fmt.Errorf("%s: history: %w", symbol, err)
	}

	d := model.StockDetails{
		Ticker:       symbol,
		Name:         ov.Name,
		CurrentPrice: q.price,
		OpenPrice:    q.open,
		HighPrice:    q.high,
		LowPrice:     q.low,
		PriceHistory: history,
	}
	if mc, err := parseNumber(ov.MarketCapitalization); err == nil {
		d.MarketCap = mc
	}
	if pe, err := parseNumber(ov.PERatio); err == nil {
		d.PERatio = decimal.NewNullDecimal(pe)
	}
	return d, nil
}

// history keeps the newest historyDays closes, oldest first.
func (c *Client) history(series map[string]map[string]string) ([]model.HistoryPoint, error) {
	dates := make([]string, 0, len(series))
	for date := range series {
		dates = append(dates, date)
	}
	sort.Strings(dates)
	if len(dates) > c.historyDays {
		dates = dates[len(dates)-c.historyDays:]
	}

	out := make([]model.HistoryPoint, 0, len(dates))
	for _, date := range dates {
		closeStr := series[date]["4. close"]
		price, err := parseNumber(closeStr)
		if err != nil {
			return nil, err
		}
		out = append(out, model.HistoryPoint{Date: date, Price: price})
	}
	return out, nil
}

// Search looks symbols up by keyword.
func (c *Client) Search(ctx context.Context, query string) ([]model.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []model.SearchResult{}, nil
	}
	var resp searchResponse
	if err := c.get(ctx, "SYMBOL_SEARCH", url.Values{"keywords": {query}}, &resp); err != nil {
		return nil, err
	}
	out := make([]model.SearchResult, 0, len(resp.BestMatches))
	for _, m := range resp.BestMatches {
		sym := m["1. symbol"]
		if sym == "" {
			continue
		}
		out = append(out, model.SearchResult{
			Symbol:   sym,
			Name:     m["2. name"],
			Exchange: m["4. region"],
		})
	}
	return out, nil
}

func parseNumber(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "", "None", "-":
		return decimal.Zero, fmt.Errorf("missing number: %w", model.ErrUpstreamMalformed)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse %q: %w", s, model.ErrUpstreamMalformed)
	}
	return d, nil
}
