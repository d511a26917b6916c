package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pricestream/internal/application/port"
	"pricestream/internal/domain/model"
	quotereg "pricestream/internal/infrastructure/quote"
)

// Name is the registry key of this provider.
const Name = "binance"

const (
	defaultBaseURL     = "https://api.binance.com"
	defaultHistoryDays = 30
	maxSearchResults   = 10
)

// Client talks to the Binance spot REST API. Only unsigned public
// endpoints are used.
type Client struct {
	baseURL     string
	client      *http.Client
	historyDays int
	now         func() time.Time
}

func New(baseURL string, timeout time.Duration, historyDays int) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if historyDays <= 0 {
		historyDays = defaultHistoryDays
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		client:      &http.Client{Timeout: timeout},
		historyDays: historyDays,
		now:         time.Now,
	}
}

func init() {
	quotereg.Register(Name, func(s quotereg.Settings) (port.QuoteProvider, error) {
		return New(s.BaseURL, s.Timeout, s.HistoryDays), nil
	})
}

func (c *Client) Name() string { return Name }

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// invalidSymbol is returned for an unknown pair.
const invalidSymbol = -1121

// get issues a public GET and maps failures onto the model errors.
func (c *Client) get(ctx context.Context, path string, params url.Values, dst any) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		var ne net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
			return fmt.Errorf("binance %s: %w", path, model.ErrTimeout)
		}
		return fmt.Errorf("binance %s: %v: %w", path, err, model.ErrUpstreamUnavailable)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("binance %s: read body: %v: %w", path, err, model.ErrUpstreamUnavailable)
	}

	if resp.StatusCode != http.StatusOK {
		var ae apiError
		if json.Unmarshal(body, &ae) == nil && ae.Code == invalidSymbol {
			return fmt.Errorf("binance %s: %s: %w", path, ae.Msg, model.ErrNotFound)
		}
		return fmt.Errorf("binance api error: %d %s: %w", resp.StatusCode, string(body), model.ErrUpstreamUnavailable)
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("binance %s: decode: %v: %w", path, err, model.ErrUpstreamMalformed)
	}
	return nil
}

type tickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// Quote returns the last traded price.
func (c *Client) Quote(ctx context.Context, symbol string) (model.PriceSample, error) {
	var tp tickerPrice
	if err := c.get(ctx, "/api/v3/ticker/price", url.Values{"symbol": {symbol}}, &tp); err != nil {
		return model.PriceSample{}, err
	}
	price, err := decimal.NewFromString(tp.Price)
	if err != nil {
		return model.PriceSample{}, fmt.Errorf("binance price %q: %w", tp.Price, model.ErrUpstreamMalformed)
	}
	return model.NewPriceSample(symbol, price, c.now())
}

type ticker24h struct {
	Symbol    string `json:"symbol"`
	LastPrice string `json:"lastPrice"`
	OpenPrice string `json:"openPrice"`
	HighPrice string `json:"highPrice"`
	LowPrice  string `json:"lowPrice"`
}

// Details combines the 24h ticker with daily closes. Spot pairs have no
// market cap or P/E.
func (c *Client) Details(ctx context.Context, symbol string) (model.StockDetails, error) {
	var t ticker24h
	if err := c.get(ctx, "/api/v3/ticker/24hr", url.Values{"symbol": {symbol}}, &t); err != nil {
		return model.StockDetails{}, err
	}

	d := model.StockDetails{Ticker: symbol, Name: symbol}
	for _, f := range []struct {
		raw string
		dst *decimal.Decimal
	}{
		{t.LastPrice, &d.CurrentPrice},
		{t.OpenPrice, &d.OpenPrice},
		{t.HighPrice, &d.HighPrice},
		{t.LowPrice, &d.LowPrice},
	} {
		v, err := decimal.NewFromString(f.raw)
		if err != nil {
			return model.StockDetails{}, fmt.Errorf("binance 24hr %q: %w", f.raw, model.ErrUpstreamMalformed)
		}
		*f.dst = v
	}

	history, err := c.history(ctx, symbol)
	if err != nil {
		return model.StockDetails{}, err
	}
	d.PriceHistory = history
	return d, nil
}

// history reads daily klines: [openTime, open, high, low, close, ...]
func (c *Client) history(ctx context.Context, symbol string) ([]model.HistoryPoint, error) {
	params := url.Values{
		"symbol":   {symbol},
		"interval": {"1d"},
		"limit":    {fmt.Sprint(c.historyDays)},
	}
	var rows [][]any
	if err := c.get(ctx, "/api/v3/klines", params, &rows); err != nil {
		return nil, err
	}

	out := make([]model.HistoryPoint, 0, len(rows))
	for _, row := range rows {
		if len(row) < 5 {
			return nil, fmt.Errorf("binance kline has %d fields: %w", len(row), model.ErrUpstreamMalformed)
		}
		openMs, ok1 := row[0].(float64)
		closeRaw, ok2 := row[4].(string)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("binance kline field types: %w", model.ErrUpstreamMalformed)
		}
		closePx, err := decimal.NewFromString(closeRaw)
		if err != nil {
			return nil, fmt.Errorf("binance kline close %q: %w", closeRaw, model.ErrUpstreamMalformed)
		}
		out = append(out, model.HistoryPoint{
			Date:  time.UnixMilli(int64(openMs)).UTC().Format("2006-01-02"),
			Price: closePx,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

type exchangeInfo struct {
	Symbols []struct {
		Symbol     string `json:"symbol"`
		Status     string `json:"status"`
		BaseAsset  string `json:"baseAsset"`
		QuoteAsset string `json:"quoteAsset"`
	} `json:"symbols"`
}

// Search prefix-matches the pair list, keeping only TRADING pairs.
func (c *Client) Search(ctx context.Context, query string) ([]model.SearchResult, error) {
	q := strings.ToUpper(strings.TrimSpace(query))
	if q == "" {
		return []model.SearchResult{}, nil
	}
	var info exchangeInfo
	if err := c.get(ctx, "/api/v3/exchangeInfo", url.Values{"permissions": {"SPOT"}}, &info); err != nil {
		return nil, err
	}

	out := make([]model.SearchResult, 0, maxSearchResults)
	for _, s := range info.Symbols {
		if s.Status != "TRADING" {
			continue
		}
		if !strings.HasPrefix(s.Symbol, q) && s.BaseAsset != q {
			continue
		}
		out = append(out, model.SearchResult{
			Symbol:   s.Symbol,
			Name:     s.BaseAsset + "/" + s.QuoteAsset,
			Exchange: "Binance",
		})
		if len(out) == maxSearchResults {
			break
		}
	}
	return out, nil
}

var (
	_ port.QuoteProvider = (*Client)(nil)
	_ port.Searcher      = (*Client)(nil)
)
