package alphavantage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"pricestream/internal/application/port"
	"pricestream/internal/domain/model"
	"pricestream/internal/infrastructure/quote"
)

// Name is the registry key of this provider.
const Name = "alphavantage"

const (
	defaultBaseURL     = "https://www.alphavantage.co/query"
	defaultHistoryDays = 30
	maxBodyBytes       = 4 << 20
)

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=alphavantage_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the Alpha Vantage query endpoint.
type Client struct {
	baseURL     string
	apiKey      string
	httpClient  HTTPClient
	historyDays int
	now         func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient HTTPClient) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithHistoryDays caps the number of daily closes returned by Details.
func WithHistoryDays(days int) Option {
	return func(c *Client) {
		if days > 0 {
			c.historyDays = days
		}
	}
}

// WithClock overrides the capture time source.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a client. The API key is mandatory.
func New(apiKey string, options ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("alphavantage: api key is required")
	}
	c := &Client{
		baseURL:     defaultBaseURL,
		apiKey:      apiKey,
		httpClient:  http.DefaultClient,
		historyDays: defaultHistoryDays,
		now:         time.Now,
	}
	for _, option := range options {
		option(c)
	}
	return c, nil
}

func init() {
	quote.Register(Name, func(s quote.Settings) (port.QuoteProvider, error) {
		return New(s.APIKey,
			WithBaseURL(s.BaseURL),
			WithHTTPClient(&http.Client{Timeout: s.Timeout}),
			WithHistoryDays(s.HistoryDays),
		)
	})
}

func (c *Client) Name() string { return Name }

// envelope carries the keys Alpha Vantage uses to report problems inside
// an otherwise successful response.
type envelope struct {
	Note         string `json:"Note"`
	Information  string `json:"Information"`
	ErrorMessage string `json:"Error Message"`
}

// get runs one query and decodes the body into dst, mapping every failure
// onto the model error taxonomy.
func (c *Client) get(ctx context.Context, function string, params url.Values, dst any) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("invalid base url: %w", err)
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set("function", function)
	q.Set("apikey", c.apiKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// *url.Error echoes the request URL, api key included.
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		if isTimeout(ctx, err) {
			return fmt.Errorf("%s: %w", function, model.ErrTimeout)
		}
		return fmt.Errorf("%s: %v: %w", function, err, model.ErrUpstreamUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return fmt.Errorf("%s: status %d: %w", function, resp.StatusCode, model.ErrUpstreamUnavailable)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if isTimeout(ctx, err) {
			return fmt.Errorf("%s: read body: %w", function, model.ErrTimeout)
		}
		return fmt.Errorf("%s: read body: %v: %w", function, err, model.ErrUpstreamUnavailable)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("%s: decode: %v: %w", function, err, model.ErrUpstreamMalformed)
	}
	switch {
	case env.Note != "":
		return fmt.Errorf("%s: throttled: %s: %w", function, env.Note, model.ErrUpstreamUnavailable)
	case env.Information != "":
		return fmt.Errorf("%s: %s: %w", function, env.Information, model.ErrUpstreamUnavailable)
	case env.ErrorMessage != "":
		return fmt.Errorf("%s: %s: %w", function, env.ErrorMessage, model.ErrNotFound)
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%s: decode: %v: %w", function, err, model.ErrUpstreamMalformed)
	}
	return nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
