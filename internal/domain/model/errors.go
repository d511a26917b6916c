package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUpstreamUnavailable covers network failures and provider outages.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrUpstreamMalformed means the provider answered with an unexpected shape.
	ErrUpstreamMalformed = errors.New("upstream response malformed")
	// ErrNotFound means the provider does not know the symbol.
	ErrNotFound = errors.New("symbol not found")
	// ErrRateLimited is returned when the local limiter denies an upstream call.
	ErrRateLimited = errors.New("rate limited")
	// ErrTransportClosed means the client connection is gone.
	ErrTransportClosed = errors.New("transport closed")
	// ErrTimeout is an upstream call that ran past its deadline. It also
	// matches ErrUpstreamUnavailable.
	ErrTimeout = &timeoutError{}
)

type timeoutError struct{}

func (*timeoutError) Error() string { return "upstream timeout" }

func (*timeoutError) Is(target error) bool { return target == ErrUpstreamUnavailable }

// RateLimitedError carries how long the caller should wait before the
// window reopens.
type RateLimitedError struct {
	Symbol     string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s: rate limited, retry after %s", e.Symbol, e.RetryAfter)
}

func (e *RateLimitedError) Is(target error) bool { return target == ErrRateLimited }

// ErrorKind maps an error onto the short label used on the wire and in logs.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrUpstreamMalformed):
		return "malformed"
	case errors.Is(err, ErrUpstreamUnavailable):
		return "unavailable"
	case errors.Is(err, ErrTransportClosed):
		return "transport_closed"
	default:
		return "internal"
	}
}
