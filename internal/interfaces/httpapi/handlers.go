package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"pricestream/internal/application/service"
	"pricestream/internal/domain/model"
	"pricestream/internal/infrastructure/svc"
	"pricestream/internal/infrastructure/websocket"
)

type handlers struct {
	sc *svc.ServiceContext
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("write response")
	}
}

// writeError maps the error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error(), Kind: model.ErrorKind(err)}
	status := http.StatusInternalServerError
	var rl *model.RateLimitedError
	switch {
	case errors.Is(err, service.ErrSearchUnsupported):
		status = http.StatusNotImplemented
		resp.Kind = "unsupported"
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.As(err, &rl):
		status = http.StatusTooManyRequests
		resp.RetryAfterMs = rl.RetryAfter.Milliseconds()
		secs := int(rl.RetryAfter.Round(time.Second) / time.Second)
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	case errors.Is(err, model.ErrTimeout):
		status = http.StatusGatewayTimeout
	case errors.Is(err, model.ErrUpstreamUnavailable), errors.Is(err, model.ErrUpstreamMalformed):
		status = http.StatusBadGateway
	case errors.Is(err, context.Canceled):
		status = 499
	}
	writeJSON(w, status, resp)
}

func (h *handlers) stream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Upgrade(h.sc.Upgrader, w, r, h.sc.Keepalive())
	if err != nil {
		// the upgrader already answered the request
		log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}
	err = h.sc.NewSession(conn).Run(r.Context())
	log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("session ended")
}

func (h *handlers) search(w http.ResponseWriter, r *http.Request) {
	res, err := h.sc.App.SearchService().Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) details(w http.ResponseWriter, r *http.Request) {
	d, err := h.sc.App.DetailsService().Details(r.Context(), r.PathValue("ticker"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDetailsResponse(d))
}

// quote resolves one symbol through the streaming cache and limiter. When
// the limiter blocks the call the newest known sample is served as stale.
func (h *handlers) quote(w http.ResponseWriter, r *http.Request) {
	symbol := model.NormalizeSymbol(r.PathValue("ticker"))
	if symbol == "" {
		writeError(w, model.ErrNotFound)
		return
	}
	resolver := h.sc.App.PriceResolver()
	s, err := resolver.Resolve(r.Context(), symbol)
	stale := false
	if errors.Is(err, model.ErrRateLimited) {
		if fb, ok := resolver.Fallback(r.Context(), symbol); ok {
			s, err, stale = fb, nil, true
		}
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quoteResponse{
		Ticker:     s.Symbol,
		Price:      round2(s.Price),
		CapturedAt: s.CapturedAt.UTC().Format(time.RFC3339),
		Stale:      stale,
	})
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:   "ok",
		Provider: h.sc.App.Fetcher().ProviderName(),
		Sessions: h.sc.Sessions.Count(),
		Cached:   h.sc.Prices.Len(),
	})
}
