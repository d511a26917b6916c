package httpapi

import (
	"context"
	"net"
	"net/http"
	"time"

	"pricestream/internal/infrastructure/svc"
)

// NewRouter mounts the websocket stream and the REST endpoints.
func NewRouter(sc *svc.ServiceContext) http.Handler {
	h := &handlers{sc: sc}

	api := http.NewServeMux()
	api.HandleFunc("GET /api/search", h.search)
	api.HandleFunc("GET /api/stock/{ticker}", h.details)
	api.HandleFunc("GET /api/quote/{ticker}", h.quote)
	api.HandleFunc("GET /healthz", h.health)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", h.stream)
	mux.Handle("/", accessLog(withJSONHeaders(api)))
	return recoverPanic(mux)
}

// NewServer builds the HTTP server. Every request context derives from
// base, so cancelling base ends all streaming sessions.
func NewServer(base context.Context, addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		BaseContext:       func(net.Listener) context.Context { return base },
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
