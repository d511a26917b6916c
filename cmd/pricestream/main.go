package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"pricestream/internal/infrastructure/config"
	"pricestream/internal/infrastructure/logger"
	"pricestream/internal/infrastructure/svc"
	"pricestream/internal/interfaces/httpapi"
)

func main() {
	logger.Setup("info", "console")

	configPath := flag.String("config", "configs/config.toml", "path to config.toml (empty: defaults and env only)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
	}
	logger.Setup(cfg.App.LogLevel, cfg.App.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc, err := svc.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("service initialization failed")
	}
	sc.Start(ctx)

	srv := httpapi.NewServer(ctx, cfg.Server.Addr, httpapi.NewRouter(sc))
	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("config", *configPath).
			Str("addr", cfg.Server.Addr).
			Str("provider", cfg.Provider.Name).
			Strs("allowed_origins", cfg.Server.AllowedOrigins).
			Msg("pricestream started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Warn().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("http server failed")
	}

	// Shutdown leaves hijacked connections open; sc.Close drops them.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := sc.Close(); err != nil {
		log.Error().Err(err).Msg("close resources")
	}
	log.Warn().Msg("exit")
}
