package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/echoloc/regioncache/internal/core/config"
	"github.com/echoloc/regioncache/internal/core/health"
)

// Run sets up http and starts serving until the context is canceled.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, svc *Service) error {
	r := chi.NewRouter()
	r.Use(Recover())
	r.Use(Logging(logger))
	r.Use(CORS())

	r.Get("/healthz", health.Liveness())
	if cfg.MetricsEnabled {
		r.Get("/metrics", promhttp.Handler().ServeHTTP)
	}
	r.Get("/feed", HandleFeed(svc, cfg.DefaultQueryRadiusM))
	r.Get("/stats", svc.HandleStats())

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
