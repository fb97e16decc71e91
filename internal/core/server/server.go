// Package server mounts the tiling routes and runs the HTTP listener.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/aoi-tiling/internal/core/health"
	middleware "github.com/mohammed-shakir/aoi-tiling/internal/core/middleware"
	"github.com/mohammed-shakir/aoi-tiling/internal/core/router"
	"github.com/mohammed-shakir/aoi-tiling/internal/metrics"
)

// Deps is what the routes are built from. Metrics and Index are optional.
type Deps struct {
	Handlers *router.Handlers
	Index    health.IndexReporter
	Backend  string
	Metrics  *metrics.Provider
}

// Routes builds the chi router. /metrics is mounted here only when metrics
// are enabled and no separate metrics address is configured.
func Routes(logger *slog.Logger, d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(d.Index, d.Backend))
	if d.Metrics != nil && d.Metrics.Enabled() && d.Metrics.Addr() == "" {
		r.Method(http.MethodGet, d.Metrics.Path(), d.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", health.Status())
		r.Post("/tiles", d.Handlers.Tiles())
		r.Post("/tiles/stream", d.Handlers.Stream())
	})
	r.Get("/ws/tiles", d.Handlers.WebSocket())
	return r
}

// Run serves h on addr until ctx is done, then shuts down gracefully.
func Run(ctx context.Context, addr string, logger *slog.Logger, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// renderAll may legitimately take up to the render timeout
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", addr)
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
