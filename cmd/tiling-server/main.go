package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mohammed-shakir/aoi-tiling/internal/cache/tileindex"
	"github.com/mohammed-shakir/aoi-tiling/internal/chunkevents"
	"github.com/mohammed-shakir/aoi-tiling/internal/core/config"
	"github.com/mohammed-shakir/aoi-tiling/internal/core/router"
	"github.com/mohammed-shakir/aoi-tiling/internal/core/server"
	"github.com/mohammed-shakir/aoi-tiling/internal/logger"
	"github.com/mohammed-shakir/aoi-tiling/internal/metrics"
	"github.com/mohammed-shakir/aoi-tiling/internal/persist"
	"github.com/mohammed-shakir/aoi-tiling/internal/render"
	"github.com/mohammed-shakir/aoi-tiling/internal/tiling"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// missing .env is fine
	_ = godotenv.Load()
	cfg := config.FromEnv()

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Component: "tiling-server",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mp := metrics.Init(metrics.Config{
		Enabled: cfg.Metrics.Enabled,
		Addr:    cfg.Metrics.Addr,
		Path:    cfg.Metrics.Path,
		Build: metrics.BuildInfo{
			Version:   Version,
			Revision:  os.Getenv("BUILD_REVISION"),
			BuildDate: os.Getenv("BUILD_DATE"),
		},
		PersistBackend: cfg.Persist.Driver,
		StreamSink:     cfg.Stream.Sink,
	})
	if cfg.Metrics.Enabled && cfg.Metrics.Addr != "" {
		go serveMetrics(ctx, mp, appLog)
	}

	appLog.Info("starting tiling server",
		"addr", cfg.Addr,
		"version", Version,
		"persist", cfg.Persist.Driver,
		"stream_sink", cfg.Stream.Sink)

	backend, err := openBackend(ctx, cfg.Persist, appLog)
	if err != nil {
		appLog.Error("persistence backend setup failed", "driver", cfg.Persist.Driver, "err", err)
		return 1
	}
	mp.SetPersistBackend(backend.Name())
	gw := persist.NewGateway(backend, appLog,
		persist.WithMaxEntries(cfg.Tiling.MaxEntries),
		persist.WithTimeout(cfg.Persist.OpTimeout))
	defer func() {
		if err := gw.Close(); err != nil {
			appLog.Warn("persistence close failed", "err", err)
		}
	}()

	store := tileindex.New(gw.Load(ctx), gw, appLog)
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 2*cfg.Persist.OpTimeout)
		defer cancel()
		if err := store.Close(flushCtx); err != nil {
			appLog.Warn("final index save failed", "err", err)
		}
	}()

	engine := tiling.New(nil, store, appLog)
	renderer := render.New(render.Options{
		ChunkSize:       cfg.Render.ChunkSize,
		Workers:         cfg.Render.Workers,
		Timeout:         cfg.Render.Timeout,
		StreamDelay:     cfg.Stream.Delay,
		CacheSize:       cfg.Render.CacheSize,
		ShutdownTimeout: cfg.Render.ShutdownTimeout,
	}, appLog)

	var sink render.Publisher
	if cfg.Stream.Sink == "kafka" {
		pub, err := chunkevents.New(cfg.Stream.Brokers(), cfg.Stream.KafkaTopic, appLog)
		if err != nil {
			appLog.Error("kafka chunk publisher setup failed", "err", err)
			_ = renderer.Close()
			return 1
		}
		defer func() {
			if err := pub.Close(); err != nil {
				appLog.Warn("kafka publisher close failed", "err", err)
			}
		}()
		sink = pub
	}
	// runs before the publisher closes so in-flight streams drain into it
	defer func() {
		if err := renderer.Close(); err != nil {
			appLog.Warn("renderer shutdown forced", "err", err)
		}
	}()

	h := router.New(engine, renderer, defaultPolicy(cfg.Tiling), sink, appLog)
	routes := server.Routes(appLog, server.Deps{
		Handlers: h,
		Index:    store,
		Backend:  gw.Backend(),
		Metrics:  mp,
	})

	if err := server.Run(ctx, cfg.Addr, appLog, routes); err != nil {
		appLog.Error("server error", "err", err)
		return 1
	}
	appLog.Info("shutting down", "tiles", store.Len())
	return 0
}

// openBackend serves without persistence when the configured store is
// unreachable. Only a misspelled driver stops startup.
func openBackend(ctx context.Context, c config.PersistCfg, log *slog.Logger) (persist.Backend, error) {
	b, err := persist.Open(ctx, c)
	if err == nil {
		return b, nil
	}
	if errors.Is(err, persist.ErrUnknownDriver) {
		return nil, err
	}
	log.Warn("persistence backend unavailable, index will not be saved",
		"driver", c.Driver, "err", err)
	return persist.Nop{}, nil
}

func defaultPolicy(c config.TilingCfg) tiling.Policy {
	p := tiling.DefaultPolicy()
	p.MaxTileArea = c.DefaultMaxArea
	p.MinTileArea = c.DefaultMinArea
	p.CoverageThreshold = c.DefaultCover
	p.IncludeBoundingBox = c.DefaultBBox
	p.MaxDepth = c.MaxDepth
	p.HighCoverage = c.HighCoverage
	return p
}

func serveMetrics(ctx context.Context, mp *metrics.Provider, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle(mp.Path(), mp.Handler())
	srv := &http.Server{
		Addr:              mp.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info("metrics listen", "addr", mp.Addr(), "path", mp.Path())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Warn("metrics server exited", "err", err)
	}
}
