package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mohammed-shakir/aoi-tiling/internal/core/config"
	"github.com/mohammed-shakir/aoi-tiling/internal/logger"
	"github.com/mohammed-shakir/aoi-tiling/internal/persist"
)

func TestDefaultPolicy_FromConfig(t *testing.T) {
	c := config.FromEnv().Tiling
	p := defaultPolicy(c)
	if err := p.Validate(); err != nil {
		t.Fatalf("default policy invalid: %v", err)
	}
	if p.MaxTileArea != 1000 || p.MinTileArea != 10 || p.CoverageThreshold != 0.10 || !p.IncludeBoundingBox {
		t.Fatalf("policy=%+v", p)
	}
	if p.MaxDepth != 15 || p.HighCoverage != 0.95 {
		t.Fatalf("depth/high=%d/%v", p.MaxDepth, p.HighCoverage)
	}
}

func TestOpenBackend_UnreachableRedisDegrades(t *testing.T) {
	t.Setenv("PERSIST_DRIVER", "redis")
	t.Setenv("REDIS_ADDR", "127.0.0.1:1")
	cfg := config.FromEnv().Persist

	var buf bytes.Buffer
	zl := logger.Build(logger.Config{Level: "warn", Component: "test"}, &buf)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	b, err := openBackend(ctx, cfg, logger.NewSlog(&zl))
	if err != nil {
		t.Fatalf("startup must survive an unreachable redis: %v", err)
	}
	if b.Name() != "none" {
		t.Fatalf("backend=%q want none", b.Name())
	}
	if !strings.Contains(buf.String(), "persistence backend unavailable") {
		t.Fatalf("missing warning, log=%q", buf.String())
	}
	if _, err := b.Load(ctx); !errors.Is(err, persist.ErrNotFound) {
		t.Fatalf("Load err=%v want ErrNotFound", err)
	}
}

func TestOpenBackend_UnknownDriverFails(t *testing.T) {
	_, err := openBackend(context.Background(), config.PersistCfg{Driver: "tape"}, logger.Discard())
	if !errors.Is(err, persist.ErrUnknownDriver) {
		t.Fatalf("err=%v want ErrUnknownDriver", err)
	}
}
