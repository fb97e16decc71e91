// Package persist loads and saves the tile index snapshot through a pluggable
// backend. Failures never reach the tiling path: Load degrades to an empty
// index and Save only logs.
package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mohammed-shakir/aoi-tiling/internal/core/config"
	"github.com/mohammed-shakir/aoi-tiling/internal/core/observability"
	"github.com/mohammed-shakir/aoi-tiling/internal/rtree"
)

// ErrNotFound is returned by a Backend when nothing has been saved yet.
var ErrNotFound = errors.New("persist: no saved index")

// ErrUnknownDriver is returned by Open for a driver name it does not know.
var ErrUnknownDriver = errors.New("persist: unknown driver")

// Backend stores one opaque snapshot document.
type Backend interface {
	Name() string
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
	Close() error
}

type Option func(*Gateway)

// WithMaxEntries sets the node capacity used for loaded and fresh indexes.
func WithMaxEntries(n int) Option {
	return func(g *Gateway) { g.maxEntries = n }
}

// WithTimeout bounds every backend call.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) { g.timeout = d }
}

type Gateway struct {
	backend    Backend
	log        *slog.Logger
	maxEntries int
	timeout    time.Duration
}

func NewGateway(b Backend, log *slog.Logger, opts ...Option) *Gateway {
	if b == nil {
		b = Nop{}
	}
	if log == nil {
		log = slog.Default()
	}
	g := &Gateway{
		backend:    b,
		log:        log.With("component", "persist", "backend", b.Name()),
		maxEntries: rtree.DefaultMaxEntries,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *Gateway) Backend() string { return g.backend.Name() }

func (g *Gateway) MaxEntries() int { return g.maxEntries }

func (g *Gateway) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout > 0 {
		return context.WithTimeout(ctx, g.timeout)
	}
	return context.WithCancel(ctx)
}

// Load returns the saved index, or a fresh empty one when nothing is saved or
// anything goes wrong.
func (g *Gateway) Load(ctx context.Context) *rtree.Index {
	ctx, cancel := g.opContext(ctx)
	defer cancel()

	start := time.Now()
	ix, err := g.load(ctx)
	missing := errors.Is(err, ErrNotFound)
	opErr := err
	if missing {
		opErr = nil
	}
	observability.ObservePersistOp(g.backend.Name(), "load", opErr, time.Since(start).Seconds())

	switch {
	case missing:
		g.log.InfoContext(ctx, "no saved index, starting empty")
		return rtree.New(g.maxEntries)
	case err != nil:
		g.log.ErrorContext(ctx, "index load failed, starting empty", "err", err)
		return rtree.New(g.maxEntries)
	}
	g.log.InfoContext(ctx, "index loaded", "tiles", ix.Len(), "depth", ix.Depth())
	return ix
}

func (g *Gateway) load(ctx context.Context) (*rtree.Index, error) {
	data, err := g.backend.Load(ctx)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrNotFound
	}
	ix, err := rtree.Decode(data, g.maxEntries)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return ix, nil
}

// Save encodes and writes ix. The caller must keep ix from being mutated
// until Save returns.
func (g *Gateway) Save(ctx context.Context, ix *rtree.Index) error {
	data, err := rtree.Encode(ix)
	if err != nil {
		g.log.ErrorContext(ctx, "index encode failed", "err", err)
		return err
	}
	return g.SaveSnapshot(ctx, data)
}

// SaveSnapshot writes an already encoded snapshot. Errors are logged and
// returned for callers that want to count them.
func (g *Gateway) SaveSnapshot(ctx context.Context, data []byte) error {
	ctx, cancel := g.opContext(ctx)
	defer cancel()

	start := time.Now()
	err := g.backend.Save(ctx, data)
	observability.ObservePersistOp(g.backend.Name(), "save", err, time.Since(start).Seconds())
	if err != nil {
		g.log.WarnContext(ctx, "index save failed", "err", err, "bytes", len(data))
		return fmt.Errorf("save snapshot: %w", err)
	}
	g.log.DebugContext(ctx, "index saved", "bytes", len(data))
	return nil
}

func (g *Gateway) Close() error {
	return g.backend.Close()
}

// Open builds the backend named by cfg.Driver.
func Open(ctx context.Context, cfg config.PersistCfg) (Backend, error) {
	switch cfg.Driver {
	case "", "file":
		return NewFile(cfg.Path), nil
	case "redis":
		return OpenRedis(ctx, cfg.RedisAddr, cfg.RedisKey)
	case "buntdb":
		return OpenBunt(cfg.Path, cfg.RedisKey)
	case "none":
		return Nop{}, nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownDriver, cfg.Driver)
}

// Nop keeps nothing.
type Nop struct{}

func (Nop) Name() string { return "none" }

func (Nop) Load(context.Context) ([]byte, error) { return nil, ErrNotFound }

func (Nop) Save(context.Context, []byte) error { return nil }

func (Nop) Close() error { return nil }
