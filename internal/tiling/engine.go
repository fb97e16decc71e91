// Package tiling turns a shape into rectangular tiles by recursive quadrant
// subdivision, consulting a tile cache before computing.
package tiling

import (
	"context"
	"log/slog"
	"time"

	"github.com/mohammed-shakir/aoi-tiling/internal/cache"
	"github.com/mohammed-shakir/aoi-tiling/internal/core/observability"
	"github.com/mohammed-shakir/aoi-tiling/internal/geo"
	"github.com/mohammed-shakir/aoi-tiling/internal/logger"
	"github.com/mohammed-shakir/aoi-tiling/internal/relate"
	"github.com/mohammed-shakir/aoi-tiling/internal/tile"
)

// how many tiles are visited between context checks
const cancelCheckEvery = 1024

type Result struct {
	// Tiles is in generation order. On a miss with IncludeBoundingBox the
	// shape's bounding box comes first.
	Tiles []tile.Tile
	// Cached is set when tiles came from the index instead of this call.
	Cached bool
	// Fallbacks counts tiles decided by area alone after a relate failure.
	Fallbacks int
}

type Engine struct {
	relater relate.Interface
	index   cache.Index
	log     *slog.Logger
}

// New builds an engine. A nil index disables caching; a nil relater uses
// relate.NewPlanar.
func New(r relate.Interface, idx cache.Index, log *slog.Logger) *Engine {
	if r == nil {
		r = relate.NewPlanar()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{relater: r, index: idx, log: log}
}

func (e *Engine) Generate(ctx context.Context, s geo.Shape, p Policy) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	bounds := s.Bounds()

	if e.index != nil {
		if hit := e.index.Lookup(bounds); len(hit) > 0 {
			observability.ObserveIndexLookup(true)
			e.log.InfoContext(logger.WithCacheOutcome(ctx, "hit"), "serving cached tiles",
				"tiles", len(hit), "bbox", bounds.String())
			return Result{Tiles: hit, Cached: true}, nil
		}
		observability.ObserveIndexLookup(false)
	}

	start := time.Now()
	w := &walker{ctx: ctx, shape: s, bounds: bounds, policy: p, relater: e.relater}
	if err := w.run(); err != nil {
		return Result{}, err
	}
	observability.ObserveTiling(len(w.out), time.Since(start).Seconds())
	observability.AddRelateFallbacks(w.fallbacks)
	if w.fallbacks > 0 {
		e.log.WarnContext(ctx, "relate failed, used area-only fallback", "tiles", w.fallbacks)
	}

	res := Result{Tiles: w.out, Fallbacks: w.fallbacks}
	if e.index != nil {
		stored, inserted := e.index.InsertBatch(bounds, w.out)
		if !inserted && len(stored) > 0 {
			// another request cached this region while we computed
			e.log.DebugContext(ctx, "discarding tiles, region cached concurrently", "tiles", len(w.out))
			return Result{Tiles: stored, Cached: true}, nil
		}
	}

	if p.IncludeBoundingBox {
		res.Tiles = append([]tile.Tile{tile.New(bounds)}, res.Tiles...)
	}
	e.log.DebugContext(logger.WithCacheOutcome(ctx, "miss"), "tiles generated",
		"tiles", len(res.Tiles), "took", time.Since(start))
	return res, nil
}

// walker holds the state of one subdivision pass.
type walker struct {
	ctx     context.Context
	shape   geo.Shape
	bounds  geo.BBox
	policy  Policy
	relater relate.Interface

	out       []tile.Tile
	fallbacks int
	visited   int
}

func (w *walker) run() error {
	root := tile.New(w.bounds)
	if root.AreaMeters() > w.policy.MaxTileArea {
		for _, c := range root.Subdivide() {
			if err := w.visit(c, 1); err != nil {
				return err
			}
		}
		return nil
	}
	return w.visit(root, 0)
}

func (w *walker) visit(t tile.Tile, depth int) error {
	w.visited++
	if w.visited%cancelCheckEvery == 0 {
		if err := w.ctx.Err(); err != nil {
			return err
		}
	}

	p := w.policy
	area := t.AreaMeters()
	if !t.BBox().Intersects(w.bounds) {
		return nil
	}
	splittable := area > p.MaxTileArea && depth < p.MaxDepth

	rel, ratio, err := w.measure(t)
	if err != nil {
		w.fallbacks++
		switch {
		case splittable:
			return w.split(t, depth)
		case area <= p.MaxTileArea:
			w.out = append(w.out, t)
		}
		return nil
	}

	// children of a disjoint tile are disjoint too and can never reach a
	// positive threshold
	if rel == relate.Disjoint && p.CoverageThreshold > 0 {
		return nil
	}

	switch {
	case splittable:
		return w.split(t, depth)
	case depth >= p.MaxDepth || area <= p.MinTileArea:
		if ratio >= p.CoverageThreshold {
			w.out = append(w.out, t)
		}
	case rel == relate.Contains || ratio > p.HighCoverage:
		w.out = append(w.out, t)
	default:
		return w.split(t, depth)
	}
	return nil
}

func (w *walker) measure(t tile.Tile) (relate.Relation, float64, error) {
	deg := t.BBox().Area()
	if !(deg > 0) {
		return 0, 0, relate.ErrDegenerate
	}
	rel, ia, err := w.relater.Measure(t, w.shape)
	if err != nil {
		return 0, 0, err
	}
	return rel, ia / deg, nil
}

func (w *walker) split(t tile.Tile, depth int) error {
	for _, c := range t.Subdivide() {
		if err := w.visit(c, depth+1); err != nil {
			return err
		}
	}
	return nil
}
