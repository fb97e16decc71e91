// Package relate classifies a rectangular tile against a shape and measures their overlap.
package relate

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
	"github.com/paulmach/orb/planar"

	"github.com/mohammed-shakir/aoi-tiling/internal/geo"
	"github.com/mohammed-shakir/aoi-tiling/internal/tile"
)

type Relation int

const (
	Disjoint Relation = iota
	Contains
	Partial
)

func (r Relation) String() string {
	switch r {
	case Disjoint:
		return "disjoint"
	case Contains:
		return "contains"
	case Partial:
		return "partial"
	default:
		return fmt.Sprintf("relation(%d)", int(r))
	}
}

var ErrDegenerate = errors.New("relate: degenerate geometry")

// Interface is the geometry capability the tiling engine depends on.
// Contains means the shape fully covers the tile. Measure returns what Relate
// and IntersectionArea would, computed from a single intersection.
type Interface interface {
	Relate(t tile.Tile, s geo.Shape) (Relation, error)
	IntersectionArea(t tile.Tile, s geo.Shape) (float64, error)
	Measure(t tile.Tile, s geo.Shape) (Relation, float64, error)
}

// Planar computes relations in lat/lon degree space by clipping the shape to the
// tile rectangle. Since tiles are axis-aligned, clipping yields the exact intersection.
type Planar struct {
	// relative slack when comparing the clipped area to the tile area
	Tolerance float64
}

var _ Interface = (*Planar)(nil)

func NewPlanar() *Planar {
	return &Planar{Tolerance: 1e-9}
}

func (p *Planar) Relate(t tile.Tile, s geo.Shape) (Relation, error) {
	rel, _, err := p.Measure(t, s)
	return rel, err
}

func (p *Planar) IntersectionArea(t tile.Tile, s geo.Shape) (float64, error) {
	return clippedArea(t, s)
}

func (p *Planar) Measure(t tile.Tile, s geo.Shape) (Relation, float64, error) {
	area, err := clippedArea(t, s)
	if err != nil {
		return Disjoint, 0, err
	}
	tileArea := t.BBox().Area()
	switch {
	case area <= 0:
		return Disjoint, 0, nil
	case area >= tileArea*(1-p.Tolerance):
		return Contains, area, nil
	default:
		return Partial, area, nil
	}
}

func clippedArea(t tile.Tile, s geo.Shape) (float64, error) {
	b := t.BBox()
	if b.Area() == 0 || !finite(b) {
		return 0, fmt.Errorf("tile %s: %w", b, ErrDegenerate)
	}
	if !b.Intersects(s.Bounds()) {
		return 0, nil
	}

	bound := b.Orb()
	var clipped orb.Geometry
	switch sh := s.(type) {
	case geo.Polygon:
		cp := clip.Polygon(bound, sh.Orb())
		if len(cp) == 0 {
			return 0, nil
		}
		clipped = cp
	case geo.MultiPolygon:
		cmp := clip.MultiPolygon(bound, sh.Orb())
		if len(cmp) == 0 {
			return 0, nil
		}
		clipped = cmp
	case geo.Point:
		return 0, fmt.Errorf("point shape: %w", ErrDegenerate)
	default:
		return 0, fmt.Errorf("unsupported shape %T: %w", s, ErrDegenerate)
	}

	area := math.Abs(planar.Area(clipped))
	if math.IsNaN(area) {
		return 0, fmt.Errorf("tile %s: %w", b, ErrDegenerate)
	}
	// clipping noise can push the result past the tile itself
	return math.Min(area, b.Area()), nil
}

func finite(b geo.BBox) bool {
	for _, v := range []float64{b.SW.Lat, b.SW.Lon, b.NE.Lat, b.NE.Lon} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
