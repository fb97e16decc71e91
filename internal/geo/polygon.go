package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

var ErrEmptyShape = errors.New("geo: shape has no points")

// Polygon is an outer ring plus optional holes. Rings are implicitly closed;
// a repeated closing point is allowed. Bounds covers the outer ring only.
type Polygon struct {
	outer  []Point
	holes  [][]Point
	bounds BBox
}

func NewPolygon(outer []Point, holes ...[]Point) (Polygon, error) {
	b, ok := BoundsOf(outer)
	if !ok {
		return Polygon{}, ErrEmptyShape
	}
	return Polygon{
		outer:  outer,
		holes:  holes,
		bounds: b,
	}, nil
}

func (p Polygon) Kind() Kind { return KindPolygon }

func (p Polygon) Bounds() BBox { return p.bounds }

func (p Polygon) Outer() []Point { return p.outer }

func (p Polygon) Holes() [][]Point { return p.holes }

// Contains uses even-odd ray casting; points inside a hole are outside the polygon.
func (p Polygon) Contains(pt Point) bool {
	if !p.bounds.Contains(pt) {
		return false
	}
	if !ringContains(p.outer, pt) {
		return false
	}
	for _, h := range p.holes {
		if ringContains(h, pt) {
			return false
		}
	}
	return true
}

// Area is the planar shoelace area (degrees squared) of the outer ring minus holes.
func (p Polygon) Area() float64 {
	a := ringArea(p.outer)
	for _, h := range p.holes {
		a -= ringArea(h)
	}
	return a
}

// Orb converts to orb's polygon with every ring explicitly closed.
func (p Polygon) Orb() orb.Polygon {
	out := make(orb.Polygon, 0, 1+len(p.holes))
	out = append(out, orbRing(p.outer))
	for _, h := range p.holes {
		out = append(out, orbRing(h))
	}
	return out
}

func (Polygon) isShape() {}

type MultiPolygon struct {
	polygons []Polygon
	bounds   BBox
}

func NewMultiPolygon(polys ...Polygon) (MultiPolygon, error) {
	if len(polys) == 0 {
		return MultiPolygon{}, ErrEmptyShape
	}
	b := polys[0].Bounds()
	for _, p := range polys[1:] {
		b = b.Union(p.Bounds())
	}
	return MultiPolygon{polygons: polys, bounds: b}, nil
}

func (m MultiPolygon) Kind() Kind { return KindMultiPolygon }

func (m MultiPolygon) Bounds() BBox { return m.bounds }

func (m MultiPolygon) Polygons() []Polygon { return m.polygons }

func (m MultiPolygon) Contains(pt Point) bool {
	if !m.bounds.Contains(pt) {
		return false
	}
	for _, p := range m.polygons {
		if p.Contains(pt) {
			return true
		}
	}
	return false
}

func (m MultiPolygon) Area() float64 {
	var a float64
	for _, p := range m.polygons {
		a += p.Area()
	}
	return a
}

func (m MultiPolygon) Orb() orb.MultiPolygon {
	out := make(orb.MultiPolygon, 0, len(m.polygons))
	for _, p := range m.polygons {
		out = append(out, p.Orb())
	}
	return out
}

func (MultiPolygon) isShape() {}

func (p Polygon) String() string {
	return fmt.Sprintf("Polygon(%d pts, %d holes)", len(p.outer), len(p.holes))
}

// lat is y, lon is x
func ringContains(ring []Point, pt Point) bool {
	inside := false
	n := len(ring)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		pi, pj := ring[i], ring[j]
		if (pi.Lat > pt.Lat) != (pj.Lat > pt.Lat) &&
			pt.Lon < (pj.Lon-pi.Lon)*(pt.Lat-pi.Lat)/(pj.Lat-pi.Lat)+pi.Lon {
			inside = !inside
		}
	}
	return inside
}

func ringArea(ring []Point) float64 {
	var a float64
	n := len(ring)
	for i := range n {
		j := (i + 1) % n
		a += ring[i].Lon * ring[j].Lat
		a -= ring[j].Lon * ring[i].Lat
	}
	return math.Abs(a) / 2
}

func orbRing(ring []Point) orb.Ring {
	out := make(orb.Ring, 0, len(ring)+1)
	for _, p := range ring {
		out = append(out, p.Orb())
	}
	if len(out) > 0 && out[0] != out[len(out)-1] {
		out = append(out, out[0])
	}
	return out
}
