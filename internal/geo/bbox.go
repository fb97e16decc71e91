package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// BBox is an axis-aligned lat/lon box. SW <= NE holds componentwise.
type BBox struct {
	SW Point `json:"sw"`
	NE Point `json:"ne"`
}

// NewBBox orders the corners so the SW <= NE invariant holds.
func NewBBox(a, b Point) BBox {
	return BBox{
		SW: Point{Lat: math.Min(a.Lat, b.Lat), Lon: math.Min(a.Lon, b.Lon)},
		NE: Point{Lat: math.Max(a.Lat, b.Lat), Lon: math.Max(a.Lon, b.Lon)},
	}
}

// BoundsOf returns the tight box of pts; ok is false for an empty slice.
func BoundsOf(pts []Point) (b BBox, ok bool) {
	if len(pts) == 0 {
		return BBox{}, false
	}
	b = BBox{SW: pts[0], NE: pts[0]}
	for _, p := range pts[1:] {
		b = b.Extend(p)
	}
	return b, true
}

// Contains is a closed-interval test with exact comparison.
func (b BBox) Contains(p Point) bool {
	return p.Lat >= b.SW.Lat && p.Lat <= b.NE.Lat &&
		p.Lon >= b.SW.Lon && p.Lon <= b.NE.Lon
}

func (b BBox) ContainsBox(o BBox) bool {
	return b.Contains(o.SW) && b.Contains(o.NE)
}

// Intersects reports closed-interval overlap: touching edges count.
func (b BBox) Intersects(o BBox) bool {
	if o.SW.Lat > b.NE.Lat || o.NE.Lat < b.SW.Lat {
		return false
	}
	if o.SW.Lon > b.NE.Lon || o.NE.Lon < b.SW.Lon {
		return false
	}
	return true
}

// Overlaps reports whether the boxes share interior area. Along an axis where
// either box is degenerate, touching is enough.
func (b BBox) Overlaps(o BBox) bool {
	return axisOverlap(b.SW.Lat, b.NE.Lat, o.SW.Lat, o.NE.Lat) &&
		axisOverlap(b.SW.Lon, b.NE.Lon, o.SW.Lon, o.NE.Lon)
}

func axisOverlap(aMin, aMax, bMin, bMax float64) bool {
	lo := math.Max(aMin, bMin)
	hi := math.Min(aMax, bMax)
	if lo < hi {
		return true
	}
	return lo == hi && (aMin == aMax || bMin == bMax)
}

// Union returns the minimal box enclosing both.
func (b BBox) Union(o BBox) BBox {
	return BBox{
		SW: Point{Lat: math.Min(b.SW.Lat, o.SW.Lat), Lon: math.Min(b.SW.Lon, o.SW.Lon)},
		NE: Point{Lat: math.Max(b.NE.Lat, o.NE.Lat), Lon: math.Max(b.NE.Lon, o.NE.Lon)},
	}
}

func (b BBox) Extend(p Point) BBox {
	return b.Union(BBox{SW: p, NE: p})
}

// Area is the planar area in degrees squared.
func (b BBox) Area() float64 {
	return math.Abs((b.NE.Lat - b.SW.Lat) * (b.NE.Lon - b.SW.Lon))
}

func (b BBox) Center() Point {
	return Point{
		Lat: (b.SW.Lat + b.NE.Lat) / 2,
		Lon: (b.SW.Lon + b.NE.Lon) / 2,
	}
}

// Enlargement is the area increase needed for b to also cover o.
func (b BBox) Enlargement(o BBox) float64 {
	return b.Union(o).Area() - b.Area()
}

func (b BBox) Orb() orb.Bound {
	return orb.Bound{Min: b.SW.Orb(), Max: b.NE.Orb()}
}

func (b BBox) String() string {
	return fmt.Sprintf("[%s,%s]", b.SW, b.NE)
}
