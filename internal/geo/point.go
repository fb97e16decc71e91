// Package geo defines the lat/lon geometry model shared by tiling, relate and the tile index.
package geo

import (
	"fmt"

	"github.com/paulmach/orb"
)

type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func NewPoint(lat, lon float64) Point {
	return Point{Lat: lat, Lon: lon}
}

// Orb returns the point in orb's [lon, lat] order.
func (p Point) Orb() orb.Point {
	return orb.Point{p.Lon, p.Lat}
}

func (p Point) String() string {
	return fmt.Sprintf("(%g,%g)", p.Lat, p.Lon)
}

func (p Point) Kind() Kind { return KindPoint }

func (p Point) Bounds() BBox { return BBox{SW: p, NE: p} }

func (p Point) Contains(q Point) bool { return p == q }

func (p Point) Area() float64 { return 0 }

func (Point) isShape() {}
