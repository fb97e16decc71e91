// Package tile implements the rectangular tile used by the tiling engine and the index.
package tile

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/aoi-tiling/internal/geo"
)

// Tile is an immutable axis-aligned rectangle.
type Tile struct {
	box geo.BBox
}

func New(b geo.BBox) Tile {
	return Tile{box: b}
}

func FromCorners(sw, ne geo.Point) Tile {
	return Tile{box: geo.NewBBox(sw, ne)}
}

func (t Tile) BBox() geo.BBox { return t.box }

// Corners returns SW, NW, NE, SE in that order.
func (t Tile) Corners() [4]geo.Point {
	sw, ne := t.box.SW, t.box.NE
	return [4]geo.Point{
		sw,
		{Lat: ne.Lat, Lon: sw.Lon},
		ne,
		{Lat: sw.Lat, Lon: ne.Lon},
	}
}

// Subdivide splits at the midpoint into SW, NW, NE, SE quadrants. The
// children share edges exactly and their union is the parent box.
func (t Tile) Subdivide() [4]Tile {
	sw, ne := t.box.SW, t.box.NE
	mid := t.box.Center()
	return [4]Tile{
		{box: geo.BBox{SW: sw, NE: mid}},
		{box: geo.BBox{SW: geo.Point{Lat: mid.Lat, Lon: sw.Lon}, NE: geo.Point{Lat: ne.Lat, Lon: mid.Lon}}},
		{box: geo.BBox{SW: mid, NE: ne}},
		{box: geo.BBox{SW: geo.Point{Lat: sw.Lat, Lon: mid.Lon}, NE: geo.Point{Lat: mid.Lat, Lon: ne.Lon}}},
	}
}

// AreaMeters is the approximate footprint in square meters.
func (t Tile) AreaMeters() float64 {
	return geo.AreaMeters(t.box)
}

// Ring is the closed 5-point ring in orb order, starting and ending at SW.
func (t Tile) Ring() orb.Ring {
	c := t.Corners()
	return orb.Ring{c[0].Orb(), c[1].Orb(), c[2].Orb(), c[3].Orb(), c[0].Orb()}
}

func (t Tile) Polygon() orb.Polygon {
	return orb.Polygon{t.Ring()}
}

// ID is a stable hash of the exact box coordinates.
func (t Tile) ID() string {
	var buf [32]byte
	binary.LittleEndian.PutUint64(buf[0:], math.Float64bits(t.box.SW.Lat))
	binary.LittleEndian.PutUint64(buf[8:], math.Float64bits(t.box.SW.Lon))
	binary.LittleEndian.PutUint64(buf[16:], math.Float64bits(t.box.NE.Lat))
	binary.LittleEndian.PutUint64(buf[24:], math.Float64bits(t.box.NE.Lon))
	return fmt.Sprintf("%016x", xxhash.Sum64(buf[:]))
}

// Feature converts the tile to a GeoJSON polygon feature.
func (t Tile) Feature() *geojson.Feature {
	f := geojson.NewFeature(t.Polygon())
	f.ID = t.ID()
	return f
}

func (t Tile) String() string {
	return "tile" + t.box.String()
}
