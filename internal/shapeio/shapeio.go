// Package shapeio decodes GeoJSON request bodies into geo shapes.
//
// Accepted inputs are a Polygon, a MultiPolygon, or a Feature whose geometry
// is one of those. Coordinates are [lon, lat]. Every ring must pass
// geo.ValidateRing.
package shapeio

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/tidwall/gjson"

	"github.com/mohammed-shakir/aoi-tiling/internal/geo"
)

// ValidationError reports input that is not a usable shape. Callers map it to
// a client error.
type ValidationError struct {
	Msg string
	Err error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return "invalid geojson: " + e.Msg + ": " + e.Err.Error()
	}
	return "invalid geojson: " + e.Msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(err error, format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...), Err: err}
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Decode parses raw GeoJSON.
func Decode(data []byte) (geo.Shape, error) {
	if len(data) == 0 || !gjson.ValidBytes(data) {
		return nil, invalid(nil, "body is not valid json")
	}
	typ := gjson.GetBytes(data, "type")
	if !typ.Exists() {
		return nil, invalid(nil, "missing type")
	}

	switch typ.String() {
	case "Feature":
		g := gjson.GetBytes(data, "geometry")
		if !g.Exists() || g.Type == gjson.Null {
			return nil, invalid(nil, "feature has no geometry")
		}
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, invalid(err, "decode feature")
		}
		return FromOrb(f.Geometry)
	case "Polygon", "MultiPolygon":
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, invalid(err, "decode %s", typ.String())
		}
		return FromOrb(g.Geometry())
	default:
		return nil, invalid(nil, "unsupported type %q", typ.String())
	}
}

// FromOrb converts an orb polygon or multipolygon.
func FromOrb(g orb.Geometry) (geo.Shape, error) {
	switch v := g.(type) {
	case orb.Polygon:
		return polygon(v)
	case orb.MultiPolygon:
		if len(v) == 0 {
			return nil, invalid(nil, "multipolygon has no polygons")
		}
		polys := make([]geo.Polygon, 0, len(v))
		for i, p := range v {
			poly, err := polygon(p)
			if err != nil {
				return nil, invalid(err, "polygon %d", i)
			}
			polys = append(polys, poly)
		}
		m, err := geo.NewMultiPolygon(polys...)
		if err != nil {
			return nil, invalid(err, "multipolygon")
		}
		return m, nil
	case nil:
		return nil, invalid(nil, "geometry is null")
	default:
		return nil, invalid(nil, "unsupported geometry %s", g.GeoJSONType())
	}
}

func polygon(p orb.Polygon) (geo.Polygon, error) {
	if len(p) == 0 {
		return geo.Polygon{}, invalid(nil, "polygon has no rings")
	}
	rings := make([][]geo.Point, len(p))
	for i, r := range p {
		pts := make([]geo.Point, len(r))
		for j, c := range r {
			pts[j] = geo.NewPoint(c.Lat(), c.Lon())
		}
		if err := geo.ValidateRing(pts); err != nil {
			return geo.Polygon{}, invalid(err, "ring %d", i)
		}
		rings[i] = pts
	}
	poly, err := geo.NewPolygon(rings[0], rings[1:]...)
	if err != nil {
		return geo.Polygon{}, invalid(err, "polygon")
	}
	return poly, nil
}
