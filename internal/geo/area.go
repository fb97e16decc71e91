package geo

import "math"

// EarthRadiusMeters is the mean radius used by the area approximation.
const EarthRadiusMeters = 6371000.0

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }

// AreaMeters approximates the box area in square meters from its lat/lon spans.
// Width is measured at the southern edge, so boxes far from the equator
// are overestimated on their northern half.
func AreaMeters(b BBox) float64 {
	dLat := toRadians(b.NE.Lat - b.SW.Lat)
	dLon := toRadians(b.NE.Lon - b.SW.Lon)
	height := EarthRadiusMeters * dLat
	width := EarthRadiusMeters * math.Cos(toRadians(b.SW.Lat)) * dLon
	return math.Abs(width * height)
}

// HaversineMeters is the great-circle distance between two points.
func HaversineMeters(a, b Point) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLat := toRadians(b.Lat - a.Lat)
	dLon := toRadians(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return EarthRadiusMeters * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}
