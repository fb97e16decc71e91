package geo

type Kind string

const (
	KindPoint        Kind = "Point"
	KindPolygon      Kind = "Polygon"
	KindMultiPolygon Kind = "MultiPolygon"
)

// Shape is the closed set of parsed input geometries: Point, Polygon and
// MultiPolygon. The unexported method keeps other packages from adding kinds.
type Shape interface {
	Kind() Kind
	Bounds() BBox
	Contains(p Point) bool
	Area() float64
	isShape()
}

var (
	_ Shape = Point{}
	_ Shape = Polygon{}
	_ Shape = MultiPolygon{}
)
