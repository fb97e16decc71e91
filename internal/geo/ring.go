package geo

import (
	"fmt"
	"math"
)

// RingTolerance is used for the closure check and for near-collinear edges.
const RingTolerance = 1e-10

type RingError struct {
	Reason string
}

func (e *RingError) Error() string { return "invalid ring: " + e.Reason }

// ValidateRing requires >= 3 points, first == last within RingTolerance and no
// intersection between non-adjacent edges. The check is pairwise, O(n^2).
func ValidateRing(ring []Point) error {
	n := len(ring)
	if n < 3 {
		return &RingError{Reason: fmt.Sprintf("need at least 3 points, got %d", n)}
	}
	if !nearlyEqual(ring[0], ring[n-1]) {
		return &RingError{Reason: "ring is not closed"}
	}
	edges := n - 1
	for i := 0; i < edges; i++ {
		for j := i + 2; j < edges; j++ {
			// first and last edge share the closing vertex
			if i == 0 && j == edges-1 {
				continue
			}
			if segmentsIntersect(ring[i], ring[i+1], ring[j], ring[j+1]) {
				return &RingError{Reason: fmt.Sprintf("edges %d and %d intersect", i, j)}
			}
		}
	}
	return nil
}

func nearlyEqual(a, b Point) bool {
	return math.Abs(a.Lat-b.Lat) < RingTolerance && math.Abs(a.Lon-b.Lon) < RingTolerance
}

func segmentsIntersect(p1, p2, p3, p4 Point) bool {
	d1 := direction(p3, p4, p1)
	d2 := direction(p3, p4, p2)
	d3 := direction(p1, p2, p3)
	d4 := direction(p1, p2, p4)

	switch {
	case math.Abs(d1) < RingTolerance && onSegment(p3, p4, p1):
		return true
	case math.Abs(d2) < RingTolerance && onSegment(p3, p4, p2):
		return true
	case math.Abs(d3) < RingTolerance && onSegment(p1, p2, p3):
		return true
	case math.Abs(d4) < RingTolerance && onSegment(p1, p2, p4):
		return true
	}
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}

// orientation of k relative to the directed segment i->j
func direction(i, j, k Point) float64 {
	return (k.Lon-i.Lon)*(j.Lat-i.Lat) - (j.Lon-i.Lon)*(k.Lat-i.Lat)
}

func onSegment(i, j, k Point) bool {
	return math.Min(i.Lon, j.Lon) <= k.Lon && k.Lon <= math.Max(i.Lon, j.Lon) &&
		math.Min(i.Lat, j.Lat) <= k.Lat && k.Lat <= math.Max(i.Lat, j.Lat)
}
