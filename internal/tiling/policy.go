package tiling

import (
	"errors"
	"fmt"
)

var ErrInvalidPolicy = errors.New("tiling: invalid policy")

// Policy bounds how far the engine subdivides. Areas are approximate square
// meters; coverage values are fractions of a tile's area.
type Policy struct {
	MaxTileArea        float64
	MinTileArea        float64
	CoverageThreshold  float64
	IncludeBoundingBox bool
	// MaxDepth caps recursion below the root tile.
	MaxDepth int
	// HighCoverage accepts a partially covered tile without refining it.
	HighCoverage float64
}

const (
	DefaultMaxTileArea  = 1000
	DefaultMinTileArea  = 10
	DefaultCoverage     = 0.10
	DefaultMaxDepth     = 15
	DefaultHighCoverage = 0.95

	// 4^30 leaves is far past anything that could be rendered
	maxDepthLimit = 30
)

func DefaultPolicy() Policy {
	return Policy{
		MaxTileArea:        DefaultMaxTileArea,
		MinTileArea:        DefaultMinTileArea,
		CoverageThreshold:  DefaultCoverage,
		IncludeBoundingBox: true,
		MaxDepth:           DefaultMaxDepth,
		HighCoverage:       DefaultHighCoverage,
	}
}

func (p Policy) Validate() error {
	switch {
	case !(p.MaxTileArea > 0):
		return fmt.Errorf("%w: maxTileArea must be positive, got %v", ErrInvalidPolicy, p.MaxTileArea)
	case !(p.MinTileArea >= 0):
		return fmt.Errorf("%w: minTileArea must not be negative, got %v", ErrInvalidPolicy, p.MinTileArea)
	case !(p.CoverageThreshold >= 0 && p.CoverageThreshold <= 1):
		return fmt.Errorf("%w: coverageThreshold must be within [0,1], got %v", ErrInvalidPolicy, p.CoverageThreshold)
	case p.MaxDepth < 0 || p.MaxDepth > maxDepthLimit:
		return fmt.Errorf("%w: maxDepth must be within [0,%d], got %d", ErrInvalidPolicy, maxDepthLimit, p.MaxDepth)
	case !(p.HighCoverage > 0 && p.HighCoverage <= 1):
		return fmt.Errorf("%w: highCoverage must be within (0,1], got %v", ErrInvalidPolicy, p.HighCoverage)
	}
	return nil
}
