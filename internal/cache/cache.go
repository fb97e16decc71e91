// Package cache defines the tile cache the tiling engine consults before
// computing a shape.
package cache

import (
	"github.com/mohammed-shakir/aoi-tiling/internal/geo"
	"github.com/mohammed-shakir/aoi-tiling/internal/tile"
)

// Index answers whether tiles already cover a region and absorbs new ones.
type Index interface {
	// Lookup returns stored tiles overlapping q.
	Lookup(q geo.BBox) []tile.Tile
	// InsertBatch stores tiles computed for q unless another writer stored
	// tiles overlapping q first; then it returns those and inserted is false.
	InsertBatch(q geo.BBox, tiles []tile.Tile) (stored []tile.Tile, inserted bool)
}
