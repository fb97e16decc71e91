package rtree

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-shakir/aoi-tiling/internal/geo"
	"github.com/mohammed-shakir/aoi-tiling/internal/tile"
)

func TestCodecRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	ix := New(5)
	for _, tl := range randomTiles(r, 200) {
		ix.Insert(tl)
	}

	data, err := Encode(ix)
	require.NoError(t, err)

	back, err := Decode(data, 0)
	require.NoError(t, err)
	assert.Equal(t, ix.Len(), back.Len())
	assert.Equal(t, ix.Depth(), back.Depth())
	assert.Equal(t, 5, back.MaxEntries())
	assert.Equal(t, ix.All(), back.All())
	checkTight(t, back.root)

	for i, q := range roundTripQueries(r, ix.All()) {
		assert.ElementsMatch(t, ix.Search(q), back.Search(q), "query %d %v", i, q)
	}
}

// roundTripQueries mixes random boxes with degenerate points and boxes that
// only touch stored tiles along an edge or corner.
func roundTripQueries(r *rand.Rand, tiles []tile.Tile) []geo.BBox {
	qs := []geo.BBox{bb(-90, -180, 90, 180), bb(-20, -20, 40, 40)}
	for i := 0; i < 200; i++ {
		lat := r.Float64()*170 - 85
		lon := r.Float64()*350 - 175
		qs = append(qs, bb(lat, lon, lat+r.Float64()*30, lon+r.Float64()*30))
	}
	for _, tl := range tiles[:20] {
		b := tl.BBox()
		qs = append(qs,
			b,
			bb(b.SW.Lat, b.SW.Lon, b.SW.Lat, b.SW.Lon),
			bb(b.Center().Lat, b.Center().Lon, b.Center().Lat, b.Center().Lon),
			bb(b.NE.Lat, b.SW.Lon, b.NE.Lat+1, b.NE.Lon),
			bb(b.NE.Lat, b.NE.Lon, b.NE.Lat+2, b.NE.Lon+2),
		)
	}
	return qs
}

func TestCodecEmpty(t *testing.T) {
	data, err := Encode(New(3))
	require.NoError(t, err)

	back, err := Decode(data, 9)
	require.NoError(t, err)
	assert.Equal(t, 0, back.Len())
	assert.Equal(t, 9, back.MaxEntries())

	back.Insert(tile.New(bb(0, 0, 1, 1)))
	assert.Len(t, back.Search(bb(0, 0, 1, 1)), 1)
}

func TestDecodeRejects(t *testing.T) {
	cases := map[string]string{
		"garbage":       `{"version":`,
		"version":       `{"version":2,"maxEntries":4,"root":{"type":"leaf"}}`,
		"no_root":       `{"version":1,"maxEntries":4}`,
		"loose_bbox":    `{"version":1,"maxEntries":4,"root":{"type":"leaf","bbox":[0,0,2,2],"tiles":[[0,0,1,1]]}}`,
		"inverted_tile": `{"version":1,"maxEntries":4,"root":{"type":"leaf","bbox":[1,1,0,0],"tiles":[[1,1,0,0]]}}`,
		"unknown_type":  `{"version":1,"maxEntries":4,"root":{"type":"twig","bbox":[0,0,1,1],"tiles":[[0,0,1,1]]}}`,
		"empty_branch":  `{"version":1,"maxEntries":4,"root":{"type":"internal","bbox":[0,0,1,1]}}`,
		"leaf_children": `{"version":1,"maxEntries":4,"root":{"type":"leaf","bbox":[0,0,1,1],"tiles":[[0,0,1,1]],"children":[{"type":"leaf"}]}}`,
		"size":          `{"version":1,"maxEntries":4,"size":3,"root":{"type":"leaf","bbox":[0,0,1,1],"tiles":[[0,0,1,1]]}}`,
		"child_bbox": `{"version":1,"maxEntries":4,"root":{"type":"internal","bbox":[0,0,3,3],"children":[
			{"type":"leaf","bbox":[0,0,1,1],"tiles":[[0,0,1,1]]}]}}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(doc), 0)
			assert.ErrorIs(t, err, ErrInvalidSnapshot)
		})
	}
}
