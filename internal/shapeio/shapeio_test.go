package shapeio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-shakir/aoi-tiling/internal/geo"
)

const square = `{"type":"Polygon","coordinates":[[[0,0],[10,0],[10,10],[0,10],[0,0]]]}`

func TestDecode_Polygon(t *testing.T) {
	s, err := Decode([]byte(square))
	require.NoError(t, err)
	require.Equal(t, geo.KindPolygon, s.Kind())

	b := s.Bounds()
	assert.Equal(t, geo.NewPoint(0, 0), b.SW)
	assert.Equal(t, geo.NewPoint(10, 10), b.NE)
}

func TestDecode_SwapsLonLat(t *testing.T) {
	s, err := Decode([]byte(`{"type":"Polygon","coordinates":[[[20,1],[21,1],[21,2],[20,2],[20,1]]]}`))
	require.NoError(t, err)
	b := s.Bounds()
	assert.Equal(t, 1.0, b.SW.Lat)
	assert.Equal(t, 20.0, b.SW.Lon)
	assert.Equal(t, 2.0, b.NE.Lat)
	assert.Equal(t, 21.0, b.NE.Lon)
}

func TestDecode_PolygonWithHole(t *testing.T) {
	s, err := Decode([]byte(`{"type":"Polygon","coordinates":[
		[[0,0],[10,0],[10,10],[0,10],[0,0]],
		[[4,4],[6,4],[6,6],[4,6],[4,4]]]}`))
	require.NoError(t, err)
	p, ok := s.(geo.Polygon)
	require.True(t, ok)
	assert.Len(t, p.Holes(), 1)
	assert.False(t, p.Contains(geo.NewPoint(5, 5)))
	assert.True(t, p.Contains(geo.NewPoint(2, 2)))
}

func TestDecode_MultiPolygon(t *testing.T) {
	s, err := Decode([]byte(`{"type":"MultiPolygon","coordinates":[
		[[[0,0],[1,0],[1,1],[0,1],[0,0]]],
		[[[5,5],[6,5],[6,6],[5,6],[5,5]]]]}`))
	require.NoError(t, err)
	m, ok := s.(geo.MultiPolygon)
	require.True(t, ok)
	assert.Len(t, m.Polygons(), 2)
	assert.Equal(t, geo.NewPoint(6, 6), m.Bounds().NE)
}

func TestDecode_Feature(t *testing.T) {
	s, err := Decode([]byte(`{"type":"Feature","properties":{"name":"aoi"},"geometry":` + square + `}`))
	require.NoError(t, err)
	assert.Equal(t, geo.KindPolygon, s.Kind())
}

func TestDecode_Rejects(t *testing.T) {
	cases := map[string]string{
		"empty":           ``,
		"not json":        `{"type":`,
		"no type":         `{"coordinates":[]}`,
		"point":           `{"type":"Point","coordinates":[1,2]}`,
		"feature no geom": `{"type":"Feature","geometry":null,"properties":{}}`,
		"feature point":   `{"type":"Feature","geometry":{"type":"Point","coordinates":[1,2]},"properties":{}}`,
		"unclosed":        `{"type":"Polygon","coordinates":[[[0,0],[10,0],[10,10],[0,10]]]}`,
		"too short":       `{"type":"Polygon","coordinates":[[[0,0],[0,0]]]}`,
		"bow tie":         `{"type":"Polygon","coordinates":[[[0,0],[10,10],[10,0],[0,10],[0,0]]]}`,
		"no rings":        `{"type":"Polygon","coordinates":[]}`,
		"bad multi ring":  `{"type":"MultiPolygon","coordinates":[[[[0,0],[1,0],[1,1],[0,1],[0,0]]],[[[0,0],[1,1],[1,0],[0,1],[0,0]]]]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(body))
			require.Error(t, err)
			assert.True(t, IsValidation(err), "want ValidationError, got %T: %v", err, err)
		})
	}
}

func TestDecode_RingErrorIsReachable(t *testing.T) {
	_, err := Decode([]byte(`{"type":"Polygon","coordinates":[[[0,0],[10,10],[10,0],[0,10],[0,0]]]}`))
	var re *geo.RingError
	require.True(t, errors.As(err, &re), "err=%v", err)
	assert.Contains(t, re.Reason, "intersect")
}
