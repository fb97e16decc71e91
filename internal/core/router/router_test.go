package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/mohammed-shakir/aoi-tiling/internal/cache/tileindex"
	"github.com/mohammed-shakir/aoi-tiling/internal/geo"
	"github.com/mohammed-shakir/aoi-tiling/internal/logger"
	"github.com/mohammed-shakir/aoi-tiling/internal/render"
	"github.com/mohammed-shakir/aoi-tiling/internal/rtree"
	"github.com/mohammed-shakir/aoi-tiling/internal/tile"
	"github.com/mohammed-shakir/aoi-tiling/internal/tiling"
)

// one degree square; 16 tiles at maxTileArea=1e9
const squareReq = `{"geoJson":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]},
	"maxTileArea":1e9,"minTileArea":0,"coverageThreshold":0,"includeBoundingBox":false}`

func newHandlers(t *testing.T, sink render.Publisher) *Handlers {
	t.Helper()
	store := tileindex.New(rtree.New(0), nil, logger.Discard())
	eng := tiling.New(nil, store, logger.Discard())
	r := render.New(render.Options{ChunkSize: 5, Workers: 2}, logger.Discard())
	t.Cleanup(func() { _ = r.Close() })
	return New(eng, r, tiling.DefaultPolicy(), sink, logger.Discard())
}

func post(t *testing.T, h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tiles", strings.NewReader(body))
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

type collection struct {
	Type     string            `json:"type"`
	Features []json.RawMessage `json:"features"`
}

func TestTiles_MissThenHit(t *testing.T) {
	h := newHandlers(t, nil).Tiles()

	rr := post(t, h, squareReq)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("X-Cache"); got != "miss" {
		t.Fatalf("X-Cache=%q want miss", got)
	}
	var fc collection
	if err := json.Unmarshal(rr.Body.Bytes(), &fc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if fc.Type != "FeatureCollection" || len(fc.Features) != 16 {
		t.Fatalf("type=%q features=%d want 16", fc.Type, len(fc.Features))
	}
	if got := rr.Header().Get("X-Tile-Count"); got != "16" {
		t.Fatalf("X-Tile-Count=%q", got)
	}

	rr = post(t, h, squareReq)
	if rr.Code != http.StatusOK || rr.Header().Get("X-Cache") != "hit" {
		t.Fatalf("second call status=%d X-Cache=%q", rr.Code, rr.Header().Get("X-Cache"))
	}
	if got := rr.Header().Get("X-Tile-Count"); got != "16" {
		t.Fatalf("cached X-Tile-Count=%q", got)
	}
}

func TestTiles_DefaultsIncludeBoundingBox(t *testing.T) {
	h := newHandlers(t, nil).Tiles()
	rr := post(t, h, `{"geoJson":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]},"maxTileArea":1e9,"minTileArea":0,"coverageThreshold":0}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	n, _ := strconv.Atoi(rr.Header().Get("X-Tile-Count"))
	if n != 17 {
		t.Fatalf("tiles=%d want 16 + bounding box", n)
	}
}

func TestTiles_GeoJSONAsString(t *testing.T) {
	h := newHandlers(t, nil).Tiles()
	body := `{"geoJson":"{\"type\":\"Polygon\",\"coordinates\":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}","maxTileArea":1e11}`
	rr := post(t, h, body)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestTiles_BadRequests(t *testing.T) {
	h := newHandlers(t, nil).Tiles()
	cases := map[string]string{
		"not json":        `{`,
		"no geojson":      `{"maxTileArea":10}`,
		"bad geometry":    `{"geoJson":{"type":"Point","coordinates":[0,0]}}`,
		"self intersects": `{"geoJson":{"type":"Polygon","coordinates":[[[0,0],[1,1],[1,0],[0,1],[0,0]]]}}`,
		"bad policy":      `{"geoJson":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]},"maxTileArea":0}`,
		"bad coverage":    `{"geoJson":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]},"coverageThreshold":2}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rr := post(t, h, body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status=%d want 400 body=%s", rr.Code, rr.Body.String())
			}
			var e map[string]string
			if err := json.Unmarshal(rr.Body.Bytes(), &e); err != nil || e["error"] == "" {
				t.Fatalf("error body=%s", rr.Body.String())
			}
		})
	}
}

type stubTiler struct{ tiles []tile.Tile }

func (s stubTiler) Generate(context.Context, geo.Shape, tiling.Policy) (tiling.Result, error) {
	return tiling.Result{Tiles: s.tiles}, nil
}

type failingRenderer struct{ err error }

func (f failingRenderer) RenderAll(context.Context, []tile.Tile) ([]byte, error) { return nil, f.err }

func (f failingRenderer) StreamChunks(context.Context, []tile.Tile, render.Publisher) (*render.Stream, error) {
	return nil, f.err
}

func TestTiles_ErrorStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{render.ErrTimeout, http.StatusGatewayTimeout},
		{render.ErrClosed, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		h := New(stubTiler{}, failingRenderer{err: c.err}, tiling.DefaultPolicy(), nil, logger.Discard())
		rr := post(t, h.Tiles(), squareReq)
		if rr.Code != c.want {
			t.Fatalf("err=%v status=%d want %d", c.err, rr.Code, c.want)
		}
	}
}

func TestStream_NoSink(t *testing.T) {
	h := newHandlers(t, nil).Stream()
	rr := post(t, h, squareReq)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d want 503", rr.Code)
	}
}

func TestStream_PublishesToSink(t *testing.T) {
	sink := render.NewChannelPublisher(16)
	h := newHandlers(t, sink).Stream()

	rr := post(t, h, squareReq)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var acc streamAccepted
	if err := json.Unmarshal(rr.Body.Bytes(), &acc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if acc.StreamID == "" || acc.TileCount != 16 || acc.TotalChunks != 4 {
		t.Fatalf("accepted=%+v", acc)
	}

	timeout := time.After(5 * time.Second)
	for i := 0; i < acc.TotalChunks; i++ {
		select {
		case msg := <-sink.C:
			if msg.StreamID != acc.StreamID || msg.ChunkIndex != i {
				t.Fatalf("msg %d: %+v", i, msg)
			}
			if msg.IsLast != (i == acc.TotalChunks-1) {
				t.Fatalf("msg %d isLast=%v", i, msg.IsLast)
			}
		case <-timeout:
			t.Fatalf("timed out after %d chunks", i)
		}
	}
}

func TestStatusFor_Canceled(t *testing.T) {
	if got := StatusFor(context.Canceled); got != 499 {
		t.Fatalf("status=%d want 499", got)
	}
}
