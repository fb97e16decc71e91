// Package router holds the tiling HTTP and websocket handlers.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/mohammed-shakir/aoi-tiling/internal/core/middleware"
	"github.com/mohammed-shakir/aoi-tiling/internal/geo"
	"github.com/mohammed-shakir/aoi-tiling/internal/logger"
	"github.com/mohammed-shakir/aoi-tiling/internal/render"
	"github.com/mohammed-shakir/aoi-tiling/internal/tile"
	"github.com/mohammed-shakir/aoi-tiling/internal/tiling"
)

// request bodies above this are rejected
const maxBodyBytes = 8 << 20

// Tiler produces tiles for a shape.
type Tiler interface {
	Generate(ctx context.Context, s geo.Shape, p tiling.Policy) (tiling.Result, error)
}

// Renderer serializes tiles.
type Renderer interface {
	RenderAll(ctx context.Context, tiles []tile.Tile) ([]byte, error)
	StreamChunks(ctx context.Context, tiles []tile.Tile, pub render.Publisher) (*render.Stream, error)
}

type Handlers struct {
	tiler    Tiler
	renderer Renderer
	defaults tiling.Policy
	sink     render.Publisher
	log      *slog.Logger
}

// New wires the handlers. sink may be nil, which disables the async stream
// endpoint.
func New(t Tiler, r Renderer, defaults tiling.Policy, sink render.Publisher, log *slog.Logger) *Handlers {
	if log == nil {
		log = slog.Default()
	}
	return &Handlers{tiler: t, renderer: r, defaults: defaults, sink: sink, log: log}
}

func (h *Handlers) generate(ctx context.Context, body []byte) (tiling.Result, error) {
	shape, policy, err := ParseTileRequest(body, h.defaults)
	if err != nil {
		return tiling.Result{}, err
	}
	return h.tiler.Generate(ctx, shape, policy)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, badRequest("read body: %v", err)
	}
	return body, nil
}

// Tiles serves POST /api/v1/tiles with one FeatureCollection.
func (h *Handlers) Tiles() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		body, err := readBody(w, r)
		if err != nil {
			h.fail(ctx, w, err)
			return
		}
		res, err := h.generate(ctx, body)
		if err != nil {
			h.fail(ctx, w, err)
			return
		}
		doc, err := h.renderer.RenderAll(ctx, res.Tiles)
		if err != nil {
			h.fail(ctx, w, err)
			return
		}

		w.Header().Set("Content-Type", "application/geo+json")
		w.Header().Set("X-Tile-Count", strconv.Itoa(len(res.Tiles)))
		w.Header().Set("X-Cache", cacheOutcome(res.Cached))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(doc)
	}
}

type streamAccepted struct {
	StreamID    string `json:"streamId"`
	TotalChunks int    `json:"totalChunks"`
	TileCount   int    `json:"tileCount"`
}

// Stream serves POST /api/v1/tiles/stream: tiles are generated inline and
// pushed to the configured sink in the background.
func (h *Handlers) Stream() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if h.sink == nil {
			middleware.WriteError(w, http.StatusServiceUnavailable, "no stream sink configured")
			return
		}
		body, err := readBody(w, r)
		if err != nil {
			h.fail(ctx, w, err)
			return
		}
		res, err := h.generate(ctx, body)
		if err != nil {
			h.fail(ctx, w, err)
			return
		}
		s, err := h.renderer.StreamChunks(ctx, res.Tiles, h.sink)
		if err != nil {
			h.fail(ctx, w, err)
			return
		}
		h.log.InfoContext(logger.WithStreamID(ctx, s.ID), "stream started",
			"tiles", len(res.Tiles), "chunks", s.TotalChunks, "cached", res.Cached)

		w.Header().Set("X-Cache", cacheOutcome(res.Cached))
		writeJSON(w, http.StatusAccepted, streamAccepted{
			StreamID:    s.ID,
			TotalChunks: s.TotalChunks,
			TileCount:   len(res.Tiles),
		})
	}
}

func cacheOutcome(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}

// fail maps err to a status: request problems 400, render timeout 504,
// shutdown 503, anything else 500.
func (h *Handlers) fail(ctx context.Context, w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.ErrorContext(ctx, "tiling request failed", "status", status, "err", err)
	} else {
		h.log.DebugContext(ctx, "tiling request rejected", "status", status, "err", err)
	}
	middleware.WriteError(w, status, err.Error())
}

func StatusFor(err error) int {
	switch {
	case isClientError(err):
		return http.StatusBadRequest
	case errors.Is(err, render.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, render.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled):
		// client went away
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
