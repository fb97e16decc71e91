// Package observability holds the service's Prometheus instruments.
//
// Instruments live in a set that Init swaps atomically, so tests can bind a
// private registry per run. Before Init the set is unregistered: observations
// are accepted and never exported.
package observability

import (
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type instruments struct {
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	indexLookups    *prometheus.CounterVec
	indexTiles      prometheus.Gauge
	tilesGenerated  prometheus.Counter
	tilingDuration  prometheus.Histogram
	relateFallbacks prometheus.Counter
	renderDuration  *prometheus.HistogramVec
	renderChunks    *prometheus.CounterVec
	renderCache     *prometheus.CounterVec
	persistOps      *prometheus.CounterVec
	persistDuration *prometheus.HistogramVec
}

var current atomic.Pointer[instruments]

func init() {
	current.Store(newInstruments(nil))
}

// Init binds a fresh instrument set to reg. When disabled (or reg is nil) the
// set stays unregistered.
func Init(reg prometheus.Registerer, enabled bool) {
	if !enabled {
		reg = nil
	}
	current.Store(newInstruments(reg))
}

func newInstruments(reg prometheus.Registerer) *instruments {
	f := promauto.With(reg)
	return &instruments{
		httpRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds.",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
			},
			[]string{"method", "route", "status"},
		),
		indexLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tile_index_lookups_total",
				Help: "Tile index lookups by outcome.",
			},
			[]string{"outcome"},
		),
		indexTiles: f.NewGauge(prometheus.GaugeOpts{
			Name: "tile_index_tiles",
			Help: "Tiles currently stored in the index.",
		}),
		tilesGenerated: f.NewCounter(prometheus.CounterOpts{
			Name: "tiles_generated_total",
			Help: "Tiles produced by the tiling engine, excluding cache hits.",
		}),
		tilingDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "tiling_duration_seconds",
			Help:    "Time spent subdividing a shape on a cache miss.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
		}),
		relateFallbacks: f.NewCounter(prometheus.CounterOpts{
			Name: "tiling_relate_fallbacks_total",
			Help: "Tiles decided by the area-only fallback after a relate failure.",
		}),
		renderDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "render_duration_seconds",
				Help:    "Duration of render operations.",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
			},
			[]string{"mode"},
		),
		renderChunks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "render_chunks_total",
				Help: "Chunks serialized by the renderer.",
			},
			[]string{"mode"},
		),
		renderCache: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "render_cache_results_total",
				Help: "Rendered document cache results by outcome.",
			},
			[]string{"outcome"},
		),
		persistOps: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "persist_ops_total",
				Help: "Index persistence operations by backend, op and outcome.",
			},
			[]string{"backend", "op", "outcome"},
		),
		persistDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "persist_op_duration_seconds",
				Help:    "Duration of index persistence operations.",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
			[]string{"backend", "op"},
		),
	}
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	m := current.Load()
	st := strconv.Itoa(status)
	m.httpRequests.WithLabelValues(method, route, st).Inc()
	m.httpDuration.WithLabelValues(method, route, st).Observe(durationSeconds)
}

// ObserveIndexLookup records a cache lookup; hit means cached tiles were served.
func ObserveIndexLookup(hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	current.Load().indexLookups.WithLabelValues(outcome).Inc()
}

func SetIndexTiles(n int) {
	current.Load().indexTiles.Set(float64(n))
}

func ObserveTiling(tiles int, durationSeconds float64) {
	m := current.Load()
	m.tilesGenerated.Add(float64(tiles))
	m.tilingDuration.Observe(durationSeconds)
}

func AddRelateFallbacks(n int) {
	if n <= 0 {
		return
	}
	current.Load().relateFallbacks.Add(float64(n))
}

func ObserveRender(mode string, chunks int, durationSeconds float64) {
	m := current.Load()
	m.renderChunks.WithLabelValues(mode).Add(float64(chunks))
	m.renderDuration.WithLabelValues(mode).Observe(durationSeconds)
}

func IncRenderCache(hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	current.Load().renderCache.WithLabelValues(outcome).Inc()
}

func ObservePersistOp(backend, op string, err error, durationSeconds float64) {
	m := current.Load()
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.persistOps.WithLabelValues(backend, op, outcome).Inc()
	m.persistDuration.WithLabelValues(backend, op).Observe(durationSeconds)
}
