package observability

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func scrape(t *testing.T, reg *prometheus.Registry) string {
	t.Helper()
	srv := httptest.NewServer(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("metrics scrape: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	return string(b)
}

func TestInit_BindsInstrumentsToRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	Init(reg, true)
	t.Cleanup(func() { Init(nil, false) })

	ObserveHTTP("POST", "/api/v1/tiles", 200, 0.01)
	ObserveIndexLookup(true)
	ObserveIndexLookup(false)
	ObserveIndexLookup(false)
	SetIndexTiles(42)
	ObserveTiling(7, 0.002)
	AddRelateFallbacks(3)
	ObserveRender("all", 2, 0.004)
	IncRenderCache(true)
	ObservePersistOp("file", "save", nil, 0.001)
	ObservePersistOp("file", "load", errors.New("boom"), 0.001)

	out := scrape(t, reg)
	for _, want := range []string{
		`http_requests_total{method="POST",route="/api/v1/tiles",status="200"} 1`,
		`tile_index_lookups_total{outcome="hit"} 1`,
		`tile_index_lookups_total{outcome="miss"} 2`,
		`tile_index_tiles 42`,
		`tiles_generated_total 7`,
		`tiling_relate_fallbacks_total 3`,
		`render_chunks_total{mode="all"} 2`,
		`render_cache_results_total{outcome="hit"} 1`,
		`persist_ops_total{backend="file",op="save",outcome="ok"} 1`,
		`persist_ops_total{backend="file",op="load",outcome="error"} 1`,
		`persist_op_duration_seconds_bucket`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in metrics; got:\n%s", want, out)
		}
	}
}

func TestInit_DisabledExportsNothing(t *testing.T) {
	reg := prometheus.NewRegistry()
	Init(reg, false)

	ObserveIndexLookup(true)

	if out := scrape(t, reg); strings.Contains(out, "tile_index_lookups_total") {
		t.Fatalf("disabled metrics leaked into registry:\n%s", out)
	}
}
