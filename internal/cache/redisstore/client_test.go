package redisstore

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/mohammed-shakir/aoi-tiling/internal/core/observability"
	"github.com/mohammed-shakir/aoi-tiling/internal/metrics"
)

// creates new client connected to miniredis for testing
func newMini(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	rc, err := New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

func TestSetGetDel_HappyPath(t *testing.T) {
	rc, _ := newMini(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := rc.Set(ctx, "idx", []byte(`{"version":1}`), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := rc.Get(ctx, "idx")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != `{"version":1}` {
		t.Fatalf("Get=%q", got)
	}
	if err := rc.Del(ctx, "idx"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if _, err := rc.Get(ctx, "idx"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after Del err=%v want ErrNotFound", err)
	}
}

func TestTTLExpiry(t *testing.T) {
	rc, mr := newMini(t)
	ctx := context.Background()

	if err := rc.Set(ctx, "ttl-key", []byte("v"), 2*time.Second); err != nil {
		t.Fatalf("Set: %v", err)
	}
	mr.FastForward(3 * time.Second)

	if _, err := rc.Get(ctx, "ttl-key"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after expiry, got %v", err)
	}
}

func TestContextCanceled_IsRespected(t *testing.T) {
	rc, _ := newMini(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := rc.Set(ctx, "k", []byte("v"), time.Second); err == nil {
		t.Fatalf("expected error on Set with canceled context")
	}
	if _, err := rc.Get(ctx, "k"); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected transport error on Get with canceled context, got %v", err)
	}
}

func TestNew_RejectsEmptyAddrAndDeadServer(t *testing.T) {
	if _, err := New(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty addr")
	}

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := New(ctx, addr, WithDialTimeout(100*time.Millisecond)); err == nil {
		t.Fatalf("expected ping error against closed server")
	}
}

func TestMetrics_Incremented(t *testing.T) {
	p := metrics.Init(metrics.Config{Enabled: true, PersistBackend: "redis"})
	t.Cleanup(func() { observability.Init(nil, false) })

	rc, _ := newMini(t)
	ctx := context.Background()

	_ = rc.Set(ctx, "m1", []byte("x"), time.Minute)
	_, _ = rc.Get(ctx, "m1")
	_, _ = rc.Get(ctx, "missing")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, req)
	body := rr.Body.String()
	for _, want := range []string{
		`persist_ops_total{backend="redis",op="set",outcome="ok"} 1`,
		`persist_ops_total{backend="redis",op="get",outcome="ok"} 2`,
		`persist_op_duration_seconds_bucket{backend="redis",op="ping"`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q; got:\n%s", want, body)
		}
	}
}
