package render

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestPool_ShutdownDrainsQueuedTasks(t *testing.T) {
	p := NewPool(2)
	var ran atomic.Int32
	for range 10 {
		if err := p.Submit(context.Background(), func(context.Context) {
			time.Sleep(time.Millisecond)
			ran.Add(1)
		}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	if forced := p.Shutdown(5 * time.Second); forced {
		t.Fatalf("graceful shutdown reported forced")
	}
	if ran.Load() != 10 {
		t.Fatalf("ran=%d want 10", ran.Load())
	}
	if err := p.Submit(context.Background(), func(context.Context) {}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Submit after Shutdown err=%v", err)
	}
}

func TestPool_ShutdownCancelsStuckTasks(t *testing.T) {
	p := NewPool(1)
	cancelled := make(chan struct{})
	_ = p.Submit(context.Background(), func(ctx context.Context) {
		<-ctx.Done()
		close(cancelled)
	})

	if forced := p.Shutdown(20 * time.Millisecond); !forced {
		t.Fatalf("expected forced shutdown")
	}
	select {
	case <-cancelled:
	default:
		t.Fatalf("task context was not cancelled")
	}
}

func TestPool_SubmitRespectsCallerContext(t *testing.T) {
	p := NewPool(1)
	defer p.Shutdown(time.Second)

	release := make(chan struct{})
	_ = p.Submit(context.Background(), func(context.Context) { <-release })
	// one running, one queued; the next submit has to wait
	_ = p.Submit(context.Background(), func(context.Context) {})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Submit(ctx, func(context.Context) {})
	close(release)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v want deadline", err)
	}
}
