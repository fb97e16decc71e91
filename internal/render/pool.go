package render

import (
	"context"
	"sync"
	"time"
)

type task func(ctx context.Context)

// Pool runs tasks on a fixed set of workers fed by one queue.
type Pool struct {
	jobs   chan task
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		jobs:   make(chan task, workers),
		ctx:    ctx,
		cancel: cancel,
	}
	p.wg.Add(workers)
	for range workers {
		go p.work()
	}
	return p
}

func (p *Pool) work() {
	defer p.wg.Done()
	for t := range p.jobs {
		t(p.ctx)
	}
}

// Submit queues fn, blocking while the queue is full. Tasks receive the
// pool's context, which is cancelled only by a forced shutdown.
func (p *Pool) Submit(ctx context.Context, fn func(ctx context.Context)) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.jobs <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrClosed
	}
}

// Shutdown stops accepting work and waits up to timeout for queued and
// running tasks. After that the pool context is cancelled and forced reports
// true.
func (p *Pool) Shutdown(timeout time.Duration) (forced bool) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.wg.Wait()
		return false
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return false
	default:
	}

	timer := time.NewTimer(max(timeout, 0))
	defer timer.Stop()
	select {
	case <-done:
		p.cancel()
		return false
	case <-timer.C:
	}
	select {
	case <-done:
		p.cancel()
		return false
	default:
	}
	p.cancel()
	<-done
	return true
}
