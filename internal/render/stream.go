package render

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mohammed-shakir/aoi-tiling/internal/core/observability"
	"github.com/mohammed-shakir/aoi-tiling/internal/logger"
	"github.com/mohammed-shakir/aoi-tiling/internal/tile"
)

// ChunkMessage is one pushed slice of a streamed tile list. Features is a
// JSON array of GeoJSON features.
type ChunkMessage struct {
	StreamID    string          `json:"streamId"`
	ChunkIndex  int             `json:"chunkIndex"`
	TotalChunks int             `json:"totalChunks"`
	Features    json.RawMessage `json:"features"`
	IsLast      bool            `json:"isLast"`
}

// Publisher delivers chunk messages to subscribers.
type Publisher interface {
	Publish(ctx context.Context, msg ChunkMessage) error
}

type PublisherFunc func(ctx context.Context, msg ChunkMessage) error

func (f PublisherFunc) Publish(ctx context.Context, msg ChunkMessage) error { return f(ctx, msg) }

// ChannelPublisher hands messages to an in-process channel.
type ChannelPublisher struct {
	C chan ChunkMessage
}

func NewChannelPublisher(buffer int) *ChannelPublisher {
	return &ChannelPublisher{C: make(chan ChunkMessage, buffer)}
}

func (p *ChannelPublisher) Publish(ctx context.Context, msg ChunkMessage) error {
	select {
	case p.C <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stream is a handle on a background StreamChunks run.
type Stream struct {
	ID          string
	TotalChunks int

	cancel context.CancelFunc
	done   chan struct{}
	sent   atomic.Int64
	err    error
}

// Cancel stops further pushes. Chunks already published stay published.
func (s *Stream) Cancel() { s.cancel() }

func (s *Stream) Done() <-chan struct{} { return s.done }

// Wait blocks until the stream ends and returns the publish or cancel error.
func (s *Stream) Wait() error {
	<-s.done
	return s.err
}

// Sent is the number of chunks published so far.
func (s *Stream) Sent() int { return int(s.sent.Load()) }

// StreamChunks publishes tiles in chunk order on a background goroutine and
// returns at once. ctx contributes values only; stop the stream with Cancel
// or by closing the renderer. An empty list yields one empty final message.
func (r *Renderer) StreamChunks(ctx context.Context, tiles []tile.Tile, pub Publisher) (*Stream, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	r.streams.Add(1)
	r.mu.Unlock()

	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(r.base, cancel)

	s := &Stream{
		ID:          logger.NewID(),
		TotalChunks: r.TotalChunks(len(tiles)),
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	sctx = logger.WithStreamID(sctx, s.ID)

	go func() {
		defer r.streams.Done()
		defer close(s.done)
		defer stop()
		defer cancel()
		s.err = r.stream(sctx, s, tiles, pub)
	}()
	return s, nil
}

func (r *Renderer) stream(ctx context.Context, s *Stream, tiles []tile.Tile, pub Publisher) error {
	start := time.Now()
	chunks := r.chunks(tiles)

	if len(chunks) == 0 {
		msg := ChunkMessage{StreamID: s.ID, Features: json.RawMessage("[]"), IsLast: true}
		if err := pub.Publish(ctx, msg); err != nil {
			r.log.WarnContext(ctx, "chunk publish failed", "chunk", 0, "err", err)
			return err
		}
		s.sent.Add(1)
		return nil
	}

	// each chunk gets its own slot so serialization can finish in any order
	ready := make([]chan chunkResult, len(chunks))
	for i := range ready {
		ready[i] = make(chan chunkResult, 1)
	}

	var submit sync.WaitGroup
	defer submit.Wait()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	submit.Add(1)
	go func() {
		defer submit.Done()
		for i, c := range chunks {
			err := r.pool.Submit(ctx, func(pctx context.Context) {
				body, err := renderChunk(ctx, pctx, c)
				ready[i] <- chunkResult{index: i, body: body, err: err}
			})
			if err != nil {
				ready[i] <- chunkResult{index: i, err: err}
				return
			}
		}
	}()

	for i := range chunks {
		var res chunkResult
		select {
		case res = <-ready[i]:
		case <-ctx.Done():
			return r.stopped(ctx, s)
		}
		if res.err != nil {
			if ctx.Err() != nil {
				return r.stopped(ctx, s)
			}
			r.log.ErrorContext(ctx, "chunk render failed", "chunk", i, "err", res.err)
			return res.err
		}
		if ctx.Err() != nil {
			return r.stopped(ctx, s)
		}

		payload := make([]byte, 0, len(res.body)+2)
		payload = append(payload, '[')
		payload = append(payload, res.body...)
		payload = append(payload, ']')
		msg := ChunkMessage{
			StreamID:    s.ID,
			ChunkIndex:  i,
			TotalChunks: len(chunks),
			Features:    payload,
			IsLast:      i == len(chunks)-1,
		}
		if err := pub.Publish(ctx, msg); err != nil {
			r.log.WarnContext(ctx, "chunk publish failed", "chunk", i, "err", err)
			return err
		}
		s.sent.Add(1)

		if !msg.IsLast && r.opts.StreamDelay > 0 {
			t := time.NewTimer(r.opts.StreamDelay)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return r.stopped(ctx, s)
			}
		}
	}

	observability.ObserveRender(modeStream, len(chunks), time.Since(start).Seconds())
	r.log.DebugContext(ctx, "stream complete", "chunks", len(chunks), "tiles", len(tiles))
	return nil
}

func (r *Renderer) stopped(ctx context.Context, s *Stream) error {
	r.log.InfoContext(ctx, "stream cancelled", "sent", s.Sent(), "total", s.TotalChunks)
	return context.Cause(ctx)
}
