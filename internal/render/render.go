// Package render serializes tile lists into GeoJSON, either as one
// FeatureCollection or as an ordered stream of chunk messages.
//
// Chunks are serialized concurrently on a bounded pool and always reassembled
// by chunk index, never by completion order.
package render

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mohammed-shakir/aoi-tiling/internal/core/observability"
	"github.com/mohammed-shakir/aoi-tiling/internal/tile"
)

var (
	ErrTimeout = errors.New("render: timed out")
	ErrClosed  = errors.New("render: renderer closed")
)

const (
	modeAll    = "all"
	modeStream = "stream"
)

type Options struct {
	ChunkSize       int
	Workers         int
	Timeout         time.Duration
	StreamDelay     time.Duration
	CacheSize       int
	ShutdownTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		ChunkSize:       1000,
		Workers:         runtime.NumCPU(),
		Timeout:         30 * time.Second,
		StreamDelay:     100 * time.Millisecond,
		CacheSize:       128,
		ShutdownTimeout: 60 * time.Second,
	}
}

type Renderer struct {
	opts  Options
	pool  *Pool
	docs  *lru.Cache[uint64, []byte]
	log   *slog.Logger
	base  context.Context
	abort context.CancelFunc

	mu      sync.Mutex
	closed  bool
	streams sync.WaitGroup
}

// New returns a renderer. Zero option fields take DefaultOptions values, with
// two exceptions: a zero StreamDelay means no delay and a negative CacheSize
// disables the document cache.
func New(opts Options, log *slog.Logger) *Renderer {
	def := DefaultOptions()
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = def.ChunkSize
	}
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = def.ShutdownTimeout
	}
	if opts.CacheSize == 0 {
		opts.CacheSize = def.CacheSize
	}
	if log == nil {
		log = slog.Default()
	}

	r := &Renderer{
		opts: opts,
		pool: NewPool(opts.Workers),
		log:  log.With("component", "render"),
	}
	if opts.CacheSize > 0 {
		r.docs, _ = lru.New[uint64, []byte](opts.CacheSize)
	}
	r.base, r.abort = context.WithCancel(context.Background())
	return r
}

func (r *Renderer) Options() Options { return r.opts }

// TotalChunks is how many chunks a list of n tiles splits into.
func (r *Renderer) TotalChunks(n int) int {
	return (n + r.opts.ChunkSize - 1) / r.opts.ChunkSize
}

func (r *Renderer) chunks(tiles []tile.Tile) [][]tile.Tile {
	out := make([][]tile.Tile, 0, r.TotalChunks(len(tiles)))
	for i := 0; i < len(tiles); i += r.opts.ChunkSize {
		out = append(out, tiles[i:min(i+r.opts.ChunkSize, len(tiles))])
	}
	return out
}

func (r *Renderer) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

type chunkResult struct {
	index int
	body  []byte
	err   error
}

// RenderAll returns one FeatureCollection for tiles. It fails as a whole with
// ErrTimeout when chunks are not all serialized within the configured timeout.
// The returned slice may be shared with the cache and must not be modified.
func (r *Renderer) RenderAll(ctx context.Context, tiles []tile.Tile) ([]byte, error) {
	if r.isClosed() {
		return nil, ErrClosed
	}
	start := time.Now()

	key := fingerprint(tiles)
	if r.docs != nil {
		if doc, ok := r.docs.Get(key); ok {
			observability.IncRenderCache(true)
			return doc, nil
		}
		observability.IncRenderCache(false)
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	chunks := r.chunks(tiles)
	results := make(chan chunkResult, len(chunks))
	for i, c := range chunks {
		err := r.pool.Submit(ctx, func(pctx context.Context) {
			body, err := renderChunk(ctx, pctx, c)
			results <- chunkResult{index: i, body: body, err: err}
		})
		if err != nil {
			return nil, r.failure(ctx, err)
		}
	}

	parts := make([][]byte, len(chunks))
	for range chunks {
		select {
		case res := <-results:
			if res.err != nil {
				return nil, r.failure(ctx, res.err)
			}
			parts[res.index] = res.body
		case <-ctx.Done():
			return nil, r.failure(ctx, ctx.Err())
		}
	}

	var buf bytes.Buffer
	buf.WriteString(`{"type":"FeatureCollection","features":[`)
	for i, p := range parts {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(p)
	}
	buf.WriteString(`]}`)
	doc := buf.Bytes()

	if r.docs != nil {
		r.docs.Add(key, doc)
	}
	observability.ObserveRender(modeAll, len(chunks), time.Since(start).Seconds())
	return doc, nil
}

func (r *Renderer) failure(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		r.log.ErrorContext(ctx, "render timed out", "timeout", r.opts.Timeout)
		return fmt.Errorf("%w after %s", ErrTimeout, r.opts.Timeout)
	}
	return err
}

// renderChunk writes the comma separated features of one chunk. Cancellation
// is checked before the chunk starts, not inside it.
func renderChunk(ctx, poolCtx context.Context, tiles []tile.Tile) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if poolCtx.Err() != nil {
		return nil, ErrClosed
	}
	var buf bytes.Buffer
	for i, t := range tiles {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := json.Marshal(t.Feature())
		if err != nil {
			return nil, fmt.Errorf("marshal tile %s: %w", t.ID(), err)
		}
		buf.Write(b)
	}
	return buf.Bytes(), nil
}

// fingerprint hashes the ordered tile boxes; it keys the document cache.
func fingerprint(tiles []tile.Tile) uint64 {
	d := xxhash.New()
	var buf [32]byte
	for _, t := range tiles {
		b := t.BBox()
		binary.LittleEndian.PutUint64(buf[0:], math.Float64bits(b.SW.Lat))
		binary.LittleEndian.PutUint64(buf[8:], math.Float64bits(b.SW.Lon))
		binary.LittleEndian.PutUint64(buf[16:], math.Float64bits(b.NE.Lat))
		binary.LittleEndian.PutUint64(buf[24:], math.Float64bits(b.NE.Lon))
		_, _ = d.Write(buf[:])
	}
	return d.Sum64()
}

// Close waits up to ShutdownTimeout for streams and queued chunks, then
// cancels whatever is left.
func (r *Renderer) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	deadline := time.Now().Add(r.opts.ShutdownTimeout)
	done := make(chan struct{})
	go func() {
		r.streams.Wait()
		close(done)
	}()

	forced := false
	select {
	case <-done:
	case <-time.After(time.Until(deadline)):
		forced = true
		r.abort()
		<-done
	}
	if r.pool.Shutdown(max(time.Until(deadline), 0)) {
		forced = true
	}
	r.abort()

	if forced {
		r.log.Warn("render shutdown forced", "timeout", r.opts.ShutdownTimeout)
		return fmt.Errorf("render: forced shutdown after %s", r.opts.ShutdownTimeout)
	}
	return nil
}
