// Package tileindex owns the process-wide tile index: reads share an RWMutex,
// writes are serialized, and snapshots are written off the request path.
package tileindex

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mohammed-shakir/aoi-tiling/internal/cache"
	"github.com/mohammed-shakir/aoi-tiling/internal/core/observability"
	"github.com/mohammed-shakir/aoi-tiling/internal/geo"
	"github.com/mohammed-shakir/aoi-tiling/internal/rtree"
	"github.com/mohammed-shakir/aoi-tiling/internal/tile"
)

// Saver writes an encoded snapshot; persist.Gateway implements it.
type Saver interface {
	SaveSnapshot(ctx context.Context, data []byte) error
}

type Store struct {
	mu sync.RWMutex
	ix *rtree.Index

	saver  Saver
	log    *slog.Logger
	dirty  chan struct{} // cap 1; a pending value means unsaved inserts
	done   chan struct{}
	wg     sync.WaitGroup
	closed sync.Once
}

var _ cache.Index = (*Store)(nil)

// New wraps ix. A nil saver disables persistence.
func New(ix *rtree.Index, saver Saver, log *slog.Logger) *Store {
	if ix == nil {
		ix = rtree.New(rtree.DefaultMaxEntries)
	}
	if log == nil {
		log = slog.Default()
	}
	s := &Store{
		ix:    ix,
		saver: saver,
		log:   log.With("component", "tileindex"),
		dirty: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	observability.SetIndexTiles(ix.Len())
	if saver != nil {
		s.wg.Add(1)
		go s.saveLoop()
	}
	return s
}

func (s *Store) Lookup(q geo.BBox) []tile.Tile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ix.Search(q)
}

func (s *Store) InsertBatch(q geo.BBox, tiles []tile.Tile) ([]tile.Tile, bool) {
	if len(tiles) == 0 {
		return nil, false
	}

	s.mu.Lock()
	if existing := s.ix.Search(q); len(existing) > 0 {
		s.mu.Unlock()
		return existing, false
	}
	for _, t := range tiles {
		s.ix.Insert(t)
	}
	n := s.ix.Len()
	s.mu.Unlock()

	observability.SetIndexTiles(n)
	s.markDirty()
	return tiles, true
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ix.Len()
}

func (s *Store) Depth() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ix.Depth()
}

// Snapshot encodes the index under the read lock.
func (s *Store) Snapshot() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return rtree.Encode(s.ix)
}

func (s *Store) markDirty() {
	if s.saver == nil {
		return
	}
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

func (s *Store) saveLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.dirty:
			_ = s.Save(context.Background())
		case <-s.done:
			return
		}
	}
}

// Save writes a snapshot now. Failures are logged by the saver and returned.
func (s *Store) Save(ctx context.Context) error {
	if s.saver == nil {
		return nil
	}
	data, err := s.Snapshot()
	if err != nil {
		s.log.ErrorContext(ctx, "snapshot encode failed", "err", err)
		return err
	}
	return s.saver.SaveSnapshot(ctx, data)
}

// Close stops the background saver and flushes pending inserts once.
func (s *Store) Close(ctx context.Context) error {
	var err error
	s.closed.Do(func() {
		close(s.done)
		s.wg.Wait()
		select {
		case <-s.dirty:
			err = s.Save(ctx)
		default:
		}
	})
	return err
}
