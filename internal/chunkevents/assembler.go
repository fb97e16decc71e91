package chunkevents

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mohammed-shakir/aoi-tiling/internal/render"
)

var ErrBadChunk = errors.New("chunkevents: malformed chunk")

// DefaultOpenStreams bounds how many incomplete streams an Assembler tracks.
const DefaultOpenStreams = 256

// Assembler rebuilds whole FeatureCollections from chunk messages. Chunks may
// arrive in any order and more than once. When more than the configured number
// of streams are open, the least recently touched one is dropped.
type Assembler struct {
	mu   sync.Mutex
	open *lru.Cache[string, *partial]
	done *lru.Cache[string, struct{}]
}

type partial struct {
	total  int
	chunks map[int]json.RawMessage
}

func NewAssembler(openStreams int) *Assembler {
	if openStreams <= 0 {
		openStreams = DefaultOpenStreams
	}
	open, _ := lru.New[string, *partial](openStreams)
	done, _ := lru.New[string, struct{}](openStreams * 4)
	return &Assembler{open: open, done: done}
}

// Add records msg. It returns the assembled document once the last missing
// chunk of a stream arrives; redelivered chunks of a finished stream are
// ignored.
func (a *Assembler) Add(msg render.ChunkMessage) (doc []byte, complete bool, err error) {
	if msg.StreamID == "" {
		return nil, false, fmt.Errorf("%w: missing stream id", ErrBadChunk)
	}
	total := msg.TotalChunks
	if total == 0 && msg.ChunkIndex == 0 && msg.IsLast {
		// empty tile list
		total = 1
	}
	if msg.ChunkIndex < 0 || msg.ChunkIndex >= total {
		return nil, false, fmt.Errorf("%w: chunk %d of %d", ErrBadChunk, msg.ChunkIndex, msg.TotalChunks)
	}
	inner, err := arrayBody(msg.Features)
	if err != nil {
		return nil, false, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.done.Contains(msg.StreamID) {
		return nil, false, nil
	}
	p, ok := a.open.Get(msg.StreamID)
	if !ok {
		p = &partial{total: total, chunks: make(map[int]json.RawMessage, total)}
		a.open.Add(msg.StreamID, p)
	}
	if p.total != total {
		return nil, false, fmt.Errorf("%w: stream %s total changed from %d to %d", ErrBadChunk, msg.StreamID, p.total, total)
	}
	p.chunks[msg.ChunkIndex] = inner
	if len(p.chunks) < p.total {
		return nil, false, nil
	}

	a.open.Remove(msg.StreamID)
	a.done.Add(msg.StreamID, struct{}{})
	return p.collection(), true, nil
}

// Open is the number of streams still waiting for chunks.
func (a *Assembler) Open() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.open.Len()
}

func (p *partial) collection() []byte {
	var buf bytes.Buffer
	buf.WriteString(`{"type":"FeatureCollection","features":[`)
	first := true
	for i := 0; i < p.total; i++ {
		c := p.chunks[i]
		if len(c) == 0 {
			continue
		}
		if !first {
			buf.WriteByte(',')
		}
		buf.Write(c)
		first = false
	}
	buf.WriteString(`]}`)
	return buf.Bytes()
}

// arrayBody strips the brackets of a JSON array.
func arrayBody(raw json.RawMessage) (json.RawMessage, error) {
	b := bytes.TrimSpace(raw)
	if len(b) < 2 || b[0] != '[' || b[len(b)-1] != ']' || !json.Valid(b) {
		return nil, fmt.Errorf("%w: features is not a json array", ErrBadChunk)
	}
	return bytes.TrimSpace(b[1 : len(b)-1]), nil
}
