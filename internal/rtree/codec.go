package rtree

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mohammed-shakir/aoi-tiling/internal/geo"
	"github.com/mohammed-shakir/aoi-tiling/internal/tile"
)

const SnapshotVersion = 1

var ErrInvalidSnapshot = errors.New("rtree: invalid snapshot")

const (
	nodeLeaf     = "leaf"
	nodeInternal = "internal"
)

// box is [swLat, swLon, neLat, neLon].
type box [4]float64

func boxOf(b geo.BBox) box {
	return box{b.SW.Lat, b.SW.Lon, b.NE.Lat, b.NE.Lon}
}

func (b box) bbox() geo.BBox {
	return geo.BBox{SW: geo.Point{Lat: b[0], Lon: b[1]}, NE: geo.Point{Lat: b[2], Lon: b[3]}}
}

type snapshot struct {
	Version    int       `json:"version"`
	MaxEntries int       `json:"maxEntries"`
	Size       int       `json:"size"`
	Root       *nodeJSON `json:"root"`
}

type nodeJSON struct {
	Type     string      `json:"type"`
	BBox     *box        `json:"bbox,omitempty"`
	Tiles    []box       `json:"tiles,omitempty"`
	Children []*nodeJSON `json:"children,omitempty"`
}

// Encode serializes the full tree structure so Decode rebuilds the same shape.
func Encode(ix *Index) ([]byte, error) {
	s := snapshot{
		Version:    SnapshotVersion,
		MaxEntries: ix.maxEntries,
		Size:       ix.size,
		Root:       encodeNode(ix.root),
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("rtree encode: %w", err)
	}
	return b, nil
}

func encodeNode(n node) *nodeJSON {
	switch n := n.(type) {
	case *leaf:
		out := &nodeJSON{Type: nodeLeaf}
		if len(n.tiles) > 0 {
			bb := boxOf(n.box)
			out.BBox = &bb
			out.Tiles = make([]box, len(n.tiles))
			for i, t := range n.tiles {
				out.Tiles[i] = boxOf(t.BBox())
			}
		}
		return out
	case *branch:
		bb := boxOf(n.box)
		out := &nodeJSON{Type: nodeInternal, BBox: &bb, Children: make([]*nodeJSON, len(n.children))}
		for i, c := range n.children {
			out.Children[i] = encodeNode(c)
		}
		return out
	}
	return nil
}

// Decode rebuilds an index from Encode output. maxEntries of zero keeps the
// value stored in the snapshot. Stored boxes must equal the union of their
// entries; any mismatch is reported as ErrInvalidSnapshot.
func Decode(data []byte, maxEntries int) (*Index, error) {
	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	if s.Version != SnapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidSnapshot, s.Version)
	}
	if s.Root == nil {
		return nil, fmt.Errorf("%w: missing root", ErrInvalidSnapshot)
	}
	if maxEntries == 0 {
		maxEntries = s.MaxEntries
	}
	ix := New(maxEntries)

	// an empty root leaf is the only node allowed to hold nothing
	if s.Root.Type == nodeLeaf && len(s.Root.Tiles) == 0 {
		if s.Root.BBox != nil || len(s.Root.Children) > 0 {
			return nil, fmt.Errorf("%w: malformed empty root", ErrInvalidSnapshot)
		}
		return ix, nil
	}

	root, n, err := decodeNode(s.Root, "root")
	if err != nil {
		return nil, err
	}
	if s.Size != 0 && s.Size != n {
		return nil, fmt.Errorf("%w: size %d does not match %d tiles", ErrInvalidSnapshot, s.Size, n)
	}
	ix.root = root
	ix.size = n
	return ix, nil
}

func decodeNode(nj *nodeJSON, path string) (node, int, error) {
	if nj == nil {
		return nil, 0, fmt.Errorf("%w: %s: null node", ErrInvalidSnapshot, path)
	}
	if nj.BBox == nil {
		return nil, 0, fmt.Errorf("%w: %s: missing bbox", ErrInvalidSnapshot, path)
	}
	stored := nj.BBox.bbox()

	switch nj.Type {
	case nodeLeaf:
		if len(nj.Tiles) == 0 || len(nj.Children) > 0 {
			return nil, 0, fmt.Errorf("%w: %s: leaf needs tiles and no children", ErrInvalidSnapshot, path)
		}
		l := &leaf{tiles: make([]tile.Tile, len(nj.Tiles))}
		for i, tb := range nj.Tiles {
			b := tb.bbox()
			if b.SW.Lat > b.NE.Lat || b.SW.Lon > b.NE.Lon {
				return nil, 0, fmt.Errorf("%w: %s: tile %d has inverted corners", ErrInvalidSnapshot, path, i)
			}
			l.tiles[i] = tile.New(b)
		}
		l.box = tilesBounds(l.tiles)
		if l.box != stored {
			return nil, 0, fmt.Errorf("%w: %s: bbox %s does not match tiles %s", ErrInvalidSnapshot, path, stored, l.box)
		}
		return l, len(l.tiles), nil

	case nodeInternal:
		if len(nj.Children) == 0 || len(nj.Tiles) > 0 {
			return nil, 0, fmt.Errorf("%w: %s: internal node needs children and no tiles", ErrInvalidSnapshot, path)
		}
		b := &branch{children: make([]node, len(nj.Children))}
		total := 0
		for i, c := range nj.Children {
			child, n, err := decodeNode(c, fmt.Sprintf("%s.%d", path, i))
			if err != nil {
				return nil, 0, err
			}
			b.children[i] = child
			total += n
		}
		b.box = childrenBounds(b.children)
		if b.box != stored {
			return nil, 0, fmt.Errorf("%w: %s: bbox %s does not match children %s", ErrInvalidSnapshot, path, stored, b.box)
		}
		return b, total, nil
	}
	return nil, 0, fmt.Errorf("%w: %s: unknown node type %q", ErrInvalidSnapshot, path, nj.Type)
}
