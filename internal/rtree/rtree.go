// Package rtree is an insert-only R-tree over tiles.
//
// Nodes are either leaves holding tiles or branches holding child nodes. Every
// node's box is the tight union of its entries. Leaves that overflow are split
// in place with a quadratic seed pick, so the tree is not height-balanced.
// An Index is not safe for concurrent mutation; callers serialize writers.
package rtree

import (
	"math"

	"github.com/mohammed-shakir/aoi-tiling/internal/geo"
	"github.com/mohammed-shakir/aoi-tiling/internal/tile"
)

const DefaultMaxEntries = 32

type node interface {
	bounds() geo.BBox
}

type leaf struct {
	box   geo.BBox
	tiles []tile.Tile
}

type branch struct {
	box      geo.BBox
	children []node
}

func (l *leaf) bounds() geo.BBox   { return l.box }
func (b *branch) bounds() geo.BBox { return b.box }

type Index struct {
	root       node
	maxEntries int
	size       int
}

// New returns an empty index. maxEntries below 2 falls back to DefaultMaxEntries
// since a split needs two seeds.
func New(maxEntries int) *Index {
	if maxEntries < 2 {
		maxEntries = DefaultMaxEntries
	}
	return &Index{root: &leaf{}, maxEntries: maxEntries}
}

func (ix *Index) MaxEntries() int { return ix.maxEntries }

// Len is the number of tiles stored.
func (ix *Index) Len() int { return ix.size }

// Bounds is the box of the whole index; ok is false when empty.
func (ix *Index) Bounds() (geo.BBox, bool) {
	if ix.size == 0 {
		return geo.BBox{}, false
	}
	return ix.root.bounds(), true
}

// Depth counts node levels on the deepest path; an empty index has depth 1.
func (ix *Index) Depth() int {
	return depth(ix.root)
}

func depth(n node) int {
	b, ok := n.(*branch)
	if !ok {
		return 1
	}
	d := 0
	for _, c := range b.children {
		d = max(d, depth(c))
	}
	return d + 1
}

func (ix *Index) Insert(t tile.Tile) {
	ix.root = ix.insert(ix.root, t)
	ix.size++
}

func (ix *Index) insert(n node, t tile.Tile) node {
	switch n := n.(type) {
	case *leaf:
		if len(n.tiles) < ix.maxEntries {
			n.tiles = append(n.tiles, t)
			n.box = tilesBounds(n.tiles)
			return n
		}
		b := splitLeaf(n)
		i := chooseBestChild(b.children, t.BBox())
		b.children[i] = ix.insert(b.children[i], t)
		b.box = childrenBounds(b.children)
		return b
	case *branch:
		i := chooseBestChild(n.children, t.BBox())
		n.children[i] = ix.insert(n.children[i], t)
		n.box = childrenBounds(n.children)
		return n
	}
	panic("rtree: unknown node type")
}

// chooseBestChild picks the child needing the least area enlargement; the
// first minimum wins.
func chooseBestChild(children []node, b geo.BBox) int {
	best := 0
	minInc := math.Inf(1)
	for i, c := range children {
		inc := c.bounds().Enlargement(b)
		if inc < minInc {
			minInc = inc
			best = i
		}
	}
	return best
}

// splitLeaf seeds two leaves with the pair of tiles whose centers are farthest
// apart and hands every other tile to the leaf with the smaller enlargement.
// Ties go to the leaf holding fewer tiles, then to the first leaf.
func splitLeaf(l *leaf) *branch {
	s1, s2 := farthestPair(l.tiles)

	a := &leaf{box: l.tiles[s1].BBox(), tiles: []tile.Tile{l.tiles[s1]}}
	b := &leaf{box: l.tiles[s2].BBox(), tiles: []tile.Tile{l.tiles[s2]}}

	for i, t := range l.tiles {
		if i == s1 || i == s2 {
			continue
		}
		incA := a.box.Enlargement(t.BBox())
		incB := b.box.Enlargement(t.BBox())
		dst := a
		if incB < incA || (incB == incA && len(b.tiles) < len(a.tiles)) {
			dst = b
		}
		dst.tiles = append(dst.tiles, t)
		dst.box = dst.box.Union(t.BBox())
	}

	return &branch{
		box:      a.box.Union(b.box),
		children: []node{a, b},
	}
}

func farthestPair(tiles []tile.Tile) (int, int) {
	s1, s2 := 0, 1
	maxDist := -1.0
	for i := 0; i < len(tiles); i++ {
		ci := tiles[i].BBox().Center()
		for j := i + 1; j < len(tiles); j++ {
			cj := tiles[j].BBox().Center()
			dLat := ci.Lat - cj.Lat
			dLon := ci.Lon - cj.Lon
			d := math.Sqrt(dLat*dLat + dLon*dLon)
			if d > maxDist {
				maxDist = d
				s1, s2 = i, j
			}
		}
	}
	return s1, s2
}

// Search returns every tile whose box shares interior area with q. Subtrees
// whose box does not touch q are pruned.
func (ix *Index) Search(q geo.BBox) []tile.Tile {
	if ix.size == 0 {
		return nil
	}
	return search(ix.root, q, nil)
}

func search(n node, q geo.BBox, out []tile.Tile) []tile.Tile {
	if !n.bounds().Intersects(q) {
		return out
	}
	switch n := n.(type) {
	case *leaf:
		for _, t := range n.tiles {
			if t.BBox().Overlaps(q) {
				out = append(out, t)
			}
		}
	case *branch:
		for _, c := range n.children {
			out = search(c, q, out)
		}
	}
	return out
}

// All returns every stored tile in tree order.
func (ix *Index) All() []tile.Tile {
	out := make([]tile.Tile, 0, ix.size)
	var walk func(n node)
	walk = func(n node) {
		switch n := n.(type) {
		case *leaf:
			out = append(out, n.tiles...)
		case *branch:
			for _, c := range n.children {
				walk(c)
			}
		}
	}
	walk(ix.root)
	return out
}

func tilesBounds(ts []tile.Tile) geo.BBox {
	b := ts[0].BBox()
	for _, t := range ts[1:] {
		b = b.Union(t.BBox())
	}
	return b
}

func childrenBounds(cs []node) geo.BBox {
	b := cs[0].bounds()
	for _, c := range cs[1:] {
		b = b.Union(c.bounds())
	}
	return b
}
