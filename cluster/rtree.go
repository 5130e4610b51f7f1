package cluster

import "github.com/dhconnelly/rtreego"

// rtreego treats touching rectangles as disjoint, so entries and query boxes
// are padded by rtreeTolerance and hits are filtered exactly afterwards.
const rtreeTolerance = 1e-12

type rtreeEntry struct {
	KDPoint
	rect rtreego.Rect
}

func (e *rtreeEntry) Bounds() rtreego.Rect { return e.rect }

// RTree is the rtreego backed LevelIndex.
type RTree struct {
	tree *rtreego.Rtree
	size int
}

// NewRTree bulk loads points into an R-tree.
func NewRTree(points []KDPoint) *RTree {
	entries := make([]rtreego.Spatial, len(points))
	for i, p := range points {
		entries[i] = &rtreeEntry{
			KDPoint: p,
			rect:    rtreego.Point{p.X, p.Y}.ToRect(rtreeTolerance),
		}
	}
	return &RTree{
		tree: rtreego.NewTree(2, 25, 50, entries...),
		size: len(points),
	}
}

func (t *RTree) Len() int { return t.size }

func (t *RTree) search(minX, minY, maxX, maxY float64) []*rtreeEntry {
	if t.size == 0 || minX > maxX || minY > maxY {
		return nil
	}
	rect, err := rtreego.NewRectFromPoints(
		rtreego.Point{minX - rtreeTolerance, minY - rtreeTolerance},
		rtreego.Point{maxX + rtreeTolerance, maxY + rtreeTolerance},
	)
	if err != nil {
		return nil
	}
	hits := t.tree.SearchIntersect(rect)
	entries := make([]*rtreeEntry, len(hits))
	for i, h := range hits {
		entries[i] = h.(*rtreeEntry)
	}
	return entries
}

func (t *RTree) Range(minX, minY, maxX, maxY float64) []uint32 {
	var result []uint32
	for _, e := range t.search(minX, minY, maxX, maxY) {
		if e.X >= minX && e.X <= maxX && e.Y >= minY && e.Y <= maxY {
			result = append(result, e.Ref)
		}
	}
	return result
}

func (t *RTree) Within(x, y, r float64) []uint32 {
	var result []uint32
	r2 := r * r
	for _, e := range t.search(x-r, y-r, x+r, y+r) {
		dx, dy := e.X-x, e.Y-y
		if dx*dx+dy*dy <= r2 {
			result = append(result, e.Ref)
		}
	}
	return result
}
