package cluster

import (
	"math"
	"sort"
)

// LevelIndex is the spatial index over the nodes of one zoom level. Refs are
// node indices within that level. Both queries are read-only, so one index
// may serve any number of concurrent readers.
type LevelIndex interface {
	// Range returns every ref whose point lies in the closed box.
	Range(minX, minY, maxX, maxY float64) []uint32
	// Within returns every ref within Euclidean distance r of (x, y).
	Within(x, y, r float64) []uint32
	Len() int
}

// KDPoint is an indexed position in projected space.
type KDPoint struct {
	X, Y float64
	Ref  uint32
}

// KDNode covers Points[Start:End]. Leaves have Left == Right == -1.
type KDNode struct {
	Start, End  int32
	Left, Right int32
	Axis        uint8
	Bounds      KDBounds
}

// KDTree is a static 2-d tree stored in flat slices: all nodes in one slice,
// all points in another, reordered so each node owns a contiguous run.
type KDTree struct {
	Nodes    []KDNode
	Points   []KDPoint
	NodeSize int
	Bounds   KDBounds
}

// KDBounds is an axis aligned box in projected space.
type KDBounds struct {
	MinX, MinY, MaxX, MaxY float64
}

func emptyBounds() KDBounds {
	return KDBounds{
		MinX: math.Inf(1),
		MinY: math.Inf(1),
		MaxX: math.Inf(-1),
		MaxY: math.Inf(-1),
	}
}

// Extend expands bounds to include another point
func (b *KDBounds) Extend(x, y float64) {
	b.MinX = math.Min(b.MinX, x)
	b.MinY = math.Min(b.MinY, y)
	b.MaxX = math.Max(b.MaxX, x)
	b.MaxY = math.Max(b.MaxY, y)
}

func (b KDBounds) disjoint(minX, minY, maxX, maxY float64) bool {
	return b.MaxX < minX || b.MinX > maxX || b.MaxY < minY || b.MinY > maxY
}

func (b KDBounds) inside(minX, minY, maxX, maxY float64) bool {
	return b.MinX >= minX && b.MaxX <= maxX && b.MinY >= minY && b.MaxY <= maxY
}

// sqDistTo is the squared distance from (x, y) to the nearest point of b.
func (b KDBounds) sqDistTo(x, y float64) float64 {
	dx := math.Max(0, math.Max(b.MinX-x, x-b.MaxX))
	dy := math.Max(0, math.Max(b.MinY-y, y-b.MaxY))
	return dx*dx + dy*dy
}

// NewKDTree builds the tree over a copy of points.
func NewKDTree(points []KDPoint, nodeSize int) *KDTree {
	if nodeSize < 2 {
		nodeSize = 2
	}
	tree := &KDTree{
		Nodes:    make([]KDNode, 0, 2*len(points)/nodeSize+1),
		Points:   make([]KDPoint, len(points)),
		NodeSize: nodeSize,
		Bounds:   emptyBounds(),
	}
	copy(tree.Points, points)

	for _, p := range tree.Points {
		tree.Bounds.Extend(p.X, p.Y)
	}
	if len(tree.Points) > 0 {
		tree.buildNodes(0, int32(len(tree.Points)), 0)
	}
	return tree
}

// buildNodes splits Points[start:end] at the median of the depth's axis
// until runs fit in NodeSize.
func (t *KDTree) buildNodes(start, end int32, depth int) int32 {
	nodeIdx := int32(len(t.Nodes))
	t.Nodes = append(t.Nodes, KDNode{Start: start, End: end, Left: -1, Right: -1})

	bounds := emptyBounds()
	for _, p := range t.Points[start:end] {
		bounds.Extend(p.X, p.Y)
	}
	t.Nodes[nodeIdx].Bounds = bounds

	if int(end-start) <= t.NodeSize {
		return nodeIdx
	}

	axis := depth % 2
	sortPointsRange(t.Points[start:end], axis)
	median := (start + end) / 2

	// t.Nodes may grow while recursing, so assign through the index.
	left := t.buildNodes(start, median, depth+1)
	right := t.buildNodes(median, end, depth+1)
	t.Nodes[nodeIdx].Left = left
	t.Nodes[nodeIdx].Right = right
	t.Nodes[nodeIdx].Axis = uint8(axis)
	return nodeIdx
}

func sortPointsRange(points []KDPoint, axis int) {
	if axis == 0 {
		sort.Slice(points, func(i, j int) bool {
			if points[i].X == points[j].X {
				return points[i].Ref < points[j].Ref
			}
			return points[i].X < points[j].X
		})
	} else {
		sort.Slice(points, func(i, j int) bool {
			if points[i].Y == points[j].Y {
				return points[i].Ref < points[j].Ref
			}
			return points[i].Y < points[j].Y
		})
	}
}

func (t *KDTree) Len() int { return len(t.Points) }

// Range walks the tree with an explicit stack, taking whole runs when a
// node's bounds sit inside the query box.
func (t *KDTree) Range(minX, minY, maxX, maxY float64) []uint32 {
	var result []uint32
	if len(t.Nodes) == 0 {
		return result
	}
	stack := []int32{0}
	for len(stack) > 0 {
		n := &t.Nodes[stack[len(stack)-1]]
		stack = stack[:len(stack)-1]

		if n.Bounds.disjoint(minX, minY, maxX, maxY) {
			continue
		}
		if n.Bounds.inside(minX, minY, maxX, maxY) {
			for _, p := range t.Points[n.Start:n.End] {
				result = append(result, p.Ref)
			}
			continue
		}
		if n.Left < 0 {
			for _, p := range t.Points[n.Start:n.End] {
				if p.X >= minX && p.X <= maxX && p.Y >= minY && p.Y <= maxY {
					result = append(result, p.Ref)
				}
			}
			continue
		}
		stack = append(stack, n.Left, n.Right)
	}
	return result
}

// Within prunes nodes whose bounds are farther than r from (x, y).
func (t *KDTree) Within(x, y, r float64) []uint32 {
	var result []uint32
	if len(t.Nodes) == 0 {
		return result
	}
	r2 := r * r
	stack := []int32{0}
	for len(stack) > 0 {
		n := &t.Nodes[stack[len(stack)-1]]
		stack = stack[:len(stack)-1]

		if n.Bounds.sqDistTo(x, y) > r2 {
			continue
		}
		if n.Left < 0 {
			for _, p := range t.Points[n.Start:n.End] {
				dx, dy := p.X-x, p.Y-y
				if dx*dx+dy*dy <= r2 {
					result = append(result, p.Ref)
				}
			}
			continue
		}
		stack = append(stack, n.Left, n.Right)
	}
	return result
}

// newLevelIndex builds the backend selected by kind.
func newLevelIndex(kind string, points []KDPoint, nodeSize int) LevelIndex {
	if kind == IndexRTree {
		return NewRTree(points)
	}
	return NewKDTree(points, nodeSize)
}
