package cluster

import (
	"context"
	"fmt"
	"log"
	"math"
	"slices"
	"time"

	"github.com/RoaringBitmap/roaring"
)

// Builder collects points and accumulators and produces an Index. A Builder
// can be finished more than once; every Finish builds a new, independent
// pyramid.
type Builder struct {
	opts     Options
	points   []Point
	registry Registry
}

// NewBuilder starts a build with opts and the default accumulator registry.
// Options are validated by Finish.
func NewBuilder(opts Options) *Builder {
	return &Builder{
		opts:     opts,
		registry: DefaultRegistry(),
	}
}

// Add appends one point. attr may be nil.
func (b *Builder) Add(lng, lat float64, attr *int64) {
	b.points = append(b.points, Point{Lng: lng, Lat: lat, Attribute: attr})
}

func (b *Builder) AddPoint(p Point) {
	b.points = append(b.points, p)
}

func (b *Builder) AddPoints(points []Point) {
	b.points = append(b.points, points...)
}

// Register makes acc available to Finish under name, replacing any
// accumulator already registered under it.
func (b *Builder) Register(name string, acc Accumulator) {
	b.registry[name] = acc
}

// Build is shorthand for a Builder fed with points.
func Build(ctx context.Context, points []Point, opts Options, names ...string) (*Index, error) {
	b := NewBuilder(opts)
	b.AddPoints(points)
	return b.Finish(ctx, names...)
}

// Finish builds the pyramid. names selects registered accumulators; unknown
// names are ignored and no names selects all of them. ctx is checked between
// zoom levels. On error no partial index is returned.
func (b *Builder) Finish(ctx context.Context, names ...string) (*Index, error) {
	if err := b.opts.Validate(); err != nil {
		return nil, err
	}
	if uint64(len(b.points)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d points exceed the id space", ErrConfiguration, len(b.points))
	}

	start := time.Now()
	ix := &Index{
		opts:   b.opts,
		points: NewPointStore(b.points),
		accs:   b.registry.resolve(names),
		pool:   NewStatisticsPool(),
		levels: make([]level, b.opts.MaxZoom+2),
	}

	leaves, err := ix.leafNodes()
	if err != nil {
		return nil, err
	}
	ix.levels[b.opts.MaxZoom+1] = ix.newLevel(leaves)

	for z := b.opts.MaxZoom; z >= 0; z-- {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("build cancelled at zoom %d: %w", z, err)
		}
		ix.levels[z] = ix.newLevel(ix.clusterLevel(z))
		if b.opts.Log {
			log.Printf("[Builder] zoom=%d nodes=%d from=%d radius=%.3g",
				z, len(ix.levels[z].nodes), len(ix.levels[z+1].nodes), b.opts.levelRadius(z))
		}
	}

	if b.opts.Log {
		log.Printf("[Builder] built pyramid: points=%d max_zoom=%d accumulators=%d stats_vectors=%d in %v",
			ix.points.Len(), b.opts.MaxZoom, len(ix.accs), ix.pool.Len(), time.Since(start))
	}
	return ix, nil
}

// leafNodes projects every point onto the virtual leaf level.
func (ix *Index) leafNodes() ([]node, error) {
	nodes := make([]node, ix.points.Len())
	scratch := make([]Statistic, len(ix.accs))
	for i, p := range ix.points.points {
		if math.IsNaN(p.Lng) || math.IsInf(p.Lng, 0) || math.IsNaN(p.Lat) || math.IsInf(p.Lat, 0) {
			return nil, fmt.Errorf("%w: point %d has non-finite coordinates", ErrConfiguration, i)
		}
		if p.Lat < -90 || p.Lat > 90 {
			return nil, fmt.Errorf("%w: point %d has latitude %g outside [-90, 90]", ErrConfiguration, i, p.Lat)
		}
		for j, a := range ix.accs {
			scratch[j] = a.acc.Init(p)
		}
		nodes[i] = node{
			X:       projectX(wrapLng(p.Lng)),
			Y:       projectY(p.Lat),
			Count:   1,
			Parent:  -1,
			Origin:  uint32(i),
			StatIdx: ix.pool.Add(scratch),
		}
	}
	return nodes, nil
}

func (ix *Index) newLevel(nodes []node) level {
	points := make([]KDPoint, len(nodes))
	for i, n := range nodes {
		points[i] = KDPoint{X: n.X, Y: n.Y, Ref: uint32(i)}
	}
	return level{
		nodes: nodes,
		index: newLevelIndex(ix.opts.IndexKind, points, ix.opts.NodeSize),
	}
}

// clusterLevel greedily merges the nodes of level zoom+1 into level zoom.
// Nodes are visited in order and each absorbs every unconsumed neighbour
// within the level radius; since earlier nodes are already consumed, the
// visited node always has the lowest index of its group.
func (ix *Index) clusterLevel(zoom int) []node {
	prev := &ix.levels[zoom+1]
	r := ix.opts.levelRadius(zoom)
	consumed := roaring.New()
	merged := make([]Statistic, len(ix.accs))

	var out []node
	for i := range prev.nodes {
		if !consumed.CheckedAdd(uint32(i)) {
			continue
		}
		p := &prev.nodes[i]
		parent := int32(len(out))

		children := []uint32{uint32(i)}
		for _, j := range prev.index.Within(p.X, p.Y, r) {
			if consumed.CheckedAdd(j) {
				children = append(children, j)
			}
		}

		if len(children) == 1 {
			p.Parent = parent
			out = append(out, node{
				X:        p.X,
				Y:        p.Y,
				Count:    p.Count,
				Children: children,
				Parent:   -1,
				Origin:   p.Origin,
				StatIdx:  p.StatIdx,
			})
			continue
		}

		slices.Sort(children)
		copy(merged, ix.pool.Get(p.StatIdx))
		var wx, wy float64
		count := 0
		for k, c := range children {
			child := &prev.nodes[c]
			child.Parent = parent
			w := float64(child.Count)
			wx += child.X * w
			wy += child.Y * w
			count += child.Count
			if k == 0 {
				continue
			}
			stats := ix.pool.Get(child.StatIdx)
			for a := range merged {
				merged[a] = ix.accs[a].acc.Merge(merged[a], stats[a])
			}
		}

		out = append(out, node{
			X:        wx / float64(count),
			Y:        wy / float64(count),
			Count:    count,
			Children: children,
			Parent:   -1,
			Origin:   p.Origin,
			StatIdx:  ix.pool.Add(merged),
		})
	}
	return out
}
