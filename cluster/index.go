package cluster

import (
	"fmt"
	"math"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

type node struct {
	X, Y     float64  // projected, point-count weighted centroid
	Count    int      // original points below this node
	Children []uint32 // node indices on level zoom+1
	Parent   int32    // node index on level zoom-1, -1 on level 0
	Origin   uint32   // the original point when Count == 1
	StatIdx  uint32   // statistics vector in the pool
}

type level struct {
	nodes []node
	index LevelIndex
}

// Index is a finished cluster pyramid. It is never mutated after Finish
// returns, so any number of goroutines may query it without locking.
type Index struct {
	opts   Options
	points *PointStore
	accs   []namedAccumulator
	pool   *StatisticsPool
	levels []level // zoom 0..MaxZoom, then the leaf level MaxZoom+1
}

// Record is one marker as returned by the queries. Nodes holding a single
// original point are reported under that point's origin id.
type Record struct {
	ID         uint64           `json:"id" msgpack:"id"`
	X          float64          `json:"x" msgpack:"x"`
	Y          float64          `json:"y" msgpack:"y"`
	IsCluster  bool             `json:"cluster" msgpack:"cluster"`
	PointCount int              `json:"point_count" msgpack:"point_count"`
	Statistics map[string]int64 `json:"statistics" msgpack:"statistics"`
}

// LevelStats describes one level of the pyramid.
type LevelStats struct {
	Zoom     int `json:"zoom"`
	Nodes    int `json:"nodes"`
	Clusters int `json:"clusters"`
}

func (ix *Index) Options() Options { return ix.opts }

func (ix *Index) MaxZoom() int { return ix.opts.MaxZoom }

func (ix *Index) NumPoints() int { return ix.points.Len() }

// Accumulators lists the statistics carried by every record, in build order.
func (ix *Index) Accumulators() []string {
	names := make([]string, len(ix.accs))
	for i, a := range ix.accs {
		names[i] = a.name
	}
	return names
}

// Stats reports node counts from zoom 0 to the leaf level.
func (ix *Index) Stats() []LevelStats {
	stats := make([]LevelStats, len(ix.levels))
	for z, lvl := range ix.levels {
		clusters := 0
		for _, n := range lvl.nodes {
			if n.Count > 1 {
				clusters++
			}
		}
		stats[z] = LevelStats{Zoom: z, Nodes: len(lvl.nodes), Clusters: clusters}
	}
	return stats
}

// Decode turns a flat id from a Record back into a ClusterID.
func (ix *Index) Decode(flat uint64) (ClusterID, error) {
	return DecodeClusterID(flat, ix.opts.MaxZoom)
}

// locate resolves id to its level and node index.
func (ix *Index) locate(id ClusterID) (int, uint32, error) {
	if !id.origin && int(id.zoom) > ix.opts.MaxZoom {
		return 0, 0, fmt.Errorf("%w: %s beyond max zoom %d", ErrInvalidClusterID, id, ix.opts.MaxZoom)
	}
	zoom := id.Zoom(ix.opts.MaxZoom)
	if int(id.index) >= len(ix.levels[zoom].nodes) {
		return 0, 0, fmt.Errorf("%w: %s", ErrUnknownCluster, id)
	}
	return zoom, id.index, nil
}

func (ix *Index) record(zoom int, i uint32) Record {
	n := &ix.levels[zoom].nodes[i]
	if n.Count == 1 {
		p := ix.points.At(n.Origin)
		return Record{
			ID:         OriginID(n.Origin).Flat(),
			X:          p.Lng,
			Y:          p.Lat,
			PointCount: 1,
			Statistics: ix.statistics(n.StatIdx),
		}
	}
	return Record{
		ID:         ClusterID{zoom: uint8(zoom), index: i}.Flat(),
		X:          unprojectX(n.X),
		Y:          unprojectY(n.Y),
		IsCluster:  true,
		PointCount: n.Count,
		Statistics: ix.statistics(n.StatIdx),
	}
}

func (ix *Index) statistics(idx uint32) map[string]int64 {
	stats := ix.pool.Get(idx)
	out := make(map[string]int64, len(stats))
	for i, s := range stats {
		if s.Set {
			out[ix.accs[i].name] = s.Value
		}
	}
	return out
}

func (ix *Index) clampZoom(zoom int) int {
	return max(0, min(zoom, ix.opts.MaxZoom))
}

// GetClusters returns the markers at zoom inside bound, given in degrees
// with Min as the south-west corner. A bound whose west edge lies east of
// its east edge crosses the antimeridian and is queried as two boxes.
func (ix *Index) GetClusters(bound orb.Bound, zoom int) []Record {
	west, east := bound.Min.Lon(), bound.Max.Lon()
	south := math.Max(-90, math.Min(90, bound.Min.Lat()))
	north := math.Max(-90, math.Min(90, bound.Max.Lat()))

	if east-west >= 360 {
		west, east = -180, 180
	} else {
		west = normalizeLng(west)
		if east != 180 {
			east = normalizeLng(east)
		}
	}

	if west > east {
		eastern := ix.GetClusters(orb.Bound{Min: orb.Point{west, south}, Max: orb.Point{180, north}}, zoom)
		western := ix.GetClusters(orb.Bound{Min: orb.Point{-180, south}, Max: orb.Point{east, north}}, zoom)
		return append(eastern, western...)
	}

	z := ix.clampZoom(zoom)
	refs := ix.levels[z].index.Range(projectX(west), projectY(north), projectX(east), projectY(south))
	slices.Sort(refs)
	records := make([]Record, len(refs))
	for i, ref := range refs {
		records[i] = ix.record(z, ref)
	}
	return records
}

func normalizeLng(lng float64) float64 {
	return math.Mod(math.Mod(lng+180, 360)+360, 360) - 180
}

// GetTile returns the markers inside the slippy map tile z/x/y.
func (ix *Index) GetTile(z, x, y int) ([]Record, error) {
	if z < 0 || z > 32 || x < 0 || y < 0 || uint64(x) >= uint64(1)<<uint(z) || uint64(y) >= uint64(1)<<uint(z) {
		return nil, fmt.Errorf("%w: %d/%d/%d", ErrInvalidTile, z, x, y)
	}
	tile := maptile.New(uint32(x), uint32(y), maptile.Zoom(z))
	return ix.GetClusters(tile.Bound(), z), nil
}

// GetChildren returns the nodes one zoom finer that merged into id. An
// origin id is a leaf and has no children.
func (ix *Index) GetChildren(id ClusterID) ([]Record, error) {
	zoom, i, err := ix.locate(id)
	if err != nil {
		return nil, err
	}
	if id.origin {
		return []Record{}, nil
	}
	n := &ix.levels[zoom].nodes[i]
	children := make([]Record, len(n.Children))
	for k, c := range n.Children {
		children[k] = ix.record(zoom+1, c)
	}
	return children, nil
}

// GetLeaves returns the original points below id in depth-first child
// order, skipping offset of them and returning at most limit. A limit of
// zero or less means no limit.
func (ix *Index) GetLeaves(id ClusterID, limit, offset int) ([]Record, error) {
	zoom, i, err := ix.locate(id)
	if err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}

	type frame struct {
		zoom int
		idx  uint32
	}
	leaves := []Record{}
	skipped := 0
	stack := []frame{{zoom, i}}
	for len(stack) > 0 && (limit <= 0 || len(leaves) < limit) {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := &ix.levels[f.zoom].nodes[f.idx]

		if skipped+n.Count <= offset {
			skipped += n.Count
			continue
		}
		if n.Count == 1 {
			leaves = append(leaves, ix.record(f.zoom, f.idx))
			continue
		}
		// children go on in reverse so the first child is visited first.
		for k := len(n.Children) - 1; k >= 0; k-- {
			stack = append(stack, frame{f.zoom + 1, n.Children[k]})
		}
	}
	return leaves, nil
}

// GetClusterExpansionZoom returns the zoom at which id first shows as two
// or more markers, capped at the max zoom.
func (ix *Index) GetClusterExpansionZoom(id ClusterID) (int, error) {
	zoom, i, err := ix.locate(id)
	if err != nil {
		return 0, err
	}
	if id.origin {
		return ix.opts.MaxZoom, nil
	}
	for zoom < ix.opts.MaxZoom {
		n := &ix.levels[zoom].nodes[i]
		if len(n.Children) != 1 {
			return zoom + 1, nil
		}
		i = n.Children[0]
		zoom++
	}
	return ix.opts.MaxZoom, nil
}

// Parent returns the node one zoom coarser that contains id. ok is false
// for nodes on zoom 0.
func (ix *Index) Parent(id ClusterID) (parent ClusterID, ok bool, err error) {
	zoom, i, err := ix.locate(id)
	if err != nil {
		return ClusterID{}, false, err
	}
	p := ix.levels[zoom].nodes[i].Parent
	if p < 0 {
		return ClusterID{}, false, nil
	}
	return ClusterID{zoom: uint8(zoom - 1), index: uint32(p)}, true, nil
}

// DescendantClusterIDs lists the flat ids of every cluster below id,
// depth-first. Single-point nodes are leaves and are not listed.
func (ix *Index) DescendantClusterIDs(id ClusterID) ([]uint64, error) {
	zoom, i, err := ix.locate(id)
	if err != nil {
		return nil, err
	}
	type frame struct {
		zoom int
		idx  uint32
	}
	var stack []frame
	push := func(zoom int, idx uint32) {
		if zoom >= ix.opts.MaxZoom+1 {
			return
		}
		children := ix.levels[zoom].nodes[idx].Children
		for k := len(children) - 1; k >= 0; k-- {
			if ix.levels[zoom+1].nodes[children[k]].Count > 1 {
				stack = append(stack, frame{zoom + 1, children[k]})
			}
		}
	}

	ids := []uint64{}
	push(zoom, i)
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		ids = append(ids, ClusterID{zoom: uint8(f.zoom), index: f.idx}.Flat())
		push(f.zoom, f.idx)
	}
	return ids, nil
}
