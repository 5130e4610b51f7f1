package cluster

import (
	"context"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var world = orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}}

func threePoints() []Point {
	return []Point{
		{Lng: 0, Lat: 0},
		{Lng: 0.0001, Lat: 0.0001},
		{Lng: 50, Lat: 50},
	}
}

func buildTestIndex(t testing.TB, points []Point, opts Options) *Index {
	t.Helper()
	ix, err := Build(context.Background(), points, opts)
	require.NoError(t, err)
	return ix
}

func TestThreePointPyramid(t *testing.T) {
	ix := buildTestIndex(t, threePoints(), DefaultOptions())

	finest := ix.GetClusters(world, 16)
	require.Len(t, finest, 2)
	assert.True(t, finest[0].IsCluster)
	assert.Equal(t, 2, finest[0].PointCount)
	assert.False(t, finest[1].IsCluster)
	assert.Equal(t, OriginID(2).Flat(), finest[1].ID)
	assert.InDelta(t, 50, finest[1].X, 1e-9)
	assert.InDelta(t, 50, finest[1].Y, 1e-9)

	// (50, 50) is about 0.21 world units from the pair, beyond the zoom 0
	// radius of 40/256. With the default radius and tile size these three
	// points can not collapse into a single root, so the one-root case is
	// checked with a smaller tile below.
	roots := ix.GetClusters(world, 0)
	require.Len(t, roots, 2)
	assert.Equal(t, 2, roots[0].PointCount)
	assert.Equal(t, 1, roots[1].PointCount)

	// halving the tile size doubles the radius and pulls it in.
	opts := DefaultOptions()
	opts.TileSize = 128
	ix = buildTestIndex(t, threePoints(), opts)

	roots = ix.GetClusters(world, 0)
	require.Len(t, roots, 1)
	assert.True(t, roots[0].IsCluster)
	assert.Equal(t, 3, roots[0].PointCount)
	assert.Len(t, ix.GetClusters(world, 16), 2)
}

func TestPointCountConservation(t *testing.T) {
	points := GenerateTestPoints(3000, orb.Bound{Min: orb.Point{-120, -60}, Max: orb.Point{120, 60}}, 1)
	ix := buildTestIndex(t, points, DefaultOptions())

	for z := 0; z <= ix.MaxZoom(); z++ {
		total := 0
		for _, r := range ix.GetClusters(world, z) {
			total += r.PointCount
		}
		assert.Equal(t, len(points), total, "zoom %d", z)
	}
}

func TestLeavesPartitionPointsAtEveryZoom(t *testing.T) {
	points := GenerateTestPoints(500, orb.Bound{Min: orb.Point{-10, -10}, Max: orb.Point{10, 10}}, 2)
	ix := buildTestIndex(t, points, DefaultOptions())

	for _, z := range []int{0, 3, 8, 16} {
		seen := make(map[uint64]int)
		for _, r := range ix.GetClusters(world, z) {
			id, err := ix.Decode(r.ID)
			require.NoError(t, err)
			leaves, err := ix.GetLeaves(id, 0, 0)
			require.NoError(t, err)
			require.Len(t, leaves, r.PointCount)
			for _, l := range leaves {
				seen[l.ID]++
			}
		}
		require.Len(t, seen, len(points), "zoom %d", z)
		for i := range points {
			assert.Equal(t, 1, seen[OriginID(uint32(i)).Flat()])
		}
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	points := GenerateTestPoints(1000, orb.Bound{Min: orb.Point{-50, -30}, Max: orb.Point{50, 30}}, 3)

	kd := DefaultOptions()
	rt := DefaultOptions()
	rt.IndexKind = IndexRTree

	first := buildTestIndex(t, points, kd)
	second := buildTestIndex(t, points, kd)
	rtree := buildTestIndex(t, points, rt)

	for z := 0; z <= first.MaxZoom(); z++ {
		want := first.GetClusters(world, z)
		if diff := cmp.Diff(want, second.GetClusters(world, z)); diff != "" {
			t.Errorf("rebuild differs at zoom %d (-want +got):\n%s", z, diff)
		}
		if diff := cmp.Diff(want, rtree.GetClusters(world, z)); diff != "" {
			t.Errorf("rtree backend differs at zoom %d (-want +got):\n%s", z, diff)
		}
	}
	assert.Equal(t, first.Stats(), rtree.Stats())
}

func TestBuilderCopiesInput(t *testing.T) {
	points := threePoints()
	ix := buildTestIndex(t, points, DefaultOptions())
	points[2].Lng = -100

	leaves, err := ix.GetLeaves(OriginID(2), 0, 0)
	require.NoError(t, err)
	assert.InDelta(t, 50, leaves[0].X, 1e-9)
}

func TestBuilderRejectsBadConfiguration(t *testing.T) {
	cases := map[string]func(*Options){
		"negative max zoom": func(o *Options) { o.MaxZoom = -1 },
		"max zoom too deep": func(o *Options) { o.MaxZoom = 31 },
		"zero radius":       func(o *Options) { o.Radius = 0 },
		"nan radius":        func(o *Options) { o.Radius = math.NaN() },
		"zero tile size":    func(o *Options) { o.TileSize = 0 },
		"tiny node size":    func(o *Options) { o.NodeSize = 1 },
		"unknown index":     func(o *Options) { o.IndexKind = "grid" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			opts := DefaultOptions()
			mutate(&opts)
			ix, err := Build(context.Background(), threePoints(), opts)
			assert.ErrorIs(t, err, ErrConfiguration)
			assert.Nil(t, ix)
		})
	}
}

func TestBuilderRejectsNonFinitePoints(t *testing.T) {
	for _, p := range []Point{{Lng: math.NaN()}, {Lat: math.Inf(1)}} {
		_, err := Build(context.Background(), append(threePoints(), p), DefaultOptions())
		assert.ErrorIs(t, err, ErrConfiguration)
	}
}

func TestBuilderWrapsLongitudes(t *testing.T) {
	points := []Point{{Lng: 10, Lat: 10}, {Lng: 190, Lat: 10}, {Lng: -200, Lat: -5}, {Lng: 180, Lat: 0}}
	ix := buildTestIndex(t, points, DefaultOptions())

	for z := 0; z <= ix.MaxZoom(); z++ {
		total := 0
		for _, r := range ix.GetClusters(world, z) {
			total += r.PointCount
		}
		assert.Equal(t, len(points), total, "zoom %d", z)
	}

	// 190 lands on -170 and -200 on 160.
	west := ix.GetClusters(orb.Bound{Min: orb.Point{-175, 5}, Max: orb.Point{-165, 15}}, ix.MaxZoom())
	require.Len(t, west, 1)
	assert.Equal(t, OriginID(1).Flat(), west[0].ID)
	east := ix.GetClusters(orb.Bound{Min: orb.Point{155, -10}, Max: orb.Point{165, 0}}, ix.MaxZoom())
	require.Len(t, east, 1)
	assert.Equal(t, OriginID(2).Flat(), east[0].ID)

	// 180 stays on the east edge.
	edge := ix.GetClusters(orb.Bound{Min: orb.Point{179, -1}, Max: orb.Point{180, 1}}, ix.MaxZoom())
	require.Len(t, edge, 1)
	assert.Equal(t, OriginID(3).Flat(), edge[0].ID)
}

func TestBuilderRejectsLatitudeOutOfRange(t *testing.T) {
	for _, lat := range []float64{90.5, -91} {
		ix, err := Build(context.Background(), append(threePoints(), Point{Lng: 0, Lat: lat}), DefaultOptions())
		assert.ErrorIs(t, err, ErrConfiguration)
		assert.Nil(t, ix)
	}
}

func TestBuildCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ix, err := Build(ctx, threePoints(), DefaultOptions())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, ix)
}

func TestEmptyBuild(t *testing.T) {
	ix := buildTestIndex(t, nil, DefaultOptions())
	assert.Equal(t, 0, ix.NumPoints())
	assert.Empty(t, ix.GetClusters(world, 0))
	assert.Len(t, ix.Stats(), ix.MaxZoom()+2)
}

func TestZeroMaxZoom(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxZoom = 0
	opts.TileSize = 128
	ix := buildTestIndex(t, threePoints(), opts)

	roots := ix.GetClusters(world, 5)
	require.Len(t, roots, 1)
	assert.Equal(t, 3, roots[0].PointCount)

	id, err := ix.Decode(roots[0].ID)
	require.NoError(t, err)
	children, err := ix.GetChildren(id)
	require.NoError(t, err)
	assert.Len(t, children, 3)
}

func TestFinishTwiceGivesIndependentIndexes(t *testing.T) {
	b := NewBuilder(DefaultOptions())
	b.AddPoints(threePoints())
	first, err := b.Finish(context.Background())
	require.NoError(t, err)

	b.Add(-70, -30, Attr(50))
	second, err := b.Finish(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, first.NumPoints())
	assert.Equal(t, 4, second.NumPoints())
	assert.Equal(t, []string{"threshold_counter"}, second.Accumulators())
}
