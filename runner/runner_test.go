package runner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"web/supercluster/cluster"
	"web/supercluster/config"
)

var worldBounds = Bounds{West: -180, South: -90, East: 180, North: 90}

func newTestRunner(t *testing.T, mutate func(*config.Config)) *ClusterRunner {
	t.Helper()
	cfg := config.Default()
	cfg.SaveDir = t.TempDir()
	if mutate != nil {
		mutate(cfg)
	}
	r, err := NewClusterRunner(cfg)
	require.NoError(t, err)
	return r
}

func createCluster(t *testing.T, r ClusterService, req *CreateClusterRequest) ClusterInfo {
	t.Helper()
	resp, err := r.CreateCluster(context.Background(), req)
	require.NoError(t, err)
	return resp.Cluster
}

func TestCreateAndQuery(t *testing.T) {
	r := newTestRunner(t, nil)
	ctx := context.Background()

	_, err := r.GetClusters(ctx, &GetClustersRequest{Bounds: worldBounds})
	assert.ErrorIs(t, err, ErrClusterNotFound)

	info := createCluster(t, r, &CreateClusterRequest{NumPoints: 2000, Seed: 1})
	assert.Equal(t, 2000, info.NumPoints)
	assert.True(t, info.Current)
	assert.Equal(t, "generated", info.Source)
	assert.Equal(t, []string{"threshold_counter"}, info.Accumulators)

	roots, err := r.GetClusters(ctx, &GetClustersRequest{Zoom: 0, Bounds: worldBounds})
	require.NoError(t, err)
	assert.Equal(t, info.ID, roots.ClusterID)

	total := 0
	for _, rec := range roots.Records {
		total += rec.PointCount
	}
	assert.Equal(t, 2000, total)

	summary, err := r.GetSummary(ctx, &GetClustersRequest{ClusterID: info.ID, Bounds: worldBounds})
	require.NoError(t, err)
	assert.Equal(t, 2000, summary.Summary.TotalPoints)

	var biggest cluster.Record
	for _, rec := range roots.Records {
		if rec.PointCount > biggest.PointCount {
			biggest = rec
		}
	}
	require.True(t, biggest.IsCluster)

	children, err := r.GetChildren(ctx, &NodeRequest{Node: biggest.ID})
	require.NoError(t, err)
	assert.NotEmpty(t, children.Records)

	leaves, err := r.GetLeaves(ctx, &LeavesRequest{Node: biggest.ID, Limit: 5, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, leaves.Records, min(5, biggest.PointCount-2))

	ez, err := r.GetExpansionZoom(ctx, &NodeRequest{Node: biggest.ID})
	require.NoError(t, err)
	assert.Greater(t, ez.Zoom, 0)

	geometry, err := r.GetGeometry(ctx, &NodeRequest{Node: biggest.ID})
	require.NoError(t, err)
	assert.True(t, geometry.Geometry.ConvexHull.Closed())

	descendants, err := r.GetDescendants(ctx, &NodeRequest{Node: biggest.ID})
	require.NoError(t, err)
	assert.NotEmpty(t, descendants.IDs)

	tile, err := r.GetTile(ctx, &GetTileRequest{Z: 0})
	require.NoError(t, err)
	assert.Len(t, tile.Records, len(roots.Records))
}

func TestQueryErrors(t *testing.T) {
	r := newTestRunner(t, nil)
	ctx := context.Background()
	info := createCluster(t, r, &CreateClusterRequest{NumPoints: 10, Seed: 2})

	_, err := r.GetClusters(ctx, &GetClustersRequest{ClusterID: "missing", Bounds: worldBounds})
	assert.ErrorIs(t, err, ErrClusterNotFound)

	_, err = r.GetClusters(ctx, &GetClustersRequest{Bounds: Bounds{South: 10, North: -10}})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	unknown, _ := cluster.SyntheticID(0, 9999, info.Options.MaxZoom)
	_, err = r.GetChildren(ctx, &NodeRequest{Node: unknown.Flat()})
	assert.ErrorIs(t, err, cluster.ErrUnknownCluster)

	_, err = r.GetLeaves(ctx, &LeavesRequest{Node: uint64(99) << 32})
	assert.ErrorIs(t, err, cluster.ErrInvalidClusterID)

	_, err = r.GetTile(ctx, &GetTileRequest{Z: 1, X: 5})
	assert.ErrorIs(t, err, cluster.ErrInvalidTile)

	_, err = r.CreateCluster(ctx, &CreateClusterRequest{})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestFailedBuildKeepsState(t *testing.T) {
	r := newTestRunner(t, nil)
	ctx := context.Background()
	info := createCluster(t, r, &CreateClusterRequest{NumPoints: 100, Seed: 3})

	bad := cluster.DefaultOptions()
	bad.Radius = -1
	_, err := r.CreateCluster(ctx, &CreateClusterRequest{NumPoints: 100, Options: &bad})
	assert.ErrorIs(t, err, cluster.ErrConfiguration)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = r.CreateCluster(cancelled, &CreateClusterRequest{NumPoints: 100})
	assert.ErrorIs(t, err, context.Canceled)

	list, err := r.ListClusters(ctx, &ListClustersRequest{})
	require.NoError(t, err)
	require.Len(t, list.Clusters, 1)
	assert.Equal(t, info.ID, list.Clusters[0].ID)
	assert.True(t, list.Clusters[0].Current)

	resp, err := r.GetClusters(ctx, &GetClustersRequest{Bounds: worldBounds})
	require.NoError(t, err)
	assert.Equal(t, info.ID, resp.ClusterID)
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	r := newTestRunner(t, func(c *config.Config) { c.MaxClusters = 2 })
	ctx := context.Background()

	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	first := createCluster(t, r, &CreateClusterRequest{NumPoints: 10, Seed: 1})
	second := createCluster(t, r, &CreateClusterRequest{NumPoints: 10, Seed: 2})

	// touching first makes second the least recently used.
	_, err := r.GetClusters(ctx, &GetClustersRequest{ClusterID: first.ID, Bounds: worldBounds})
	require.NoError(t, err)

	third := createCluster(t, r, &CreateClusterRequest{NumPoints: 10, Seed: 3})

	list, err := r.ListClusters(ctx, &ListClustersRequest{})
	require.NoError(t, err)
	ids := []string{}
	for _, c := range list.Clusters {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{third.ID, first.ID}, ids)

	_, err = r.GetClusters(ctx, &GetClustersRequest{ClusterID: second.ID, Bounds: worldBounds})
	assert.ErrorIs(t, err, ErrClusterNotFound)
}

func TestCleanupIdleSparesCurrent(t *testing.T) {
	r := newTestRunner(t, func(c *config.Config) { c.IdleTimeout = "10m" })

	old := createCluster(t, r, &CreateClusterRequest{NumPoints: 10, Seed: 1})
	current := createCluster(t, r, &CreateClusterRequest{NumPoints: 10, Seed: 2})

	assert.Empty(t, r.cleanupIdle(time.Now().Add(5*time.Minute)))
	assert.Equal(t, []string{old.ID}, r.cleanupIdle(time.Now().Add(time.Hour)))

	list, err := r.ListClusters(context.Background(), &ListClustersRequest{})
	require.NoError(t, err)
	require.Len(t, list.Clusters, 1)
	assert.Equal(t, current.ID, list.Clusters[0].ID)
}

func TestStartCleanupStopsWithContext(t *testing.T) {
	for _, timeout := range []string{"", "10m"} {
		r := newTestRunner(t, func(c *config.Config) { c.IdleTimeout = timeout })
		ctx, cancel := context.WithCancel(context.Background())
		r.StartCleanup(ctx)
		cancel()
	}
}

func TestDeleteCluster(t *testing.T) {
	r := newTestRunner(t, nil)
	ctx := context.Background()
	info := createCluster(t, r, &CreateClusterRequest{NumPoints: 10, Seed: 1})

	_, err := r.DeleteCluster(ctx, &DeleteClusterRequest{ClusterID: info.ID})
	require.NoError(t, err)

	_, err = r.DeleteCluster(ctx, &DeleteClusterRequest{ClusterID: info.ID})
	assert.ErrorIs(t, err, ErrClusterNotFound)

	_, err = r.GetClusters(ctx, &GetClustersRequest{Bounds: worldBounds})
	assert.ErrorIs(t, err, ErrClusterNotFound)
}

func TestBuildFromSavedDataset(t *testing.T) {
	r := newTestRunner(t, nil)
	ctx := context.Background()

	saved := createCluster(t, r, &CreateClusterRequest{NumPoints: 300, Seed: 4, Save: true})
	require.NotEmpty(t, saved.Dataset)
	assert.FileExists(t, saved.Dataset)

	datasets, err := r.ListDatasets(ctx, &ListDatasetsRequest{})
	require.NoError(t, err)
	require.Len(t, datasets.Datasets, 1)
	name := datasets.Datasets[0].Name
	assert.Equal(t, filepath.Base(saved.Dataset), name)
	assert.Regexp(t, `^points-300p-\d{8}-\d{6}-[0-9a-f]{8}\.zst$`, name)

	loaded := createCluster(t, r, &CreateClusterRequest{Dataset: name})
	assert.Equal(t, "dataset", loaded.Source)
	assert.Equal(t, 300, loaded.NumPoints)

	a, err := r.GetClusters(ctx, &GetClustersRequest{ClusterID: saved.ID, Zoom: 3, Bounds: worldBounds})
	require.NoError(t, err)
	b, err := r.GetClusters(ctx, &GetClustersRequest{ClusterID: loaded.ID, Zoom: 3, Bounds: worldBounds})
	require.NoError(t, err)
	assert.Equal(t, a.Records, b.Records)

	_, err = r.CreateCluster(ctx, &CreateClusterRequest{Dataset: "missing.zst"})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDatasetOutsideSaveDir(t *testing.T) {
	r := newTestRunner(t, nil)
	ctx := context.Background()

	outside := filepath.Join(filepath.Dir(r.saveDir), "secret.zst")
	require.NoError(t, cluster.SavePointsCompressed(outside, cluster.GenerateTestPoints(10, generateBounds, 1)))

	for _, name := range []string{"../secret.zst", outside, "a/../../secret.zst", ""} {
		_, err := r.CreateCluster(ctx, &CreateClusterRequest{Dataset: name, NumPoints: 0})
		assert.ErrorIs(t, err, ErrInvalidRequest, name)
	}

	list, err := r.ListClusters(ctx, &ListClustersRequest{})
	require.NoError(t, err)
	assert.Empty(t, list.Clusters)
}

func TestResolveDatasetPath(t *testing.T) {
	path, err := resolveDatasetPath("data", "points.zst")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("data", "points.zst"), path)

	path, err = resolveDatasetPath("data", "nested/./points.pts")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("data", "nested", "points.pts"), path)

	for _, name := range []string{"../../etc/secret.zst", "/etc/secret.zst", ".."} {
		_, err := resolveDatasetPath("data", name)
		assert.ErrorIs(t, err, ErrInvalidRequest, name)
	}
}

func TestCustomAccumulators(t *testing.T) {
	r := newTestRunner(t, func(c *config.Config) {
		c.Accumulators = []config.AccumulatorConfig{{Name: "total", Kind: "attribute_sum"}}
	})
	info := createCluster(t, r, &CreateClusterRequest{NumPoints: 50, Seed: 5, Accumulators: []string{"total", "nope"}})
	assert.Equal(t, []string{"total"}, info.Accumulators)
}

func TestListDatasetsWithoutDirectory(t *testing.T) {
	r := newTestRunner(t, func(c *config.Config) { c.SaveDir = filepath.Join(t.TempDir(), "absent") })
	resp, err := r.ListDatasets(context.Background(), &ListDatasetsRequest{})
	require.NoError(t, err)
	assert.Empty(t, resp.Datasets)
}

func TestFormatFileSize(t *testing.T) {
	assert.Equal(t, "512 B", formatFileSize(512))
	assert.Equal(t, "1.5 KB", formatFileSize(1536))
	assert.Equal(t, "3.0 MB", formatFileSize(3*1024*1024))
}
