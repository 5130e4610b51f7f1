package runner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"web/supercluster/cluster"
	"web/supercluster/config"
)

var (
	// ErrClusterNotFound reports a pyramid id the runner does not hold,
	// either never built, deleted or evicted.
	ErrClusterNotFound = errors.New("cluster not found")

	// ErrInvalidRequest reports a request that fails validation before
	// reaching the engine.
	ErrInvalidRequest = errors.New("invalid request")
)

const maxGeneratedPoints = 10_000_000

// generated points stay inside the latitudes a web mercator map shows.
var generateBounds = orb.Bound{Min: orb.Point{-180, -85}, Max: orb.Point{180, 85}}

// ClusterService is the query surface shared by the in-process runner and
// the gRPC client.
type ClusterService interface {
	CreateCluster(ctx context.Context, req *CreateClusterRequest) (*CreateClusterResponse, error)
	ListClusters(ctx context.Context, req *ListClustersRequest) (*ListClustersResponse, error)
	DeleteCluster(ctx context.Context, req *DeleteClusterRequest) (*DeleteClusterResponse, error)
	ListDatasets(ctx context.Context, req *ListDatasetsRequest) (*ListDatasetsResponse, error)
	GetClusters(ctx context.Context, req *GetClustersRequest) (*RecordsResponse, error)
	GetTile(ctx context.Context, req *GetTileRequest) (*RecordsResponse, error)
	GetSummary(ctx context.Context, req *GetClustersRequest) (*SummaryResponse, error)
	GetChildren(ctx context.Context, req *NodeRequest) (*RecordsResponse, error)
	GetLeaves(ctx context.Context, req *LeavesRequest) (*RecordsResponse, error)
	GetExpansionZoom(ctx context.Context, req *NodeRequest) (*ExpansionZoomResponse, error)
	GetGeometry(ctx context.Context, req *NodeRequest) (*GeometryResponse, error)
	GetDescendants(ctx context.Context, req *NodeRequest) (*DescendantsResponse, error)
}

type entry struct {
	info         ClusterInfo
	index        *cluster.Index
	lastAccessed atomic.Int64 // unix nanos
}

func (e *entry) touch(now time.Time) { e.lastAccessed.Store(now.UnixNano()) }

// ClusterRunner holds built pyramids. Each build gets a fresh uuid and
// becomes the current pyramid; queries with an empty cluster id go to the
// current one. Pyramids are immutable, so queries only hold the read lock
// long enough to find one.
type ClusterRunner struct {
	clusters    map[string]*entry
	clusterLock sync.RWMutex
	current     atomic.Pointer[string]

	maxClusters int
	idleTimeout time.Duration
	saveDir     string
	opts        cluster.Options
	registry    cluster.Registry

	now func() time.Time
}

var _ ClusterService = (*ClusterRunner)(nil)

// NewClusterRunner prepares an empty runner from cfg.
func NewClusterRunner(cfg *config.Config) (*ClusterRunner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	registry, err := cfg.Registry()
	if err != nil {
		return nil, err
	}
	idle, err := cfg.IdleTimeoutDuration()
	if err != nil {
		return nil, err
	}
	return &ClusterRunner{
		clusters:    make(map[string]*entry),
		maxClusters: cfg.MaxClusters,
		idleTimeout: idle,
		saveDir:     cfg.SaveDir,
		opts:        cfg.ClusterOptions(),
		registry:    registry,
		now:         time.Now,
	}, nil
}

// StartCleanup evicts pyramids idle for longer than the idle timeout until
// ctx is done. The current pyramid is never evicted this way.
func (r *ClusterRunner) StartCleanup(ctx context.Context) {
	if r.idleTimeout <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(max(r.idleTimeout/6, time.Second))
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if removed := r.cleanupIdle(now); len(removed) > 0 {
					log.Printf("[ClusterRunner] evicted %d idle clusters: %v", len(removed), removed)
				}
			}
		}
	}()
}

func (r *ClusterRunner) cleanupIdle(now time.Time) []string {
	r.clusterLock.Lock()
	defer r.clusterLock.Unlock()

	current := r.currentID()
	var removed []string
	for id, e := range r.clusters {
		if id == current {
			continue
		}
		if now.Sub(time.Unix(0, e.lastAccessed.Load())) > r.idleTimeout {
			delete(r.clusters, id)
			removed = append(removed, id)
		}
	}
	slices.Sort(removed)
	return removed
}

func (r *ClusterRunner) currentID() string {
	if p := r.current.Load(); p != nil {
		return *p
	}
	return ""
}

// evictLRU drops the least recently used pyramid. Callers hold the write lock.
func (r *ClusterRunner) evictLRU() {
	var oldestID string
	var oldest int64
	for id, e := range r.clusters {
		if t := e.lastAccessed.Load(); oldestID == "" || t < oldest {
			oldestID, oldest = id, t
		}
	}
	if oldestID != "" {
		delete(r.clusters, oldestID)
		log.Printf("[ClusterRunner] evicted least recently used cluster %s", oldestID)
	}
}

// lookup finds a pyramid, the current one for an empty id.
func (r *ClusterRunner) lookup(id string) (string, *cluster.Index, error) {
	if id == "" {
		id = r.currentID()
		if id == "" {
			return "", nil, fmt.Errorf("%w: no clusters built yet", ErrClusterNotFound)
		}
	}

	r.clusterLock.RLock()
	e, ok := r.clusters[id]
	r.clusterLock.RUnlock()
	if !ok {
		return "", nil, fmt.Errorf("%w: %s", ErrClusterNotFound, id)
	}
	e.touch(r.now())
	return id, e.index, nil
}

func (r *ClusterRunner) lookupNode(clusterID string, node uint64) (string, *cluster.Index, cluster.ClusterID, error) {
	id, ix, err := r.lookup(clusterID)
	if err != nil {
		return "", nil, cluster.ClusterID{}, err
	}
	cid, err := ix.Decode(node)
	if err != nil {
		return "", nil, cluster.ClusterID{}, err
	}
	return id, ix, cid, nil
}

func (r *ClusterRunner) points(req *CreateClusterRequest) ([]cluster.Point, string, error) {
	if req.Dataset != "" {
		path, err := resolveDatasetPath(r.saveDir, req.Dataset)
		if err != nil {
			return nil, "", err
		}
		points, err := cluster.LoadPoints(path)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load dataset %s: %w", req.Dataset, err)
		}
		return points, path, nil
	}
	if req.NumPoints <= 0 || req.NumPoints > maxGeneratedPoints {
		return nil, "", fmt.Errorf("%w: numPoints must be in 1..%d, got %d", ErrInvalidRequest, maxGeneratedPoints, req.NumPoints)
	}
	seed := req.Seed
	if seed == 0 {
		seed = r.now().UnixNano()
	}
	return cluster.GenerateTestPoints(req.NumPoints, generateBounds, seed), "", nil
}

// CreateCluster builds a pyramid and makes it current. A failed build
// leaves every held pyramid and the current one untouched.
func (r *ClusterRunner) CreateCluster(ctx context.Context, req *CreateClusterRequest) (*CreateClusterResponse, error) {
	points, dataset, err := r.points(req)
	if err != nil {
		return nil, err
	}
	log.Printf("[ClusterRunner] creating new cluster with %d points", len(points))

	opts := r.opts
	if req.Options != nil {
		opts = *req.Options
	}

	start := r.now()
	b := cluster.NewBuilder(opts)
	for name, acc := range r.registry {
		b.Register(name, acc)
	}
	b.AddPoints(points)
	ix, err := b.Finish(ctx, req.Accumulators...)
	if err != nil {
		return nil, err
	}

	if req.Dataset == "" && req.Save {
		path := datasetFilename(r.saveDir, len(points), start)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create save directory: %w", err)
		}
		if err := cluster.SavePointsCompressed(path, points); err != nil {
			return nil, fmt.Errorf("failed to save points: %w", err)
		}
		dataset = path
	}

	id := uuid.New().String()
	source := "generated"
	if req.Dataset != "" {
		source = "dataset"
	}
	e := &entry{
		index: ix,
		info: ClusterInfo{
			ID:            id,
			NumPoints:     ix.NumPoints(),
			Options:       ix.Options(),
			Accumulators:  ix.Accumulators(),
			Source:        source,
			Dataset:       dataset,
			BuiltAt:       start,
			BuildDuration: r.now().Sub(start),
		},
	}
	e.touch(r.now())

	r.clusterLock.Lock()
	for len(r.clusters) >= r.maxClusters {
		r.evictLRU()
	}
	r.clusters[id] = e
	r.current.Store(&id)
	r.clusterLock.Unlock()

	log.Printf("[ClusterRunner] built cluster %s: %d points in %v", id, ix.NumPoints(), e.info.BuildDuration)

	info := e.info
	info.Current = true
	return &CreateClusterResponse{Cluster: info}, nil
}

// ListClusters returns held pyramids, most recent first.
func (r *ClusterRunner) ListClusters(ctx context.Context, req *ListClustersRequest) (*ListClustersResponse, error) {
	current := r.currentID()

	r.clusterLock.RLock()
	clusters := make([]ClusterInfo, 0, len(r.clusters))
	for id, e := range r.clusters {
		info := e.info
		info.Current = id == current
		clusters = append(clusters, info)
	}
	r.clusterLock.RUnlock()

	slices.SortFunc(clusters, func(a, b ClusterInfo) int {
		return b.BuiltAt.Compare(a.BuiltAt)
	})
	return &ListClustersResponse{Clusters: clusters}, nil
}

// DeleteCluster drops a pyramid. Deleting the current one leaves the
// runner without a current pyramid until the next build.
func (r *ClusterRunner) DeleteCluster(ctx context.Context, req *DeleteClusterRequest) (*DeleteClusterResponse, error) {
	r.clusterLock.Lock()
	defer r.clusterLock.Unlock()

	if _, ok := r.clusters[req.ClusterID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrClusterNotFound, req.ClusterID)
	}
	delete(r.clusters, req.ClusterID)
	if r.currentID() == req.ClusterID {
		r.current.Store(nil)
	}
	return &DeleteClusterResponse{}, nil
}

func (r *ClusterRunner) ListDatasets(ctx context.Context, req *ListDatasetsRequest) (*ListDatasetsResponse, error) {
	datasets, err := listDatasets(r.saveDir)
	if err != nil {
		return nil, err
	}
	return &ListDatasetsResponse{Datasets: datasets}, nil
}

func (r *ClusterRunner) GetClusters(ctx context.Context, req *GetClustersRequest) (*RecordsResponse, error) {
	if err := req.Bounds.validate(); err != nil {
		return nil, err
	}
	id, ix, err := r.lookup(req.ClusterID)
	if err != nil {
		return nil, err
	}
	return &RecordsResponse{ClusterID: id, Records: ix.GetClusters(req.Bounds.bound(), req.Zoom)}, nil
}

func (r *ClusterRunner) GetTile(ctx context.Context, req *GetTileRequest) (*RecordsResponse, error) {
	id, ix, err := r.lookup(req.ClusterID)
	if err != nil {
		return nil, err
	}
	records, err := ix.GetTile(req.Z, req.X, req.Y)
	if err != nil {
		return nil, err
	}
	return &RecordsResponse{ClusterID: id, Records: records}, nil
}

func (r *ClusterRunner) GetSummary(ctx context.Context, req *GetClustersRequest) (*SummaryResponse, error) {
	resp, err := r.GetClusters(ctx, req)
	if err != nil {
		return nil, err
	}
	return &SummaryResponse{ClusterID: resp.ClusterID, Summary: cluster.Summarize(resp.Records)}, nil
}

func (r *ClusterRunner) GetChildren(ctx context.Context, req *NodeRequest) (*RecordsResponse, error) {
	id, ix, node, err := r.lookupNode(req.ClusterID, req.Node)
	if err != nil {
		return nil, err
	}
	children, err := ix.GetChildren(node)
	if err != nil {
		return nil, err
	}
	return &RecordsResponse{ClusterID: id, Records: children}, nil
}

func (r *ClusterRunner) GetLeaves(ctx context.Context, req *LeavesRequest) (*RecordsResponse, error) {
	id, ix, node, err := r.lookupNode(req.ClusterID, req.Node)
	if err != nil {
		return nil, err
	}
	leaves, err := ix.GetLeaves(node, req.Limit, req.Offset)
	if err != nil {
		return nil, err
	}
	return &RecordsResponse{ClusterID: id, Records: leaves}, nil
}

func (r *ClusterRunner) GetExpansionZoom(ctx context.Context, req *NodeRequest) (*ExpansionZoomResponse, error) {
	_, ix, node, err := r.lookupNode(req.ClusterID, req.Node)
	if err != nil {
		return nil, err
	}
	zoom, err := ix.GetClusterExpansionZoom(node)
	if err != nil {
		return nil, err
	}
	return &ExpansionZoomResponse{Zoom: zoom}, nil
}

func (r *ClusterRunner) GetGeometry(ctx context.Context, req *NodeRequest) (*GeometryResponse, error) {
	_, ix, node, err := r.lookupNode(req.ClusterID, req.Node)
	if err != nil {
		return nil, err
	}
	geometry, err := ix.Geometry(node)
	if err != nil {
		return nil, err
	}
	return &GeometryResponse{Geometry: geometry}, nil
}

func (r *ClusterRunner) GetDescendants(ctx context.Context, req *NodeRequest) (*DescendantsResponse, error) {
	_, ix, node, err := r.lookupNode(req.ClusterID, req.Node)
	if err != nil {
		return nil, err
	}
	ids, err := ix.DescendantClusterIDs(node)
	if err != nil {
		return nil, err
	}
	return &DescendantsResponse{IDs: ids}, nil
}
