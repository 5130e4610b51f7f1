package runner

import (
	"fmt"
	"math"
	"time"

	"github.com/paulmach/orb"

	"web/supercluster/cluster"
)

// Bounds is a viewport in degrees. West may exceed East for viewports that
// cross the antimeridian.
type Bounds struct {
	West  float64 `json:"west" msgpack:"west"`
	South float64 `json:"south" msgpack:"south"`
	East  float64 `json:"east" msgpack:"east"`
	North float64 `json:"north" msgpack:"north"`
}

func (b Bounds) validate() error {
	for _, v := range []float64{b.West, b.South, b.East, b.North} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: bounds must be finite", ErrInvalidRequest)
		}
	}
	if b.South > b.North {
		return fmt.Errorf("%w: south %v is north of north %v", ErrInvalidRequest, b.South, b.North)
	}
	return nil
}

func (b Bounds) bound() orb.Bound {
	return orb.Bound{Min: orb.Point{b.West, b.South}, Max: orb.Point{b.East, b.North}}
}

// ClusterInfo describes one built pyramid held by the runner.
type ClusterInfo struct {
	ID            string          `json:"id" msgpack:"id"`
	NumPoints     int             `json:"numPoints" msgpack:"numPoints"`
	Options       cluster.Options `json:"options" msgpack:"options"`
	Accumulators  []string        `json:"accumulators" msgpack:"accumulators"`
	Source        string          `json:"source" msgpack:"source"`
	Dataset       string          `json:"dataset,omitempty" msgpack:"dataset,omitempty"`
	BuiltAt       time.Time       `json:"builtAt" msgpack:"builtAt"`
	BuildDuration time.Duration   `json:"buildDuration" msgpack:"buildDuration"`
	Current       bool            `json:"current" msgpack:"current"`
}

type CreateClusterRequest struct {
	// NumPoints random points are generated when Dataset is empty.
	NumPoints int   `json:"numPoints" msgpack:"numPoints"`
	Seed      int64 `json:"seed,omitempty" msgpack:"seed,omitempty"`
	// Dataset is a .zst or .pts file, relative to the save directory
	// unless absolute.
	Dataset string `json:"dataset,omitempty" msgpack:"dataset,omitempty"`
	// Save writes generated points to the save directory.
	Save         bool             `json:"save,omitempty" msgpack:"save,omitempty"`
	Options      *cluster.Options `json:"options,omitempty" msgpack:"options,omitempty"`
	Accumulators []string         `json:"accumulators,omitempty" msgpack:"accumulators,omitempty"`
}

type CreateClusterResponse struct {
	Cluster ClusterInfo `json:"cluster" msgpack:"cluster"`
}

type ListClustersRequest struct{}

type ListClustersResponse struct {
	Clusters []ClusterInfo `json:"clusters" msgpack:"clusters"`
}

type DeleteClusterRequest struct {
	ClusterID string `json:"clusterId" msgpack:"clusterId"`
}

type DeleteClusterResponse struct{}

// DatasetInfo describes a points file in the save directory.
type DatasetInfo struct {
	Name     string    `json:"name" msgpack:"name"`
	FileSize int64     `json:"fileSize" msgpack:"fileSize"`
	Size     string    `json:"size" msgpack:"size"`
	Modified time.Time `json:"modified" msgpack:"modified"`
}

type ListDatasetsRequest struct{}

type ListDatasetsResponse struct {
	Datasets []DatasetInfo `json:"datasets" msgpack:"datasets"`
}

// GetClustersRequest selects the markers of one viewport. An empty
// ClusterID means the most recently built pyramid.
type GetClustersRequest struct {
	ClusterID string `json:"clusterId" msgpack:"clusterId"`
	Zoom      int    `json:"zoom" msgpack:"zoom"`
	Bounds    Bounds `json:"bounds" msgpack:"bounds"`
}

type GetTileRequest struct {
	ClusterID string `json:"clusterId" msgpack:"clusterId"`
	Z         int    `json:"z" msgpack:"z"`
	X         int    `json:"x" msgpack:"x"`
	Y         int    `json:"y" msgpack:"y"`
}

type RecordsResponse struct {
	ClusterID string           `json:"clusterId" msgpack:"clusterId"`
	Records   []cluster.Record `json:"records" msgpack:"records"`
}

type SummaryResponse struct {
	ClusterID string          `json:"clusterId" msgpack:"clusterId"`
	Summary   cluster.Summary `json:"summary" msgpack:"summary"`
}

// NodeRequest addresses one node of a pyramid by its flat id.
type NodeRequest struct {
	ClusterID string `json:"clusterId" msgpack:"clusterId"`
	Node      uint64 `json:"node" msgpack:"node"`
}

type LeavesRequest struct {
	ClusterID string `json:"clusterId" msgpack:"clusterId"`
	Node      uint64 `json:"node" msgpack:"node"`
	Limit     int    `json:"limit" msgpack:"limit"`
	Offset    int    `json:"offset" msgpack:"offset"`
}

type ExpansionZoomResponse struct {
	Zoom int `json:"zoom" msgpack:"zoom"`
}

type GeometryResponse struct {
	Geometry cluster.GeometryResult `json:"geometry" msgpack:"geometry"`
}

type DescendantsResponse struct {
	IDs []uint64 `json:"ids" msgpack:"ids"`
}
