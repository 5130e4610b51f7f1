package cluster

import "fmt"

// Level index backends.
const (
	IndexKDTree = "kdtree"
	IndexRTree  = "rtree"
)

// maxSupportedZoom keeps 2^zoom*tileSize well inside float64 precision and
// the zoom inside the 8 bits of a flat id.
const maxSupportedZoom = 30

// Options configures a pyramid build.
type Options struct {
	MaxZoom   int     `json:"max_zoom" msgpack:"max_zoom"`     // finest cluster level
	Radius    float64 `json:"radius" msgpack:"radius"`         // cluster radius in pixels
	TileSize  int     `json:"tile_size" msgpack:"tile_size"`   // tile size in pixels used by the radius formula
	NodeSize  int     `json:"node_size" msgpack:"node_size"`   // leaf bucket size of the KD-tree
	IndexKind string  `json:"index_kind" msgpack:"index_kind"` // IndexKDTree or IndexRTree
	Log       bool    `json:"log" msgpack:"log"`
}

// DefaultOptions returns max zoom 16, a 40 pixel radius on 256 pixel tiles
// and the KD-tree backend.
func DefaultOptions() Options {
	return Options{
		MaxZoom:   16,
		Radius:    40,
		TileSize:  256,
		NodeSize:  64,
		IndexKind: IndexKDTree,
	}
}

// Validate reports the first option that cannot produce a pyramid.
func (o Options) Validate() error {
	switch {
	case o.MaxZoom < 0 || o.MaxZoom > maxSupportedZoom:
		return fmt.Errorf("%w: max zoom %d outside 0..%d", ErrConfiguration, o.MaxZoom, maxSupportedZoom)
	case !(o.Radius > 0):
		return fmt.Errorf("%w: radius must be positive, got %v", ErrConfiguration, o.Radius)
	case o.TileSize <= 0:
		return fmt.Errorf("%w: tile size must be positive, got %d", ErrConfiguration, o.TileSize)
	case o.NodeSize < 2:
		return fmt.Errorf("%w: node size must be at least 2, got %d", ErrConfiguration, o.NodeSize)
	case o.IndexKind != IndexKDTree && o.IndexKind != IndexRTree:
		return fmt.Errorf("%w: unknown index kind %q", ErrConfiguration, o.IndexKind)
	}
	return nil
}

// levelRadius is the clustering radius at zoom in projected units.
func (o Options) levelRadius(zoom int) float64 {
	return o.Radius / (float64(o.TileSize) * float64(uint64(1)<<uint(zoom)))
}
