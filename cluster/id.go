package cluster

import "fmt"

const (
	flatIndexBits = 32
	flatZoomBits  = 8
	flatOriginBit = uint64(1) << (flatIndexBits + flatZoomBits)
	flatZoomMask  = uint64(1)<<flatZoomBits - 1
	flatIndexMask = uint64(1)<<flatIndexBits - 1
)

// ClusterID names either an original input point (origin) or a node created
// by the builder at a given zoom level (synthetic). The zero value is the
// synthetic node 0 at zoom 0.
type ClusterID struct {
	origin bool
	zoom   uint8
	index  uint32
}

// OriginID refers directly to point index in the point store.
func OriginID(index uint32) ClusterID {
	return ClusterID{origin: true, index: index}
}

// SyntheticID refers to node index of the cluster level zoom. Cluster levels
// span 0..maxZoom; the leaf level maxZoom+1 only holds origin ids.
func SyntheticID(zoom int, index uint32, maxZoom int) (ClusterID, error) {
	if zoom < 0 || zoom > maxZoom || zoom > int(flatZoomMask) {
		return ClusterID{}, fmt.Errorf("%w: zoom %d outside 0..%d", ErrInvalidClusterID, zoom, maxZoom)
	}
	return ClusterID{zoom: uint8(zoom), index: index}, nil
}

func (id ClusterID) IsOrigin() bool { return id.origin }

func (id ClusterID) Index() uint32 { return id.index }

// Zoom returns the level the id lives on. Origin ids sit on the virtual leaf
// level maxZoom+1.
func (id ClusterID) Zoom(maxZoom int) int {
	if id.origin {
		return maxZoom + 1
	}
	return int(id.zoom)
}

// Flat packs the id into a single integer: bit 40 is the origin flag,
// bits 32..39 the zoom and bits 0..31 the index within the level.
func (id ClusterID) Flat() uint64 {
	if id.origin {
		return flatOriginBit | uint64(id.index)
	}
	return uint64(id.zoom)<<flatIndexBits | uint64(id.index)
}

func (id ClusterID) String() string {
	if id.origin {
		return fmt.Sprintf("origin:%d", id.index)
	}
	return fmt.Sprintf("z%d:%d", id.zoom, id.index)
}

// DecodeClusterID reverses Flat and checks the zoom against maxZoom.
func DecodeClusterID(flat uint64, maxZoom int) (ClusterID, error) {
	if flat>>(flatIndexBits+flatZoomBits+1) != 0 {
		return ClusterID{}, fmt.Errorf("%w: %d has unknown high bits", ErrInvalidClusterID, flat)
	}
	index := uint32(flat & flatIndexMask)
	zoom := int((flat >> flatIndexBits) & flatZoomMask)
	if flat&flatOriginBit != 0 {
		if zoom != 0 {
			return ClusterID{}, fmt.Errorf("%w: origin id %d carries zoom %d", ErrInvalidClusterID, flat, zoom)
		}
		return OriginID(index), nil
	}
	return SyntheticID(zoom, index, maxZoom)
}

// Compare orders ids by (zoom, index), placing origin ids on the leaf level
// maxZoom+1. It returns -1, 0 or 1.
func Compare(a, b ClusterID, maxZoom int) int {
	za, zb := a.Zoom(maxZoom), b.Zoom(maxZoom)
	switch {
	case za < zb:
		return -1
	case za > zb:
		return 1
	case a.index < b.index:
		return -1
	case a.index > b.index:
		return 1
	}
	return 0
}
