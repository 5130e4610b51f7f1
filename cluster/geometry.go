package cluster

import (
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// GeometryResult summarises the leaves of a cluster.
type GeometryResult struct {
	Centroid   orb.Point `json:"centroid" msgpack:"centroid"`
	ConvexHull orb.Ring  `json:"convex_hull" msgpack:"convex_hull"`
}

// Geometry returns the centroid and convex hull of every leaf below id.
func (ix *Index) Geometry(id ClusterID) (GeometryResult, error) {
	leaves, err := ix.GetLeaves(id, 0, 0)
	if err != nil {
		return GeometryResult{}, err
	}
	points := make(orb.MultiPoint, len(leaves))
	for i, l := range leaves {
		points[i] = orb.Point{l.X, l.Y}
	}
	return GeometryOf(points), nil
}

// GeometryOf computes the centroid and hull of points. No points gives a
// centroid of (0, 0) and an empty hull.
func GeometryOf(points orb.MultiPoint) GeometryResult {
	if len(points) == 0 {
		return GeometryResult{Centroid: orb.Point{0, 0}, ConvexHull: orb.Ring{}}
	}
	centroid, _ := planar.CentroidArea(points)
	return GeometryResult{
		Centroid:   centroid,
		ConvexHull: ConvexHull(points),
	}
}

// ConvexHull returns the closed counter-clockwise hull of points (Andrew's
// monotone chain). Collinear points on the hull edges are dropped, so a
// single point gives [p, p] and a line gives [a, b, a].
func ConvexHull(points orb.MultiPoint) orb.Ring {
	sorted := slices.Clone([]orb.Point(points))
	slices.SortFunc(sorted, func(a, b orb.Point) int {
		switch {
		case a[0] < b[0]:
			return -1
		case a[0] > b[0]:
			return 1
		case a[1] < b[1]:
			return -1
		case a[1] > b[1]:
			return 1
		}
		return 0
	})
	sorted = slices.Compact(sorted)

	if len(sorted) < 3 {
		hull := orb.Ring(sorted)
		if len(sorted) > 0 {
			hull = append(hull, sorted[0])
		}
		return hull
	}

	cross := func(o, a, b orb.Point) float64 {
		return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
	}

	hull := make(orb.Ring, 0, 2*len(sorted))
	for _, p := range sorted {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(sorted) - 2; i >= 0; i-- {
		p := sorted[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	// the last point appended is sorted[0], closing the ring.
	return hull
}
