package cluster

// Point is one input location in geographic degrees. Attribute is the
// optional integer the accumulators read (the threshold id).
type Point struct {
	Lng       float64
	Lat       float64
	Attribute *int64
}

// Attr returns a pointer to v, for building points inline.
func Attr(v int64) *int64 { return &v }

// PointStore is the immutable array of input points. Everything else refers
// to points by index.
type PointStore struct {
	points []Point
}

// NewPointStore copies points so later changes by the caller do not leak
// into a built pyramid.
func NewPointStore(points []Point) *PointStore {
	owned := make([]Point, len(points))
	copy(owned, points)
	return &PointStore{points: owned}
}

func (s *PointStore) Len() int { return len(s.points) }

func (s *PointStore) At(i uint32) Point { return s.points[i] }
