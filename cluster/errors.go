package cluster

import "errors"

var (
	// ErrInvalidClusterID reports a malformed id, such as a zoom outside the
	// pyramid. It is always a caller bug.
	ErrInvalidClusterID = errors.New("invalid cluster id")

	// ErrUnknownCluster reports a well-formed id that the built index does
	// not contain, typically a stale id kept across a rebuild.
	ErrUnknownCluster = errors.New("unknown cluster")

	// ErrConfiguration reports options that cannot produce a pyramid.
	ErrConfiguration = errors.New("invalid cluster configuration")

	// ErrInvalidTile reports tile coordinates outside the zoom's grid.
	ErrInvalidTile = errors.New("invalid tile")
)
