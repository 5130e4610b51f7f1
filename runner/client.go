package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"web/supercluster/cluster"
)

// Client is a ClusterService backed by a remote runner.
type Client struct {
	conn *grpc.ClientConn
}

var _ ClusterService = (*Client)(nil)

// NewClient connects to a runner at target. Extra options are applied after
// the insecure transport and msgpack defaults.
func NewClient(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to cluster runner: %w", err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

func invoke[Resp any](ctx context.Context, c *Client, method string, in any) (*Resp, error) {
	out := new(Resp)
	if err := c.conn.Invoke(ctx, "/"+serviceName+"/"+method, in, out); err != nil {
		return nil, fromStatus(err)
	}
	return out, nil
}

// remoteError carries a runner error message and the sentinel it matched.
type remoteError struct {
	sentinel error
	msg      string
}

func (e *remoteError) Error() string { return e.msg }

func (e *remoteError) Unwrap() error { return e.sentinel }

// fromStatus reverses toStatus so callers can use errors.Is against the
// engine and runner sentinels.
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	var candidates []error
	switch st.Code() {
	case codes.NotFound:
		candidates = []error{ErrClusterNotFound, cluster.ErrUnknownCluster, os.ErrNotExist}
	case codes.InvalidArgument:
		candidates = []error{cluster.ErrInvalidClusterID, cluster.ErrInvalidTile, cluster.ErrConfiguration, ErrInvalidRequest}
	case codes.Canceled:
		candidates = []error{context.Canceled}
	case codes.DeadlineExceeded:
		candidates = []error{context.DeadlineExceeded}
	default:
		return errors.New(st.Message())
	}
	for _, sentinel := range candidates {
		if strings.Contains(st.Message(), sentinel.Error()) {
			return &remoteError{sentinel: sentinel, msg: st.Message()}
		}
	}
	// the last candidate is the catch-all for its code.
	return &remoteError{sentinel: candidates[len(candidates)-1], msg: st.Message()}
}

func (c *Client) CreateCluster(ctx context.Context, req *CreateClusterRequest) (*CreateClusterResponse, error) {
	return invoke[CreateClusterResponse](ctx, c, "CreateCluster", req)
}

func (c *Client) ListClusters(ctx context.Context, req *ListClustersRequest) (*ListClustersResponse, error) {
	return invoke[ListClustersResponse](ctx, c, "ListClusters", req)
}

func (c *Client) DeleteCluster(ctx context.Context, req *DeleteClusterRequest) (*DeleteClusterResponse, error) {
	return invoke[DeleteClusterResponse](ctx, c, "DeleteCluster", req)
}

func (c *Client) ListDatasets(ctx context.Context, req *ListDatasetsRequest) (*ListDatasetsResponse, error) {
	return invoke[ListDatasetsResponse](ctx, c, "ListDatasets", req)
}

func (c *Client) GetClusters(ctx context.Context, req *GetClustersRequest) (*RecordsResponse, error) {
	return invoke[RecordsResponse](ctx, c, "GetClusters", req)
}

func (c *Client) GetTile(ctx context.Context, req *GetTileRequest) (*RecordsResponse, error) {
	return invoke[RecordsResponse](ctx, c, "GetTile", req)
}

func (c *Client) GetSummary(ctx context.Context, req *GetClustersRequest) (*SummaryResponse, error) {
	return invoke[SummaryResponse](ctx, c, "GetSummary", req)
}

func (c *Client) GetChildren(ctx context.Context, req *NodeRequest) (*RecordsResponse, error) {
	return invoke[RecordsResponse](ctx, c, "GetChildren", req)
}

func (c *Client) GetLeaves(ctx context.Context, req *LeavesRequest) (*RecordsResponse, error) {
	return invoke[RecordsResponse](ctx, c, "GetLeaves", req)
}

func (c *Client) GetExpansionZoom(ctx context.Context, req *NodeRequest) (*ExpansionZoomResponse, error) {
	return invoke[ExpansionZoomResponse](ctx, c, "GetExpansionZoom", req)
}

func (c *Client) GetGeometry(ctx context.Context, req *NodeRequest) (*GeometryResponse, error) {
	return invoke[GeometryResponse](ctx, c, "GetGeometry", req)
}

func (c *Client) GetDescendants(ctx context.Context, req *NodeRequest) (*DescendantsResponse, error) {
	return invoke[DescendantsResponse](ctx, c, "GetDescendants", req)
}
