package runner

import (
	"context"
	"errors"
	"os"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"web/supercluster/cluster"
)

const serviceName = "supercluster.ClusterService"

// unaryMethod adapts one ClusterService method to a gRPC handler.
func unaryMethod[Req, Resp any](name string, call func(ClusterService, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ClusterService), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + serviceName + "/" + name,
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ClusterService), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ClusterServiceDesc describes the service for grpc.Server.RegisterService.
// Messages are plain structs carried by the msgpack codec.
var ClusterServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ClusterService)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("CreateCluster", ClusterService.CreateCluster),
		unaryMethod("ListClusters", ClusterService.ListClusters),
		unaryMethod("DeleteCluster", ClusterService.DeleteCluster),
		unaryMethod("ListDatasets", ClusterService.ListDatasets),
		unaryMethod("GetClusters", ClusterService.GetClusters),
		unaryMethod("GetTile", ClusterService.GetTile),
		unaryMethod("GetSummary", ClusterService.GetSummary),
		unaryMethod("GetChildren", ClusterService.GetChildren),
		unaryMethod("GetLeaves", ClusterService.GetLeaves),
		unaryMethod("GetExpansionZoom", ClusterService.GetExpansionZoom),
		unaryMethod("GetGeometry", ClusterService.GetGeometry),
		unaryMethod("GetDescendants", ClusterService.GetDescendants),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "supercluster",
}

// RegisterClusterServiceServer registers svc on s.
func RegisterClusterServiceServer(s grpc.ServiceRegistrar, svc ClusterService) {
	s.RegisterService(&ClusterServiceDesc, svc)
}

// NewGRPCServer returns a server exposing svc with engine errors mapped to
// status codes.
func NewGRPCServer(svc ClusterService, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(statusInterceptor))
	s := grpc.NewServer(opts...)
	RegisterClusterServiceServer(s, svc)
	return s
}

func statusInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	resp, err := handler(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}
	return resp, nil
}

// toStatus maps engine and runner errors to gRPC status errors. The
// message keeps the full error text so the client can recover the sentinel.
func toStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	code := codes.Internal
	switch {
	case errors.Is(err, ErrClusterNotFound),
		errors.Is(err, cluster.ErrUnknownCluster),
		errors.Is(err, os.ErrNotExist):
		code = codes.NotFound
	case errors.Is(err, cluster.ErrInvalidClusterID),
		errors.Is(err, cluster.ErrInvalidTile),
		errors.Is(err, cluster.ErrConfiguration),
		errors.Is(err, ErrInvalidRequest):
		code = codes.InvalidArgument
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	}
	return status.Error(code, err.Error())
}
