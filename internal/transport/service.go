package transport

import (
	"context"

	"google.golang.org/grpc"

	"github.com/dsrb/rebuildd/internal/rebuild"
)

// ServiceName is the gRPC service name targets and the leader dial.
const ServiceName = "rebuild.RebuildService"

// Handler is the server-side RPC surface one rebuild process exposes to its
// peers: a target handling a broadcast the leader (or another target acting
// as leader for a different pool) issued against it.
type Handler interface {
	ObjectsScan(ctx context.Context, req *rebuild.ScanRequest) (*rebuild.RPCReply, error)
	TgtFini(ctx context.Context, req *rebuild.FiniRequest) (*rebuild.RPCReply, error)
	TgtQuery(ctx context.Context, req *rebuild.QueryRequest) (*rebuild.RPCReply, error)
}

// ServiceDesc is the hand-written equivalent of a protoc-gen-go-grpc
// _ServiceDesc: same shape (grpc.ServiceDesc{Methods: []grpc.MethodDesc{...}}),
// written directly against the three RPCs spec.md defines instead of being
// generated from a .proto file, since none exists in the retrieved pack to
// generate from.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Handler)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ObjectsScan", Handler: objectsScanHandler},
		{MethodName: "TgtFini", Handler: tgtFiniHandler},
		{MethodName: "TgtQuery", Handler: tgtQueryHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "internal/transport/service.go",
}

func objectsScanHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(rebuild.ScanRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Handler).ObjectsScan(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/ObjectsScan"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Handler).ObjectsScan(ctx, req.(*rebuild.ScanRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func tgtFiniHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(rebuild.FiniRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Handler).TgtFini(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/TgtFini"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Handler).TgtFini(ctx, req.(*rebuild.FiniRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func tgtQueryHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(rebuild.QueryRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Handler).TgtQuery(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/TgtQuery"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Handler).TgtQuery(ctx, req.(*rebuild.QueryRequest))
	}
	return interceptor(ctx, in, info, handler)
}
