package transport

import (
	"context"

	"google.golang.org/grpc"

	"github.com/google/uuid"
	"github.com/dsrb/rebuildd/internal/rebuild"
	"github.com/dsrb/rebuildd/pkg/types"
)

// AdminServiceName is the gRPC service rebuildctl dials for operator
// commands, distinct from rebuild.RebuildService's leader/target RPCs.
const AdminServiceName = "rebuild.AdminService"

// ScheduleRequest is rebuildctl schedule's wire payload.
type ScheduleRequest struct {
	PoolID        uuid.UUID
	MapVersion    uint32
	FailedTargets types.RankList
	ServiceList   types.RankList
}

// ScheduleReply acknowledges a schedule request was enqueued.
type ScheduleReply struct {
	Accepted bool
}

// StatusRequest is rebuildctl query's wire payload.
type StatusRequest struct {
	PoolID        uuid.UUID
	DoBcast       bool
	FailedTargets types.RankList
}

// StatusReply carries the queried rebuild status.
type StatusReply struct {
	Status types.RebuildStatus
}

// AdminHandler is the server-side surface rebuildctl talks to: enqueue a
// rebuild and read back its status, both routed through the leader's
// rebuild.Service/poolsvc.Service pair.
type AdminHandler interface {
	Schedule(ctx context.Context, req *ScheduleRequest) (*ScheduleReply, error)
	Query(ctx context.Context, req *StatusRequest) (*StatusReply, error)
}

// AdminServiceDesc is the hand-written ServiceDesc for AdminHandler, built the
// same way as ServiceDesc since no protoc-generated stub exists to adapt.
var AdminServiceDesc = grpc.ServiceDesc{
	ServiceName: AdminServiceName,
	HandlerType: (*AdminHandler)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Schedule", Handler: adminScheduleHandler},
		{MethodName: "Query", Handler: adminQueryHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "internal/transport/admin.go",
}

func adminScheduleHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ScheduleRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminHandler).Schedule(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + AdminServiceName + "/Schedule"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AdminHandler).Schedule(ctx, req.(*ScheduleRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func adminQueryHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(StatusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminHandler).Query(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + AdminServiceName + "/Query"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AdminHandler).Query(ctx, req.(*StatusRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterAdmin registers h as the AdminService implementation on s.
func RegisterAdmin(s *grpc.Server, h AdminHandler) {
	s.RegisterService(&AdminServiceDesc, h)
}

// AdminServer implements AdminHandler against a rebuild.Service and the
// poolsvc.Service (as a rebuild.PoolService) backing it.
type AdminServer struct {
	rebuildSvc *rebuild.Service
	poolSvc    rebuild.PoolService
}

// NewAdminServer wires an AdminServer.
func NewAdminServer(rebuildSvc *rebuild.Service, poolSvc rebuild.PoolService) *AdminServer {
	return &AdminServer{rebuildSvc: rebuildSvc, poolSvc: poolSvc}
}

func (a *AdminServer) Schedule(ctx context.Context, req *ScheduleRequest) (*ScheduleReply, error) {
	if err := a.rebuildSvc.Schedule(ctx, req.PoolID, req.MapVersion, req.FailedTargets, req.ServiceList); err != nil {
		return nil, err
	}
	return &ScheduleReply{Accepted: true}, nil
}

func (a *AdminServer) Query(ctx context.Context, req *StatusRequest) (*StatusReply, error) {
	status, err := a.rebuildSvc.Query(ctx, a.poolSvc, req.PoolID, req.DoBcast, req.FailedTargets)
	if err != nil {
		return nil, err
	}
	return &StatusReply{Status: status}, nil
}
