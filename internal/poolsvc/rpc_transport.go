package poolsvc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"

	"github.com/dsrb/rebuildd/internal/transport"
)

// raftServiceName and the codec subtype mirror internal/transport/service.go
// and codec.go exactly: a hand-written grpc.ServiceDesc in place of
// protoc-generated bindings, carried by the same registered JSON codec
// (gRPC picks a codec by content-subtype name, so registering once in
// internal/transport covers both services on one process).
const raftServiceName = "poolsvc.RaftService"

// raftHandler is the server-side surface one pool-map node exposes to its
// Raft peers.
type raftHandler interface {
	RequestVote(args *RequestVoteArgs, reply *RequestVoteReply)
	AppendEntries(args *AppendEntriesArgs, reply *AppendEntriesReply)
}

var raftServiceDesc = grpc.ServiceDesc{
	ServiceName: raftServiceName,
	HandlerType: (*raftHandler)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RequestVote", Handler: requestVoteHandler},
		{MethodName: "AppendEntries", Handler: appendEntriesHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "internal/poolsvc/rpc_transport.go",
}

func requestVoteHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(RequestVoteArgs)
	if err := dec(in); err != nil {
		return nil, err
	}
	run := func(ctx context.Context, req any) (any, error) {
		reply := new(RequestVoteReply)
		srv.(raftHandler).RequestVote(req.(*RequestVoteArgs), reply)
		return reply, nil
	}
	if interceptor == nil {
		return run(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + raftServiceName + "/RequestVote"}
	return interceptor(ctx, in, info, run)
}

func appendEntriesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(AppendEntriesArgs)
	if err := dec(in); err != nil {
		return nil, err
	}
	run := func(ctx context.Context, req any) (any, error) {
		reply := new(AppendEntriesReply)
		srv.(raftHandler).AppendEntries(req.(*AppendEntriesArgs), reply)
		return reply, nil
	}
	if interceptor == nil {
		return run(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + raftServiceName + "/AppendEntries"}
	return interceptor(ctx, in, info, run)
}

// RegisterRaft attaches rf's Raft RPC surface to a gRPC server, alongside
// whatever rebuild RPCs internal/transport.Register added to the same
// server.
func RegisterRaft(s *grpc.Server, rf *Raft) {
	s.RegisterService(&raftServiceDesc, rf)
}

// grpcTransport implements Transport over a shared transport.ClientPool,
// grounded in GrpcTransport.SendRequestVote/SendAppendEntries
// (internal/raft/transport.go): dial lazily, call, decode the reply.
type grpcTransport struct {
	clients *transport.ClientPool
}

// NewGrpcTransport returns a Transport that dials peers (Raft peer IDs are
// their gRPC listen addresses) through clients.
func NewGrpcTransport(clients *transport.ClientPool) Transport {
	return &grpcTransport{clients: clients}
}

func (t *grpcTransport) SendRequestVote(ctx context.Context, peer string, args *RequestVoteArgs) (*RequestVoteReply, error) {
	conn, err := t.clients.Dial(peer)
	if err != nil {
		return nil, err
	}
	reply := new(RequestVoteReply)
	if err := conn.Invoke(ctx, "/"+raftServiceName+"/RequestVote", args, reply, grpc.CallContentSubtype(transport.CodecName)); err != nil {
		return nil, fmt.Errorf("poolsvc: RequestVote -> %s: %w", peer, err)
	}
	return reply, nil
}

func (t *grpcTransport) SendAppendEntries(ctx context.Context, peer string, args *AppendEntriesArgs) (*AppendEntriesReply, error) {
	conn, err := t.clients.Dial(peer)
	if err != nil {
		return nil, err
	}
	reply := new(AppendEntriesReply)
	if err := conn.Invoke(ctx, "/"+raftServiceName+"/AppendEntries", args, reply, grpc.CallContentSubtype(transport.CodecName)); err != nil {
		return nil, fmt.Errorf("poolsvc: AppendEntries -> %s: %w", peer, err)
	}
	return reply, nil
}
