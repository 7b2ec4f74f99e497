package transport

import (
	"context"
	"errors"

	"google.golang.org/grpc"

	"github.com/dsrb/rebuildd/internal/rebuild"
)

// ScanHook lets a process wire OBJECTS_SCAN into a local simulated puller
// (internal/puller), or return nil to accept the scan without doing
// anything — the target-side pull logic itself is out of scope.
type ScanHook func(ctx context.Context, req rebuild.ScanRequest) error

// Server is the target-side Handler: it answers the three rebuild RPCs
// against a locally wired *rebuild.Service, grounded in
// ChuLiYu-raft-recovery's internal/server/server.go (a thin grpc.Server
// wrapper delegating every RPC straight to a domain object).
type Server struct {
	svc    *rebuild.Service
	onScan ScanHook
}

// NewServer returns a Server delegating TGT_FINI/TGT_QUERY to svc. onScan may
// be nil, in which case OBJECTS_SCAN is acknowledged without local action.
func NewServer(svc *rebuild.Service, onScan ScanHook) *Server {
	return &Server{svc: svc, onScan: onScan}
}

// Register attaches the rebuild RPC surface to gRPC server s, using the
// package's JSON codec rather than gRPC's default protobuf one.
func Register(s *grpc.Server, h *Server) {
	s.RegisterService(&ServiceDesc, h)
}

func (s *Server) ObjectsScan(ctx context.Context, req *rebuild.ScanRequest) (*rebuild.RPCReply, error) {
	if s.onScan != nil {
		if err := s.onScan(ctx, *req); err != nil {
			return &rebuild.RPCReply{Status: -1}, nil
		}
	}
	return &rebuild.RPCReply{Status: 0}, nil
}

func (s *Server) TgtFini(ctx context.Context, req *rebuild.FiniRequest) (*rebuild.RPCReply, error) {
	if err := s.svc.HandleFini(req.PoolID, req.MapVersion); err != nil {
		if errors.Is(err, rebuild.ErrNoHandle) {
			return &rebuild.RPCReply{Status: -1}, nil
		}
		return nil, err
	}
	return &rebuild.RPCReply{Status: 0}, nil
}

func (s *Server) TgtQuery(ctx context.Context, req *rebuild.QueryRequest) (*rebuild.RPCReply, error) {
	reply := s.svc.HandleQuery()
	return &rebuild.RPCReply{Status: reply.Status, Query: reply}, nil
}
