// Package rebuildtest provides in-memory fakes for rebuild.PoolService,
// rebuild.Pool and rebuild.Broadcast, so internal/rebuild's tests (and any
// other package exercising the driver) never need a real gRPC/poolsvc
// backend. Mirrors the teacher's style of hand-rolled fakes over mocking
// frameworks (no gomock/testify-mock anywhere in the example pack).
package rebuildtest

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/dsrb/rebuildd/internal/rebuild"
	"github.com/dsrb/rebuildd/pkg/types"
)

// Pool is a fake rebuild.Pool with a settable current map version, used to
// simulate cascading failures mid-rebuild (CurrentMapVersion bumping past
// the last broadcast version).
type Pool struct {
	id uuid.UUID

	mu  sync.Mutex
	ver uint32
}

// NewPool returns a fake pool at the given initial map version.
func NewPool(id uuid.UUID, ver uint32) *Pool {
	return &Pool{id: id, ver: ver}
}

func (p *Pool) ID() uuid.UUID { return p.id }

func (p *Pool) CurrentMapVersion() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ver
}

// BumpMapVersion simulates a new target failure landing mid-rebuild.
func (p *Pool) BumpMapVersion(v uint32) {
	p.mu.Lock()
	p.ver = v
	p.mu.Unlock()
}

// broadcast is a fake rebuild.Broadcast: Send defers to whatever function
// the owning PoolService wired for this opcode.
type broadcast struct {
	send func(ctx context.Context, payload any) (rebuild.RPCReply, error)
}

func (b *broadcast) Send(ctx context.Context, payload any) (rebuild.RPCReply, error) {
	return b.send(ctx, payload)
}

// PoolService is a fake rebuild.PoolService whose behavior per opcode is
// supplied by the test as plain functions, defaulting to "succeed with
// status 0, not rebuilding" when left nil.
type PoolService struct {
	mu    sync.Mutex
	pools map[uuid.UUID]*Pool

	// BroadcastCreateErr, when set, makes every BroadcastCreate fail with
	// this error (simulates the "scan broadcast create fails" absorbed
	// start path, or a transport outage during check/finalize).
	BroadcastCreateErr error

	// PmapBroadcastErr, when set, makes every PmapBroadcast call fail.
	PmapBroadcastErr error

	// TargetExcludeOutErr, when set, is returned from every
	// TargetExcludeOut call.
	TargetExcludeOutErr error

	ScanFunc  func(req rebuild.ScanRequest) (rebuild.RPCReply, error)
	QueryFunc func(req rebuild.QueryRequest) (rebuild.RPCReply, error)
	FiniFunc  func(req rebuild.FiniRequest) (rebuild.RPCReply, error)

	mu2                sync.Mutex
	pmapBroadcastCalls int
	excludeOutCalls    []types.RankList
}

// NewPoolService returns an empty fake with no pools registered; call
// AddPool before scheduling a rebuild against it.
func NewPoolService() *PoolService {
	return &PoolService{pools: make(map[uuid.UUID]*Pool)}
}

// AddPool registers a pool the fake will answer Lookup calls for.
func (s *PoolService) AddPool(p *Pool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pools[p.id] = p
}

func (s *PoolService) Lookup(_ context.Context, poolID uuid.UUID) (rebuild.Pool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pools[poolID]
	if !ok {
		return nil, false
	}
	return p, true
}

func (s *PoolService) BroadcastCreate(_ context.Context, pool rebuild.Pool, opcode types.Opcode, _ types.RankList) (rebuild.Broadcast, error) {
	if s.BroadcastCreateErr != nil {
		return nil, s.BroadcastCreateErr
	}
	return &broadcast{send: func(_ context.Context, payload any) (rebuild.RPCReply, error) {
		switch opcode {
		case types.OpObjectsScan:
			req, _ := payload.(rebuild.ScanRequest)
			if s.ScanFunc != nil {
				return s.ScanFunc(req)
			}
			return rebuild.RPCReply{Status: 0}, nil
		case types.OpTgtQuery:
			req, _ := payload.(rebuild.QueryRequest)
			if s.QueryFunc != nil {
				return s.QueryFunc(req)
			}
			return rebuild.RPCReply{Status: 0}, nil
		case types.OpTgtFini:
			req, _ := payload.(rebuild.FiniRequest)
			if s.FiniFunc != nil {
				return s.FiniFunc(req)
			}
			return rebuild.RPCReply{Status: 0}, nil
		default:
			return rebuild.RPCReply{Status: 0}, nil
		}
	}}, nil
}

func (s *PoolService) PmapBroadcast(_ context.Context, _ uuid.UUID, _ types.RankList) error {
	s.mu2.Lock()
	s.pmapBroadcastCalls++
	s.mu2.Unlock()
	return s.PmapBroadcastErr
}

func (s *PoolService) TargetExcludeOut(_ context.Context, _ uuid.UUID, targets types.RankList) error {
	s.mu2.Lock()
	s.excludeOutCalls = append(s.excludeOutCalls, targets)
	s.mu2.Unlock()
	return s.TargetExcludeOutErr
}

// PmapBroadcastCalls returns how many times PmapBroadcast was invoked.
func (s *PoolService) PmapBroadcastCalls() int {
	s.mu2.Lock()
	defer s.mu2.Unlock()
	return s.pmapBroadcastCalls
}

// ExcludeOutCalls returns the target lists passed to every TargetExcludeOut
// call, in order.
func (s *PoolService) ExcludeOutCalls() []types.RankList {
	s.mu2.Lock()
	defer s.mu2.Unlock()
	out := make([]types.RankList, len(s.excludeOutCalls))
	copy(out, s.excludeOutCalls)
	return out
}
