package poolsvc

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dsrb/rebuildd/internal/rebuild"
	"github.com/dsrb/rebuildd/internal/transport"
	"github.com/dsrb/rebuildd/pkg/types"
)

// applyTimeout bounds how long a leader-side mutation (PmapBroadcast,
// TargetExcludeOut) waits for its Raft proposal to commit and apply before
// giving up and reporting failure to the driver. The driver's check loop
// retries a failed PmapBroadcast at its BCAST_INTV cadence; a failed
// TargetExcludeOut is returned from finalize without a retry.
const applyTimeout = 5 * time.Second

// Service is the real rebuild.PoolService: pool membership and map state
// live in a Raft-replicated StateMachine, and broadcasts fan out over
// internal/transport's gRPC+JSON codec to every live member's address.
type Service struct {
	raft    *Raft
	sm      *StateMachine
	clients *transport.ClientPool
	members map[types.Rank]string
	log     rebuild.Logger
}

// NewService wires a PoolService over raft/sm, dialing peer addresses listed
// in members (rank -> gRPC listen address) for broadcasts.
func NewService(raft *Raft, sm *StateMachine, clients *transport.ClientPool, members map[types.Rank]string, log rebuild.Logger) *Service {
	if log == nil {
		log = noopLogger{}
	}
	return &Service{raft: raft, sm: sm, clients: clients, members: members, log: log}
}

// RegisterPool proposes a CREATE_POOL command, blocking until it has applied
// locally. Called once per pool at startup/demo-bootstrap time, not part of
// the rebuild.PoolService surface itself.
func (s *Service) RegisterPool(ctx context.Context, poolID uuid.UUID, members types.RankList) error {
	cmd, err := NewCreatePoolCommand(poolID, members)
	if err != nil {
		return err
	}
	return s.proposeAndWait(ctx, cmd)
}

func (s *Service) proposeAndWait(ctx context.Context, cmd []byte) error {
	index, ok := s.raft.Propose(cmd)
	if !ok {
		return rebuild.ErrNotLeader
	}
	ctx, cancel := context.WithTimeout(ctx, applyTimeout)
	defer cancel()
	return s.raft.WaitApplied(ctx, index)
}

// Lookup returns a Pool handle if this process is the pool map leader and
// knows poolID; otherwise ok=false (the call site maps that to
// rebuild.ErrNotLeader).
func (s *Service) Lookup(_ context.Context, poolID uuid.UUID) (rebuild.Pool, bool) {
	if !s.raft.IsLeader() {
		return nil, false
	}
	if _, ok := s.sm.Members(poolID); !ok {
		return nil, false
	}
	return &poolHandle{id: poolID, sm: s.sm}, true
}

// BroadcastCreate opens a collective RPC of opcode against every live member
// of pool except those in exclude.
func (s *Service) BroadcastCreate(_ context.Context, pool rebuild.Pool, opcode types.Opcode, exclude types.RankList) (rebuild.Broadcast, error) {
	members, ok := s.sm.Members(pool.ID())
	if !ok {
		return nil, rebuild.ErrNotLeader
	}
	var targets []string
	for _, rank := range members {
		if exclude.Contains(rank) {
			continue
		}
		if addr, ok := s.members[rank]; ok {
			targets = append(targets, addr)
		}
	}
	return transport.NewBroadcast(s.clients, opcode, targets), nil
}

// PmapBroadcast bumps poolID's map version by proposing a BUMP_VERSION
// command and waiting for it to commit. Followers see the new version the
// same way TGT_QUERY callers do: by reading the replicated StateMachine.
func (s *Service) PmapBroadcast(ctx context.Context, poolID uuid.UUID, _ types.RankList) error {
	cmd, err := NewBumpVersionCommand(poolID, s.sm.Version(poolID)+1)
	if err != nil {
		return err
	}
	return s.proposeAndWait(ctx, cmd)
}

// TargetExcludeOut proposes an EXCLUDE_OUT command moving targets to
// DOWNOUT, waiting for it to commit.
func (s *Service) TargetExcludeOut(ctx context.Context, poolID uuid.UUID, targets types.RankList) error {
	cmd, err := NewExcludeOutCommand(poolID, targets)
	if err != nil {
		return err
	}
	return s.proposeAndWait(ctx, cmd)
}
