package poolsvc

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/dsrb/rebuildd/pkg/types"
)

// poolState is one pool's replicated membership view: the live members, the
// targets currently marked failed (awaiting rebuild), and those already
// moved DOWNOUT.
type poolState struct {
	version uint32
	members types.RankList
	failed  types.RankList
	downout types.RankList
}

// StateMachine is the Raft-replicated pool map: the thing every committed
// RaftCommand mutates, and the thing Pool/PoolService read from. One
// process's StateMachine is authoritative only while that process is Raft
// leader; followers apply the same commands and stay ready to take over.
type StateMachine struct {
	mu    sync.RWMutex
	pools map[uuid.UUID]*poolState
}

func NewStateMachine() *StateMachine {
	return &StateMachine{pools: make(map[uuid.UUID]*poolState)}
}

// Apply mutates the state machine per cmd. Unknown command types are
// rejected rather than silently ignored, since a decode/apply mismatch here
// means every replica's state has silently diverged.
func (s *StateMachine) Apply(cmd RaftCommand) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch cmd.Type {
	case CmdCreatePool:
		var p CreatePoolPayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return err
		}
		s.pools[p.PoolID] = &poolState{members: p.Members.Clone()}
		return nil

	case CmdAddFailed:
		var p AddFailedPayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return err
		}
		st := s.poolLocked(p.PoolID)
		for _, rank := range p.Targets {
			if !st.failed.Contains(rank) {
				st.failed = append(st.failed, rank)
			}
		}
		return nil

	case CmdBumpVersion:
		var p BumpVersionPayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return err
		}
		st := s.poolLocked(p.PoolID)
		if p.Version > st.version {
			st.version = p.Version
		}
		return nil

	case CmdExcludeOut:
		var p ExcludeOutPayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return err
		}
		st := s.poolLocked(p.PoolID)
		for _, rank := range p.Targets {
			st.members = removeRank(st.members, rank)
			st.failed = removeRank(st.failed, rank)
			if !st.downout.Contains(rank) {
				st.downout = append(st.downout, rank)
			}
		}
		return nil

	default:
		return fmt.Errorf("poolsvc: unknown command type %q", cmd.Type)
	}
}

// poolLocked returns pool's state, lazily creating an empty one. Caller
// holds s.mu.
func (s *StateMachine) poolLocked(poolID uuid.UUID) *poolState {
	st, ok := s.pools[poolID]
	if !ok {
		st = &poolState{}
		s.pools[poolID] = st
	}
	return st
}

func removeRank(list types.RankList, rank types.Rank) types.RankList {
	out := list[:0:0]
	for _, r := range list {
		if r != rank {
			out = append(out, r)
		}
	}
	return out
}

// Version returns poolID's current map version, 0 if unknown.
func (s *StateMachine) Version(poolID uuid.UUID) uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.pools[poolID]; ok {
		return st.version
	}
	return 0
}

// Members returns a snapshot of poolID's live member ranks, ok=false if the
// pool is unknown.
func (s *StateMachine) Members(poolID uuid.UUID) (types.RankList, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.pools[poolID]
	if !ok {
		return nil, false
	}
	return st.members.Clone(), true
}

// poolHandle is the rebuild.Pool implementation backed by a StateMachine.
type poolHandle struct {
	id uuid.UUID
	sm *StateMachine
}

func (p *poolHandle) ID() uuid.UUID { return p.id }

func (p *poolHandle) CurrentMapVersion() uint32 { return p.sm.Version(p.id) }
