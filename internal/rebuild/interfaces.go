package rebuild

import (
	"context"

	"github.com/google/uuid"
	"github.com/dsrb/rebuildd/pkg/types"
)

// Pool is a strong reference to a ds_pool-equivalent: the pool membership and
// map version the driver acts against. Implementations own their own
// read-write lock internally (spec: "the pool's internal map is protected by
// the pool's own read-write lock"); CurrentMapVersion takes it for reading.
type Pool interface {
	ID() uuid.UUID
	CurrentMapVersion() uint32
}

// PoolService is the external pool-membership collaborator the driver
// consumes as opaque calls. The rebuild core never looks inside a Pool or a
// Broadcast reply beyond the fields it was handed.
type PoolService interface {
	// Lookup returns a strong reference to the pool, or ok=false if this
	// process doesn't know it (maps to ErrNotLeader at the call site).
	Lookup(ctx context.Context, poolID uuid.UUID) (Pool, bool)

	// BroadcastCreate opens a collective RPC of the given opcode against all
	// live members of pool except those in exclude. Scan/Fini/Query all go
	// through this; the opcode distinguishes payload shape on the wire.
	BroadcastCreate(ctx context.Context, pool Pool, opcode types.Opcode, exclude types.RankList) (Broadcast, error)

	// PmapBroadcast fans out the pool's current map to all members except
	// exclude, so followers learn about new failures before SCAN-followup
	// RPCs (query/fini) are sent.
	PmapBroadcast(ctx context.Context, poolID uuid.UUID, exclude types.RankList) error

	// TargetExcludeOut moves targets to the DOWNOUT state. ErrNotLeader is
	// recoverable here: finalize tolerates it and proceeds.
	TargetExcludeOut(ctx context.Context, poolID uuid.UUID, targets types.RankList) error
}

// ScanRequest is the OBJECTS_SCAN broadcast payload: capability tokens plus
// the failed/service rank lists the scan handler needs to know who dropped
// out and who to ask for replicas.
type ScanRequest struct {
	PoolID        uuid.UUID
	MapVersion    uint32
	ContHandleID  uuid.UUID
	PoolHandleID  uuid.UUID
	FailedTargets types.RankList
	ServiceList   types.RankList
}

// FiniRequest is the TGT_FINI broadcast payload.
type FiniRequest struct {
	PoolID     uuid.UUID
	MapVersion uint32
}

// QueryRequest is the TGT_QUERY broadcast payload.
type QueryRequest struct {
	PoolID uuid.UUID
}

// QueryReply is a single target's (already locally-aggregated) TQA reply,
// folded across targets by CrossTargetAggregate.
type QueryReply struct {
	Rebuilding int32
	Status     int32
	ObjCount   uint64
	RecCount   uint64
}

// RPCReply is the minimal reply shape every rebuild RPC carries: a status
// code, 0 on success. Query replies additionally decode into QueryReply.
type RPCReply struct {
	Status int32
	Query  QueryReply
}

// Broadcast is one in-flight collective RPC: the caller sends a request
// payload and gets back an already-aggregated reply (TQA's cross-target fold
// happens inside the Broadcast implementation, mirroring DAOS's co_aggregate
// collective callback).
type Broadcast interface {
	Send(ctx context.Context, payload any) (RPCReply, error)
}
