// Package types defines the core domain models shared by the rebuild
// coordination service: the task a leader drives, the status callers query,
// and the small value types (ranks, opcodes) that flow through both.
//
// Design Principles:
//  1. Domain-driven naming: business concepts (rank, task, status) as types.
//  2. Named types where they carry meaning: pool IDs are uuid.UUID and rank
//     lists are RankList; Rank itself is an alias of uint32.
//  3. JSON-serializable, since the gRPC transport carries these over a JSON
//     codec rather than hand-rolled protobuf bindings (see internal/transport).
package types

import (
	"github.com/google/uuid"
)

// Rank identifies a pool member (a storage target's process rank).
type Rank = uint32

// RankList is an owned, order-preserving list of ranks. It is deep-copied on
// ownership transfer (schedule -> task, task -> driver) so the caller's slice
// can be reused or freed independently of the copy held by the queue.
type RankList []Rank

// Clone returns a deep copy, matching the C source's daos_rank_list_dup.
func (r RankList) Clone() RankList {
	if r == nil {
		return nil
	}
	out := make(RankList, len(r))
	copy(out, r)
	return out
}

// Contains reports whether rank is present in the list.
func (r RankList) Contains(rank Rank) bool {
	for _, v := range r {
		if v == rank {
			return true
		}
	}
	return false
}

// RebuildTask is one queued rebuild request, owned by the task queue until a
// driver pops and runs it to completion.
type RebuildTask struct {
	PoolID        uuid.UUID `json:"pool_id"`
	MapVersion    uint32    `json:"map_version"`
	FailedTargets RankList  `json:"failed_targets"`
	ServiceList   RankList  `json:"service_list"`
}

// RebuildStatus is the value type returned to callers of Query. A zero
// Version means no rebuild is tracked for the pool. Done implies no further
// pulls will occur for this version.
type RebuildStatus struct {
	Version uint32 `json:"version"`
	Done    bool   `json:"done"`
	Errno   int32  `json:"errno"`
	ObjNr   uint64 `json:"obj_nr"`
	RecNr   uint64 `json:"rec_nr"`
}

// Opcode identifies one of the rebuild module's RPCs.
type Opcode int

const (
	OpObjectsScan Opcode = iota
	OpObjects
	OpTgtFini
	OpTgtQuery
)

func (o Opcode) String() string {
	switch o {
	case OpObjectsScan:
		return "OBJECTS_SCAN"
	case OpObjects:
		return "OBJECTS"
	case OpTgtFini:
		return "TGT_FINI"
	case OpTgtQuery:
		return "TGT_QUERY"
	default:
		return "UNKNOWN"
	}
}
