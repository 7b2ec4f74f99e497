package rebuild

import (
	"context"

	"github.com/google/uuid"
	"github.com/dsrb/rebuildd/pkg/types"
)

// LocalAggregate folds this process's per-worker TLC into a single reply,
// matching dss_rebuild_check_scanning + the pullers-vector check in
// ds_rebuild_tgt_query_handler: any worker still scanning, or any non-zero
// puller slot, makes the target "rebuilding".
func LocalAggregate(counters *CounterSet) QueryReply {
	var out QueryReply
	scanningWorkers := 0
	for _, c := range counters.snapshot() {
		out.ObjCount += c.objCount
		out.RecCount += c.recCount
		if out.Status == 0 {
			out.Status = c.status
		}
		if c.scanning {
			scanningWorkers++
		}
	}
	if scanningWorkers > 0 || counters.AnyPulling() {
		out.Rebuilding = 1
	}
	return out
}

// CrossTargetAggregate associatively folds a child target's reply into the
// running result: rebuilding counts sum, the first non-zero status wins and
// sticks, and object/record counts sum. It is associative by construction, so
// any partition of the reply set, folded in the same order, produces the same
// result (the property spec.md §8 calls "aggregator associativity"). It is not
// commutative when replies carry different non-zero statuses: the one folded
// first wins.
func CrossTargetAggregate(result *QueryReply, source QueryReply) {
	result.Rebuilding += source.Rebuilding
	if result.Status == 0 {
		result.Status = source.Status
	}
	result.ObjCount += source.ObjCount
	result.RecCount += source.RecCount
}

// Query answers a rebuild status request for poolID. With doBcast=false it
// returns the cached snapshot under lock (serializable against the last
// do_bcast=true write); after the queue drains, that snapshot still holds the
// last rebuild's final status until the next rebuild begins. With
// doBcast=true it returns a zeroed status when no rebuild is in flight, and
// otherwise issues a TGT_QUERY broadcast, aggregates the replies, persists
// the result as the new cached status, and returns it.
func Query(ctx context.Context, grs *GlobalRebuildState, svc PoolService, poolID uuid.UUID, doBcast bool, failed types.RankList) (types.RebuildStatus, error) {
	if !doBcast {
		return grs.snapshotStatus(), nil
	}
	if grs.IsIdle() {
		return types.RebuildStatus{}, nil
	}

	pool, ok := svc.Lookup(ctx, poolID)
	if !ok {
		return types.RebuildStatus{}, ErrNotLeader
	}
	bc, err := svc.BroadcastCreate(ctx, pool, types.OpTgtQuery, failed)
	if err != nil {
		return types.RebuildStatus{}, ErrTransportFailure
	}
	reply, err := bc.Send(ctx, QueryRequest{PoolID: poolID})
	if err != nil {
		return types.RebuildStatus{}, ErrTransportFailure
	}

	status := types.RebuildStatus{
		Version: grs.rebuildVerSnapshot(),
		Errno:   reply.Status,
		ObjNr:   reply.Query.ObjCount,
		RecNr:   reply.Query.RecCount,
	}
	if reply.Status == 0 && reply.Query.Rebuilding == 0 {
		status.Done = true
	}
	grs.setCachedStatus(status)
	return status, nil
}

// rebuildVerSnapshot reads rebuild_ver under lock; small helper so Query
// doesn't reach into GRS internals directly from aggregate.go.
func (g *GlobalRebuildState) rebuildVerSnapshot() uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rebuildVer
}
