package rebuild

import (
	"github.com/google/uuid"
)

// HandleFini is the target finalize handler (TFH): the receiver side of a
// TGT_FINI RPC. It is idempotent under leader retries (step 1) and tears
// down every worker's rebuild handles exactly once per incoming version.
//
// Returns nil on success (including the idempotent no-op case); ErrNoHandle
// if incomingPoolID doesn't match the pool this process is tracking.
func (g *GlobalRebuildState) HandleFini(incomingPoolID uuid.UUID, incomingVer uint32) error {
	g.mu.Lock()
	if g.lastVer == incomingVer {
		g.mu.Unlock()
		return nil
	}
	if g.poolID != uuid.Nil && incomingPoolID != g.poolID {
		g.mu.Unlock()
		return ErrNoHandle
	}
	g.lastVer = incomingVer
	g.mu.Unlock()

	// Collective across this target's workers: close rebuild handles, clear
	// UUIDs, drop the service list. Runs outside GRS.mu since it only
	// touches per-worker TLC, each guarded by CounterSet's own mutex.
	g.counters.Teardown()

	g.mu.Lock()
	g.pool = nil
	g.poolID = uuid.Nil
	g.abort = false
	g.mu.Unlock()
	return nil
}
