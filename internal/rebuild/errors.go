// Package rebuild implements the leader-side rebuild coordination service: the
// task queue and driver that run a pool rebuild to completion, and the
// target-side aggregation/finalize handlers the driver's RPCs land on.
//
// The package is transport-agnostic. It never dials a connection or decodes a
// wire message; it only calls the PoolService/Pool/Broadcast interfaces
// declared in interfaces.go, so a production binary wires it to a real gRPC
// pool service (internal/poolsvc, internal/transport) while tests wire it to
// the in-memory fakes in rebuild/rebuildtest.
package rebuild

import "errors"

// Error kinds returned by rebuild operations. They are sentinel errors usable
// with errors.Is, matching the jobmanager package's ErrDuplicateJob-style
// error set.
var (
	// ErrNoHandle means a target was asked about a pool it has no rebuild
	// handle for (TFH saw a pool UUID mismatch).
	ErrNoHandle = errors.New("rebuild: no handle")

	// ErrNotLeader means this process lost (or never had) leadership for the
	// pool at the point of the call. Tolerated during finalize's
	// TargetExcludeOut step; fatal during Start.
	ErrNotLeader = errors.New("rebuild: not leader")

	// ErrNoMem means task allocation failed during Schedule.
	ErrNoMem = errors.New("rebuild: allocation failed")

	// ErrTransportFailure wraps any RPC send or broadcast-create failure.
	// It counts toward the BCAST_RETRY_MAX retry budget.
	ErrTransportFailure = errors.New("rebuild: transport failure")

	// ErrAggregatedTargetFailure means a target query reply carried a
	// non-zero aggregated status. Setting it triggers abort at the leader.
	ErrAggregatedTargetFailure = errors.New("rebuild: aggregated target failure")
)
