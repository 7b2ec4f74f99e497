package rebuild

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/dsrb/rebuildd/pkg/types"
)

// GlobalRebuildState is the process-wide singleton tracking the single
// in-flight rebuild. The task_list FIFO itself lives in scheduler.go's
// TaskQueue (a separate mutex, matching the jobmanager/controller split of
// "queue owns pending work, controller owns active-run bookkeeping"); GRS
// holds everything else spec.md §3 assigns it.
//
// lock/cond are a single sync.Mutex/sync.Cond pair: cond.Broadcast() is the
// Go equivalent of ABT_cond_broadcast releasing the leader barrier.
type GlobalRebuildState struct {
	mu   sync.Mutex
	cond *sync.Cond

	pool   Pool
	poolID uuid.UUID

	rebuildVer uint32 // 0 when idle
	bcastVer   uint32
	lastVer    uint32 // TFH idempotence watermark for this process acting as a target

	leader        bool
	leaderBarrier bool
	abort         bool

	cachedStatus types.RebuildStatus
	startedAt    time.Time

	counters *CounterSet
}

// NewGlobalRebuildState returns an idle GRS with its own counter set.
func NewGlobalRebuildState() *GlobalRebuildState {
	g := &GlobalRebuildState{counters: NewCounterSet()}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// Counters exposes this process's per-worker TLC set, consumed by TQA.
func (g *GlobalRebuildState) Counters() *CounterSet { return g.counters }

// IsIdle reports whether no rebuild is in flight (rebuild_ver == 0).
func (g *GlobalRebuildState) IsIdle() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rebuildVer == 0
}

// beginTask moves GRS from Idle/between-tasks into Starting for the given
// task: sets rebuild_ver and a zeroed cached_status carrying the new
// version, per the drain loop's "reset cached_status to zero; set
// cached_status.version = rebuild_ver = task.map_ver".
func (g *GlobalRebuildState) beginTask(poolID uuid.UUID, ver uint32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.poolID = poolID
	g.rebuildVer = ver
	g.bcastVer = 0
	g.leader = true
	g.cachedStatus = types.RebuildStatus{Version: ver}
	g.startedAt = time.Now()
}

// startedAtSnapshot reads startedAt under lock, used for the status line's
// duration field.
func (g *GlobalRebuildState) startedAtSnapshot() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.startedAt
}

// endTask resets GRS to Idle after a task's finalize step returns,
// regardless of outcome, and resets lastVer so a future rebuild that reuses
// this map version is never silently dropped by TFH idempotence (Open
// Question (c): lastVer is not reset in the original source; this
// implementation resets it).
func (g *GlobalRebuildState) endTask() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rebuildVer = 0
	g.bcastVer = 0
	g.leaderBarrier = false
	g.leader = false
	g.abort = false
	g.poolID = uuid.Nil
	g.pool = nil
	g.lastVer = 0
}

// setLeaderBarrier raises or drops the barrier and, on drop, wakes every
// waiter blocked in WaitUntilStarted.
func (g *GlobalRebuildState) setLeaderBarrier(v bool) {
	g.mu.Lock()
	g.leaderBarrier = v
	if !v {
		g.cond.Broadcast()
	}
	g.mu.Unlock()
}

// raiseLeaderBarrier asserts the barrier is currently down and raises it,
// matching the source's "assert leader_barrier == false; set true" at the
// top of initiate_rebuild.
func (g *GlobalRebuildState) raiseLeaderBarrier() {
	g.mu.Lock()
	if g.leaderBarrier {
		g.mu.Unlock()
		panic("rebuild: leader_barrier already raised")
	}
	g.leaderBarrier = true
	g.mu.Unlock()
}

// bcastVerSnapshot reads bcast_ver under lock.
func (g *GlobalRebuildState) bcastVerSnapshot() uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.bcastVer
}

// setBcastVer unconditionally sets bcast_ver, used after a successful pool
// map broadcast.
func (g *GlobalRebuildState) setBcastVer(v uint32) {
	g.mu.Lock()
	g.bcastVer = v
	g.mu.Unlock()
}

// bumpBcastVer sets bcast_ver to v if it is currently lower, matching start's
// "if bcast_ver < map_ver, set bcast_ver = map_ver".
func (g *GlobalRebuildState) bumpBcastVer(v uint32) {
	g.mu.Lock()
	if g.bcastVer < v {
		g.bcastVer = v
	}
	g.mu.Unlock()
}

// WaitUntilStarted blocks until the leader barrier drops for a rebuild whose
// rebuild_ver equals ver, or ctx is cancelled. This is Open Question (b)'s
// resolution: the source asserts leader_barrier false at start but never
// shows what followers wait on, so this exposes the wait explicitly.
func (g *GlobalRebuildState) WaitUntilStarted(ctx context.Context, ver uint32) error {
	done := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		g.mu.Lock()
		close(done)
		g.cond.Broadcast()
		g.mu.Unlock()
	})
	defer stop()

	g.mu.Lock()
	defer g.mu.Unlock()
	for g.rebuildVer != ver || g.leaderBarrier {
		select {
		case <-done:
			return ctx.Err()
		default:
		}
		g.cond.Wait()
	}
	return nil
}

// setAbort sets the sticky cancel flag for the current rebuild.
func (g *GlobalRebuildState) setAbort() {
	g.mu.Lock()
	g.abort = true
	g.mu.Unlock()
}

// markFinalized marks the cached status done once finalize has run to
// completion (success or exhausted retries), matching the error-handling
// design's promise that "callers of query see done=false, errno!=0 during
// the failure window, then done=true once finalize completes".
func (g *GlobalRebuildState) markFinalized() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cachedStatus.Done = true
	if g.abort {
		if g.cachedStatus.Errno == 0 {
			g.cachedStatus.Errno = -1
		}
	} else {
		g.cachedStatus.Errno = 0
	}
}

// aborted reports the current sticky cancel flag.
func (g *GlobalRebuildState) aborted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.abort
}

// snapshotStatus returns the cached status under lock (query's do_bcast=false
// path).
func (g *GlobalRebuildState) snapshotStatus() types.RebuildStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cachedStatus
}

// setCachedStatus persists a freshly computed status (query's do_bcast=true
// path), which also backs every subsequent do_bcast=false read.
func (g *GlobalRebuildState) setCachedStatus(s types.RebuildStatus) {
	g.mu.Lock()
	g.cachedStatus = s
	g.mu.Unlock()
}
