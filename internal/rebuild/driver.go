package rebuild

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/dsrb/rebuildd/pkg/types"
)

// BCAST_INTV and BCAST_RETRY_MAX from spec.md §6: the fixed interval between
// progress broadcasts and the consecutive-failure cap before the driver
// gives up and marks the rebuild failed (~200s floor at the default
// interval). Both are overridable per Driver instance — internal/config
// exposes them as rebuild.bcastinterval / rebuild.bcastretrymax so tests
// can run the check loop at millisecond scale.
const (
	DefaultBcastInterval = 2 * time.Second
	DefaultBcastRetryMax = 100

	// statusLineMaxLen mirrors RBLD_SBUF_LEN: the status line is built into
	// a pre-sized buffer this large.
	statusLineMaxLen = 256
)

type bcastPhase int

const (
	phaseQuery bcastPhase = iota
	phaseMap
)

// statusError carries a non-zero RPC reply status as an error, so start's
// "on non-zero, return it" step has something to return.
type statusError int32

func (e statusError) Error() string { return fmt.Sprintf("rebuild: rpc status %d", int32(e)) }

// Driver is the leader driver (LD): for one task, it sends SCAN to all
// targets, broadcasts the pool map, waits for followers, polls progress,
// detects cascading failures, broadcasts FINI, and marks failed targets
// DOWNOUT. Adapted from controller.go's loop style (one long-lived method
// per phase, stopCh/ctx for cancellation) driving DAOS's
// ds_rebuild/ds_rebuild_check/ds_rebuild_fini sequence.
type Driver struct {
	svc           PoolService
	grs           *GlobalRebuildState
	log           Logger
	bcastInterval time.Duration
	bcastRetryMax int
}

// NewDriver builds a Driver. A zero bcastInterval/bcastRetryMax falls back to
// the spec defaults.
func NewDriver(svc PoolService, grs *GlobalRebuildState, log Logger, bcastInterval time.Duration, bcastRetryMax int) *Driver {
	if bcastInterval <= 0 {
		bcastInterval = DefaultBcastInterval
	}
	if bcastRetryMax <= 0 {
		bcastRetryMax = DefaultBcastRetryMax
	}
	if log == nil {
		log = nopLogger{}
	}
	return &Driver{svc: svc, grs: grs, log: log, bcastInterval: bcastInterval, bcastRetryMax: bcastRetryMax}
}

// RunOne drives task start -> check -> finalize, running finalize even when
// start failed or the pool couldn't be looked up at all.
func (d *Driver) RunOne(ctx context.Context, task types.RebuildTask) error {
	pool, ok := d.svc.Lookup(ctx, task.PoolID)
	if !ok {
		if finErr := d.finalize(ctx, task); finErr != nil {
			return finErr
		}
		return ErrNotLeader
	}

	startErr := d.start(ctx, pool, task)
	if startErr == nil {
		d.checkLoop(ctx, pool, task)
	}

	finErr := d.finalize(ctx, task)
	if startErr != nil {
		return startErr
	}
	return finErr
}

// start is initiate_rebuild: raise the barrier, SCAN every live member,
// broadcast the new pool map, then drop the barrier so followers know they
// are in a rebuild before any query/fini RPC reaches them.
func (d *Driver) start(ctx context.Context, pool Pool, task types.RebuildTask) error {
	d.grs.raiseLeaderBarrier()

	bc, err := d.svc.BroadcastCreate(ctx, pool, types.OpObjectsScan, task.FailedTargets)
	if err != nil {
		// Absorbed: the source treats broadcast-create failure as an
		// ignored start (D_GOTO(out, rc=0)) so finalize, and therefore
		// DOWNOUT, still runs.
		d.log.Warn("rebuild scan broadcast create failed, absorbing", "pool", task.PoolID, "ver", task.MapVersion, "error", err)
		d.grs.setLeaderBarrier(false)
		return nil
	}

	req := ScanRequest{
		PoolID:        task.PoolID,
		MapVersion:    task.MapVersion,
		ContHandleID:  uuid.New(),
		PoolHandleID:  uuid.New(),
		FailedTargets: task.FailedTargets,
		ServiceList:   task.ServiceList,
	}
	reply, err := bc.Send(ctx, req)
	if err != nil {
		d.grs.setLeaderBarrier(false)
		return ErrTransportFailure
	}
	if reply.Status != 0 {
		d.grs.setLeaderBarrier(false)
		return statusError(reply.Status)
	}

	if err := d.svc.PmapBroadcast(ctx, task.PoolID, task.FailedTargets); err != nil {
		d.grs.setLeaderBarrier(false)
		return ErrTransportFailure
	}

	d.grs.setLeaderBarrier(false)
	d.grs.bumpBcastVer(task.MapVersion)
	return nil
}

// checkLoop is the progress-polling phase: it alternates between
// re-broadcasting the pool map (on a detected cascading failure) and
// querying target progress, at BCAST_INTV cadence, until the query reports
// done or the consecutive-failure cap is hit.
func (d *Driver) checkLoop(ctx context.Context, pool Pool, task types.RebuildTask) {
	phase := phaseQuery
	consecutiveFailures := 0
	cycle := 0
	lastLog := time.Time{}

	for {
		select {
		case <-ctx.Done():
			d.grs.setAbort()
			return
		case <-time.After(d.bcastInterval):
		}
		cycle++

		if mv := pool.CurrentMapVersion(); mv > d.grs.bcastVerSnapshot() {
			phase = phaseMap
		}

		cycleFailed := false
		switch phase {
		case phaseMap:
			if err := d.svc.PmapBroadcast(ctx, task.PoolID, task.FailedTargets); err != nil {
				cycleFailed = true
			} else {
				d.grs.setBcastVer(pool.CurrentMapVersion())
				phase = phaseQuery
			}
		case phaseQuery:
			status, err := Query(ctx, d.grs, d.svc, task.PoolID, true, task.FailedTargets)
			if err != nil {
				cycleFailed = true
			} else if status.Errno != 0 {
				cycleFailed = true
				d.grs.setAbort()
			}
		}

		if cycleFailed {
			consecutiveFailures++
		} else {
			consecutiveFailures = 0
		}
		if consecutiveFailures >= d.bcastRetryMax {
			d.grs.setAbort()
		}

		status := d.grs.snapshotStatus()
		aborted := d.grs.aborted()
		loopDone := status.Done || consecutiveFailures >= d.bcastRetryMax

		shouldLog := loopDone || isPowerOfTwo(cycle) || time.Since(lastLog) >= 10*time.Second
		if shouldLog {
			d.logStatusLine(status, aborted, loopDone, task.MapVersion)
			lastLog = time.Now()
		}

		if loopDone {
			return
		}
	}
}

// finalize is fini: always runs after the check loop. It excludes failed
// targets (tolerating NotLeader), then retries the FINI broadcast every
// BCAST_INTV up to BCAST_RETRY_MAX times.
func (d *Driver) finalize(ctx context.Context, task types.RebuildTask) error {
	if task.PoolID != d.grs.poolIDSnapshot() {
		return nil
	}
	defer d.grs.markFinalized()

	if err := d.svc.TargetExcludeOut(ctx, task.PoolID, task.FailedTargets); err != nil && err != ErrNotLeader {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < d.bcastRetryMax; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.bcastInterval):
			}
		}

		pool, ok := d.svc.Lookup(ctx, task.PoolID)
		if !ok {
			lastErr = ErrNotLeader
			continue
		}
		bc, err := d.svc.BroadcastCreate(ctx, pool, types.OpTgtFini, task.FailedTargets)
		if err != nil {
			lastErr = ErrTransportFailure
			continue
		}
		reply, err := bc.Send(ctx, FiniRequest{PoolID: task.PoolID, MapVersion: task.MapVersion})
		if err != nil {
			lastErr = ErrTransportFailure
			continue
		}
		if reply.Status != 0 {
			lastErr = statusError(reply.Status)
			continue
		}

		d.log.Info("Rebuild [completed]", "ver", task.MapVersion)
		return nil
	}
	return lastErr
}

// poolIDSnapshot reads pool_id under lock.
func (g *GlobalRebuildState) poolIDSnapshot() uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.poolID
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// logStatusLine composes and emits the stable status line:
// "Rebuild [<state>] (ver=V, obj=O, rec=R, duration=Ds)".
func (d *Driver) logStatusLine(status types.RebuildStatus, aborted, done bool, ver uint32) {
	state := stateLabel(status, aborted, done)
	duration := time.Since(d.grs.startedAtSnapshot()).Round(time.Second)

	var b strings.Builder
	b.Grow(statusLineMaxLen)
	fmt.Fprintf(&b, "Rebuild [%s] (ver=%d, obj=%d, rec=%d, duration=%s)", state, ver, status.ObjNr, status.RecNr, duration)
	d.log.Info(b.String())
}

// stateLabel picks the status word: "failed"/"completed" on termination,
// otherwise "scanning" before any object/record has been reported and
// "pulling" once some have. The source's one log line that compares
// status.status to itself twice (clearly a typo) is not reproduced; state
// selection here always uses the real fields.
func stateLabel(status types.RebuildStatus, aborted, done bool) string {
	if done {
		if aborted {
			return "failed"
		}
		return "completed"
	}
	if status.ObjNr == 0 && status.RecNr == 0 {
		return "scanning"
	}
	return "pulling"
}
