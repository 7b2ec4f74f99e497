package rebuild

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/dsrb/rebuildd/pkg/types"
)

// TaskQueue is the task queue & scheduler (TQS): a strict-FIFO queue of
// RebuildTask plus the lazy launch of the single background driver that
// drains it. Adapted from jobmanager's mutex-protected slice queue, stripped
// of jobmanager's per-job state machine — a RebuildTask has none; only the
// single active rebuild (GRS) does.
type TaskQueue struct {
	mu      sync.Mutex
	tasks   []types.RebuildTask
	running bool

	grs    *GlobalRebuildState
	driver *Driver
	log    Logger

	loopWg sync.WaitGroup
}

// NewTaskQueue wires a queue to the GRS and driver it schedules against. log
// may be nil, in which case log lines are discarded.
func NewTaskQueue(grs *GlobalRebuildState, driver *Driver, log Logger) *TaskQueue {
	if log == nil {
		log = nopLogger{}
	}
	return &TaskQueue{grs: grs, driver: driver, log: log}
}

// Schedule appends a rebuild request to the FIFO and, if no driver is
// currently running, launches one. No deduplication: two schedules of the
// same pool at different map versions both run, in enqueue order.
func (q *TaskQueue) Schedule(ctx context.Context, poolID uuid.UUID, mapVer uint32, failed, svc types.RankList) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	task := types.RebuildTask{
		PoolID:        poolID,
		MapVersion:    mapVer,
		FailedTargets: failed.Clone(),
		ServiceList:   svc.Clone(),
	}

	q.mu.Lock()
	q.tasks = append(q.tasks, task)
	startDriver := !q.running
	if startDriver {
		q.running = true
	}
	q.mu.Unlock()

	q.log.Info("Rebuild [queued]", "ver", mapVer)

	if startDriver {
		q.grs.beginTask(poolID, mapVer)
		q.loopWg.Add(1)
		go q.drainLoop(ctx)
	}
	return nil
}

// drainLoop is the driver task: while the queue is non-empty, pop the head,
// reset GRS for it, run the driver end to end, and repeat; when the queue
// empties, reset GRS to idle. A task is processed at most once.
func (q *TaskQueue) drainLoop(ctx context.Context) {
	defer q.loopWg.Done()
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			q.running = false
			q.mu.Unlock()
			q.grs.endTask()
			return
		}
		task := q.tasks[0]
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		q.grs.beginTask(task.PoolID, task.MapVersion)
		q.log.Info("Rebuild [started]", "ver", task.MapVersion)

		if err := q.driver.RunOne(ctx, task); err != nil {
			q.log.Error("rebuild task finished with error", "ver", task.MapVersion, "error", err)
		}
	}
}

// Wait blocks until the background driver goroutine, if any is running,
// exits after draining the queue. Used by tests and by graceful shutdown.
func (q *TaskQueue) Wait() {
	q.loopWg.Wait()
}

// Pending reports the number of tasks not yet popped by the driver.
func (q *TaskQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}
