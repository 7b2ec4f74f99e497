package rebuild

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/dsrb/rebuildd/pkg/types"
)

// Service bundles GRS, the task queue/scheduler and the driver into the one
// object a transport binds its RPC handlers to: Schedule/Query for the
// leader side, HandleQuery/HandleFini for the target side. A single process
// can be leader for one pool and a target for another at the same time,
// since GRS and CounterSet don't distinguish the two roles structurally —
// only which methods are called on them.
type Service struct {
	grs    *GlobalRebuildState
	queue  *TaskQueue
	driver *Driver
}

// NewService wires a ready-to-use rebuild service against a PoolService
// collaborator.
func NewService(svc PoolService, log Logger, bcastInterval time.Duration, bcastRetryMax int) *Service {
	grs := NewGlobalRebuildState()
	driver := NewDriver(svc, grs, log, bcastInterval, bcastRetryMax)
	queue := NewTaskQueue(grs, driver, log)
	return &Service{grs: grs, queue: queue, driver: driver}
}

// Schedule is the TQS entry point: enqueue a rebuild request, lazily
// starting the driver if none is running.
func (s *Service) Schedule(ctx context.Context, poolID uuid.UUID, mapVer uint32, failed, svcList types.RankList) error {
	return s.queue.Schedule(ctx, poolID, mapVer, failed, svcList)
}

// Query answers a leader-side status request for poolID.
func (s *Service) Query(ctx context.Context, poolSvc PoolService, poolID uuid.UUID, doBcast bool, failed types.RankList) (types.RebuildStatus, error) {
	return Query(ctx, s.grs, poolSvc, poolID, doBcast, failed)
}

// HandleQuery is the target-side TGT_QUERY handler (ds_rebuild_tgt_query_handler):
// fold this process's own workers into one reply for the caller's
// cross-target aggregation.
func (s *Service) HandleQuery() QueryReply {
	return LocalAggregate(s.grs.Counters())
}

// HandleFini is the target-side TGT_FINI handler (TFH).
func (s *Service) HandleFini(poolID uuid.UUID, ver uint32) error {
	return s.grs.HandleFini(poolID, ver)
}

// WaitUntilStarted blocks until the leader barrier for rebuild ver drops, or
// ctx is cancelled (Open Question (b)).
func (s *Service) WaitUntilStarted(ctx context.Context, ver uint32) error {
	return s.grs.WaitUntilStarted(ctx, ver)
}

// Counters exposes the per-worker TLC set so a puller can claim a worker
// slot and record scan/pull progress into it.
func (s *Service) Counters() *CounterSet { return s.grs.Counters() }

// Pending reports how many rebuild tasks are queued but not yet started.
func (s *Service) Pending() int { return s.queue.Pending() }

// Wait blocks until the background driver, if running, finishes draining
// the queue.
func (s *Service) Wait() { s.queue.Wait() }
