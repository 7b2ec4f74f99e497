package rebuild_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dsrb/rebuildd/internal/rebuild"
	"github.com/dsrb/rebuildd/internal/rebuild/rebuildtest"
)

// Queue FIFO: for any sequence of schedule calls against the same pool, the
// driver drains tasks in enqueue order, never more than one at a time.
func TestSchedule_DrainsFIFO(t *testing.T) {
	poolID := uuid.New()
	svc := rebuildtest.NewPoolService()
	svc.AddPool(rebuildtest.NewPool(poolID, 10))
	svc.QueryFunc = func(rebuild.QueryRequest) (rebuild.RPCReply, error) {
		return rebuild.RPCReply{Status: 0, Query: rebuild.QueryReply{Rebuilding: 0}}, nil
	}

	var mu sync.Mutex
	var order []uint32
	var active int
	var maxActive int
	svc.FiniFunc = func(req rebuild.FiniRequest) (rebuild.RPCReply, error) {
		mu.Lock()
		order = append(order, req.MapVersion)
		active--
		mu.Unlock()
		return rebuild.RPCReply{Status: 0}, nil
	}
	svc.ScanFunc = func(rebuild.ScanRequest) (rebuild.RPCReply, error) {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()
		return rebuild.RPCReply{Status: 0}, nil
	}

	svcObj := rebuild.NewService(svc, nil, testBcastInterval, rebuild.DefaultBcastRetryMax)
	ctx := context.Background()
	require.NoError(t, svcObj.Schedule(ctx, poolID, 7, nil, nil))
	require.NoError(t, svcObj.Schedule(ctx, poolID, 8, nil, nil))
	require.NoError(t, svcObj.Schedule(ctx, poolID, 9, nil, nil))

	svcObj.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []uint32{7, 8, 9}, order)
	require.LessOrEqual(t, maxActive, 1, "at most one driver/task in flight at a time")
	require.Zero(t, svcObj.Pending())
}
