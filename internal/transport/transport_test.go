package transport_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"github.com/dsrb/rebuildd/internal/rebuild"
	"github.com/dsrb/rebuildd/internal/rebuild/rebuildtest"
	"github.com/dsrb/rebuildd/internal/transport"
	"github.com/dsrb/rebuildd/pkg/types"
)

// startServer boots a real gRPC server on an ephemeral localhost port,
// serving h, and returns its address plus a stop func.
func startServer(t *testing.T, h *transport.Server) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := grpc.NewServer()
	transport.Register(s, h)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	return lis.Addr().String()
}

func TestBroadcast_TgtQuery_AggregatesAcrossTargets(t *testing.T) {
	svc1 := rebuild.NewService(nil, nil, 0, 0)
	svc1.Counters().Worker(0).ObjCount = 3
	svc1.Counters().Worker(0).RecCount = 30

	svc2 := rebuild.NewService(nil, nil, 0, 0)
	svc2.Counters().Worker(0).ObjCount = 4
	svc2.Counters().Worker(0).RecCount = 40

	addr1 := startServer(t, transport.NewServer(svc1, nil))
	addr2 := startServer(t, transport.NewServer(svc2, nil))

	clients := transport.NewClientPool()
	t.Cleanup(func() { _ = clients.Close() })

	bc := transport.NewBroadcast(clients, types.OpTgtQuery, []string{addr1, addr2})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reply, err := bc.Send(ctx, rebuild.QueryRequest{PoolID: uuid.New()})
	require.NoError(t, err)
	require.Zero(t, reply.Status)
	require.EqualValues(t, 7, reply.Query.ObjCount)
	require.EqualValues(t, 70, reply.Query.RecCount)
}

func TestBroadcast_TgtFini_DelegatesToHandleFini(t *testing.T) {
	svc := rebuild.NewService(nil, nil, 0, 0)
	addr := startServer(t, transport.NewServer(svc, nil))

	clients := transport.NewClientPool()
	t.Cleanup(func() { _ = clients.Close() })

	poolID := uuid.New()
	bc := transport.NewBroadcast(clients, types.OpTgtFini, []string{addr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reply, err := bc.Send(ctx, rebuild.FiniRequest{PoolID: poolID, MapVersion: 3})
	require.NoError(t, err)
	require.Zero(t, reply.Status)
}

func TestServer_ObjectsScan_InvokesOnScanHook(t *testing.T) {
	svc := rebuild.NewService(nil, nil, 0, 0)

	var seen rebuild.ScanRequest
	hook := func(_ context.Context, req rebuild.ScanRequest) error {
		seen = req
		return nil
	}
	addr := startServer(t, transport.NewServer(svc, hook))

	clients := transport.NewClientPool()
	t.Cleanup(func() { _ = clients.Close() })

	poolID := uuid.New()
	bc := transport.NewBroadcast(clients, types.OpObjectsScan, []string{addr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req := rebuild.ScanRequest{PoolID: poolID, MapVersion: 9, ContHandleID: uuid.New(), PoolHandleID: uuid.New()}
	reply, err := bc.Send(ctx, req)
	require.NoError(t, err)
	require.Zero(t, reply.Status)
	require.Equal(t, poolID, seen.PoolID)
	require.EqualValues(t, 9, seen.MapVersion)
}

// TestAdminServer_ScheduleThenQuery exercises rebuildctl's wire path end to
// end: Schedule enqueues against a real rebuild.Service, and an immediate
// Query(doBcast=false) observes the version GRS just latched.
func TestAdminServer_ScheduleThenQuery(t *testing.T) {
	poolSvc := rebuildtest.NewPoolService()
	poolID := uuid.New()
	poolSvc.AddPool(rebuildtest.NewPool(poolID, 5))

	rebuildSvc := rebuild.NewService(poolSvc, nil, 50*time.Millisecond, 3)
	admin := transport.NewAdminServer(rebuildSvc, poolSvc)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	scheduleReply, err := admin.Schedule(ctx, &transport.ScheduleRequest{
		PoolID:        poolID,
		MapVersion:    5,
		FailedTargets: types.RankList{1},
		ServiceList:   types.RankList{2, 3},
	})
	require.NoError(t, err)
	require.True(t, scheduleReply.Accepted)

	statusReply, err := admin.Query(ctx, &transport.StatusRequest{PoolID: poolID, DoBcast: false})
	require.NoError(t, err)
	require.EqualValues(t, 5, statusReply.Status.Version)
}

// TestAdminServer_OverGRPC exercises Schedule through a real gRPC
// connection using the AdminService ServiceDesc.
func TestAdminServer_OverGRPC(t *testing.T) {
	poolSvc := rebuildtest.NewPoolService()
	poolID := uuid.New()
	poolSvc.AddPool(rebuildtest.NewPool(poolID, 1))

	rebuildSvc := rebuild.NewService(poolSvc, nil, 50*time.Millisecond, 3)
	admin := transport.NewAdminServer(rebuildSvc, poolSvc)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := grpc.NewServer()
	transport.RegisterAdmin(s, admin)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	clients := transport.NewClientPool()
	t.Cleanup(func() { _ = clients.Close() })
	conn, err := clients.Dial(lis.Addr().String())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var scheduleReply transport.ScheduleReply
	err = conn.Invoke(ctx, "/"+transport.AdminServiceName+"/Schedule",
		&transport.ScheduleRequest{PoolID: poolID, MapVersion: 1},
		&scheduleReply, grpc.CallContentSubtype(transport.CodecName))
	require.NoError(t, err)
	require.True(t, scheduleReply.Accepted)
}
