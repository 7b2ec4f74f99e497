package poolsvc_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"github.com/dsrb/rebuildd/internal/poolsvc"
	"github.com/dsrb/rebuildd/internal/rebuild"
	"github.com/dsrb/rebuildd/internal/transport"
	"github.com/dsrb/rebuildd/pkg/types"
)

func newSingleNodeRaft(t *testing.T) (*poolsvc.Raft, *poolsvc.StateMachine) {
	t.Helper()
	sm := poolsvc.NewStateMachine()
	cfg := poolsvc.Config{
		ID:                "self",
		Peers:             []string{"self"},
		ElectionTimeout:   10 * time.Millisecond,
		HeartbeatInterval: 5 * time.Millisecond,
	}
	rf := poolsvc.NewRaft(cfg, poolsvc.NewMemoryLogStore(), nil, sm, nil)
	rf.Start()
	t.Cleanup(rf.Stop)
	return rf, sm
}

// A single-node cluster must elect itself leader without waiting on any
// peer reply.
func TestRaft_SingleNodeBecomesLeader(t *testing.T) {
	rf, _ := newSingleNodeRaft(t)
	require.Eventually(t, rf.IsLeader, time.Second, time.Millisecond)
}

func TestRaft_ProposeAppliesIntoStateMachine(t *testing.T) {
	rf, sm := newSingleNodeRaft(t)
	require.Eventually(t, rf.IsLeader, time.Second, time.Millisecond)

	poolID := uuid.New()
	cmd, err := poolsvc.NewCreatePoolCommand(poolID, types.RankList{1, 2, 3})
	require.NoError(t, err)
	index, ok := rf.Propose(cmd)
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, rf.WaitApplied(ctx, index))

	members, ok := sm.Members(poolID)
	require.True(t, ok)
	require.Equal(t, types.RankList{1, 2, 3}, members)
}

func TestStateMachine_BumpVersionAndExcludeOut(t *testing.T) {
	rf, sm := newSingleNodeRaft(t)
	require.Eventually(t, rf.IsLeader, time.Second, time.Millisecond)

	poolID := uuid.New()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	createCmd, _ := poolsvc.NewCreatePoolCommand(poolID, types.RankList{1, 2, 3})
	idx, _ := rf.Propose(createCmd)
	require.NoError(t, rf.WaitApplied(ctx, idx))

	bumpCmd, _ := poolsvc.NewBumpVersionCommand(poolID, 5)
	idx, _ = rf.Propose(bumpCmd)
	require.NoError(t, rf.WaitApplied(ctx, idx))
	require.EqualValues(t, 5, sm.Version(poolID))

	// A lower version proposal must not regress the replicated version.
	regressCmd, _ := poolsvc.NewBumpVersionCommand(poolID, 2)
	idx, _ = rf.Propose(regressCmd)
	require.NoError(t, rf.WaitApplied(ctx, idx))
	require.EqualValues(t, 5, sm.Version(poolID))

	excludeCmd, _ := poolsvc.NewExcludeOutCommand(poolID, types.RankList{2})
	idx, _ = rf.Propose(excludeCmd)
	require.NoError(t, rf.WaitApplied(ctx, idx))

	members, ok := sm.Members(poolID)
	require.True(t, ok)
	require.Equal(t, types.RankList{1, 3}, members)
}

// Service.Lookup/PmapBroadcast/TargetExcludeOut driven against a single-node
// pool map: PmapBroadcast bumps the map version, TargetExcludeOut drops the
// member. BroadcastCreate is covered by the next test.
func TestService_LookupAndBroadcast(t *testing.T) {
	rf, sm := newSingleNodeRaft(t)
	require.Eventually(t, rf.IsLeader, time.Second, time.Millisecond)

	clients := transport.NewClientPool()
	t.Cleanup(func() { _ = clients.Close() })

	poolID := uuid.New()
	svc := poolsvc.NewService(rf, sm, clients, map[types.Rank]string{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, svc.RegisterPool(ctx, poolID, types.RankList{1}))

	pool, ok := svc.Lookup(ctx, poolID)
	require.True(t, ok)
	require.Equal(t, poolID, pool.ID())
	require.EqualValues(t, 0, pool.CurrentMapVersion())

	require.NoError(t, svc.PmapBroadcast(ctx, poolID, nil))
	require.EqualValues(t, 1, pool.CurrentMapVersion())

	require.NoError(t, svc.TargetExcludeOut(ctx, poolID, types.RankList{1}))
	members, ok := sm.Members(poolID)
	require.True(t, ok)
	require.Empty(t, members)
}

// BroadcastCreate must fan a real TGT_QUERY RPC out to every live member and
// hand back a rebuild.Broadcast whose Send reaches an actual gRPC target.
func TestService_BroadcastCreate_ReachesTarget(t *testing.T) {
	rf, sm := newSingleNodeRaft(t)
	require.Eventually(t, rf.IsLeader, time.Second, time.Millisecond)

	target := rebuild.NewService(nil, nil, 0, 0)
	target.Counters().Worker(0).ObjCount = 42

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := grpc.NewServer()
	transport.Register(s, transport.NewServer(target, nil))
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	clients := transport.NewClientPool()
	t.Cleanup(func() { _ = clients.Close() })

	poolID := uuid.New()
	svc := poolsvc.NewService(rf, sm, clients, map[types.Rank]string{1: lis.Addr().String()}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, svc.RegisterPool(ctx, poolID, types.RankList{1}))

	pool, ok := svc.Lookup(ctx, poolID)
	require.True(t, ok)

	bc, err := svc.BroadcastCreate(ctx, pool, types.OpTgtQuery, nil)
	require.NoError(t, err)
	reply, err := bc.Send(ctx, rebuild.QueryRequest{PoolID: poolID})
	require.NoError(t, err)
	require.EqualValues(t, 42, reply.Query.ObjCount)
}

func TestService_Lookup_UnknownPoolFails(t *testing.T) {
	rf, sm := newSingleNodeRaft(t)
	require.Eventually(t, rf.IsLeader, time.Second, time.Millisecond)

	svc := poolsvc.NewService(rf, sm, transport.NewClientPool(), nil, nil)
	_, ok := svc.Lookup(context.Background(), uuid.New())
	require.False(t, ok)
}
