// Command demo drives one rebuild end to end in a single process: it
// bootstraps a single-node poolsvc Raft/pool map, spins up N simulated
// targets (real gRPC servers backed by internal/rebuild.Service and
// internal/puller), schedules a rebuild against one of them as "failed",
// and prints status lines until it completes.
//
// Usage: go run ./cmd/demo [memberCount]
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"

	"github.com/dsrb/rebuildd/internal/poolsvc"
	"github.com/dsrb/rebuildd/internal/puller"
	"github.com/dsrb/rebuildd/internal/rebuild"
	"github.com/dsrb/rebuildd/internal/transport"
	"github.com/dsrb/rebuildd/pkg/types"
)

const defaultMemberCount = 4

func main() {
	memberCount := defaultMemberCount
	if len(os.Args) > 1 {
		if n, err := strconv.Atoi(os.Args[1]); err == nil && n > 1 {
			memberCount = n
		}
	}

	if err := run(memberCount); err != nil {
		log.Fatalf("demo failed: %v", err)
	}
}

func run(memberCount int) error {
	clients := transport.NewClientPool()
	defer clients.Close()

	// Stand up memberCount simulated targets, each a real gRPC server
	// backed by its own rebuild.Service and a puller.Pool wired to its
	// OBJECTS_SCAN handler.
	members := make(types.RankList, memberCount)
	addrs := make(map[types.Rank]string, memberCount)
	var pullers []*puller.Pool

	for i := 0; i < memberCount; i++ {
		rank := types.Rank(i)
		members[i] = rank

		svc := rebuild.NewService(nil, nil, 0, 0)
		pool := puller.NewPool(svc.Counters(), 16)
		if err := pool.Start(2); err != nil {
			return fmt.Errorf("start puller for rank %d: %w", rank, err)
		}
		pullers = append(pullers, pool)

		hook := func(p *puller.Pool) transport.ScanHook {
			return func(_ context.Context, req rebuild.ScanRequest) error {
				return p.Submit(puller.Task{
					WorkerID: 0,
					ObjTotal: 1000,
					RecTotal: 10000,
				})
			}
		}(pool)

		lis, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("listen for rank %d: %w", rank, err)
		}
		s := grpc.NewServer()
		transport.Register(s, transport.NewServer(svc, hook))
		go func() { _ = s.Serve(lis) }()
		defer s.Stop()

		addrs[rank] = lis.Addr().String()
	}
	defer func() {
		for _, p := range pullers {
			p.Stop()
		}
	}()

	// Bootstrap a single-node Raft pool map holding the membership above.
	sm := poolsvc.NewStateMachine()
	raftCfg := poolsvc.Config{
		ID:                "demo-leader",
		Peers:             []string{"demo-leader"},
		ElectionTimeout:   20 * time.Millisecond,
		HeartbeatInterval: 10 * time.Millisecond,
	}
	rf := poolsvc.NewRaft(raftCfg, poolsvc.NewMemoryLogStore(), nil, sm, nil)
	rf.Start()
	defer rf.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for !rf.IsLeader() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !rf.IsLeader() {
		return fmt.Errorf("single-node raft never elected itself leader")
	}

	poolService := poolsvc.NewService(rf, sm, clients, addrs, nil)

	poolID := uuid.New()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := poolService.RegisterPool(ctx, poolID, members); err != nil {
		return fmt.Errorf("register pool: %w", err)
	}

	rebuildSvc := rebuild.NewService(poolService, nil, 200*time.Millisecond, 10)

	failed := types.RankList{members[len(members)-1]}
	log.Printf("scheduling rebuild: pool=%s members=%v failed=%v", poolID, members, failed)
	if err := rebuildSvc.Schedule(ctx, poolID, 1, failed, members[:len(members)-1]); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}

	for {
		status, err := rebuildSvc.Query(ctx, poolService, poolID, false, failed)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		log.Printf("status: version=%d done=%v errno=%d obj=%d rec=%d",
			status.Version, status.Done, status.Errno, status.ObjNr, status.RecNr)
		if status.Done {
			break
		}
		time.Sleep(200 * time.Millisecond)
	}

	rebuildSvc.Wait()
	log.Println("demo complete")
	return nil
}
