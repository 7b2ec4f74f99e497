// Package cli builds rebuildctl's command tree with cobra, grounded in
// ChuLiYu-raft-recovery's internal/cli/cli.go: a root command plus
// run/enqueue/status-shaped subcommands, re-keyed to this module's
// serve/schedule/query operations instead of the teacher's job queue.
package cli

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/dsrb/rebuildd/internal/config"
	"github.com/dsrb/rebuildd/internal/logger"
	"github.com/dsrb/rebuildd/internal/metrics"
	"github.com/dsrb/rebuildd/internal/poolsvc"
	"github.com/dsrb/rebuildd/internal/rebuild"
	"github.com/dsrb/rebuildd/internal/transport"
	"github.com/dsrb/rebuildd/pkg/types"
)

// BuildCLI assembles the rebuildctl command tree: serve (run the daemon),
// schedule (enqueue a rebuild task), query (read back its status).
func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rebuildctl",
		Short: "rebuildctl: DAOS-style pool-rebuild coordination service",
		Long: `rebuildctl drives and inspects rebuildd, a Raft-replicated pool-rebuild
coordination service: a strict-FIFO task queue, a leader driver that scans,
broadcasts, polls, and finalizes each rebuild, and a gRPC surface carrying
it all between processes.`,
	}

	rootCmd.AddCommand(buildServeCommand())
	rootCmd.AddCommand(buildScheduleCommand())
	rootCmd.AddCommand(buildQueryCommand())

	return rootCmd
}

func buildServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the rebuildd daemon",
		Long:  "Load configuration, start the Raft-backed pool service and the rebuild RPC surface, and block until signaled.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
	return cmd
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(cfg.LogLevel, false)
	log := logger.New(logger.WithComponent("rebuildd"))

	log.Info("starting rebuildd", "listen", cfg.Server.ListenAddr, "rank", cfg.Server.RankID)

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	_ = collector // wired into the driver once a production-shaped hook exists; see DESIGN.md
	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		metricsSrv = metrics.StartServer(cfg.Metrics.ListenAddr, reg)
		log.Info("metrics server listening", "addr", cfg.Metrics.ListenAddr)
	}

	clients := transport.NewClientPool()
	defer clients.Close()

	sm := poolsvc.NewStateMachine()
	peers := append([]string{selfAddr(cfg)}, cfg.Server.Peers...)
	raftConfig := poolsvc.Config{
		ID:                selfAddr(cfg),
		Peers:             peers,
		ElectionTimeout:   500 * time.Millisecond,
		HeartbeatInterval: 100 * time.Millisecond,
	}
	raftTransport := poolsvc.NewGrpcTransport(clients)
	rf := poolsvc.NewRaft(raftConfig, poolsvc.NewMemoryLogStore(), raftTransport, sm, logger.New(logger.WithComponent("poolsvc")))
	rf.Start()
	defer rf.Stop()

	members := make(map[types.Rank]string)
	for i, peer := range peers {
		members[types.Rank(i)] = peer
	}
	poolService := poolsvc.NewService(rf, sm, clients, members, logger.New(logger.WithComponent("poolsvc")))

	rebuildSvc := rebuild.NewService(poolService, log, cfg.Rebuild.BcastInterval, cfg.Rebuild.BcastRetryMax)

	lis, err := net.Listen("tcp", cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Server.ListenAddr, err)
	}

	grpcServer := grpc.NewServer()
	transport.Register(grpcServer, transport.NewServer(rebuildSvc, nil))
	poolsvc.RegisterRaft(grpcServer, rf)
	transport.RegisterAdmin(grpcServer, transport.NewAdminServer(rebuildSvc, poolService))

	go func() {
		log.Info("gRPC server listening", "addr", cfg.Server.ListenAddr)
		if err := grpcServer.Serve(lis); err != nil {
			log.Error("gRPC server stopped", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down rebuildd")
	grpcServer.GracefulStop()
	rebuildSvc.Wait()
	if metricsSrv != nil {
		_ = metricsSrv.Close()
	}
	return nil
}

func selfAddr(cfg *config.Config) string {
	return cfg.Server.ListenAddr
}

func buildScheduleCommand() *cobra.Command {
	var addr, poolIDStr, failedStr, serviceListStr string
	var mapVersion uint32

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Enqueue a rebuild task against a running rebuildd",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchedule(addr, poolIDStr, mapVersion, failedStr, serviceListStr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:7070", "rebuildd gRPC address")
	cmd.Flags().StringVar(&poolIDStr, "pool", "", "pool UUID")
	cmd.Flags().Uint32Var(&mapVersion, "version", 0, "pool map version driving this rebuild")
	cmd.Flags().StringVar(&failedStr, "failed", "", "comma-separated failed target ranks")
	cmd.Flags().StringVar(&serviceListStr, "service-list", "", "comma-separated service-list ranks")
	cmd.MarkFlagRequired("pool")

	return cmd
}

func runSchedule(addr, poolIDStr string, mapVersion uint32, failedStr, serviceListStr string) error {
	poolID, err := uuid.Parse(poolIDStr)
	if err != nil {
		return fmt.Errorf("invalid --pool: %w", err)
	}

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer conn.Close()

	req := &transport.ScheduleRequest{
		PoolID:        poolID,
		MapVersion:    mapVersion,
		FailedTargets: parseRankList(failedStr),
		ServiceList:   parseRankList(serviceListStr),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var reply transport.ScheduleReply
	if err := conn.Invoke(ctx, "/"+transport.AdminServiceName+"/Schedule", req, &reply, grpc.CallContentSubtype(transport.CodecName)); err != nil {
		return fmt.Errorf("schedule RPC failed: %w", err)
	}

	fmt.Printf("scheduled pool=%s version=%d accepted=%v\n", poolID, mapVersion, reply.Accepted)
	return nil
}

func buildQueryCommand() *cobra.Command {
	var addr, poolIDStr, failedStr string
	var doBcast bool

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Read back a pool's rebuild status from a running rebuildd",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(addr, poolIDStr, doBcast, failedStr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:7070", "rebuildd gRPC address")
	cmd.Flags().StringVar(&poolIDStr, "pool", "", "pool UUID")
	cmd.Flags().BoolVar(&doBcast, "bcast", false, "broadcast TGT_QUERY and refresh the cached status instead of reading it as-is")
	cmd.Flags().StringVar(&failedStr, "failed", "", "comma-separated failed target ranks (only used with --bcast)")
	cmd.MarkFlagRequired("pool")

	return cmd
}

func runQuery(addr, poolIDStr string, doBcast bool, failedStr string) error {
	poolID, err := uuid.Parse(poolIDStr)
	if err != nil {
		return fmt.Errorf("invalid --pool: %w", err)
	}

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer conn.Close()

	req := &transport.StatusRequest{
		PoolID:        poolID,
		DoBcast:       doBcast,
		FailedTargets: parseRankList(failedStr),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var reply transport.StatusReply
	if err := conn.Invoke(ctx, "/"+transport.AdminServiceName+"/Query", req, &reply, grpc.CallContentSubtype(transport.CodecName)); err != nil {
		return fmt.Errorf("query RPC failed: %w", err)
	}

	status := reply.Status
	fmt.Printf("pool=%s version=%d done=%v errno=%d obj=%d rec=%d\n",
		poolID, status.Version, status.Done, status.Errno, status.ObjNr, status.RecNr)
	return nil
}

// parseRankList splits a comma-separated rank list flag value, ignoring
// empty entries so "" and "," both yield a nil/empty list.
func parseRankList(s string) types.RankList {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make(types.RankList, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			continue
		}
		out = append(out, types.Rank(v))
	}
	return out
}
