// Package config loads rebuildd's configuration from file/env the ecosystem
// way, adapted from maumercado-task-queue-go/internal/config: same
// viper-backed Load()/setDefaults() shape, re-keyed to the rebuild module's
// own knobs (BCAST_INTV, BCAST_RETRY_MAX, worker-pool size, gRPC listen
// address) instead of the queue's Redis/worker/queue sections.
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config is rebuildd's full runtime configuration.
type Config struct {
	Server  ServerConfig
	Rebuild RebuildConfig
	Puller  PullerConfig
	Metrics MetricsConfig
	LogLevel string
}

// ServerConfig configures the gRPC (rebuild RPC + Raft RPC) listener.
type ServerConfig struct {
	ListenAddr string
	RankID     uint32
	Peers      []string // other rebuildd processes' gRPC addresses, for poolsvc Raft
}

// RebuildConfig maps directly to spec.md §6's BCAST_INTV/BCAST_RETRY_MAX.
type RebuildConfig struct {
	BcastInterval time.Duration
	BcastRetryMax int
}

// PullerConfig sizes the simulated scan/pull worker pool (cmd/demo).
type PullerConfig struct {
	WorkerCount int
	BufferSize  int
}

// MetricsConfig configures the Prometheus /metrics listener.
type MetricsConfig struct {
	Enabled    bool
	ListenAddr string
}

// Load reads rebuildd.yaml from the working directory, /etc/rebuildd, or the
// REBUILDD_-prefixed environment, falling back to defaults where unset.
func Load() (*Config, error) {
	viper.SetConfigName("rebuildd")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/rebuildd")

	setDefaults()

	viper.SetEnvPrefix("REBUILDD")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.listenaddr", "0.0.0.0:7070")
	viper.SetDefault("server.rankid", 0)
	viper.SetDefault("server.peers", []string{})

	viper.SetDefault("rebuild.bcastinterval", 2*time.Second)
	viper.SetDefault("rebuild.bcastretrymax", 100)

	viper.SetDefault("puller.workercount", 4)
	viper.SetDefault("puller.buffersize", 16)

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.listenaddr", "0.0.0.0:9090")

	viper.SetDefault("loglevel", "info")
}
