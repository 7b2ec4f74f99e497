package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	originalDir, _ := os.Getwd()
	tmpDir := t.TempDir()
	require.NoError(t, os.Chdir(tmpDir))
	defer os.Chdir(originalDir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:7070", cfg.Server.ListenAddr)
	assert.EqualValues(t, 0, cfg.Server.RankID)
	assert.Empty(t, cfg.Server.Peers)

	assert.Equal(t, 2*time.Second, cfg.Rebuild.BcastInterval)
	assert.Equal(t, 100, cfg.Rebuild.BcastRetryMax)

	assert.Equal(t, 4, cfg.Puller.WorkerCount)
	assert.Equal(t, 16, cfg.Puller.BufferSize)

	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "0.0.0.0:9090", cfg.Metrics.ListenAddr)

	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_WithConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := tmpDir + "/rebuildd.yaml"

	configContent := `
server:
  listenaddr: "127.0.0.1:9001"
  rankid: 3
  peers:
    - "127.0.0.1:9002"
    - "127.0.0.1:9003"

rebuild:
  bcastretrymax: 5

loglevel: "warn"
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	originalDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmpDir))
	defer os.Chdir(originalDir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9001", cfg.Server.ListenAddr)
	assert.EqualValues(t, 3, cfg.Server.RankID)
	assert.Equal(t, []string{"127.0.0.1:9002", "127.0.0.1:9003"}, cfg.Server.Peers)
	assert.Equal(t, 5, cfg.Rebuild.BcastRetryMax)
	// Unset keys in the file still fall back to their defaults.
	assert.Equal(t, 2*time.Second, cfg.Rebuild.BcastInterval)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestRebuildConfig_Fields(t *testing.T) {
	cfg := RebuildConfig{BcastInterval: 5 * time.Second, BcastRetryMax: 10}
	assert.Equal(t, 5*time.Second, cfg.BcastInterval)
	assert.Equal(t, 10, cfg.BcastRetryMax)
}
