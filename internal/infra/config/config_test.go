package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "server:\n  addr: \":9090\"\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "high", cfg.Resolver.Quality)
	assert.Equal(t, 45, cfg.Resolver.RecoveryWindowSec)
	assert.Equal(t, 2, cfg.Resolver.MaxRecoveryTries)
	assert.Equal(t, 20, cfg.Queue.WindowBefore)
	assert.Equal(t, 50, cfg.Queue.WindowAfter)
	assert.Equal(t, 2000, cfg.Queue.SettleDelayMs)
	assert.Equal(t, 5, cfg.Queue.LowWaterPaged)
	assert.Equal(t, 3, cfg.Queue.LowWaterNoPages)
	assert.Equal(t, 5, cfg.Playback.MaxConsecutiveErrors)
	assert.Equal(t, 30, cfg.Playback.SnapshotIntervalSec)
	assert.Equal(t, 10, cfg.Playback.PlayingSnapshotSec)
	assert.Equal(t, "file", cfg.Persistence.Backend)
	assert.Equal(t, []string{"opus", "aac", "mp3"}, cfg.Device.SupportedCodecs)
	assert.Equal(t, "http://localhost:9000", cfg.Catalog.BaseURL)
	assert.Equal(t, "1.1.1.1:443", cfg.Connectivity.ProbeAddr)
}

func TestLoad_FileValuesWin(t *testing.T) {
	path := writeConfig(t, `
resolver:
  quality: low
  recovery_window_sec: 60
queue:
  window_before: 10
  window_after: 30
persistence:
  backend: redis
  redis:
    addr: "redis:6379"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "low", cfg.Resolver.Quality)
	assert.Equal(t, 60, cfg.Resolver.RecoveryWindowSec)
	assert.Equal(t, 10, cfg.Queue.WindowBefore)
	assert.Equal(t, 30, cfg.Queue.WindowAfter)
	assert.Equal(t, "redis", cfg.Persistence.Backend)
	assert.Equal(t, "redis:6379", cfg.Persistence.Redis.Addr)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("REDIS_ADDR", "override:6379")
	t.Setenv("REDIS_PASSWORD", "secret")

	path := writeConfig(t, "persistence:\n  backend: redis\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "override:6379", cfg.Persistence.Redis.Addr)
	assert.Equal(t, "secret", cfg.Persistence.Redis.Password)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "bad quality",
			content: "resolver:\n  quality: ultra\n",
		},
		{
			name:    "bad backend",
			content: "persistence:\n  backend: s3\n",
		},
		{
			name:    "playing snapshot slower than base",
			content: "playback:\n  snapshot_interval_sec: 5\n  playing_snapshot_sec: 10\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
