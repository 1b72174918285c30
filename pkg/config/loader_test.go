package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize_DefaultsWhenNoFile(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Correlation.Shards)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestInitialize_UserOverride(t *testing.T) {
	dir := t.TempDir()
	yaml := `
redis:
  addr: "redis.internal:6380"
correlation:
  shards: 32
scheduler:
  workers: 4
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sentineld.yaml"), []byte(yaml), 0o644))

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, 32, cfg.Correlation.Shards)
	assert.Equal(t, 4, cfg.Scheduler.Workers)
	// untouched fields keep their defaults
	assert.Equal(t, 5, cfg.Scheduler.TickSeconds)
}

func TestInitialize_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sentineld.yaml"), []byte("not: [valid"), 0o644))

	_, err := Initialize(context.Background(), dir)
	assert.Error(t, err)
}

func TestInitialize_RejectsBadShards(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sentineld.yaml"), []byte("correlation:\n  shards: 2048\n"), 0o644))

	_, err := Initialize(context.Background(), dir)
	assert.Error(t, err)
}
