package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/go-aio/internal/constants"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, constants.DefaultConcurrency, cfg.Driver.Concurrency)
	assert.Equal(t, Size(constants.DefaultChunkSize), cfg.Driver.ChunkSize)
	assert.True(t, cfg.Driver.Verify)
	assert.Equal(t, "pool", cfg.Driver.IOEngine)
	assert.Equal(t, "create", cfg.Load.Op)
	assert.Equal(t, Size(1<<20), cfg.Load.ItemSize)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
  format: json
driver:
  concurrency: 8
  chunk_size: 64K
  verify: false
  io_engine: uring
load:
  op: COPY
  count: 100
  item_size: 3MiB
  src_path: /data/in
  dst_path: /data/out
  update_ranges: [0, 3, 7]
metrics:
  enabled: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 8, cfg.Driver.Concurrency)
	assert.Equal(t, Size(64<<10), cfg.Driver.ChunkSize)
	assert.False(t, cfg.Driver.Verify)
	assert.Equal(t, "uring", cfg.Driver.IOEngine)
	assert.Equal(t, "copy", cfg.Load.Op)
	assert.Equal(t, 100, cfg.Load.Count)
	assert.Equal(t, Size(3<<20), cfg.Load.ItemSize)
	assert.Equal(t, []int{0, 3, 7}, cfg.Load.UpdateRanges)
	assert.Equal(t, "127.0.0.1:9464", cfg.Metrics.Listen)
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "driver:\n  concurrency: 8\n")
	t.Setenv("AIO_DRIVER_CONCURRENCY", "3")
	t.Setenv("AIO_LOAD_ITEM_SIZE", "2k")
	t.Setenv("AIO_LOAD_DST_PATH", "/tmp/out")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Driver.Concurrency)
	assert.Equal(t, Size(2048), cfg.Load.ItemSize)
	assert.Equal(t, "/tmp/out", cfg.Load.DstPath)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad yaml", "driver: [unclosed"},
		{"bad level", "logging:\n  level: loud\n"},
		{"bad engine", "driver:\n  io_engine: aio\n"},
		{"bad op", "load:\n  op: delete\n"},
		{"bad size", "driver:\n  chunk_size: 12Q\n"},
		{"chunk too large", "driver:\n  chunk_size: 8M\n"},
		{"range out of bounds", "load:\n  update_ranges: [64]\n"},
		{"copy without source", "load:\n  op: copy\n"},
		{"copy onto itself", "load:\n  op: copy\n  src_path: /x\n  dst_path: /x\n"},
		{"unaligned input", "load:\n  input_size: 1001\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidateMetricsListen(t *testing.T) {
	cfg := Default()
	cfg.Metrics.Enabled = true
	assert.Error(t, Validate(cfg))

	cfg.Metrics.Listen = "localhost:9000"
	assert.NoError(t, Validate(cfg))
}

func TestDefaultConfigPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	assert.Equal(t, filepath.Join(dir, "aio", "config.yaml"), DefaultConfigPath())
}
