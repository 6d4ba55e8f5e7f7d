package runtimeconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_NoPathAndNoEnvReturnsDefaults(t *testing.T) {
	t.Setenv("MCPAUDIT_CONFIG_PATH", "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoad_FileOverridesLayerOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("time_window_seconds: 45\nbaseline_latency_ms: 9000\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 45, cfg.TimeWindowSeconds)
	assert.Equal(t, int64(9000), cfg.BaselineLatencyMS)
	// everything not set in the file keeps its default
	assert.Equal(t, Defaults().ExportIntervalSeconds, cfg.ExportIntervalSeconds)
	assert.Equal(t, Defaults().MaxDecisionSessions, cfg.MaxDecisionSessions)
}

func TestLoad_EnvVarSuppliesDefaultPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("shutdown_drain_seconds: 12\n"), 0o644))
	t.Setenv("MCPAUDIT_CONFIG_PATH", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.ShutdownDrainSeconds)
}
