package paths

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateDir_UsesEnvOverrideAndCreatesIt(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "state")
	t.Setenv("MCPAUDIT_STATE_HOME", dir)

	got, err := StateDir()
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	info, err := os.Stat(got)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestStreamFile_JoinsStateDirAndStreamName(t *testing.T) {
	assert.Equal(t, filepath.Join("/tmp/state", "mcp_audit_messages.jsonl"), StreamFile("/tmp/state", "mcp_audit_messages"))
}

func TestLogDir_MatchesStateDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	t.Setenv("MCPAUDIT_STATE_HOME", dir)

	stateDir, err := StateDir()
	require.NoError(t, err)
	logDir, err := LogDir()
	require.NoError(t, err)
	assert.Equal(t, stateDir, logDir)
}
