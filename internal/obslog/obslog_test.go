package obslog

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestNonBlockingWriter_DeliversQueuedLines(t *testing.T) {
	out := &lockedBuffer{}
	w := newNonBlockingWriter(out)

	for i := 0; i < 5; i++ {
		_, err := w.Write([]byte("line\n"))
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		return strings.Count(out.String(), "line\n") == 5
	}, time.Second, 5*time.Millisecond)
}

func TestCappedFile_RotatesPastByteCap(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mcpaudit.log")

	w, err := openCappedFile(path, 64)
	require.NoError(t, err)

	line := []byte(strings.Repeat("x", 31) + "\n")
	for i := 0; i < 5; i++ {
		_, err := w.Write(line)
		require.NoError(t, err)
	}

	rotated, err := os.ReadFile(path + ".1")
	require.NoError(t, err, "a previous generation should exist after exceeding the cap")
	assert.NotEmpty(t, rotated)

	current, err := os.Stat(path)
	require.NoError(t, err)
	assert.LessOrEqual(t, current.Size(), int64(64))
}

func TestLevel_ParsesNameAndDefaultsToInfo(t *testing.T) {
	t.Setenv("MCPAUDIT_LOG_LEVEL", "debug")
	assert.Equal(t, "debug", Level().String())

	t.Setenv("MCPAUDIT_LOG_LEVEL", "not-a-level")
	assert.Equal(t, "info", Level().String())
}
