package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "state.toml")

	require.NoError(t, WriteFileAtomic(path, []byte("first"), 0o600))
	require.NoError(t, WriteFileAtomic(path, []byte("second"), 0o600))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files should be cleaned up")
}

func TestRenameWithRetryMissingSource(t *testing.T) {
	dir := t.TempDir()
	err := RenameWithRetry(filepath.Join(dir, "missing"), filepath.Join(dir, "dst"), 0, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rename failed after 1 attempt(s)")
}
