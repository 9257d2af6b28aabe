package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFileScriptStore_Save(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "generated_scripts")
	store := NewFileScriptStore(dir, zap.NewNop())

	path, err := store.Save(context.Background(), "etl_abc", "print('hi')\n")

	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(path))
	assert.Equal(t, "etl_abc_etl_script.py", filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "print('hi')\n", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestFileScriptStore_Overwrite(t *testing.T) {
	store := NewFileScriptStore(t.TempDir(), zap.NewNop())

	_, err := store.Save(context.Background(), "etl_abc", "v1")
	require.NoError(t, err)
	path, err := store.Save(context.Background(), "etl_abc", "v2")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}

func TestFileScriptStore_UnwritableDir(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	store := NewFileScriptStore(filepath.Join(blocker, "scripts"), zap.NewNop())

	_, err := store.Save(context.Background(), "etl_abc", "x = 1")

	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
}

func TestFileScriptStore_CancelledContext(t *testing.T) {
	store := NewFileScriptStore(t.TempDir(), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Save(ctx, "etl_abc", "x = 1")

	var pe *PersistenceError
	assert.ErrorAs(t, err, &pe)
}
