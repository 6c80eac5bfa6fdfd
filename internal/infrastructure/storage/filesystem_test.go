package storage_test

import (
	"os"
	"path/filepath"
	"testing"

	"catalog-backend/internal/infrastructure/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOSFileSystem_WriteAndRead(t *testing.T) {
	fs := storage.NewOSFileSystem()
	path := filepath.Join(t.TempDir(), "nested", "products.json")

	assert.False(t, fs.Exists(path))

	require.NoError(t, fs.WriteFile(path, []byte(`[{"id":"1"}]`)))
	assert.True(t, fs.Exists(path))

	data, err := fs.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"1"}]`, string(data))

	info, err := fs.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(12), info.Size)
	assert.False(t, info.ModTime.IsZero())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestOSFileSystem_WriteReplacesContent(t *testing.T) {
	fs := storage.NewOSFileSystem()
	path := filepath.Join(t.TempDir(), "categories.json")

	require.NoError(t, fs.WriteFile(path, []byte(`["a","b","c"]`)))
	require.NoError(t, fs.WriteFile(path, []byte(`[]`)))

	data, err := fs.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(data))
}

func TestOSFileSystem_StatMissing(t *testing.T) {
	fs := storage.NewOSFileSystem()

	_, err := fs.Stat(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestOSFileSystem_ExistsIgnoresDirectories(t *testing.T) {
	fs := storage.NewOSFileSystem()
	assert.False(t, fs.Exists(t.TempDir()))
}

func TestOSFileSystem_Copy(t *testing.T) {
	fs := storage.NewOSFileSystem()
	dir := t.TempDir()
	src := filepath.Join(dir, "inquiries.json")
	dst := filepath.Join(dir, "backups", "inquiries.json.bak")

	require.NoError(t, fs.WriteFile(src, []byte(`[1,2]`)))
	require.NoError(t, fs.Copy(src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, `[1,2]`, string(data))

	assert.Error(t, fs.Copy(filepath.Join(dir, "nope.json"), dst))
}

func TestOSFileSystem_GlobAndRemove(t *testing.T) {
	fs := storage.NewOSFileSystem()
	dir := t.TempDir()

	for _, name := range []string{"a.json.1.bak", "a.json.2.bak", "b.json.1.bak"} {
		require.NoError(t, fs.WriteFile(filepath.Join(dir, name), []byte("[]")))
	}

	matches, err := fs.Glob(filepath.Join(dir, "a.json.*.bak"))
	require.NoError(t, err)
	assert.Len(t, matches, 2)

	require.NoError(t, fs.Remove(matches[0]))
	require.NoError(t, fs.Remove(matches[0]), "removing a missing file is not an error")
	assert.False(t, fs.Exists(matches[0]))
}
