package local_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/isocatalog/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "out", "catalogs")
		_, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: path})
		assert.Error(t, err)
	})
}

func TestPut(t *testing.T) {
	tempDir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: tempDir})
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("WritesAndReplaces", func(t *testing.T) {
		uri, err := store.Put(ctx, "catalog.json", []byte(`[1]`))
		require.NoError(t, err)
		assert.Equal(t, "file://"+filepath.Join(tempDir, "catalog.json"), uri)

		_, err = store.Put(ctx, "catalog.json", []byte(`[2]`))
		require.NoError(t, err)

		// #nosec G304 -- test reads from the controlled temp directory.
		data, err := os.ReadFile(filepath.Join(tempDir, "catalog.json"))
		require.NoError(t, err)
		assert.Equal(t, `[2]`, string(data))

		entries, err := os.ReadDir(tempDir)
		require.NoError(t, err)
		assert.Len(t, entries, 1, "temp files must not be left behind")
	})

	t.Run("NestedPath", func(t *testing.T) {
		_, err := store.Put(ctx, "a/b/catalog.json", []byte(`[]`))
		require.NoError(t, err)
		_, err = os.Stat(filepath.Join(tempDir, "a", "b", "catalog.json"))
		require.NoError(t, err)
	})

	t.Run("EmptyName", func(t *testing.T) {
		_, err := store.Put(ctx, "", []byte("data"))
		assert.Error(t, err)
	})

	t.Run("PathTraversal", func(t *testing.T) {
		_, err := store.Put(ctx, "../escape.json", []byte("data"))
		assert.ErrorContains(t, err, "path traversal")
	})

	t.Run("CanceledContext", func(t *testing.T) {
		canceled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := store.Put(canceled, "late.json", []byte("data"))
		assert.ErrorIs(t, err, context.Canceled)
	})
}
