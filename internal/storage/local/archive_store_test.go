// Package local_test tests the local filesystem archive store.
package local_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crawl-archiver/internal/crawler"
	"github.com/JakeFAU/crawl-archiver/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "archives")
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
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.Error(t, err)
	})
}

func TestArchiveStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)

	t.Run("PutOpenDelete", func(t *testing.T) {
		data := []byte("PK fake zip")
		uri, err := store.Put(ctx, "example_com_1.zip", bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, "file://"+filepath.Join(dir, "example_com_1.zip"), uri)

		rc, info, err := store.Open(ctx, "example_com_1.zip")
		require.NoError(t, err)
		got, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		assert.Equal(t, data, got)
		assert.Equal(t, int64(len(data)), info.Size)

		require.NoError(t, store.Delete(ctx, "example_com_1.zip"))
		_, _, err = store.Open(ctx, "example_com_1.zip")
		assert.ErrorIs(t, err, crawler.ErrArchiveNotFound)
	})

	t.Run("MissingArchive", func(t *testing.T) {
		_, _, err := store.Open(ctx, "never_created.zip")
		assert.ErrorIs(t, err, crawler.ErrArchiveNotFound)
		assert.ErrorIs(t, store.Delete(ctx, "never_created.zip"), crawler.ErrArchiveNotFound)
	})

	t.Run("PathTraversal", func(t *testing.T) {
		_, err := store.Put(ctx, "../escape.zip", bytes.NewReader([]byte("x")))
		assert.ErrorIs(t, err, crawler.ErrInvalidName)
		_, _, err = store.Open(ctx, "../../etc/passwd")
		assert.ErrorIs(t, err, crawler.ErrInvalidName)
	})

	t.Run("ListSkipsForeignFiles", func(t *testing.T) {
		_, err := store.Put(ctx, "b.zip", bytes.NewReader([]byte("b")))
		require.NoError(t, err)
		_, err = store.Put(ctx, "a.zip", bytes.NewReader([]byte("a")))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".upload-123"), []byte("partial"), 0o600))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("n"), 0o600))
		require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.zip"), 0o750))

		list, err := store.List(ctx)
		require.NoError(t, err)
		names := make([]string, 0, len(list))
		for _, o := range list {
			names = append(names, o.Name)
		}
		assert.Equal(t, []string{"a.zip", "b.zip"}, names)
	})
}
