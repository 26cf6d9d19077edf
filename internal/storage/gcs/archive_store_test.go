package gcs

import (
	"bytes"
	"context"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/JakeFAU/crawl-archiver/internal/crawler"
)

func newOfflineClient(t *testing.T) *storage.Client {
	t.Helper()
	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication(), option.WithEndpoint("http://127.0.0.1:1/storage/v1/"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	client := newOfflineClient(t)
	_, err = New(client, Config{})
	require.Error(t, err)

	store, err := New(client, Config{Bucket: "b", Prefix: "/archives/"})
	require.NoError(t, err)
	assert.Equal(t, "archives/x.zip", store.key("x.zip"))

	store, err = New(client, Config{Bucket: "b"})
	require.NoError(t, err)
	assert.Equal(t, "x.zip", store.key("x.zip"))
}

func TestRejectsInvalidNamesBeforeNetwork(t *testing.T) {
	t.Parallel()

	store, err := New(newOfflineClient(t), Config{Bucket: "b"})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Put(ctx, "../x.zip", bytes.NewReader(nil))
	require.ErrorIs(t, err, crawler.ErrInvalidName)
	_, _, err = store.Open(ctx, "a/b.zip")
	require.ErrorIs(t, err, crawler.ErrInvalidName)
	require.ErrorIs(t, store.Delete(ctx, "x.tar"), crawler.ErrInvalidName)
}
