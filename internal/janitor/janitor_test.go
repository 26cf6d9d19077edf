package janitor

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-archiver/internal/clock"
	"github.com/JakeFAU/crawl-archiver/internal/crawler"
	"github.com/JakeFAU/crawl-archiver/internal/storage/memory"
)

var epoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, store *memory.ArchiveStore, name string, mod time.Time) {
	t.Helper()
	_, err := store.Put(context.Background(), name, bytes.NewReader([]byte(name)))
	require.NoError(t, err)
	store.SetModTime(name, mod)
}

func TestNewValidation(t *testing.T) {
	store := memory.NewArchiveStore()
	_, err := New(nil, clock.System{}, Config{Retention: time.Hour, Interval: time.Minute}, nil)
	assert.Error(t, err)
	_, err = New(store, clock.System{}, Config{Interval: time.Minute}, nil)
	assert.Error(t, err)
	_, err = New(store, clock.System{}, Config{Retention: time.Hour}, nil)
	assert.Error(t, err)
	j, err := New(store, clock.System{}, Config{Retention: time.Hour, Interval: time.Minute}, nil)
	require.NoError(t, err)
	assert.NotNil(t, j)
}

func TestSweepRemovesExpiredArchives(t *testing.T) {
	store := memory.NewArchiveStore()
	seed(t, store, "old.zip", epoch.Add(-2*time.Hour))
	seed(t, store, "edge.zip", epoch.Add(-time.Hour))
	seed(t, store, "fresh.zip", epoch.Add(-time.Minute))

	j, err := New(store, clock.NewFixed(epoch), Config{Retention: time.Hour, Interval: time.Minute}, zap.NewNop())
	require.NoError(t, err)

	removed, err := j.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	list, err := store.List(context.Background())
	require.NoError(t, err)
	names := []string{}
	for _, o := range list {
		names = append(names, o.Name)
	}
	assert.Equal(t, []string{"edge.zip", "fresh.zip"}, names)
}

type flakyStore struct {
	*memory.ArchiveStore
	fail map[string]error
}

func (f flakyStore) Delete(ctx context.Context, name string) error {
	if err, ok := f.fail[name]; ok {
		return err
	}
	return f.ArchiveStore.Delete(ctx, name)
}

func TestSweepContinuesPastErrors(t *testing.T) {
	inner := memory.NewArchiveStore()
	seed(t, inner, "a.zip", epoch.Add(-3*time.Hour))
	seed(t, inner, "b.zip", epoch.Add(-3*time.Hour))
	seed(t, inner, "c.zip", epoch.Add(-3*time.Hour))
	store := flakyStore{ArchiveStore: inner, fail: map[string]error{
		"a.zip": errors.New("permission denied"),
		"b.zip": crawler.ErrArchiveNotFound,
	}}

	j, err := New(store, clock.NewFixed(epoch), Config{Retention: time.Hour, Interval: time.Minute}, nil)
	require.NoError(t, err)

	removed, err := j.Sweep(context.Background())
	assert.Equal(t, 1, removed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a.zip")
	assert.NotContains(t, err.Error(), "b.zip")
}

func TestRunStopsOnCancel(t *testing.T) {
	store := memory.NewArchiveStore()
	seed(t, store, "old.zip", epoch.Add(-48*time.Hour))
	j, err := New(store, clock.NewFixed(epoch), Config{Retention: time.Hour, Interval: 10 * time.Millisecond}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		list, _ := store.List(context.Background())
		return len(list) == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
