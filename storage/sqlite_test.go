package storage

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-offline/logger"
	"github.com/saiset-co/sai-offline/types"
)

func newTestSqliteStore(t *testing.T, compression *types.CompressionConfig) types.StoreManager {
	t.Helper()

	cfg := &types.StorageConfig{
		Type:        "sqlite",
		Path:        filepath.Join(t.TempDir(), "offline.db"),
		Compression: compression,
	}

	store, err := NewSqliteStore(context.Background(), logger.NewZapWrapper(zap.NewNop()), cfg)
	require.NoError(t, err)
	require.NoError(t, store.Start())

	t.Cleanup(func() {
		_ = store.Stop()
	})

	return store
}

func TestSqliteStore_CacheRoundtrip(t *testing.T) {
	t.Parallel()

	store := newTestSqliteStore(t, nil)
	ctx := context.Background()

	require.NoError(t, store.CacheSet(ctx, "notes:1", []byte(`{"title":"a"}`), time.Minute))

	data, err := store.CacheGet(ctx, "notes:1")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"title":"a"}`), data)
}

func TestSqliteStore_CacheSet_Overwrites(t *testing.T) {
	t.Parallel()

	store := newTestSqliteStore(t, nil)
	ctx := context.Background()

	require.NoError(t, store.CacheSet(ctx, "notes:1", []byte("old"), time.Minute))
	require.NoError(t, store.CacheSet(ctx, "notes:1", []byte("new"), time.Minute))

	data, err := store.CacheGet(ctx, "notes:1")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), data)

	count, err := store.CacheCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSqliteStore_ExpiredEntry_StrictVsStale(t *testing.T) {
	t.Parallel()

	store := newTestSqliteStore(t, nil)
	ctx := context.Background()

	require.NoError(t, store.CacheSet(ctx, "notes:1", []byte("v"), 10*time.Millisecond))
	time.Sleep(25 * time.Millisecond)

	stale, err := store.CacheGetStale(ctx, "notes:1")
	require.NoError(t, err)
	assert.True(t, stale.IsStale)
	assert.Equal(t, []byte("v"), stale.Data)

	_, err = store.CacheGet(ctx, "notes:1")
	assert.ErrorIs(t, err, types.ErrCacheEntryNotFound)

	// The strict read removed the row, so the stale read misses now too.
	_, err = store.CacheGetStale(ctx, "notes:1")
	assert.ErrorIs(t, err, types.ErrCacheEntryNotFound)
}

func TestSqliteStore_CacheCleanExpired(t *testing.T) {
	t.Parallel()

	store := newTestSqliteStore(t, nil)
	ctx := context.Background()

	require.NoError(t, store.CacheSet(ctx, "old:1", []byte("v"), 10*time.Millisecond))
	require.NoError(t, store.CacheSet(ctx, "fresh:1", []byte("v"), time.Hour))
	time.Sleep(25 * time.Millisecond)

	removed, err := store.CacheCleanExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	count, err := store.CacheCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSqliteStore_CacheDeleteByPrefix(t *testing.T) {
	t.Parallel()

	store := newTestSqliteStore(t, nil)
	ctx := context.Background()

	require.NoError(t, store.CacheSet(ctx, "notes:1", []byte("v"), time.Hour))
	require.NoError(t, store.CacheSet(ctx, "notes:2", []byte("v"), time.Hour))
	require.NoError(t, store.CacheSet(ctx, "notes2:1", []byte("v"), time.Hour))
	require.NoError(t, store.CacheSet(ctx, "tasks:1", []byte("v"), time.Hour))

	removed, err := store.CacheDeleteByPrefix(ctx, "notes:")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = store.CacheGet(ctx, "notes2:1")
	assert.NoError(t, err)
	_, err = store.CacheGet(ctx, "tasks:1")
	assert.NoError(t, err)
}

func TestSqliteStore_CacheEntries(t *testing.T) {
	t.Parallel()

	store := newTestSqliteStore(t, nil)
	ctx := context.Background()

	require.NoError(t, store.CacheSet(ctx, "notes:1", []byte("aa"), time.Hour))
	require.NoError(t, store.CacheSet(ctx, "tasks:1", []byte("bb"), time.Hour))

	entries, err := store.CacheEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	for _, entry := range entries {
		assert.NotEmpty(t, entry.Key)
		assert.Len(t, entry.Data, 2)
		assert.False(t, entry.Expired(time.Now()))
	}
}

func TestSqliteStore_CompressionRoundtrip(t *testing.T) {
	t.Parallel()

	store := newTestSqliteStore(t, &types.CompressionConfig{Enabled: true, MinSizeBytes: 64})
	ctx := context.Background()

	big := bytes.Repeat([]byte("offline cache payload "), 100)
	small := []byte("tiny")

	require.NoError(t, store.CacheSet(ctx, "big", big, time.Hour))
	require.NoError(t, store.CacheSet(ctx, "small", small, time.Hour))

	gotBig, err := store.CacheGet(ctx, "big")
	require.NoError(t, err)
	assert.Equal(t, big, gotBig)

	gotSmall, err := store.CacheGet(ctx, "small")
	require.NoError(t, err)
	assert.Equal(t, small, gotSmall)
}

func TestSqliteStore_QueueSurvivesReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	log := logger.NewZapWrapper(zap.NewNop())
	cfg := &types.StorageConfig{
		Type: "sqlite",
		Path: filepath.Join(t.TempDir(), "offline.db"),
	}

	store, err := NewSqliteStore(ctx, log, cfg)
	require.NoError(t, err)
	require.NoError(t, store.Start())

	_, err = store.QueueAdd(ctx, "create_note", []byte("a"))
	require.NoError(t, err)
	_, err = store.QueueAdd(ctx, "update_note", []byte("b"))
	require.NoError(t, err)

	require.NoError(t, store.Stop())

	reopened, err := NewSqliteStore(ctx, log, cfg)
	require.NoError(t, err)
	require.NoError(t, reopened.Start())
	defer reopened.Stop()

	items, err := reopened.QueueGetAll(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "create_note", items[0].Action)
	assert.Equal(t, "update_note", items[1].Action)

	// New ids keep increasing after a restart.
	id, err := reopened.QueueAdd(ctx, "delete_note", []byte("c"))
	require.NoError(t, err)
	assert.Greater(t, id, items[1].ID)
}

func TestSqliteStore_QueueRetryAndRemove(t *testing.T) {
	t.Parallel()

	store := newTestSqliteStore(t, nil)
	ctx := context.Background()

	id, err := store.QueueAdd(ctx, "update_note", []byte("b"))
	require.NoError(t, err)

	require.NoError(t, store.QueueIncrementRetry(ctx, id))

	items, err := store.QueueGetAll(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].Retries)

	require.NoError(t, store.QueueRemove(ctx, id))
	assert.ErrorIs(t, store.QueueRemove(ctx, id), types.ErrQueueItemNotFound)
}

func TestSqliteStore_SessionRegion(t *testing.T) {
	t.Parallel()

	store := newTestSqliteStore(t, nil)
	ctx := context.Background()

	require.NoError(t, store.SessionSet(ctx, "edit:note:1", []byte("baseline")))
	require.NoError(t, store.SessionSet(ctx, "edit:note:1", []byte("updated")))

	data, err := store.SessionGet(ctx, "edit:note:1")
	require.NoError(t, err)
	assert.Equal(t, []byte("updated"), data)

	require.NoError(t, store.SessionClear(ctx))
	_, err = store.SessionGet(ctx, "edit:note:1")
	assert.ErrorIs(t, err, types.ErrSessionEntryNotFound)
}
