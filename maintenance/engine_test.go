package maintenance

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-offline/logger"
	"github.com/saiset-co/sai-offline/storage"
	"github.com/saiset-co/sai-offline/types"
)

type stubConfig struct {
	cfg *types.ServiceConfig
}

func (s *stubConfig) Load() error { return nil }

func (s *stubConfig) GetConfig() *types.ServiceConfig { return s.cfg }

func (s *stubConfig) GetValue(string, interface{}) interface{} { return nil }

func (s *stubConfig) GetAs(string, interface{}) error { return nil }

func newTestEngine(t *testing.T, cfg *types.MaintenanceConfig) (*Engine, types.StoreManager) {
	t.Helper()

	log := logger.NewZapWrapper(zap.NewNop())

	store, err := storage.NewMemoryStore(context.Background(), log, &types.StorageConfig{Type: "memory"})
	require.NoError(t, err)
	require.NoError(t, store.Start())
	t.Cleanup(func() { _ = store.Stop() })

	engine, err := NewEngine(log, &stubConfig{cfg: &types.ServiceConfig{Maintenance: cfg}}, store, nil)
	require.NoError(t, err)
	require.NoError(t, engine.Start())
	t.Cleanup(func() { _ = engine.Stop() })

	return engine, store
}

func TestCleanupExpiredEntries(t *testing.T) {
	t.Parallel()

	engine, store := newTestEngine(t, &types.MaintenanceConfig{Enabled: true})
	ctx := context.Background()

	require.NoError(t, store.CacheSet(ctx, "old:1", []byte("v"), 10*time.Millisecond))
	require.NoError(t, store.CacheSet(ctx, "old:2", []byte("v"), 10*time.Millisecond))
	require.NoError(t, store.CacheSet(ctx, "fresh:1", []byte("v"), time.Hour))
	time.Sleep(25 * time.Millisecond)

	removed, err := engine.CleanupExpiredEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	count, err := store.CacheCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCleanupCacheBySize_UnderBudgetIsNoOp(t *testing.T) {
	t.Parallel()

	engine, store := newTestEngine(t, &types.MaintenanceConfig{
		Enabled:         true,
		MaxSizeBytes:    1 << 20,
		TargetSizeRatio: 0.8,
	})
	ctx := context.Background()

	require.NoError(t, store.CacheSet(ctx, "notes:1", []byte("small"), time.Hour))

	result, err := engine.CleanupCacheBySize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Evicted)
	assert.Equal(t, result.SizeBefore, result.SizeAfter)
}

func TestCleanupCacheBySize_DisabledBudgetIsNoOp(t *testing.T) {
	t.Parallel()

	engine, store := newTestEngine(t, &types.MaintenanceConfig{Enabled: true})
	ctx := context.Background()

	require.NoError(t, store.CacheSet(ctx, "notes:1", bytes.Repeat([]byte("x"), 4096), time.Hour))

	result, err := engine.CleanupCacheBySize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Evicted)
}

func TestCleanupCacheBySize_EvictsLowPriorityFirst(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte("x"), 400)

	engine, store := newTestEngine(t, &types.MaintenanceConfig{
		Enabled:         true,
		MaxSizeBytes:    1000,
		TargetSizeRatio: 0.8,
		MaxAgeWindow:    7 * 24 * time.Hour,
		DefaultPriority: 1,
		Priorities: []types.PriorityRule{
			{Prefix: "pinned:", Priority: 10},
		},
	})
	ctx := context.Background()

	require.NoError(t, store.CacheSet(ctx, "pinned:1", payload, time.Hour))
	require.NoError(t, store.CacheSet(ctx, "temp:1", payload, time.Hour))
	require.NoError(t, store.CacheSet(ctx, "temp:2", payload, time.Hour))

	result, err := engine.CleanupCacheBySize(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, result.Evicted, 1)
	assert.Less(t, result.SizeAfter, result.SizeBefore)
	assert.Zero(t, result.RemovedByCategory["pinned"])

	_, err = store.CacheGet(ctx, "pinned:1")
	assert.NoError(t, err, "high priority entry must survive eviction")
}

func TestCleanupCacheBySize_ExpiredEntriesSinkFirst(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte("x"), 400)

	engine, store := newTestEngine(t, &types.MaintenanceConfig{
		Enabled:         true,
		MaxSizeBytes:    1000,
		TargetSizeRatio: 0.8,
		MaxAgeWindow:    7 * 24 * time.Hour,
		DefaultPriority: 5,
	})
	ctx := context.Background()

	require.NoError(t, store.CacheSet(ctx, "notes:stale", payload, 10*time.Millisecond))
	require.NoError(t, store.CacheSet(ctx, "notes:live1", payload, time.Hour))
	require.NoError(t, store.CacheSet(ctx, "notes:live2", payload, time.Hour))
	time.Sleep(25 * time.Millisecond)

	_, err := engine.CleanupCacheBySize(ctx)
	require.NoError(t, err)

	_, err = store.CacheGetStale(ctx, "notes:stale")
	assert.ErrorIs(t, err, types.ErrCacheEntryNotFound, "expired entry should be the first eviction candidate")
}

func TestCleanupCacheBySize_CategoryMinimumWinsOverTarget(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte("x"), 600)

	engine, store := newTestEngine(t, &types.MaintenanceConfig{
		Enabled:               true,
		MaxSizeBytes:          1000,
		TargetSizeRatio:       0.5,
		MinEntriesPerCategory: 1,
		MaxAgeWindow:          7 * 24 * time.Hour,
		DefaultPriority:       5,
	})
	ctx := context.Background()

	// One entry per category: the per-category floor protects both, so the
	// cache stays above its size target.
	require.NoError(t, store.CacheSet(ctx, "notes:1", payload, time.Hour))
	require.NoError(t, store.CacheSet(ctx, "tasks:1", payload, time.Hour))

	result, err := engine.CleanupCacheBySize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Evicted)
	assert.Equal(t, 2, result.SkippedProtected)
	assert.True(t, result.AboveTarget)

	count, err := store.CacheCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestPerformCacheMaintenance(t *testing.T) {
	t.Parallel()

	engine, store := newTestEngine(t, &types.MaintenanceConfig{
		Enabled:         true,
		MaxSizeBytes:    1 << 20,
		TargetSizeRatio: 0.8,
	})
	ctx := context.Background()

	require.NoError(t, store.CacheSet(ctx, "old:1", []byte("v"), 10*time.Millisecond))
	require.NoError(t, store.CacheSet(ctx, "fresh:1", []byte("v"), time.Hour))
	time.Sleep(25 * time.Millisecond)

	result, err := engine.PerformCacheMaintenance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Expired)
	require.NotNil(t, result.Eviction)
	assert.Equal(t, 0, result.Eviction.Evicted)
}

func TestClearCacheByPrefix(t *testing.T) {
	t.Parallel()

	engine, store := newTestEngine(t, &types.MaintenanceConfig{Enabled: true})
	ctx := context.Background()

	require.NoError(t, store.CacheSet(ctx, "notes:1", []byte("v"), time.Hour))
	require.NoError(t, store.CacheSet(ctx, "notes:2", []byte("v"), time.Hour))
	require.NoError(t, store.CacheSet(ctx, "tasks:1", []byte("v"), time.Hour))

	removed, err := engine.ClearCacheByPrefix(ctx, "notes:")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
}

func TestCacheStats(t *testing.T) {
	t.Parallel()

	engine, store := newTestEngine(t, &types.MaintenanceConfig{Enabled: true})
	ctx := context.Background()

	require.NoError(t, store.CacheSet(ctx, "notes:1", []byte("aaaa"), time.Hour))
	require.NoError(t, store.CacheSet(ctx, "old:1", []byte("bb"), 10*time.Millisecond))
	time.Sleep(25 * time.Millisecond)

	stats, err := engine.CacheStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Entries)
	assert.Equal(t, 1, stats.ExpiredEntries)
	assert.Equal(t, int64(len("notes:1")+4+len("old:1")+2), stats.EstimatedBytes)
}

func TestScore_Ordering(t *testing.T) {
	t.Parallel()

	engine, _ := newTestEngine(t, &types.MaintenanceConfig{
		Enabled:         true,
		MaxAgeWindow:    time.Hour,
		DefaultPriority: 5,
		Priorities: []types.PriorityRule{
			{Prefix: "pinned:", Priority: 10},
		},
	})

	now := time.Now()
	fresh := &types.CacheEntry{Key: "notes:1", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	old := &types.CacheEntry{Key: "notes:2", CreatedAt: now.Add(-30 * time.Minute), ExpiresAt: now.Add(time.Hour)}
	expired := &types.CacheEntry{Key: "notes:3", CreatedAt: now, ExpiresAt: now.Add(-time.Minute)}
	pinned := &types.CacheEntry{Key: "pinned:1", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}

	assert.Greater(t, engine.score(fresh, now), engine.score(old, now))
	assert.Greater(t, engine.score(fresh, now), engine.score(expired, now))
	assert.Greater(t, engine.score(pinned, now), engine.score(fresh, now))

	// Entries older than the age window bottom out at zero.
	ancient := &types.CacheEntry{Key: "notes:4", CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(time.Hour)}
	assert.Zero(t, engine.score(ancient, now))
}

func TestScore_FirstMatchingPrefixWins(t *testing.T) {
	t.Parallel()

	engine, _ := newTestEngine(t, &types.MaintenanceConfig{
		Enabled:         true,
		MaxAgeWindow:    time.Hour,
		DefaultPriority: 1,
		Priorities: []types.PriorityRule{
			{Prefix: "notes:", Priority: 2},
			{Prefix: "notes:pinned:", Priority: 9},
		},
	})

	now := time.Now()
	entry := &types.CacheEntry{Key: "notes:pinned:1", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}

	// Rules apply in order, so the broader notes: rule shadows the
	// more specific one listed after it.
	assert.InDelta(t, 2.0, engine.score(entry, now), 0.01)
}
