package query

import (
	"context"
	"sync/atomic"
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

type stubNetwork struct {
	online atomic.Bool
}

func (s *stubNetwork) Start() error { return nil }

func (s *stubNetwork) Stop() error { return nil }

func (s *stubNetwork) IsRunning() bool { return true }

func (s *stubNetwork) IsOnline() bool { return s.online.Load() }

func (s *stubNetwork) SetOnline(online bool) { s.online.Store(online) }

func (s *stubNetwork) Subscribe(types.NetworkListener) func() { return func() {} }

func newTestOrchestrator(t *testing.T, online bool) (*Orchestrator, types.StoreManager, *stubNetwork) {
	t.Helper()

	log := logger.NewZapWrapper(zap.NewNop())

	store, err := storage.NewMemoryStore(context.Background(), log, &types.StorageConfig{Type: "memory"})
	require.NoError(t, err)
	require.NoError(t, store.Start())
	t.Cleanup(func() { _ = store.Stop() })

	network := &stubNetwork{}
	network.SetOnline(online)

	cfg := &stubConfig{cfg: &types.ServiceConfig{
		Query: &types.QueryConfig{
			DefaultTTL:      time.Minute,
			DefaultStrategy: types.StrategyNetworkFirst,
		},
	}}

	orchestrator, err := NewOrchestrator(log, cfg, store, network, nil)
	require.NoError(t, err)

	return orchestrator, store, network
}

func fixedFetcher(data []byte, calls *atomic.Int32) types.Fetcher {
	return func(ctx context.Context) ([]byte, error) {
		if calls != nil {
			calls.Add(1)
		}
		return data, nil
	}
}

func failingFetcher(err error) types.Fetcher {
	return func(ctx context.Context) ([]byte, error) {
		return nil, err
	}
}

func TestCachedQuery_Validation(t *testing.T) {
	t.Parallel()

	orchestrator, _, _ := newTestOrchestrator(t, true)
	ctx := context.Background()

	_, err := orchestrator.CachedQuery(ctx, fixedFetcher([]byte("v"), nil), types.QueryOptions{})
	assert.ErrorIs(t, err, types.ErrQueryKeyEmpty)

	_, err = orchestrator.CachedQuery(ctx, nil, types.QueryOptions{Key: "k"})
	assert.ErrorIs(t, err, types.ErrFetcherIsNil)

	_, err = orchestrator.CachedQuery(ctx, fixedFetcher([]byte("v"), nil), types.QueryOptions{Key: "k", Strategy: "bogus"})
	assert.ErrorIs(t, err, types.ErrUnknownStrategy)
}

func TestCachedQuery_NetworkFirst_FetchesAndCaches(t *testing.T) {
	t.Parallel()

	orchestrator, store, _ := newTestOrchestrator(t, true)
	ctx := context.Background()

	result, err := orchestrator.CachedQuery(ctx, fixedFetcher([]byte("fresh"), nil), types.QueryOptions{Key: "notes:1"})
	require.NoError(t, err)
	assert.Equal(t, []byte("fresh"), result.Data)
	assert.False(t, result.FromCache)
	assert.False(t, result.IsStale)

	cached, err := store.CacheGet(ctx, "notes:1")
	require.NoError(t, err)
	assert.Equal(t, []byte("fresh"), cached)
}

func TestCachedQuery_NetworkFirst_FallsBackToCacheOnFetchError(t *testing.T) {
	t.Parallel()

	orchestrator, store, _ := newTestOrchestrator(t, true)
	ctx := context.Background()

	require.NoError(t, store.CacheSet(ctx, "notes:1", []byte("cached"), time.Minute))

	result, err := orchestrator.CachedQuery(ctx, failingFetcher(types.NewError("backend down")), types.QueryOptions{Key: "notes:1"})
	require.NoError(t, err)
	assert.Equal(t, []byte("cached"), result.Data)
	assert.True(t, result.FromCache)
}

func TestCachedQuery_NetworkFirst_FallsBackToStaleEntry(t *testing.T) {
	t.Parallel()

	orchestrator, store, _ := newTestOrchestrator(t, true)
	ctx := context.Background()

	require.NoError(t, store.CacheSet(ctx, "notes:1", []byte("stale"), 10*time.Millisecond))
	time.Sleep(25 * time.Millisecond)

	result, err := orchestrator.CachedQuery(ctx, failingFetcher(types.NewError("backend down")), types.QueryOptions{Key: "notes:1"})
	require.NoError(t, err)
	assert.Equal(t, []byte("stale"), result.Data)
	assert.True(t, result.FromCache)
	assert.True(t, result.IsStale)
}

func TestCachedQuery_NetworkFirst_FetchErrorWithoutCache(t *testing.T) {
	t.Parallel()

	orchestrator, _, _ := newTestOrchestrator(t, true)

	fetchErr := types.NewError("backend down")
	_, err := orchestrator.CachedQuery(context.Background(), failingFetcher(fetchErr), types.QueryOptions{Key: "notes:1"})
	assert.ErrorIs(t, err, fetchErr)
}

func TestCachedQuery_Offline_ServesCachedData(t *testing.T) {
	t.Parallel()

	orchestrator, store, _ := newTestOrchestrator(t, false)
	ctx := context.Background()

	require.NoError(t, store.CacheSet(ctx, "notes:1", []byte("cached"), time.Minute))

	var calls atomic.Int32
	result, err := orchestrator.CachedQuery(ctx, fixedFetcher([]byte("fresh"), &calls), types.QueryOptions{Key: "notes:1"})
	require.NoError(t, err)
	assert.Equal(t, []byte("cached"), result.Data)
	assert.True(t, result.FromCache)
	assert.Equal(t, int32(0), calls.Load())
}

func TestCachedQuery_Offline_NoCachedData(t *testing.T) {
	t.Parallel()

	orchestrator, _, _ := newTestOrchestrator(t, false)

	_, err := orchestrator.CachedQuery(context.Background(), fixedFetcher([]byte("fresh"), nil), types.QueryOptions{Key: "notes:1"})
	assert.ErrorIs(t, err, types.ErrNoCachedData)
}

func TestCachedQuery_ForceRefresh_Offline(t *testing.T) {
	t.Parallel()

	orchestrator, store, _ := newTestOrchestrator(t, false)
	ctx := context.Background()

	// A cached value does not help: forced refreshes never read the cache.
	require.NoError(t, store.CacheSet(ctx, "notes:1", []byte("cached"), time.Minute))

	_, err := orchestrator.CachedQuery(ctx, fixedFetcher([]byte("fresh"), nil), types.QueryOptions{Key: "notes:1", ForceRefresh: true})
	assert.ErrorIs(t, err, types.ErrNoCachedData)
}

func TestCachedQuery_ForceRefresh_FetchErrorIsNotMasked(t *testing.T) {
	t.Parallel()

	orchestrator, store, _ := newTestOrchestrator(t, true)
	ctx := context.Background()

	require.NoError(t, store.CacheSet(ctx, "notes:1", []byte("cached"), time.Minute))

	fetchErr := types.NewError("backend down")
	_, err := orchestrator.CachedQuery(ctx, failingFetcher(fetchErr), types.QueryOptions{Key: "notes:1", ForceRefresh: true})
	assert.ErrorIs(t, err, fetchErr)
}

func TestCachedQuery_CacheFirst_HitSkipsFetcher(t *testing.T) {
	t.Parallel()

	orchestrator, store, _ := newTestOrchestrator(t, true)
	ctx := context.Background()

	require.NoError(t, store.CacheSet(ctx, "notes:1", []byte("cached"), time.Minute))

	var calls atomic.Int32
	result, err := orchestrator.CachedQuery(ctx, fixedFetcher([]byte("fresh"), &calls), types.QueryOptions{
		Key:      "notes:1",
		Strategy: types.StrategyCacheFirst,
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("cached"), result.Data)
	assert.True(t, result.FromCache)
	assert.Equal(t, int32(0), calls.Load())
}

func TestCachedQuery_CacheFirst_MissFallsThroughToNetwork(t *testing.T) {
	t.Parallel()

	orchestrator, store, _ := newTestOrchestrator(t, true)
	ctx := context.Background()

	var calls atomic.Int32
	result, err := orchestrator.CachedQuery(ctx, fixedFetcher([]byte("fresh"), &calls), types.QueryOptions{
		Key:      "notes:1",
		Strategy: types.StrategyCacheFirst,
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("fresh"), result.Data)
	assert.False(t, result.FromCache)
	assert.Equal(t, int32(1), calls.Load())

	cached, err := store.CacheGet(ctx, "notes:1")
	require.NoError(t, err)
	assert.Equal(t, []byte("fresh"), cached)
}

func TestCachedQuery_CacheFirst_ExpiredEntryRefetches(t *testing.T) {
	t.Parallel()

	orchestrator, _, _ := newTestOrchestrator(t, true)
	ctx := context.Background()

	require.NoError(t, orchestrator.store.CacheSet(ctx, "notes:1", []byte("stale"), 10*time.Millisecond))
	time.Sleep(25 * time.Millisecond)

	result, err := orchestrator.CachedQuery(ctx, fixedFetcher([]byte("fresh"), nil), types.QueryOptions{
		Key:      "notes:1",
		Strategy: types.StrategyCacheFirst,
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("fresh"), result.Data)
	assert.False(t, result.FromCache)
}

func TestCachedQuery_StaleWhileRevalidate_ServesStaleAndRefreshes(t *testing.T) {
	t.Parallel()

	orchestrator, store, _ := newTestOrchestrator(t, true)
	ctx := context.Background()

	require.NoError(t, store.CacheSet(ctx, "notes:1", []byte("stale"), 10*time.Millisecond))
	time.Sleep(25 * time.Millisecond)

	result, err := orchestrator.CachedQuery(ctx, fixedFetcher([]byte("fresh"), nil), types.QueryOptions{
		Key:      "notes:1",
		Strategy: types.StrategyStaleWhileRevalidate,
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("stale"), result.Data)
	assert.True(t, result.FromCache)
	assert.True(t, result.IsStale)

	require.Eventually(t, func() bool {
		data, err := store.CacheGet(ctx, "notes:1")
		return err == nil && string(data) == "fresh"
	}, 2*time.Second, 10*time.Millisecond, "background revalidation should refresh the entry")
}

func TestCachedQuery_StaleWhileRevalidate_OfflineSkipsRevalidation(t *testing.T) {
	t.Parallel()

	orchestrator, store, _ := newTestOrchestrator(t, false)
	ctx := context.Background()

	require.NoError(t, store.CacheSet(ctx, "notes:1", []byte("stale"), 10*time.Millisecond))
	time.Sleep(25 * time.Millisecond)

	var calls atomic.Int32
	result, err := orchestrator.CachedQuery(ctx, fixedFetcher([]byte("fresh"), &calls), types.QueryOptions{
		Key:      "notes:1",
		Strategy: types.StrategyStaleWhileRevalidate,
	})
	require.NoError(t, err)
	assert.True(t, result.IsStale)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestCachedQuery_StaleWhileRevalidate_MissFetches(t *testing.T) {
	t.Parallel()

	orchestrator, _, _ := newTestOrchestrator(t, true)

	result, err := orchestrator.CachedQuery(context.Background(), fixedFetcher([]byte("fresh"), nil), types.QueryOptions{
		Key:      "notes:1",
		Strategy: types.StrategyStaleWhileRevalidate,
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("fresh"), result.Data)
	assert.False(t, result.FromCache)
}

func TestPrefetch_WarmsCache(t *testing.T) {
	t.Parallel()

	orchestrator, store, _ := newTestOrchestrator(t, true)
	ctx := context.Background()

	require.NoError(t, orchestrator.Prefetch(ctx, fixedFetcher([]byte("warm"), nil), "notes:1", time.Minute))

	cached, err := store.CacheGet(ctx, "notes:1")
	require.NoError(t, err)
	assert.Equal(t, []byte("warm"), cached)
}

func TestPrefetch_PropagatesFetchError(t *testing.T) {
	t.Parallel()

	orchestrator, _, _ := newTestOrchestrator(t, true)

	fetchErr := types.NewError("backend down")
	err := orchestrator.Prefetch(context.Background(), failingFetcher(fetchErr), "notes:1", time.Minute)
	assert.ErrorIs(t, err, fetchErr)
}

func TestInvalidate_RemovesEntry(t *testing.T) {
	t.Parallel()

	orchestrator, store, _ := newTestOrchestrator(t, true)
	ctx := context.Background()

	require.NoError(t, store.CacheSet(ctx, "notes:1", []byte("cached"), time.Minute))
	require.NoError(t, orchestrator.Invalidate(ctx, "notes:1"))

	_, err := store.CacheGet(ctx, "notes:1")
	assert.ErrorIs(t, err, types.ErrCacheEntryNotFound)
}
