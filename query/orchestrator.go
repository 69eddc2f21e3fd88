package query

import (
	"context"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/saiset-co/sai-offline/types"
)

const revalidateTimeout = 30 * time.Second

// Orchestrator routes reads between the remote fetcher and the durable
// cache according to the per-call strategy. Fetch errors are returned
// verbatim when no cached fallback exists.
type Orchestrator struct {
	store   types.StoreManager
	network types.NetworkMonitor
	logger  types.Logger
	metrics types.MetricsManager
	config  *types.QueryConfig
	group   singleflight.Group
}

func NewOrchestrator(logger types.Logger, config types.ConfigManager, store types.StoreManager, network types.NetworkMonitor, metrics types.MetricsManager) (*Orchestrator, error) {
	queryConfig := config.GetConfig().Query
	if queryConfig == nil {
		queryConfig = &types.QueryConfig{
			DefaultTTL:      5 * time.Minute,
			DefaultStrategy: types.StrategyNetworkFirst,
		}
	}

	return &Orchestrator{
		store:   store,
		network: network,
		logger:  logger,
		metrics: metrics,
		config:  queryConfig,
	}, nil
}

func (o *Orchestrator) CachedQuery(ctx context.Context, fetcher types.Fetcher, opts types.QueryOptions) (*types.QueryResult, error) {
	if opts.Key == "" {
		return nil, types.ErrQueryKeyEmpty
	}
	if fetcher == nil {
		return nil, types.ErrFetcherIsNil
	}

	if opts.TTL <= 0 {
		opts.TTL = o.config.DefaultTTL
	}
	if opts.Strategy == "" {
		opts.Strategy = o.config.DefaultStrategy
	}

	if opts.ForceRefresh {
		result, err := o.networkFirst(ctx, fetcher, opts, true)
		o.recordQuery(opts.Strategy, result, err)
		return result, err
	}

	var result *types.QueryResult
	var err error

	switch opts.Strategy {
	case types.StrategyNetworkFirst:
		result, err = o.networkFirst(ctx, fetcher, opts, false)
	case types.StrategyCacheFirst:
		result, err = o.cacheFirst(ctx, fetcher, opts)
	case types.StrategyStaleWhileRevalidate:
		result, err = o.staleWhileRevalidate(ctx, fetcher, opts)
	default:
		return nil, types.Errorf(types.ErrUnknownStrategy, "strategy: %s", opts.Strategy)
	}

	o.recordQuery(opts.Strategy, result, err)
	return result, err
}

// Prefetch warms the cache without involving a strategy. Errors from the
// fetcher propagate so callers can retry.
func (o *Orchestrator) Prefetch(ctx context.Context, fetcher types.Fetcher, key string, ttl time.Duration) error {
	if key == "" {
		return types.ErrQueryKeyEmpty
	}
	if fetcher == nil {
		return types.ErrFetcherIsNil
	}

	if ttl <= 0 {
		ttl = o.config.DefaultTTL
	}

	data, err := o.fetch(ctx, fetcher, key)
	if err != nil {
		return err
	}

	return o.store.CacheSet(ctx, key, data, ttl)
}

func (o *Orchestrator) Invalidate(ctx context.Context, key string) error {
	if key == "" {
		return types.ErrQueryKeyEmpty
	}

	return o.store.CacheDelete(ctx, key)
}

// networkFirst fetches when online and falls back to the cache on fetch
// failure, stale entries included. When skipCache is unset the fallback
// also serves offline callers.
func (o *Orchestrator) networkFirst(ctx context.Context, fetcher types.Fetcher, opts types.QueryOptions, skipCache bool) (*types.QueryResult, error) {
	if !o.network.IsOnline() {
		if skipCache {
			return nil, types.ErrNoCachedData
		}
		return o.fromCacheStale(ctx, opts.Key)
	}

	data, fetchErr := o.fetch(ctx, fetcher, opts.Key)
	if fetchErr == nil {
		if err := o.store.CacheSet(ctx, opts.Key, data, opts.TTL); err != nil {
			o.logger.Warn("Failed to cache fetched data",
				zap.String("key", opts.Key), zap.Error(err))
		}
		return &types.QueryResult{Data: data, FromCache: false}, nil
	}

	if skipCache {
		return nil, fetchErr
	}

	o.logger.Debug("Fetch failed, trying cache fallback",
		zap.String("key", opts.Key), zap.Error(fetchErr))

	result, cacheErr := o.fromCacheStale(ctx, opts.Key)
	if cacheErr != nil {
		// No fallback: the caller sees the fetch error untouched.
		return nil, fetchErr
	}

	return result, nil
}

func (o *Orchestrator) cacheFirst(ctx context.Context, fetcher types.Fetcher, opts types.QueryOptions) (*types.QueryResult, error) {
	data, err := o.store.CacheGet(ctx, opts.Key)
	if err == nil {
		return &types.QueryResult{Data: data, FromCache: true}, nil
	}

	if !types.IsError(err, types.ErrCacheEntryNotFound) {
		return nil, err
	}

	return o.networkFirst(ctx, fetcher, opts, false)
}

func (o *Orchestrator) staleWhileRevalidate(ctx context.Context, fetcher types.Fetcher, opts types.QueryOptions) (*types.QueryResult, error) {
	stale, err := o.store.CacheGetStale(ctx, opts.Key)
	if err == nil {
		if o.network.IsOnline() {
			o.revalidate(fetcher, opts)
		}
		return &types.QueryResult{Data: stale.Data, FromCache: true, IsStale: stale.IsStale}, nil
	}

	if !types.IsError(err, types.ErrCacheEntryNotFound) {
		return nil, err
	}

	return o.networkFirst(ctx, fetcher, opts, false)
}

// revalidate refreshes a stale entry in the background. Concurrent
// revalidations of the same key collapse into one fetch.
func (o *Orchestrator) revalidate(fetcher types.Fetcher, opts types.QueryOptions) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				o.logger.Error("Revalidation panicked",
					zap.Any("panic", r),
					zap.String("key", opts.Key),
					zap.String("stack", string(debug.Stack())))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), revalidateTimeout)
		defer cancel()

		data, err := o.fetch(ctx, fetcher, opts.Key)
		if err != nil {
			o.logger.Debug("Background revalidation failed",
				zap.String("key", opts.Key), zap.Error(err))
			return
		}

		if err := o.store.CacheSet(ctx, opts.Key, data, opts.TTL); err != nil {
			o.logger.Warn("Failed to cache revalidated data",
				zap.String("key", opts.Key), zap.Error(err))
		}
	}()
}

func (o *Orchestrator) fetch(ctx context.Context, fetcher types.Fetcher, key string) ([]byte, error) {
	v, err, _ := o.group.Do(key, func() (interface{}, error) {
		return fetcher(ctx)
	})
	if err != nil {
		return nil, err
	}

	return v.([]byte), nil
}

func (o *Orchestrator) fromCacheStale(ctx context.Context, key string) (*types.QueryResult, error) {
	stale, err := o.store.CacheGetStale(ctx, key)
	if err != nil {
		if types.IsError(err, types.ErrCacheEntryNotFound) {
			return nil, types.ErrNoCachedData
		}
		return nil, err
	}

	return &types.QueryResult{Data: stale.Data, FromCache: true, IsStale: stale.IsStale}, nil
}

func (o *Orchestrator) recordQuery(strategy string, result *types.QueryResult, err error) {
	if o.metrics == nil || !o.metrics.IsRunning() {
		return
	}

	outcome := "error"
	if err == nil {
		if result != nil && result.FromCache {
			outcome = "cache"
		} else {
			outcome = "network"
		}
	}

	counter := o.metrics.Counter("queries_total", map[string]string{
		"strategy": strategy,
		"outcome":  outcome,
	})
	if counter != nil {
		counter.Inc()
	}
}
