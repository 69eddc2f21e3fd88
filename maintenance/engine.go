package maintenance

import (
	"context"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-offline/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

// Engine enforces the cache size budget. Expired entries go uncondition-
// ally; live entries are scored and the lowest scores leave first, with a
// per-category floor that can hold the cache above its size target.
type Engine struct {
	store   types.StoreManager
	logger  types.Logger
	metrics types.MetricsManager
	config  *types.MaintenanceConfig
	state   atomic.Value
}

func NewEngine(logger types.Logger, config types.ConfigManager, store types.StoreManager, metrics types.MetricsManager) (*Engine, error) {
	maintenanceConfig := config.GetConfig().Maintenance
	if maintenanceConfig == nil {
		maintenanceConfig = &types.MaintenanceConfig{Enabled: false}
	}

	e := &Engine{
		store:   store,
		logger:  logger,
		metrics: metrics,
		config:  maintenanceConfig,
	}

	e.state.Store(StateStopped)
	return e, nil
}

func (e *Engine) Start() error {
	if !e.transitionState(StateStopped, StateStarting) {
		return types.ErrManagerIsRunning
	}

	defer func() {
		if e.getState() == StateStarting {
			e.setState(StateRunning)
		}
	}()

	e.logger.Info("Maintenance engine started")
	return nil
}

func (e *Engine) Stop() error {
	if !e.transitionState(StateRunning, StateStopping) {
		return types.ErrManagerNotRunning
	}

	defer func() {
		e.setState(StateStopped)
	}()

	e.logger.Info("Maintenance engine stopped gracefully")
	return nil
}

func (e *Engine) IsRunning() bool {
	return e.getState() == StateRunning
}

func (e *Engine) CleanupExpiredEntries(ctx context.Context) (int, error) {
	removed, err := e.store.CacheCleanExpired(ctx)
	if err != nil {
		return 0, types.WrapError(err, "failed to sweep expired entries")
	}

	if removed > 0 {
		e.logger.Debug("Expired cache entries removed", zap.Int("count", removed))
	}

	return removed, nil
}

func (e *Engine) CleanupCacheBySize(ctx context.Context) (*types.EvictionResult, error) {
	result := &types.EvictionResult{
		RemovedByCategory: make(map[string]int),
	}

	if e.config.MaxSizeBytes <= 0 {
		return result, nil
	}

	entries, err := e.store.CacheEntries(ctx)
	if err != nil {
		return nil, types.WrapError(err, "failed to enumerate cache entries")
	}

	now := time.Now()
	total := int64(0)
	categoryCounts := make(map[string]int)

	scored := make([]scoredEntry, 0, len(entries))
	for _, entry := range entries {
		size := estimateSize(entry)
		total += size
		category := categoryOf(entry.Key)
		categoryCounts[category]++

		scored = append(scored, scoredEntry{
			entry:    entry,
			size:     size,
			category: category,
			score:    e.score(entry, now),
		})
	}

	result.SizeBefore = total
	result.SizeAfter = total

	if total <= e.config.MaxSizeBytes {
		return result, nil
	}

	target := int64(float64(e.config.MaxSizeBytes) * e.config.TargetSizeRatio)

	sort.Slice(scored, func(i, j int) bool {
		return scored[i].score < scored[j].score
	})

	for _, candidate := range scored {
		if total <= target {
			break
		}

		if categoryCounts[candidate.category]-1 < e.config.MinEntriesPerCategory {
			result.SkippedProtected++
			continue
		}

		if err := e.store.CacheDelete(ctx, candidate.entry.Key); err != nil {
			e.logger.Warn("Failed to evict cache entry",
				zap.String("key", candidate.entry.Key), zap.Error(err))
			continue
		}

		total -= candidate.size
		categoryCounts[candidate.category]--
		result.Evicted++
		result.RemovedByCategory[candidate.category]++
	}

	result.SizeAfter = total
	result.AboveTarget = total > target

	if result.AboveTarget {
		e.logger.Warn("Cache remains above size target after eviction",
			zap.Int64("size", total),
			zap.Int64("target", target),
			zap.Int("skipped_protected", result.SkippedProtected))
	}

	e.recordEviction(result)

	return result, nil
}

func (e *Engine) PerformCacheMaintenance(ctx context.Context) (*types.MaintenanceResult, error) {
	expired, err := e.CleanupExpiredEntries(ctx)
	if err != nil {
		return nil, types.WrapError(types.ErrMaintenanceFailed, err.Error())
	}

	eviction, err := e.CleanupCacheBySize(ctx)
	if err != nil {
		return nil, types.WrapError(types.ErrMaintenanceFailed, err.Error())
	}

	e.logger.Info("Cache maintenance completed",
		zap.Int("expired", expired),
		zap.Int("evicted", eviction.Evicted))

	return &types.MaintenanceResult{
		Expired:  expired,
		Eviction: eviction,
	}, nil
}

func (e *Engine) ClearCacheByPrefix(ctx context.Context, prefix string) (int, error) {
	removed, err := e.store.CacheDeleteByPrefix(ctx, prefix)
	if err != nil {
		return 0, types.WrapError(err, "failed to clear cache by prefix")
	}

	e.logger.Debug("Cache cleared by prefix",
		zap.String("prefix", prefix), zap.Int("removed", removed))

	return removed, nil
}

func (e *Engine) CacheStats(ctx context.Context) (*types.CacheStats, error) {
	entries, err := e.store.CacheEntries(ctx)
	if err != nil {
		return nil, types.WrapError(err, "failed to enumerate cache entries")
	}

	now := time.Now()
	stats := &types.CacheStats{Entries: len(entries)}

	for _, entry := range entries {
		stats.EstimatedBytes += estimateSize(entry)
		if entry.Expired(now) {
			stats.ExpiredEntries++
		}
	}

	return stats, nil
}

type scoredEntry struct {
	entry    *types.CacheEntry
	size     int64
	category string
	score    float64
}

// score ranks an entry for eviction: low scores leave first. Older and
// already-expired entries sink, high-priority prefixes float.
func (e *Engine) score(entry *types.CacheEntry, now time.Time) float64 {
	priority := e.config.DefaultPriority
	for _, rule := range e.config.Priorities {
		if strings.HasPrefix(entry.Key, rule.Prefix) {
			priority = rule.Priority
			break
		}
	}

	ageFactor := 0.0
	if e.config.MaxAgeWindow > 0 {
		age := now.Sub(entry.CreatedAt)
		ageFactor = 1 - float64(age)/float64(e.config.MaxAgeWindow)
		if ageFactor < 0 {
			ageFactor = 0
		}
	}

	stalenessFactor := 1.0
	if entry.Expired(now) {
		stalenessFactor = 0.5
	}

	return float64(priority) * ageFactor * stalenessFactor
}

func estimateSize(entry *types.CacheEntry) int64 {
	return int64(len(entry.Key) + len(entry.Data))
}

func categoryOf(key string) string {
	if idx := strings.Index(key, ":"); idx >= 0 {
		return key[:idx]
	}
	return key
}

func (e *Engine) recordEviction(result *types.EvictionResult) {
	if e.metrics == nil || !e.metrics.IsRunning() {
		return
	}

	counter := e.metrics.Counter("cache_evictions_total", nil)
	if counter != nil {
		counter.Add(float64(result.Evicted))
	}

	gauge := e.metrics.Gauge("cache_size_bytes", nil)
	if gauge != nil {
		gauge.Set(float64(result.SizeAfter))
	}
}

func (e *Engine) getState() State {
	return e.state.Load().(State)
}

func (e *Engine) setState(newState State) bool {
	currentState := e.getState()
	return e.state.CompareAndSwap(currentState, newState)
}

func (e *Engine) transitionState(from, to State) bool {
	return e.state.CompareAndSwap(from, to)
}
