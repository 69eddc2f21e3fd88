package storage

import (
	"context"
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

var customStoreCreators = make(map[string]types.StoreManagerCreator)

func RegisterStoreManager(storeType string, creator types.StoreManagerCreator) {
	customStoreCreators[storeType] = creator
}

func NewManager(ctx context.Context, config types.ConfigManager, logger types.Logger, metrics types.MetricsManager, health types.HealthManager) (types.StoreManager, error) {
	storageConfig := config.GetConfig().Storage

	if storageConfig == nil {
		return nil, types.ErrStoreIsDisabled
	}

	storeType := storageConfig.Type

	var impl types.StoreManager
	var err error

	switch storeType {
	case "sqlite":
		impl, err = NewSqliteStore(ctx, logger, storageConfig)
	case "clover":
		impl, err = NewCloverStore(ctx, logger, storageConfig)
	case "memory":
		impl, err = NewMemoryStore(ctx, logger, storageConfig)
	default:
		if creator, exists := customStoreCreators[storeType]; exists {
			impl, err = creator(storageConfig)
		} else {
			return nil, types.Errorf(types.ErrStoreTypeUnknown, "type: %s", storeType)
		}
	}

	if err != nil {
		return nil, err
	}

	return newInstrumentedStoreManager(logger, metrics, impl), nil
}

// instrumentedStoreManager guards the backend with a lifecycle state machine
// and counts region operations when metrics are available.
type instrumentedStoreManager struct {
	impl    types.StoreManager
	logger  types.Logger
	metrics types.MetricsManager
	state   atomic.Value
}

func newInstrumentedStoreManager(logger types.Logger, metrics types.MetricsManager, impl types.StoreManager) types.StoreManager {
	instrumented := &instrumentedStoreManager{
		impl:    impl,
		logger:  logger,
		metrics: metrics,
	}

	instrumented.state.Store(StateStopped)
	return instrumented
}

func (sm *instrumentedStoreManager) Start() error {
	if !sm.transitionState(StateStopped, StateStarting) {
		return types.ErrManagerIsRunning
	}

	defer func() {
		if sm.getState() == StateStarting {
			sm.setState(StateRunning)
		}
	}()

	err := sm.impl.Start()
	if err != nil {
		sm.setState(StateStopped)
		return err
	}

	sm.logger.Info("Store manager started")
	return nil
}

func (sm *instrumentedStoreManager) Stop() error {
	if !sm.transitionState(StateRunning, StateStopping) {
		return types.ErrManagerNotRunning
	}

	defer func() {
		sm.setState(StateStopped)
	}()

	err := sm.impl.Stop()
	if err != nil {
		sm.logger.Error("Failed to stop store implementation", zap.Error(err))
		return err
	}

	sm.logger.Info("Store manager stopped gracefully")
	return nil
}

func (sm *instrumentedStoreManager) IsRunning() bool {
	return sm.getState() == StateRunning
}

func (sm *instrumentedStoreManager) CacheGet(ctx context.Context, key string) ([]byte, error) {
	data, err := sm.impl.CacheGet(ctx, key)
	if err != nil {
		if types.IsError(err, types.ErrCacheEntryNotFound) {
			sm.recordOp("cache", "get", "miss")
		}
		return nil, err
	}
	sm.recordOp("cache", "get", "hit")
	return data, nil
}

func (sm *instrumentedStoreManager) CacheGetStale(ctx context.Context, key string) (*types.StaleResult, error) {
	return sm.impl.CacheGetStale(ctx, key)
}

func (sm *instrumentedStoreManager) CacheSet(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	sm.recordOp("cache", "set", "ok")
	return sm.impl.CacheSet(ctx, key, data, ttl)
}

func (sm *instrumentedStoreManager) CacheDelete(ctx context.Context, key string) error {
	return sm.impl.CacheDelete(ctx, key)
}

func (sm *instrumentedStoreManager) CacheClear(ctx context.Context) error {
	return sm.impl.CacheClear(ctx)
}

func (sm *instrumentedStoreManager) CacheCleanExpired(ctx context.Context) (int, error) {
	return sm.impl.CacheCleanExpired(ctx)
}

func (sm *instrumentedStoreManager) CacheEntries(ctx context.Context) ([]*types.CacheEntry, error) {
	return sm.impl.CacheEntries(ctx)
}

func (sm *instrumentedStoreManager) CacheDeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	return sm.impl.CacheDeleteByPrefix(ctx, prefix)
}

func (sm *instrumentedStoreManager) CacheCount(ctx context.Context) (int, error) {
	return sm.impl.CacheCount(ctx)
}

func (sm *instrumentedStoreManager) QueueAdd(ctx context.Context, action string, payload []byte) (int64, error) {
	sm.recordOp("queue", "add", "ok")
	return sm.impl.QueueAdd(ctx, action, payload)
}

func (sm *instrumentedStoreManager) QueueGetAll(ctx context.Context) ([]*types.QueueItem, error) {
	return sm.impl.QueueGetAll(ctx)
}

func (sm *instrumentedStoreManager) QueueRemove(ctx context.Context, id int64) error {
	return sm.impl.QueueRemove(ctx, id)
}

func (sm *instrumentedStoreManager) QueueIncrementRetry(ctx context.Context, id int64) error {
	return sm.impl.QueueIncrementRetry(ctx, id)
}

func (sm *instrumentedStoreManager) QueueCount(ctx context.Context) (int, error) {
	return sm.impl.QueueCount(ctx)
}

func (sm *instrumentedStoreManager) SessionGet(ctx context.Context, key string) ([]byte, error) {
	return sm.impl.SessionGet(ctx, key)
}

func (sm *instrumentedStoreManager) SessionSet(ctx context.Context, key string, data []byte) error {
	return sm.impl.SessionSet(ctx, key, data)
}

func (sm *instrumentedStoreManager) SessionDelete(ctx context.Context, key string) error {
	return sm.impl.SessionDelete(ctx, key)
}

func (sm *instrumentedStoreManager) SessionClear(ctx context.Context) error {
	return sm.impl.SessionClear(ctx)
}

func (sm *instrumentedStoreManager) recordOp(region, op, result string) {
	if sm.metrics == nil || !sm.metrics.IsRunning() {
		return
	}

	counter := sm.metrics.Counter("store_operations_total", map[string]string{
		"region": region,
		"op":     op,
		"result": result,
	})
	if counter != nil {
		counter.Inc()
	}
}

func (sm *instrumentedStoreManager) getState() State {
	return sm.state.Load().(State)
}

func (sm *instrumentedStoreManager) setState(newState State) bool {
	currentState := sm.getState()
	return sm.state.CompareAndSwap(currentState, newState)
}

func (sm *instrumentedStoreManager) transitionState(from, to State) bool {
	return sm.state.CompareAndSwap(from, to)
}
