package syncer

import (
	"context"
	"fmt"
	"sync"
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

const defaultMaxRetries = 3

// Engine drains the durable mutation queue against registered handlers.
// A CAS guard keeps drains single-flight; items enqueued while a drain is
// running wait for the next trigger. Handlers must be idempotent because
// a crash between a successful remote apply and the dequeue replays the
// item.
type Engine struct {
	ctx     context.Context
	cancel  context.CancelFunc
	logger  types.Logger
	config  *types.SyncConfig
	store   types.StoreManager
	network types.NetworkMonitor
	hub     types.NotificationHub
	metrics types.MetricsManager

	handlersMu sync.RWMutex
	handlers   map[string]types.SyncHandler

	listenersMu sync.RWMutex
	listeners   map[int64]types.QueueListener
	nextSubID   int64

	isSyncing      atomic.Bool
	unsubscribeNet func()
	wg             sync.WaitGroup
	state          atomic.Value

	totalDrains   atomic.Int64
	totalSuccess  atomic.Int64
	totalFailed   atomic.Int64
	totalDropped  atomic.Int64
	lastDrainUnix atomic.Int64
}

func NewEngine(ctx context.Context, logger types.Logger, config types.ConfigManager, store types.StoreManager, network types.NetworkMonitor, hub types.NotificationHub, metrics types.MetricsManager) (*Engine, error) {
	syncConfig := config.GetConfig().Sync
	if syncConfig == nil {
		syncConfig = &types.SyncConfig{
			Enabled:     true,
			MaxRetries:  defaultMaxRetries,
			SettleDelay: time.Second,
		}
	}

	engineCtx, cancel := context.WithCancel(ctx)

	e := &Engine{
		ctx:       engineCtx,
		cancel:    cancel,
		logger:    logger,
		config:    syncConfig,
		store:     store,
		network:   network,
		hub:       hub,
		metrics:   metrics,
		handlers:  make(map[string]types.SyncHandler),
		listeners: make(map[int64]types.QueueListener),
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

	e.unsubscribeNet = e.network.Subscribe(e.onConnectivityChange)

	// Initial drain: anything left over from a previous run goes out as
	// soon as the process is back online.
	if e.network.IsOnline() {
		e.drainAsync(0)
	}

	e.logger.Info("Sync engine started")
	return nil
}

func (e *Engine) Stop() error {
	if !e.transitionState(StateRunning, StateStopping) {
		return types.ErrManagerNotRunning
	}

	defer func() {
		e.setState(StateStopped)
	}()

	if e.unsubscribeNet != nil {
		e.unsubscribeNet()
	}

	e.cancel()
	e.wg.Wait()

	e.logger.Info("Sync engine stopped gracefully")
	return nil
}

func (e *Engine) IsRunning() bool {
	return e.getState() == StateRunning
}

func (e *Engine) RegisterSyncHandler(action string, handler types.SyncHandler) {
	if action == "" || handler == nil {
		return
	}

	e.handlersMu.Lock()
	e.handlers[action] = handler
	e.handlersMu.Unlock()

	e.logger.Debug("Sync handler registered", zap.String("action", action))
}

func (e *Engine) QueueMutation(ctx context.Context, action string, payload []byte) (int64, error) {
	if action == "" {
		return 0, types.ErrSyncActionEmpty
	}

	id, err := e.store.QueueAdd(ctx, action, payload)
	if err != nil {
		return 0, types.WrapError(err, "failed to enqueue mutation")
	}

	e.logger.Debug("Mutation queued",
		zap.String("action", action), zap.Int64("id", id))

	e.notifyQueueDepth(ctx)
	e.recordQueueGauge(ctx)

	return id, nil
}

// ProcessSyncQueue drains the queue once in FIFO order. It returns {0,0}
// without touching the queue when offline or when another drain holds the
// guard.
func (e *Engine) ProcessSyncQueue(ctx context.Context) (*types.SyncResult, error) {
	result := &types.SyncResult{}

	if !e.network.IsOnline() {
		return result, nil
	}

	if !e.isSyncing.CompareAndSwap(false, true) {
		e.logger.Debug("Drain already in progress, skipping")
		return result, nil
	}
	defer e.isSyncing.Store(false)

	items, err := e.store.QueueGetAll(ctx)
	if err != nil {
		return nil, types.WrapError(err, "failed to read sync queue")
	}

	if len(items) == 0 {
		return result, nil
	}

	e.hub.Notify(types.SyncNotification{
		Type:        types.NotifyInfo,
		Message:     "Sync started",
		Description: fmt.Sprintf("%d pending changes", len(items)),
	})

	dropped := 0
	for _, item := range items {
		// A connection drop mid-pass defers the remainder to the next
		// trigger; nothing is partially applied.
		if !e.network.IsOnline() {
			e.logger.Info("Connection lost mid-drain, deferring remaining items",
				zap.Int("remaining", len(items)-result.Success-result.Failed-dropped))
			break
		}

		select {
		case <-e.ctx.Done():
			return result, nil
		default:
		}

		e.handlersMu.RLock()
		handler, exists := e.handlers[item.Action]
		e.handlersMu.RUnlock()

		if !exists {
			e.logger.Warn("Dropping queue item with unknown action",
				zap.String("action", item.Action), zap.Int64("id", item.ID))
			if err := e.store.QueueRemove(ctx, item.ID); err != nil {
				e.logger.Error("Failed to drop queue item", zap.Int64("id", item.ID), zap.Error(err))
			}
			dropped++
			continue
		}

		if err := e.applyHandler(ctx, handler, item); err != nil {
			result.Failed++

			if item.Retries >= e.maxRetries() {
				e.logger.Error("Dropping queue item after retry limit",
					zap.String("action", item.Action),
					zap.Int64("id", item.ID),
					zap.Int("retries", item.Retries),
					zap.Error(err))

				if removeErr := e.store.QueueRemove(ctx, item.ID); removeErr != nil {
					e.logger.Error("Failed to drop queue item", zap.Int64("id", item.ID), zap.Error(removeErr))
				}
				dropped++

				e.hub.Notify(types.SyncNotification{
					Type:        types.NotifyError,
					Message:     "Change could not be synced",
					Description: fmt.Sprintf("action %q gave up after %d attempts", item.Action, item.Retries+1),
					Action:      item.Action,
				})
				continue
			}

			e.logger.Warn("Sync handler failed, item will retry",
				zap.String("action", item.Action),
				zap.Int64("id", item.ID),
				zap.Int("retries", item.Retries),
				zap.Error(err))

			if retryErr := e.store.QueueIncrementRetry(ctx, item.ID); retryErr != nil {
				e.logger.Error("Failed to increment retries", zap.Int64("id", item.ID), zap.Error(retryErr))
			}
			continue
		}

		if err := e.store.QueueRemove(ctx, item.ID); err != nil {
			e.logger.Error("Failed to dequeue synced item", zap.Int64("id", item.ID), zap.Error(err))
		}
		result.Success++
	}

	e.totalDrains.Add(1)
	e.totalSuccess.Add(int64(result.Success))
	e.totalFailed.Add(int64(result.Failed))
	e.totalDropped.Add(int64(dropped))
	e.lastDrainUnix.Store(time.Now().Unix())

	notifyType := types.NotifySuccess
	if result.Failed > 0 {
		notifyType = types.NotifyWarning
	}
	e.hub.Notify(types.SyncNotification{
		Type:        notifyType,
		Message:     "Sync completed",
		Description: fmt.Sprintf("%d synced, %d failed", result.Success, result.Failed),
	})

	e.notifyQueueDepth(ctx)
	e.recordQueueGauge(ctx)
	e.recordDrain(result, dropped)

	return result, nil
}

// TriggerSync is the manual entry point. Offline callers get {0,0}.
func (e *Engine) TriggerSync(ctx context.Context) (*types.SyncResult, error) {
	if !e.network.IsOnline() {
		return &types.SyncResult{}, nil
	}

	return e.ProcessSyncQueue(ctx)
}

func (e *Engine) SubscribeQueue(listener types.QueueListener) func() {
	e.listenersMu.Lock()
	e.nextSubID++
	id := e.nextSubID
	e.listeners[id] = listener
	e.listenersMu.Unlock()

	return func() {
		e.listenersMu.Lock()
		delete(e.listeners, id)
		e.listenersMu.Unlock()
	}
}

func (e *Engine) Stats() *types.SyncStats {
	pending := 0
	if count, err := e.store.QueueCount(context.Background()); err == nil {
		pending = count
	}

	return &types.SyncStats{
		TotalDrains:   e.totalDrains.Load(),
		TotalSuccess:  e.totalSuccess.Load(),
		TotalFailed:   e.totalFailed.Load(),
		TotalDropped:  e.totalDropped.Load(),
		PendingItems:  pending,
		LastDrainUnix: e.lastDrainUnix.Load(),
	}
}

func (e *Engine) applyHandler(ctx context.Context, handler types.SyncHandler, item *types.QueueItem) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = types.NewErrorf("handler panic for action %q: %v", item.Action, r)
		}
	}()

	return handler(ctx, item.Payload)
}

// onConnectivityChange schedules a drain after the settle delay so a
// flapping connection does not trigger a burst of passes.
func (e *Engine) onConnectivityChange(online bool) {
	if !online {
		return
	}

	settle := e.config.SettleDelay
	if settle <= 0 {
		settle = time.Second
	}

	e.drainAsync(settle)
}

func (e *Engine) drainAsync(delay time.Duration) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		if delay > 0 {
			timer := time.NewTimer(delay)
			defer timer.Stop()

			select {
			case <-e.ctx.Done():
				return
			case <-timer.C:
			}
		}

		if !e.network.IsOnline() {
			return
		}

		if _, err := e.ProcessSyncQueue(e.ctx); err != nil {
			e.logger.Error("Background drain failed", zap.Error(err))
		}
	}()
}

func (e *Engine) maxRetries() int {
	if e.config.MaxRetries <= 0 {
		return defaultMaxRetries
	}
	return e.config.MaxRetries
}

func (e *Engine) notifyQueueDepth(ctx context.Context) {
	count, err := e.store.QueueCount(ctx)
	if err != nil {
		e.logger.Warn("Failed to count queue for listeners", zap.Error(err))
		return
	}

	e.listenersMu.RLock()
	listeners := make([]types.QueueListener, 0, len(e.listeners))
	for _, listener := range e.listeners {
		listeners = append(listeners, listener)
	}
	e.listenersMu.RUnlock()

	for _, listener := range listeners {
		listener(count)
	}
}

func (e *Engine) recordDrain(result *types.SyncResult, dropped int) {
	if e.metrics == nil || !e.metrics.IsRunning() {
		return
	}

	e.metrics.Counter("sync_drains_total", nil).Inc()
	e.metrics.Counter("sync_items_total", map[string]string{"result": "success"}).Add(float64(result.Success))
	e.metrics.Counter("sync_items_total", map[string]string{"result": "failed"}).Add(float64(result.Failed))
	e.metrics.Counter("sync_items_total", map[string]string{"result": "dropped"}).Add(float64(dropped))
}

func (e *Engine) recordQueueGauge(ctx context.Context) {
	if e.metrics == nil || !e.metrics.IsRunning() {
		return
	}

	if count, err := e.store.QueueCount(ctx); err == nil {
		e.metrics.Gauge("sync_queue_pending", nil).Set(float64(count))
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
