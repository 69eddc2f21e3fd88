package notify

import (
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-offline/types"
)

// Hub fans sync notifications out to registered callbacks. Callbacks run on
// the caller's goroutine; a panicking callback is logged and skipped so one
// bad subscriber cannot break a drain.
type Hub struct {
	logger      types.Logger
	mu          sync.RWMutex
	subscribers map[int64]types.NotificationCallback
	nextSubID   int64
}

func NewHub(logger types.Logger) *Hub {
	return &Hub{
		logger:      logger,
		subscribers: make(map[int64]types.NotificationCallback),
	}
}

func (h *Hub) OnSyncNotification(callback types.NotificationCallback) func() {
	h.mu.Lock()
	h.nextSubID++
	id := h.nextSubID
	h.subscribers[id] = callback
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.subscribers, id)
		h.mu.Unlock()
	}
}

func (h *Hub) Notify(notification types.SyncNotification) {
	if notification.ID == "" {
		notification.ID = uuid.New().String()
	}
	if notification.Timestamp.IsZero() {
		notification.Timestamp = time.Now()
	}

	h.mu.RLock()
	callbacks := make([]types.NotificationCallback, 0, len(h.subscribers))
	for _, callback := range h.subscribers {
		callbacks = append(callbacks, callback)
	}
	h.mu.RUnlock()

	for _, callback := range callbacks {
		h.deliver(callback, notification)
	}
}

func (h *Hub) deliver(callback types.NotificationCallback, notification types.SyncNotification) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Notification callback panicked",
				zap.Any("panic", r),
				zap.String("notification_id", notification.ID),
				zap.String("stack", string(debug.Stack())))
		}
	}()

	callback(notification)
}
