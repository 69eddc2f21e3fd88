package types

import (
	"context"
)

// SyncHandler applies a queued mutation against the remote backend.
// Handlers must be idempotent: a crash between a successful remote apply
// and the dequeue replays the same item on the next drain.
type SyncHandler func(ctx context.Context, payload []byte) error

// QueueListener is notified with the queue depth after every drain pass
// and every enqueue.
type QueueListener func(pending int)

type SyncManager interface {
	LifecycleManager
	RegisterSyncHandler(action string, handler SyncHandler)
	// QueueMutation appends a mutation for later replay and returns its id.
	QueueMutation(ctx context.Context, action string, payload []byte) (int64, error)
	// ProcessSyncQueue drains the queue once. It is a no-op while offline
	// or while another drain is in flight.
	ProcessSyncQueue(ctx context.Context) (*SyncResult, error)
	// TriggerSync is the manual drain entry point; it returns {0,0} when
	// offline.
	TriggerSync(ctx context.Context) (*SyncResult, error)
	SubscribeQueue(listener QueueListener) func()
	Stats() *SyncStats
}

type SyncResult struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

type SyncStats struct {
	TotalDrains   int64 `json:"total_drains"`
	TotalSuccess  int64 `json:"total_success"`
	TotalFailed   int64 `json:"total_failed"`
	TotalDropped  int64 `json:"total_dropped"`
	PendingItems  int   `json:"pending_items"`
	LastDrainUnix int64 `json:"last_drain_unix"`
}
