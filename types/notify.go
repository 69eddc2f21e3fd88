package types

import (
	"time"
)

const (
	NotifySuccess NotificationType = "success"
	NotifyError   NotificationType = "error"
	NotifyInfo    NotificationType = "info"
	NotifyWarning NotificationType = "warning"
)

type NotificationType string

type SyncNotification struct {
	ID          string           `json:"id"`
	Type        NotificationType `json:"type"`
	Message     string           `json:"message"`
	Description string           `json:"description,omitempty"`
	Action      string           `json:"action,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
}

type NotificationCallback func(notification SyncNotification)

// NotificationHub fans sync lifecycle events out to UI-layer subscribers.
// It is push-only: an unsubscribed hub has no effect on core behavior.
type NotificationHub interface {
	OnSyncNotification(callback NotificationCallback) func()
	Notify(notification SyncNotification)
}
