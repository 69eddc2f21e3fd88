package types

import (
	"context"
	"time"
)

// StoreManager is the durable store shared by the query orchestrator, the
// maintenance engine, the sync engine and the conflict detector. It exposes
// three logical regions: a TTL-bearing cache table, a FIFO mutation queue
// with auto-incrementing ids, and a small session table. Implementations
// serialize physical writes, so all methods are safe for concurrent use.
type StoreManager interface {
	LifecycleManager

	// CacheGet is the strict read: an expired entry is deleted and reported
	// as ErrCacheEntryNotFound.
	CacheGet(ctx context.Context, key string) ([]byte, error)
	// CacheGetStale is the lenient read used by offline fallbacks: an
	// expired entry is returned tagged stale and never deleted.
	CacheGetStale(ctx context.Context, key string) (*StaleResult, error)
	CacheSet(ctx context.Context, key string, data []byte, ttl time.Duration) error
	CacheDelete(ctx context.Context, key string) error
	CacheClear(ctx context.Context) error
	// CacheCleanExpired removes every entry whose expiry has passed, using
	// the expiry index, and returns the number removed.
	CacheCleanExpired(ctx context.Context) (int, error)
	// CacheEntries enumerates all entries (data included) for maintenance.
	CacheEntries(ctx context.Context) ([]*CacheEntry, error)
	CacheDeleteByPrefix(ctx context.Context, prefix string) (int, error)
	CacheCount(ctx context.Context) (int, error)

	QueueAdd(ctx context.Context, action string, payload []byte) (int64, error)
	QueueGetAll(ctx context.Context) ([]*QueueItem, error)
	QueueRemove(ctx context.Context, id int64) error
	QueueIncrementRetry(ctx context.Context, id int64) error
	QueueCount(ctx context.Context) (int, error)

	SessionGet(ctx context.Context, key string) ([]byte, error)
	SessionSet(ctx context.Context, key string, data []byte) error
	SessionDelete(ctx context.Context, key string) error
	SessionClear(ctx context.Context) error
}

type StoreManagerCreator func(config *StorageConfig) (StoreManager, error)

type CacheEntry struct {
	Key       string    `json:"key"`
	Data      []byte    `json:"data"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (e *CacheEntry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

type StaleResult struct {
	Data    []byte `json:"data"`
	IsStale bool   `json:"is_stale"`
}

type QueueItem struct {
	ID        int64     `json:"id"`
	Action    string    `json:"action"`
	Payload   []byte    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
	Retries   int       `json:"retries"`
}

type SessionEntry struct {
	Key       string    `json:"key"`
	Data      []byte    `json:"data"`
	UpdatedAt time.Time `json:"updated_at"`
}
