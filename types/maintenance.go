package types

import (
	"context"
)

type MaintenanceManager interface {
	LifecycleManager
	CleanupExpiredEntries(ctx context.Context) (int, error)
	CleanupCacheBySize(ctx context.Context) (*EvictionResult, error)
	PerformCacheMaintenance(ctx context.Context) (*MaintenanceResult, error)
	ClearCacheByPrefix(ctx context.Context, prefix string) (int, error)
	CacheStats(ctx context.Context) (*CacheStats, error)
}

type EvictionResult struct {
	Evicted           int              `json:"evicted"`
	SkippedProtected  int              `json:"skipped_protected"`
	SizeBefore        int64            `json:"size_before"`
	SizeAfter         int64            `json:"size_after"`
	RemovedByCategory map[string]int   `json:"removed_by_category"`
	AboveTarget       bool             `json:"above_target"`
}

type MaintenanceResult struct {
	Expired  int             `json:"expired"`
	Eviction *EvictionResult `json:"eviction"`
}

type CacheStats struct {
	Entries        int   `json:"entries"`
	EstimatedBytes int64 `json:"estimated_bytes"`
	ExpiredEntries int   `json:"expired_entries"`
}
