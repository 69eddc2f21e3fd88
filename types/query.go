package types

import (
	"context"
	"time"
)

const (
	StrategyNetworkFirst         = "network-first"
	StrategyCacheFirst           = "cache-first"
	StrategyStaleWhileRevalidate = "stale-while-revalidate"
)

// Fetcher is the injected remote read callback. Errors are treated opaquely
// and rethrown verbatim when no cache fallback applies.
type Fetcher func(ctx context.Context) ([]byte, error)

type QueryOrchestrator interface {
	CachedQuery(ctx context.Context, fetcher Fetcher, opts QueryOptions) (*QueryResult, error)
	Prefetch(ctx context.Context, fetcher Fetcher, key string, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

type QueryOptions struct {
	Key          string        `json:"key"`
	TTL          time.Duration `json:"ttl"`
	Strategy     string        `json:"strategy"`
	ForceRefresh bool          `json:"force_refresh"`
}

type QueryResult struct {
	Data      []byte `json:"data"`
	FromCache bool   `json:"from_cache"`
	IsStale   bool   `json:"is_stale"`
}
