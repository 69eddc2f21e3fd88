package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/saiset-co/sai-offline/types"
)

// MemoryStore keeps all three regions in process memory. It serves tests
// and short-lived embedders that do not need durability.
type MemoryStore struct {
	mu      sync.RWMutex
	cache   map[string]*types.CacheEntry
	queue   map[int64]*types.QueueItem
	session map[string][]byte
	nextID  int64
	logger  types.Logger
	state   atomic.Value
}

func NewMemoryStore(ctx context.Context, logger types.Logger, config *types.StorageConfig) (types.StoreManager, error) {
	s := &MemoryStore{
		cache:   make(map[string]*types.CacheEntry),
		queue:   make(map[int64]*types.QueueItem),
		session: make(map[string][]byte),
		logger:  logger,
	}

	s.state.Store(StateStopped)
	return s, nil
}

func (s *MemoryStore) Start() error {
	if !s.transitionState(StateStopped, StateStarting) {
		return types.ErrManagerIsRunning
	}

	defer func() {
		if s.getState() == StateStarting {
			s.setState(StateRunning)
		}
	}()

	s.logger.Info("Memory store started")
	return nil
}

func (s *MemoryStore) Stop() error {
	if !s.transitionState(StateRunning, StateStopping) {
		return types.ErrManagerNotRunning
	}

	defer func() {
		s.setState(StateStopped)
	}()

	s.mu.Lock()
	s.cache = make(map[string]*types.CacheEntry)
	s.queue = make(map[int64]*types.QueueItem)
	s.session = make(map[string][]byte)
	s.mu.Unlock()

	s.logger.Info("Memory store stopped gracefully")
	return nil
}

func (s *MemoryStore) IsRunning() bool {
	return s.getState() == StateRunning
}

func (s *MemoryStore) CacheGet(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, types.ErrCacheKeyEmpty
	}

	s.mu.RLock()
	entry, exists := s.cache[key]
	s.mu.RUnlock()

	if !exists {
		return nil, types.ErrCacheEntryNotFound
	}

	if entry.Expired(time.Now()) {
		s.mu.Lock()
		delete(s.cache, key)
		s.mu.Unlock()
		return nil, types.ErrCacheEntryNotFound
	}

	return entry.Data, nil
}

func (s *MemoryStore) CacheGetStale(ctx context.Context, key string) (*types.StaleResult, error) {
	if key == "" {
		return nil, types.ErrCacheKeyEmpty
	}

	s.mu.RLock()
	entry, exists := s.cache[key]
	s.mu.RUnlock()

	if !exists {
		return nil, types.ErrCacheEntryNotFound
	}

	return &types.StaleResult{
		Data:    entry.Data,
		IsStale: entry.Expired(time.Now()),
	}, nil
}

func (s *MemoryStore) CacheSet(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if key == "" {
		return types.ErrCacheKeyEmpty
	}

	if ttl <= 0 {
		ttl = noExpiry
	}

	now := time.Now()

	s.mu.Lock()
	s.cache[key] = &types.CacheEntry{
		Key:       key,
		Data:      data,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	s.mu.Unlock()

	return nil
}

func (s *MemoryStore) CacheDelete(ctx context.Context, key string) error {
	if key == "" {
		return types.ErrCacheKeyEmpty
	}

	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()

	return nil
}

func (s *MemoryStore) CacheClear(ctx context.Context) error {
	s.mu.Lock()
	s.cache = make(map[string]*types.CacheEntry)
	s.mu.Unlock()

	return nil
}

func (s *MemoryStore) CacheCleanExpired(ctx context.Context) (int, error) {
	now := time.Now()
	removed := 0

	s.mu.Lock()
	for key, entry := range s.cache {
		if entry.Expired(now) {
			delete(s.cache, key)
			removed++
		}
	}
	s.mu.Unlock()

	return removed, nil
}

func (s *MemoryStore) CacheEntries(ctx context.Context) ([]*types.CacheEntry, error) {
	s.mu.RLock()
	entries := make([]*types.CacheEntry, 0, len(s.cache))
	for _, entry := range s.cache {
		entries = append(entries, entry)
	}
	s.mu.RUnlock()

	return entries, nil
}

func (s *MemoryStore) CacheDeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	removed := 0

	s.mu.Lock()
	for key := range s.cache {
		if strings.HasPrefix(key, prefix) {
			delete(s.cache, key)
			removed++
		}
	}
	s.mu.Unlock()

	return removed, nil
}

func (s *MemoryStore) CacheCount(ctx context.Context) (int, error) {
	s.mu.RLock()
	count := len(s.cache)
	s.mu.RUnlock()

	return count, nil
}

func (s *MemoryStore) QueueAdd(ctx context.Context, action string, payload []byte) (int64, error) {
	if action == "" {
		return 0, types.ErrSyncActionEmpty
	}

	id := atomic.AddInt64(&s.nextID, 1)

	s.mu.Lock()
	s.queue[id] = &types.QueueItem{
		ID:        id,
		Action:    action,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
	s.mu.Unlock()

	return id, nil
}

func (s *MemoryStore) QueueGetAll(ctx context.Context) ([]*types.QueueItem, error) {
	s.mu.RLock()
	items := make([]*types.QueueItem, 0, len(s.queue))
	for _, item := range s.queue {
		items = append(items, item)
	}
	s.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		return items[i].ID < items[j].ID
	})

	return items, nil
}

func (s *MemoryStore) QueueRemove(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.queue[id]; !exists {
		return types.ErrQueueItemNotFound
	}

	delete(s.queue, id)
	return nil
}

func (s *MemoryStore) QueueIncrementRetry(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, exists := s.queue[id]
	if !exists {
		return types.ErrQueueItemNotFound
	}

	item.Retries++
	return nil
}

func (s *MemoryStore) QueueCount(ctx context.Context) (int, error) {
	s.mu.RLock()
	count := len(s.queue)
	s.mu.RUnlock()

	return count, nil
}

func (s *MemoryStore) SessionGet(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	data, exists := s.session[key]
	s.mu.RUnlock()

	if !exists {
		return nil, types.ErrSessionEntryNotFound
	}

	return data, nil
}

func (s *MemoryStore) SessionSet(ctx context.Context, key string, data []byte) error {
	if key == "" {
		return types.ErrCacheKeyEmpty
	}

	s.mu.Lock()
	s.session[key] = data
	s.mu.Unlock()

	return nil
}

func (s *MemoryStore) SessionDelete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.session, key)
	s.mu.Unlock()

	return nil
}

func (s *MemoryStore) SessionClear(ctx context.Context) error {
	s.mu.Lock()
	s.session = make(map[string][]byte)
	s.mu.Unlock()

	return nil
}

func (s *MemoryStore) getState() State {
	return s.state.Load().(State)
}

func (s *MemoryStore) setState(newState State) bool {
	currentState := s.getState()
	return s.state.CompareAndSwap(currentState, newState)
}

func (s *MemoryStore) transitionState(from, to State) bool {
	return s.state.CompareAndSwap(from, to)
}
