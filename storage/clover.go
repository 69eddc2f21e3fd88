package storage

import (
	"context"
	"encoding/base64"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ostafen/clover"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-offline/types"
)

const (
	cloverCacheCollection   = "cache_entries"
	cloverQueueCollection   = "sync_queue"
	cloverSessionCollection = "session_entries"
)

// CloverStore is the document-store backend. Payloads are base64-encoded
// because clover documents round-trip strings more reliably than raw bytes.
// Compression settings are ignored here; the codec belongs to the SQLite
// backend.
type CloverStore struct {
	db     *clover.DB
	logger types.Logger
	config *types.StorageConfig
	nextID int64
	state  atomic.Value
}

func NewCloverStore(ctx context.Context, logger types.Logger, config *types.StorageConfig) (types.StoreManager, error) {
	var db *clover.DB
	var err error

	if config.Path == "" {
		db, err = clover.Open("")
	} else {
		db, err = clover.Open(config.Path)
	}

	if err != nil {
		return nil, types.WrapError(err, "failed to open CloverDB")
	}

	s := &CloverStore{
		db:     db,
		logger: logger,
		config: config,
	}

	s.state.Store(StateStopped)

	if err := s.initCollections(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logger.Error("Failed to close CloverDB during cleanup", zap.Error(closeErr))
		}
		return nil, err
	}

	if err := s.restoreQueueCounter(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logger.Error("Failed to close CloverDB during cleanup", zap.Error(closeErr))
		}
		return nil, err
	}

	return s, nil
}

func (s *CloverStore) initCollections() error {
	for _, name := range []string{cloverCacheCollection, cloverQueueCollection, cloverSessionCollection} {
		exists, err := s.db.HasCollection(name)
		if err != nil {
			return types.WrapError(err, "failed to check collection existence")
		}

		if !exists {
			if err := s.db.CreateCollection(name); err != nil {
				return types.WrapError(err, "failed to create collection")
			}
		}
	}

	return nil
}

// restoreQueueCounter resumes id assignment after reopening a persistent
// database so FIFO order survives restarts.
func (s *CloverStore) restoreQueueCounter() error {
	docs, err := s.db.Query(cloverQueueCollection).FindAll()
	if err != nil {
		return types.WrapError(err, "failed to scan sync queue")
	}

	var max int64
	for _, doc := range docs {
		if id := toInt64(doc.Get("queue_id")); id > max {
			max = id
		}
	}

	atomic.StoreInt64(&s.nextID, max)
	return nil
}

func (s *CloverStore) Start() error {
	if !s.transitionState(StateStopped, StateStarting) {
		return types.ErrManagerIsRunning
	}

	defer func() {
		if s.getState() == StateStarting {
			s.setState(StateRunning)
		}
	}()

	s.logger.Info("Clover store started", zap.String("path", s.config.Path))
	return nil
}

func (s *CloverStore) Stop() error {
	if !s.transitionState(StateRunning, StateStopping) {
		return types.ErrManagerNotRunning
	}

	defer func() {
		s.setState(StateStopped)
	}()

	if err := s.db.Close(); err != nil {
		return types.WrapError(err, "failed to close CloverDB")
	}

	s.logger.Info("Clover store stopped gracefully")
	return nil
}

func (s *CloverStore) IsRunning() bool {
	return s.getState() == StateRunning
}

func (s *CloverStore) CacheGet(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, types.ErrCacheKeyEmpty
	}

	doc, err := s.db.Query(cloverCacheCollection).Where(clover.Field("key").Eq(key)).FindFirst()
	if err != nil {
		return nil, types.WrapError(err, "failed to read cache entry")
	}

	if doc == nil {
		return nil, types.ErrCacheEntryNotFound
	}

	if time.Now().UnixNano() > toInt64(doc.Get("expires_at")) {
		if err := s.db.Query(cloverCacheCollection).Where(clover.Field("key").Eq(key)).Delete(); err != nil {
			s.logger.Warn("Failed to delete expired cache entry",
				zap.String("key", key), zap.Error(err))
		}
		return nil, types.ErrCacheEntryNotFound
	}

	return decodePayload(doc.Get("data"))
}

func (s *CloverStore) CacheGetStale(ctx context.Context, key string) (*types.StaleResult, error) {
	if key == "" {
		return nil, types.ErrCacheKeyEmpty
	}

	doc, err := s.db.Query(cloverCacheCollection).Where(clover.Field("key").Eq(key)).FindFirst()
	if err != nil {
		return nil, types.WrapError(err, "failed to read cache entry")
	}

	if doc == nil {
		return nil, types.ErrCacheEntryNotFound
	}

	data, err := decodePayload(doc.Get("data"))
	if err != nil {
		return nil, err
	}

	return &types.StaleResult{
		Data:    data,
		IsStale: time.Now().UnixNano() > toInt64(doc.Get("expires_at")),
	}, nil
}

func (s *CloverStore) CacheSet(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if key == "" {
		return types.ErrCacheKeyEmpty
	}

	if ttl <= 0 {
		ttl = noExpiry
	}

	if err := s.db.Query(cloverCacheCollection).Where(clover.Field("key").Eq(key)).Delete(); err != nil {
		return types.WrapError(err, "failed to replace cache entry")
	}

	now := time.Now()
	doc := clover.NewDocument()
	doc.Set("key", key)
	doc.Set("data", encodePayload(data))
	doc.Set("created_at", now.UnixNano())
	doc.Set("expires_at", now.Add(ttl).UnixNano())

	if err := s.db.Insert(cloverCacheCollection, doc); err != nil {
		return types.WrapError(err, "failed to write cache entry")
	}

	return nil
}

func (s *CloverStore) CacheDelete(ctx context.Context, key string) error {
	if key == "" {
		return types.ErrCacheKeyEmpty
	}

	err := s.db.Query(cloverCacheCollection).Where(clover.Field("key").Eq(key)).Delete()
	if err != nil {
		return types.WrapError(err, "failed to delete cache entry")
	}

	return nil
}

func (s *CloverStore) CacheClear(ctx context.Context) error {
	err := s.db.Query(cloverCacheCollection).Delete()
	if err != nil {
		return types.WrapError(err, "failed to clear cache")
	}

	return nil
}

func (s *CloverStore) CacheCleanExpired(ctx context.Context) (int, error) {
	filter := clover.Field("expires_at").Lt(time.Now().UnixNano())

	count, err := s.db.Query(cloverCacheCollection).Where(filter).Count()
	if err != nil {
		return 0, types.WrapError(err, "failed to count expired cache entries")
	}

	if count == 0 {
		return 0, nil
	}

	if err := s.db.Query(cloverCacheCollection).Where(filter).Delete(); err != nil {
		return 0, types.WrapError(err, "failed to clean expired cache entries")
	}

	return count, nil
}

func (s *CloverStore) CacheEntries(ctx context.Context) ([]*types.CacheEntry, error) {
	docs, err := s.db.Query(cloverCacheCollection).FindAll()
	if err != nil {
		return nil, types.WrapError(err, "failed to enumerate cache entries")
	}

	var entries []*types.CacheEntry
	for _, doc := range docs {
		data, err := decodePayload(doc.Get("data"))
		if err != nil {
			s.logger.Warn("Skipping undecodable cache entry", zap.Error(err))
			continue
		}

		entries = append(entries, &types.CacheEntry{
			Key:       toString(doc.Get("key")),
			Data:      data,
			CreatedAt: time.Unix(0, toInt64(doc.Get("created_at"))),
			ExpiresAt: time.Unix(0, toInt64(doc.Get("expires_at"))),
		})
	}

	return entries, nil
}

func (s *CloverStore) CacheDeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	docs, err := s.db.Query(cloverCacheCollection).FindAll()
	if err != nil {
		return 0, types.WrapError(err, "failed to enumerate cache entries")
	}

	removed := 0
	for _, doc := range docs {
		key := toString(doc.Get("key"))
		if !strings.HasPrefix(key, prefix) {
			continue
		}

		if err := s.db.Query(cloverCacheCollection).Where(clover.Field("key").Eq(key)).Delete(); err != nil {
			return removed, types.WrapError(err, "failed to delete cache entry")
		}
		removed++
	}

	return removed, nil
}

func (s *CloverStore) CacheCount(ctx context.Context) (int, error) {
	count, err := s.db.Query(cloverCacheCollection).Count()
	if err != nil {
		return 0, types.WrapError(err, "failed to count cache entries")
	}

	return count, nil
}

func (s *CloverStore) QueueAdd(ctx context.Context, action string, payload []byte) (int64, error) {
	if action == "" {
		return 0, types.ErrSyncActionEmpty
	}

	id := atomic.AddInt64(&s.nextID, 1)

	doc := clover.NewDocument()
	doc.Set("queue_id", id)
	doc.Set("action", action)
	doc.Set("payload", encodePayload(payload))
	doc.Set("created_at", time.Now().UnixNano())
	doc.Set("retries", int64(0))

	if err := s.db.Insert(cloverQueueCollection, doc); err != nil {
		return 0, types.WrapError(err, "failed to enqueue mutation")
	}

	return id, nil
}

func (s *CloverStore) QueueGetAll(ctx context.Context) ([]*types.QueueItem, error) {
	docs, err := s.db.Query(cloverQueueCollection).
		Sort(clover.SortOption{Field: "queue_id", Direction: 1}).
		FindAll()
	if err != nil {
		return nil, types.WrapError(err, "failed to read sync queue")
	}

	var items []*types.QueueItem
	for _, doc := range docs {
		payload, err := decodePayload(doc.Get("payload"))
		if err != nil {
			s.logger.Warn("Skipping undecodable queue item", zap.Error(err))
			continue
		}

		items = append(items, &types.QueueItem{
			ID:        toInt64(doc.Get("queue_id")),
			Action:    toString(doc.Get("action")),
			Payload:   payload,
			CreatedAt: time.Unix(0, toInt64(doc.Get("created_at"))),
			Retries:   int(toInt64(doc.Get("retries"))),
		})
	}

	return items, nil
}

func (s *CloverStore) QueueRemove(ctx context.Context, id int64) error {
	filter := clover.Field("queue_id").Eq(id)

	count, err := s.db.Query(cloverQueueCollection).Where(filter).Count()
	if err != nil {
		return types.WrapError(err, "failed to find queue item")
	}

	if count == 0 {
		return types.ErrQueueItemNotFound
	}

	if err := s.db.Query(cloverQueueCollection).Where(filter).Delete(); err != nil {
		return types.WrapError(err, "failed to remove queue item")
	}

	return nil
}

func (s *CloverStore) QueueIncrementRetry(ctx context.Context, id int64) error {
	filter := clover.Field("queue_id").Eq(id)

	doc, err := s.db.Query(cloverQueueCollection).Where(filter).FindFirst()
	if err != nil {
		return types.WrapError(err, "failed to find queue item")
	}

	if doc == nil {
		return types.ErrQueueItemNotFound
	}

	update := map[string]interface{}{
		"retries": toInt64(doc.Get("retries")) + 1,
	}

	if err := s.db.Query(cloverQueueCollection).Where(filter).Update(update); err != nil {
		return types.WrapError(err, "failed to increment queue retries")
	}

	return nil
}

func (s *CloverStore) QueueCount(ctx context.Context) (int, error) {
	count, err := s.db.Query(cloverQueueCollection).Count()
	if err != nil {
		return 0, types.WrapError(err, "failed to count queue items")
	}

	return count, nil
}

func (s *CloverStore) SessionGet(ctx context.Context, key string) ([]byte, error) {
	doc, err := s.db.Query(cloverSessionCollection).Where(clover.Field("key").Eq(key)).FindFirst()
	if err != nil {
		return nil, types.WrapError(err, "failed to read session entry")
	}

	if doc == nil {
		return nil, types.ErrSessionEntryNotFound
	}

	return decodePayload(doc.Get("data"))
}

func (s *CloverStore) SessionSet(ctx context.Context, key string, data []byte) error {
	if key == "" {
		return types.ErrCacheKeyEmpty
	}

	if err := s.db.Query(cloverSessionCollection).Where(clover.Field("key").Eq(key)).Delete(); err != nil {
		return types.WrapError(err, "failed to replace session entry")
	}

	doc := clover.NewDocument()
	doc.Set("key", key)
	doc.Set("data", encodePayload(data))
	doc.Set("updated_at", time.Now().UnixNano())

	if err := s.db.Insert(cloverSessionCollection, doc); err != nil {
		return types.WrapError(err, "failed to write session entry")
	}

	return nil
}

func (s *CloverStore) SessionDelete(ctx context.Context, key string) error {
	err := s.db.Query(cloverSessionCollection).Where(clover.Field("key").Eq(key)).Delete()
	if err != nil {
		return types.WrapError(err, "failed to delete session entry")
	}

	return nil
}

func (s *CloverStore) SessionClear(ctx context.Context) error {
	err := s.db.Query(cloverSessionCollection).Delete()
	if err != nil {
		return types.WrapError(err, "failed to clear session entries")
	}

	return nil
}

func encodePayload(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

func decodePayload(v interface{}) ([]byte, error) {
	s, ok := v.(string)
	if !ok {
		return nil, types.NewError("payload must be a string")
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, types.WrapError(err, "failed to decode payload")
	}

	return data, nil
}

func toInt64(v interface{}) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case int:
		return int64(val)
	case float64:
		return int64(val)
	case uint64:
		return int64(val)
	}
	return 0
}

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func (s *CloverStore) getState() State {
	return s.state.Load().(State)
}

func (s *CloverStore) setState(newState State) bool {
	currentState := s.getState()
	return s.state.CompareAndSwap(currentState, newState)
}

func (s *CloverStore) transitionState(from, to State) bool {
	return s.state.CompareAndSwap(from, to)
}
