package storage

import (
	"context"
	"database/sql"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-offline/types"
	"github.com/saiset-co/sai-offline/utils"
)

// noExpiry keeps non-expiring entries representable in the same column.
const noExpiry = 100 * 365 * 24 * time.Hour

type SqliteStore struct {
	db     *sql.DB
	logger types.Logger
	config *types.StorageConfig
	state  atomic.Value
}

func NewSqliteStore(ctx context.Context, logger types.Logger, config *types.StorageConfig) (types.StoreManager, error) {
	path := config.Path
	if path == "" {
		path = "./offline.db"
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, types.WrapError(err, "failed to open SQLite database")
	}

	// A single writer avoids SQLITE_BUSY under concurrent access.
	db.SetMaxOpenConns(1)

	s := &SqliteStore{
		db:     db,
		logger: logger,
		config: config,
	}

	s.state.Store(StateStopped)

	if err := s.initDatabase(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logger.Error("Failed to close database during cleanup", zap.Error(closeErr))
		}
		return nil, types.WrapError(err, "failed to initialize database")
	}

	return s, nil
}

func (s *SqliteStore) initDatabase() error {
	query := `
	CREATE TABLE IF NOT EXISTS cache_entries (
		key TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		compressed INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_cache_expires ON cache_entries(expires_at);
	CREATE TABLE IF NOT EXISTS sync_queue (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		action TEXT NOT NULL,
		payload BLOB NOT NULL,
		created_at INTEGER NOT NULL,
		retries INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS session_entries (
		key TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`

	_, err := s.db.Exec(query)
	if err != nil {
		return types.WrapError(err, "failed to create store tables")
	}

	return nil
}

func (s *SqliteStore) Start() error {
	if !s.transitionState(StateStopped, StateStarting) {
		return types.ErrManagerIsRunning
	}

	defer func() {
		if s.getState() == StateStarting {
			s.setState(StateRunning)
		}
	}()

	s.logger.Info("SQLite store started", zap.String("path", s.config.Path))
	return nil
}

func (s *SqliteStore) Stop() error {
	if !s.transitionState(StateRunning, StateStopping) {
		return types.ErrManagerNotRunning
	}

	defer func() {
		s.setState(StateStopped)
	}()

	if err := s.db.Close(); err != nil {
		return types.WrapError(err, "failed to close SQLite database")
	}

	s.logger.Info("SQLite store stopped gracefully")
	return nil
}

func (s *SqliteStore) IsRunning() bool {
	return s.getState() == StateRunning
}

func (s *SqliteStore) CacheGet(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, types.ErrCacheKeyEmpty
	}

	var data []byte
	var compressed int
	var expiresAt int64

	row := s.db.QueryRowContext(ctx,
		`SELECT data, compressed, expires_at FROM cache_entries WHERE key = ?`, key)
	if err := row.Scan(&data, &compressed, &expiresAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, types.ErrCacheEntryNotFound
		}
		return nil, types.WrapError(err, "failed to read cache entry")
	}

	if time.Now().UnixNano() > expiresAt {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
			s.logger.Warn("Failed to delete expired cache entry",
				zap.String("key", key), zap.Error(err))
		}
		return nil, types.ErrCacheEntryNotFound
	}

	return s.decode(data, compressed)
}

func (s *SqliteStore) CacheGetStale(ctx context.Context, key string) (*types.StaleResult, error) {
	if key == "" {
		return nil, types.ErrCacheKeyEmpty
	}

	var data []byte
	var compressed int
	var expiresAt int64

	row := s.db.QueryRowContext(ctx,
		`SELECT data, compressed, expires_at FROM cache_entries WHERE key = ?`, key)
	if err := row.Scan(&data, &compressed, &expiresAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, types.ErrCacheEntryNotFound
		}
		return nil, types.WrapError(err, "failed to read cache entry")
	}

	decoded, err := s.decode(data, compressed)
	if err != nil {
		return nil, err
	}

	return &types.StaleResult{
		Data:    decoded,
		IsStale: time.Now().UnixNano() > expiresAt,
	}, nil
}

func (s *SqliteStore) CacheSet(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if key == "" {
		return types.ErrCacheKeyEmpty
	}

	if ttl <= 0 {
		ttl = noExpiry
	}

	stored, compressed, err := s.encode(data)
	if err != nil {
		return err
	}

	now := time.Now()
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cache_entries (key, data, compressed, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?)`,
		key, stored, compressed, now.UnixNano(), now.Add(ttl).UnixNano())
	if err != nil {
		return types.WrapError(err, "failed to write cache entry")
	}

	return nil
}

func (s *SqliteStore) CacheDelete(ctx context.Context, key string) error {
	if key == "" {
		return types.ErrCacheKeyEmpty
	}

	_, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key)
	if err != nil {
		return types.WrapError(err, "failed to delete cache entry")
	}

	return nil
}

func (s *SqliteStore) CacheClear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries`)
	if err != nil {
		return types.WrapError(err, "failed to clear cache")
	}

	return nil
}

func (s *SqliteStore) CacheCleanExpired(ctx context.Context) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE expires_at < ?`, time.Now().UnixNano())
	if err != nil {
		return 0, types.WrapError(err, "failed to clean expired cache entries")
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, types.WrapError(err, "failed to count removed entries")
	}

	return int(removed), nil
}

func (s *SqliteStore) CacheEntries(ctx context.Context) ([]*types.CacheEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, data, compressed, created_at, expires_at FROM cache_entries`)
	if err != nil {
		return nil, types.WrapError(err, "failed to enumerate cache entries")
	}
	defer rows.Close()

	var entries []*types.CacheEntry
	for rows.Next() {
		var key string
		var data []byte
		var compressed int
		var createdAt, expiresAt int64

		if err := rows.Scan(&key, &data, &compressed, &createdAt, &expiresAt); err != nil {
			return nil, types.WrapError(err, "failed to scan cache entry")
		}

		decoded, err := s.decode(data, compressed)
		if err != nil {
			s.logger.Warn("Skipping undecodable cache entry", zap.String("key", key), zap.Error(err))
			continue
		}

		entries = append(entries, &types.CacheEntry{
			Key:       key,
			Data:      decoded,
			CreatedAt: time.Unix(0, createdAt),
			ExpiresAt: time.Unix(0, expiresAt),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, types.WrapError(err, "failed to iterate cache entries")
	}

	return entries, nil
}

func (s *SqliteStore) CacheDeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE key >= ? AND key < ?`,
		prefix, prefix+"\xff")
	if err != nil {
		return 0, types.WrapError(err, "failed to delete cache entries by prefix")
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, types.WrapError(err, "failed to count removed entries")
	}

	return int(removed), nil
}

func (s *SqliteStore) CacheCount(ctx context.Context) (int, error) {
	var count int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_entries`)
	if err := row.Scan(&count); err != nil {
		return 0, types.WrapError(err, "failed to count cache entries")
	}

	return count, nil
}

func (s *SqliteStore) QueueAdd(ctx context.Context, action string, payload []byte) (int64, error) {
	if action == "" {
		return 0, types.ErrSyncActionEmpty
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_queue (action, payload, created_at, retries) VALUES (?, ?, ?, 0)`,
		action, payload, time.Now().UnixNano())
	if err != nil {
		return 0, types.WrapError(err, "failed to enqueue mutation")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, types.WrapError(err, "failed to read queue id")
	}

	return id, nil
}

func (s *SqliteStore) QueueGetAll(ctx context.Context) ([]*types.QueueItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, action, payload, created_at, retries FROM sync_queue ORDER BY id ASC`)
	if err != nil {
		return nil, types.WrapError(err, "failed to read sync queue")
	}
	defer rows.Close()

	var items []*types.QueueItem
	for rows.Next() {
		var item types.QueueItem
		var createdAt int64

		if err := rows.Scan(&item.ID, &item.Action, &item.Payload, &createdAt, &item.Retries); err != nil {
			return nil, types.WrapError(err, "failed to scan queue item")
		}

		item.CreatedAt = time.Unix(0, createdAt)
		items = append(items, &item)
	}

	if err := rows.Err(); err != nil {
		return nil, types.WrapError(err, "failed to iterate sync queue")
	}

	return items, nil
}

func (s *SqliteStore) QueueRemove(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id)
	if err != nil {
		return types.WrapError(err, "failed to remove queue item")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return types.WrapError(err, "failed to count removed queue items")
	}

	if rowsAffected == 0 {
		return types.ErrQueueItemNotFound
	}

	return nil
}

func (s *SqliteStore) QueueIncrementRetry(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE sync_queue SET retries = retries + 1 WHERE id = ?`, id)
	if err != nil {
		return types.WrapError(err, "failed to increment queue retries")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return types.WrapError(err, "failed to count updated queue items")
	}

	if rowsAffected == 0 {
		return types.ErrQueueItemNotFound
	}

	return nil
}

func (s *SqliteStore) QueueCount(ctx context.Context) (int, error) {
	var count int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue`)
	if err := row.Scan(&count); err != nil {
		return 0, types.WrapError(err, "failed to count queue items")
	}

	return count, nil
}

func (s *SqliteStore) SessionGet(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	row := s.db.QueryRowContext(ctx,
		`SELECT data FROM session_entries WHERE key = ?`, key)
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, types.ErrSessionEntryNotFound
		}
		return nil, types.WrapError(err, "failed to read session entry")
	}

	return data, nil
}

func (s *SqliteStore) SessionSet(ctx context.Context, key string, data []byte) error {
	if key == "" {
		return types.ErrCacheKeyEmpty
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO session_entries (key, data, updated_at) VALUES (?, ?, ?)`,
		key, data, time.Now().UnixNano())
	if err != nil {
		return types.WrapError(err, "failed to write session entry")
	}

	return nil
}

func (s *SqliteStore) SessionDelete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM session_entries WHERE key = ?`, key)
	if err != nil {
		return types.WrapError(err, "failed to delete session entry")
	}

	return nil
}

func (s *SqliteStore) SessionClear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM session_entries`)
	if err != nil {
		return types.WrapError(err, "failed to clear session entries")
	}

	return nil
}

func (s *SqliteStore) encode(data []byte) ([]byte, int, error) {
	cc := s.config.Compression
	if cc == nil || !cc.Enabled {
		return data, 0, nil
	}

	framed, err := utils.Compress(data, cc.MinSizeBytes)
	if err != nil {
		return nil, 0, types.WrapError(err, "failed to compress cache payload")
	}

	return framed, 1, nil
}

func (s *SqliteStore) decode(data []byte, compressed int) ([]byte, error) {
	if compressed == 0 {
		return data, nil
	}

	decoded, err := utils.Decompress(data)
	if err != nil {
		return nil, types.WrapError(err, "failed to decompress cache payload")
	}

	return decoded, nil
}

func (s *SqliteStore) getState() State {
	return s.state.Load().(State)
}

func (s *SqliteStore) setState(newState State) bool {
	currentState := s.getState()
	return s.state.CompareAndSwap(currentState, newState)
}

func (s *SqliteStore) transitionState(from, to State) bool {
	return s.state.CompareAndSwap(from, to)
}
