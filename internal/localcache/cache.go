// Package localcache is the durable key/value layer that keeps the last-known
// document across restarts, plus the outbox of unsent saves and a short sync
// journal.
package localcache

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// DocumentKey is the key the coordinator stores the full document under.
const DocumentKey = "store_document"

const journalLimit = 200

// Cache implements the local key/value store on sqlite.
type Cache struct {
	db       *sql.DB
	mu       sync.RWMutex
	maxBytes int64
	clock    clockwork.Clock
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the clock used for timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(cache *Cache) { cache.clock = c }
}

// Open creates or opens the cache. Use ":memory:" for an in-memory database.
// maxBytes bounds the total size of kv values; 0 disables the quota.
func Open(path string, maxBytes int64, opts ...Option) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpenFailed, err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	c := &Cache{db: db, maxBytes: maxBytes, clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %w", ErrOpenFailed, err)
	}
	return c, nil
}

func (c *Cache) initialize() error {
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := c.db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	_, err := c.db.Exec(schemaSQL)
	return err
}

// Get returns the value for key, or ok=false when absent.
func (c *Cache) Get(ctx context.Context, key string) (value []byte, ok bool, err error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	err = c.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select kv: %w", err)
	}
	return value, true, nil
}

// Set stores value under key. It fails with ErrQuotaExceeded when the total
// size of stored values would exceed the quota; the previous value is kept.
func (c *Cache) Set(ctx context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxBytes > 0 {
		var others int64
		err := c.db.QueryRowContext(ctx,
			"SELECT COALESCE(SUM(LENGTH(value)), 0) FROM kv WHERE key <> ?", key).Scan(&others)
		if err != nil {
			return fmt.Errorf("measure kv: %w", err)
		}
		if others+int64(len(value)) > c.maxBytes {
			return ErrQuotaExceeded.
				WithContext("key", key).
				WithContext("bytes", len(value)).
				WithContext("limit", c.maxBytes)
		}
	}

	_, err := c.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, c.clock.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert kv: %w", err)
	}
	return nil
}

// Usage returns the total size of stored values in bytes.
func (c *Cache) Usage(ctx context.Context) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var n int64
	err := c.db.QueryRowContext(ctx, "SELECT COALESCE(SUM(LENGTH(value)), 0) FROM kv").Scan(&n)
	return n, err
}

// Close closes the database connection.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db.Close()
}
