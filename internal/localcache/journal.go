package localcache

import (
	"context"
	"fmt"
	"time"
)

// Entry is one line of the sync journal.
type Entry struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Append records an entry and trims the journal to its most recent entries.
func (c *Cache) Append(ctx context.Context, kind, detail string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin journal tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO journal (kind, detail, timestamp) VALUES (?, ?, ?)",
		kind, detail, c.clock.Now().UnixMilli()); err != nil {
		return fmt.Errorf("insert journal: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM journal WHERE id <= (SELECT MAX(id) FROM journal) - ?", journalLimit); err != nil {
		return fmt.Errorf("trim journal: %w", err)
	}
	return tx.Commit()
}

// Recent returns up to n entries, newest first.
func (c *Cache) Recent(ctx context.Context, n int) ([]Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rows, err := c.db.QueryContext(ctx,
		"SELECT id, kind, COALESCE(detail, ''), timestamp FROM journal ORDER BY id DESC LIMIT ?", n)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var (
			e  Entry
			ts int64
		)
		if err := rows.Scan(&e.ID, &e.Kind, &e.Detail, &ts); err != nil {
			return nil, fmt.Errorf("scan journal: %w", err)
		}
		e.Timestamp = time.UnixMilli(ts)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
