package localcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SlotDocument is the outbox slot used for unsent document saves.
const SlotDocument = "document"

// PendingSave is a save that has not been acknowledged by the remote store.
type PendingSave struct {
	ID            string
	Payload       []byte
	CreatedAt     time.Time
	Attempts      int
	LastAttemptAt time.Time
	LastError     string
}

// PutPending stores payload in slot, replacing anything already queued there.
func (c *Cache) PutPending(ctx context.Context, slot, id string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.ExecContext(ctx,
		`INSERT INTO outbox (slot, id, payload, created_at, attempts) VALUES (?, ?, ?, ?, 0)
		 ON CONFLICT(slot) DO UPDATE SET
		   id = excluded.id, payload = excluded.payload, created_at = excluded.created_at,
		   attempts = 0, last_attempt_at = NULL, last_error = NULL`,
		slot, id, payload, c.clock.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert outbox: %w", err)
	}
	return nil
}

// Pending returns the queued save for slot, or nil when the slot is empty.
func (c *Cache) Pending(ctx context.Context, slot string) (*PendingSave, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var (
		p         PendingSave
		createdAt int64
		lastAt    sql.NullInt64
		lastErr   sql.NullString
	)
	err := c.db.QueryRowContext(ctx,
		"SELECT id, payload, created_at, attempts, last_attempt_at, last_error FROM outbox WHERE slot = ?",
		slot).Scan(&p.ID, &p.Payload, &createdAt, &p.Attempts, &lastAt, &lastErr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select outbox: %w", err)
	}
	p.CreatedAt = time.UnixMilli(createdAt)
	if lastAt.Valid {
		p.LastAttemptAt = time.UnixMilli(lastAt.Int64)
	}
	p.LastError = lastErr.String
	return &p, nil
}

// MarkAttempt records a failed resend of the save identified by id.
func (c *Cache) MarkAttempt(ctx context.Context, slot, id string, cause error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	_, err := c.db.ExecContext(ctx,
		`UPDATE outbox SET attempts = attempts + 1, last_attempt_at = ?, last_error = ?
		 WHERE slot = ? AND id = ?`,
		c.clock.Now().UnixMilli(), msg, slot, id)
	return err
}

// ClearPending empties slot if it still holds the save identified by id.
// A newer save queued meanwhile is left in place.
func (c *Cache) ClearPending(ctx context.Context, slot, id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.ExecContext(ctx, "DELETE FROM outbox WHERE slot = ? AND id = ?", slot, id)
	if err != nil {
		return false, fmt.Errorf("delete outbox: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
