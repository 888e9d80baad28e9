package coordinator

import (
	"context"
	"log/slog"

	ferrors "git.home.luguber.info/inful/showroom/internal/foundation/errors"
	"git.home.luguber.info/inful/showroom/internal/localcache"
	"git.home.luguber.info/inful/showroom/internal/logfields"
	"git.home.luguber.info/inful/showroom/internal/metrics"
	"git.home.luguber.info/inful/showroom/internal/model"
)

// loadOutbox restores the pending save left by a previous run.
func (c *Coordinator) loadOutbox(ctx context.Context) error {
	p, err := c.cache.Pending(ctx, localcache.SlotDocument)
	if err != nil {
		return err
	}
	c.outboxMu.Lock()
	defer c.outboxMu.Unlock()
	if p == nil {
		c.pendingID = ""
	} else {
		c.pendingID = p.ID
		c.pendingSeq = 0
		c.pendingFails = p.Attempts
		c.nextResendAt = c.clock.Now()
	}
	c.recorder.SetOutboxPending(c.pendingID != "")
	return nil
}

func (c *Coordinator) hasPending() bool {
	c.outboxMu.Lock()
	defer c.outboxMu.Unlock()
	return c.pendingID != ""
}

// enqueue stores a failed outbound document unless a newer save already owns the slot.
func (c *Coordinator) enqueue(ctx context.Context, seq uint64, doc *model.Document, cause error) {
	c.outboxMu.Lock()
	defer c.outboxMu.Unlock()

	if c.pendingID != "" && c.pendingSeq > seq {
		return
	}
	raw, err := model.Encode(doc)
	if err != nil {
		slog.Error("Failed to encode document for outbox", logfields.Error(err))
		return
	}
	id := newSaveID()
	if err := c.cache.PutPending(ctx, localcache.SlotDocument, id, raw); err != nil {
		slog.Error("Failed to queue unsent save", logfields.Error(err))
		return
	}
	c.pendingID = id
	c.pendingSeq = seq
	c.pendingFails = 1
	c.nextResendAt = c.retry.NextAttempt(c.clock.Now(), 1)
	c.recorder.SetOutboxPending(true)
	slog.Info("Queued unsent save for resend", logfields.Key(id), logfields.Error(cause))
}

// settled clears a queued save superseded by the successful save seq.
func (c *Coordinator) settled(ctx context.Context, seq uint64) {
	c.outboxMu.Lock()
	defer c.outboxMu.Unlock()

	if c.pendingID == "" || c.pendingSeq > seq {
		return
	}
	if _, err := c.cache.ClearPending(ctx, localcache.SlotDocument, c.pendingID); err != nil {
		slog.Warn("Failed to clear superseded outbox entry", logfields.Error(err))
		return
	}
	c.pendingID = ""
	c.recorder.SetOutboxPending(false)
}

// Flush resends the queued save when its backoff has elapsed. It is a no-op
// when nothing is queued, when a save is in flight, or before the next
// attempt is due.
func (c *Coordinator) Flush(ctx context.Context) error {
	if c.Locked() {
		return nil
	}

	c.outboxMu.Lock()
	defer c.outboxMu.Unlock()

	if c.pendingID == "" || c.clock.Now().Before(c.nextResendAt) {
		return nil
	}
	id := c.pendingID

	p, err := c.cache.Pending(ctx, localcache.SlotDocument)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryCache, "read outbox").Build()
	}
	if p == nil || p.ID != id {
		c.pendingID = ""
		c.recorder.SetOutboxPending(false)
		return nil
	}
	doc, err := model.Decode(p.Payload)
	if err != nil {
		// An undecodable entry can never be sent.
		_, _ = c.cache.ClearPending(ctx, localcache.SlotDocument, id)
		c.pendingID = ""
		c.recorder.SetOutboxPending(false)
		return ferrors.WrapError(err, ferrors.CategoryInternal, "decode outbox entry").Build()
	}

	c.pushMu.Lock()
	c.mu.Lock()
	// A save started after this entry was queued carries newer state and
	// settles the entry itself.
	superseded := c.saveSeq > c.pendingSeq
	if !superseded {
		// A resend is a local write: fetches that read the remote row before
		// it landed must not apply their result.
		c.resends++
	}
	c.mu.Unlock()
	if superseded {
		c.pushMu.Unlock()
		return nil
	}
	err = c.remote.UpsertDocument(ctx, model.ForRemote(doc))
	c.pushMu.Unlock()
	if err != nil {
		c.pendingFails++
		c.nextResendAt = c.retry.NextAttempt(c.clock.Now(), c.pendingFails)
		c.recorder.IncOutboxResend(metrics.ResultFailed)
		if markErr := c.cache.MarkAttempt(ctx, localcache.SlotDocument, id, err); markErr != nil {
			slog.Debug("Failed to record outbox attempt", logfields.Error(markErr))
		}
		slog.Debug("Outbox resend failed",
			logfields.Attempt(c.pendingFails),
			slog.Time("next_attempt", c.nextResendAt),
			logfields.Error(err))
		return ferrors.WrapError(err, ferrors.CategoryNetwork, "outbox resend failed").NextTick().Build()
	}

	if _, err := c.cache.ClearPending(ctx, localcache.SlotDocument, id); err != nil {
		slog.Warn("Failed to clear outbox after resend", logfields.Error(err))
	}
	c.pendingID = ""
	c.recorder.SetOutboxPending(false)
	c.recorder.IncOutboxResend(metrics.ResultSuccess)
	c.journal(ctx, "resend", "ok")
	slog.Info("Resent queued save", logfields.Key(id))
	return nil
}
