package coordinator

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/showroom/internal/events"
	ferrors "git.home.luguber.info/inful/showroom/internal/foundation/errors"
	"git.home.luguber.info/inful/showroom/internal/logfields"
	"git.home.luguber.info/inful/showroom/internal/metrics"
	"git.home.luguber.info/inful/showroom/internal/model"
)

// Save replaces the in-memory document with doc, writes it to the local cache
// and pushes it, without fleet, to the remote store. The optimistic state is
// kept when the push fails; the outbound document is queued in the outbox for
// resend and a retryable sync error is returned.
//
// A second Save while one is in flight simply overwrites; the last write wins.
func (c *Coordinator) Save(ctx context.Context, doc *model.Document) error {
	return c.save(ctx, doc, events.SourceSave)
}

// ResetToDefaults saves the built-in default document through the normal save path.
func (c *Coordinator) ResetToDefaults(ctx context.Context) error {
	return c.save(ctx, model.Default(), events.SourceReset)
}

func (c *Coordinator) save(ctx context.Context, doc *model.Document, source events.DocumentSource) error {
	if doc == nil {
		return ferrors.ValidationError("document is required").Build()
	}
	next := model.Migrate(model.Clone(doc))

	c.mu.Lock()
	start := c.clock.Now()
	c.savesInFlight++
	c.saveSeq++
	seq := c.saveSeq
	c.lastLocalWriteAt = start
	if next.Fleet == nil && c.doc != nil {
		next.Fleet = c.doc.Fleet
	}
	c.doc = next
	c.source = source
	revision := c.revision
	c.mu.Unlock()

	c.replaced(source, revision)
	c.setStatus(events.SyncSyncing, 10, nil)

	outbound := model.ForRemote(next)
	err := c.push(ctx, seq, next, outbound)

	c.mu.Lock()
	c.savesInFlight--
	if until := c.clock.Now().Add(c.lockGrace); until.After(c.lockUntil) {
		c.lockUntil = until
	}
	c.mu.Unlock()

	c.recorder.ObserveSaveDuration(c.clock.Since(start))

	if err != nil {
		c.recorder.IncSave(metrics.ResultFailed)
		c.enqueue(ctx, seq, outbound, err)
		c.setStatus(events.SyncError, 100, err)
		c.journal(ctx, string(source), "failed: "+err.Error())
		slog.Warn("Save failed; change kept locally", logfields.Error(err))
		return ferrors.WrapError(err, ferrors.CategorySync, "save could not be sent to the remote store").
			WithContext("queued", true).
			Build()
	}

	c.recorder.IncSave(metrics.ResultSuccess)
	c.settled(ctx, seq)
	c.setStatus(events.SyncComplete, 100, nil)
	c.journal(ctx, string(source), "ok")
	slog.Info("Document saved", logfields.Reason(string(source)))
	return nil
}

// push writes a save to the cache and the remote row under pushMu. A save
// that a newer one has overtaken writes nothing: the newer save carries the
// full document and will land after it.
func (c *Coordinator) push(ctx context.Context, seq uint64, doc, outbound *model.Document) error {
	c.pushMu.Lock()
	defer c.pushMu.Unlock()

	if c.currentSeq() != seq {
		slog.Debug("Save superseded by a newer local write; skipping push")
		return nil
	}
	c.persist(ctx, doc)
	c.setStatus(events.SyncSyncing, 60, nil)
	return c.remote.UpsertDocument(ctx, outbound)
}
