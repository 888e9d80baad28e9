package coordinator

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strconv"

	"git.home.luguber.info/inful/showroom/internal/events"
	ferrors "git.home.luguber.info/inful/showroom/internal/foundation/errors"
	"git.home.luguber.info/inful/showroom/internal/localcache"
	"git.home.luguber.info/inful/showroom/internal/logfields"
	"git.home.luguber.info/inful/showroom/internal/metrics"
	"git.home.luguber.info/inful/showroom/internal/model"
	"git.home.luguber.info/inful/showroom/internal/remote"
)

// Fetch pulls the shared document and replaces the in-memory copy wholesale.
//
// Background fetches never return an error: guard skips, discarded results
// and remote failures are logged and the previous document stays in place.
// Foreground fetches report them (ErrGuarded, ErrDiscarded, ErrUnsentChanges
// or a network error) and return the applied document on success.
func (c *Coordinator) Fetch(ctx context.Context, background bool) (*model.Document, error) {
	start := c.clock.Now()

	c.mu.Lock()
	if c.lockedLocked(start) || c.guardedLocked(start) {
		c.mu.Unlock()
		c.recorder.IncFetch(metrics.FetchGuarded)
		slog.Debug("Fetch skipped by save guard", slog.Bool("background", background))
		return nil, c.fetchErr(background, ErrGuarded)
	}
	gen := c.writeGenLocked()
	c.mu.Unlock()

	snap, err := c.remote.FetchDocument(ctx)
	if err != nil {
		return nil, c.fetchFailed(background, "fetch document", err)
	}
	doc, err := model.Decode(snap.Raw)
	if err != nil {
		return nil, c.fetchFailed(background, "decode document", err)
	}

	if c.stale(gen) {
		c.recorder.IncFetch(metrics.FetchDiscarded)
		slog.Debug("Fetched document discarded after guard re-check", logfields.Revision(snap.Revision))
		return nil, c.fetchErr(background, ErrDiscarded)
	}

	if c.hasPending() {
		c.recorder.IncFetch(metrics.FetchDiscarded)
		slog.Info("Fetched document discarded: unsent local changes pending", logfields.Revision(snap.Revision))
		if err := c.Flush(ctx); err != nil {
			slog.Debug("Outbox resend failed", logfields.Error(err))
		}
		return nil, c.fetchErr(background, ErrUnsentChanges)
	}

	doc, swept := c.sweeper.Sweep(doc, c.clock.Now())

	fleet, fleetErr := c.remote.FetchFleet(ctx)
	if fleetErr != nil {
		slog.Debug("Fleet fetch failed; keeping previous fleet", logfields.Error(fleetErr))
	}

	c.mu.Lock()
	now := c.clock.Now()
	if c.writeGenLocked() != gen || c.lockedLocked(now) || c.guardedLocked(now) {
		c.mu.Unlock()
		c.recorder.IncFetch(metrics.FetchDiscarded)
		slog.Debug("Fetched document discarded after guard re-check", logfields.Revision(snap.Revision))
		return nil, c.fetchErr(background, ErrDiscarded)
	}
	if fleetErr != nil && c.doc != nil {
		fleet = c.doc.Fleet
	}
	if fleet == nil {
		fleet = []model.FleetDevice{}
	}
	doc.Fleet = fleet
	c.doc = doc
	c.revision = snap.Revision
	c.source = events.SourceRemote
	c.lastSyncAt = now
	c.mu.Unlock()

	c.recorder.IncFetch(metrics.FetchApplied)
	c.recorder.ObserveFetchDuration(c.clock.Since(start))
	slog.Debug("Applied remote document",
		logfields.Revision(snap.Revision),
		slog.Bool("background", background),
		logfields.Count(len(fleet)))

	c.replaced(events.SourceRemote, snap.Revision)
	if c.writeFetched(ctx, gen, doc, swept.Changed()) {
		c.journal(ctx, "fetch", "revision "+strconv.FormatUint(snap.Revision, 10))
	}
	return doc, nil
}

// writeFetched persists an applied fetch to the cache and, when the sweep
// changed it, pushes it back to the remote row. Both writes happen under
// pushMu and only while no save or resend has started since gen was read, so
// a local edit is never overwritten by the document it replaced.
func (c *Coordinator) writeFetched(ctx context.Context, gen uint64, doc *model.Document, swept bool) bool {
	c.pushMu.Lock()
	defer c.pushMu.Unlock()

	c.mu.Lock()
	current := c.writeGenLocked()
	c.mu.Unlock()
	if current != gen {
		slog.Debug("Fetched document superseded by a local write; not persisted")
		return false
	}
	c.persist(ctx, doc)
	if swept {
		if err := c.sweeper.Write(ctx, doc); err != nil {
			slog.Warn("Failed to persist expired catalogues", logfields.Error(err))
		}
	}
	return true
}

// writeGenLocked counts local writes: saves and outbox resends. A fetch whose
// generation moved while it was in flight read a row older than local state.
func (c *Coordinator) writeGenLocked() uint64 {
	return c.saveSeq + c.resends
}

func (c *Coordinator) currentSeq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveSeq
}

// stale re-checks the guards after an await. A save or resend that started
// meanwhile always invalidates the result.
func (c *Coordinator) stale(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	return c.writeGenLocked() != gen || c.lockedLocked(now) || c.guardedLocked(now)
}

func (c *Coordinator) fetchErr(background bool, err error) error {
	if background {
		return nil
	}
	return err
}

func (c *Coordinator) fetchFailed(background bool, op string, err error) error {
	c.recorder.IncFetch(metrics.FetchFailed)
	if background {
		slog.Debug("Background fetch failed", slog.String("op", op), logfields.Error(err))
		return nil
	}
	if stderrors.Is(err, remote.ErrNotFound) {
		return ferrors.WrapError(err, ferrors.CategoryNotFound, "remote document not found").Build()
	}
	return ferrors.WrapError(err, ferrors.CategoryNetwork, "remote fetch failed").
		WithContext("op", op).
		NextTick().
		Build()
}

// persist writes doc to the local cache. A quota failure is retried once with
// the archive dropped; any other failure is logged only.
func (c *Coordinator) persist(ctx context.Context, doc *model.Document) {
	raw, err := model.Encode(doc)
	if err != nil {
		c.recorder.IncCacheWrite(metrics.ResultFailed)
		slog.Warn("Failed to encode document for cache", logfields.Error(err))
		return
	}
	err = c.cache.Set(ctx, localcache.DocumentKey, raw)
	if stderrors.Is(err, localcache.ErrQuotaExceeded) {
		slim := model.Clone(doc)
		slim.Archive = model.Archive{}
		model.Migrate(slim)
		if raw, err = model.Encode(slim); err == nil {
			err = c.cache.Set(ctx, localcache.DocumentKey, raw)
		}
		if err == nil {
			slog.Warn("Local cache full; stored document without archive", logfields.Bytes(len(raw)))
		}
	}
	if err != nil {
		c.recorder.IncCacheWrite(metrics.ResultFailed)
		slog.Warn("Failed to write local cache", logfields.Error(err))
		return
	}
	c.recorder.IncCacheWrite(metrics.ResultSuccess)
}
