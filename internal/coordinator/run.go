package coordinator

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/showroom/internal/events"
	"git.home.luguber.info/inful/showroom/internal/localcache"
	"git.home.luguber.info/inful/showroom/internal/logfields"
	"git.home.luguber.info/inful/showroom/internal/model"
	"git.home.luguber.info/inful/showroom/internal/remote"
)

// Init loads the first document: the remote store when reachable, else the
// local cache, else the built-in default. It then tries to resend a save left
// queued by a previous run. Init only fails if the outbox cannot be read.
func (c *Coordinator) Init(ctx context.Context) (events.DocumentSource, error) {
	if err := c.loadOutbox(ctx); err != nil {
		return "", err
	}

	if c.hasPending() {
		// Unsent local edits outrank the remote copy until they are delivered.
		if err := c.Flush(ctx); err != nil {
			slog.Info("Queued save not yet delivered", logfields.Error(err))
		}
	}

	if !c.hasPending() {
		_, err := c.Fetch(ctx, false)
		if err == nil {
			slog.Info("Loaded document from remote store", logfields.Revision(c.Snapshot().Revision))
			return events.SourceRemote, nil
		}
		slog.Info("Remote store unavailable at startup; falling back to local cache", logfields.Error(err))
	}

	if doc, ok := c.loadCached(ctx); ok {
		c.install(doc, events.SourceCache)
		slog.Info("Loaded document from local cache")
		return events.SourceCache, nil
	}

	c.install(model.Default(), events.SourceDefault)
	slog.Info("Using built-in default document")
	return events.SourceDefault, nil
}

func (c *Coordinator) loadCached(ctx context.Context) (*model.Document, bool) {
	raw, ok, err := c.cache.Get(ctx, localcache.DocumentKey)
	if err != nil {
		slog.Warn("Failed to read local cache", logfields.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	doc, err := model.Decode(raw)
	if err != nil {
		slog.Warn("Cached document is unreadable; ignoring it", logfields.Error(err))
		return nil, false
	}
	// The remote store is unreachable here, so expiry is applied without the eager write.
	doc, _ = c.sweeper.Sweep(doc, c.clock.Now())
	return doc, true
}

func (c *Coordinator) install(doc *model.Document, source events.DocumentSource) {
	c.mu.Lock()
	c.doc = doc
	c.source = source
	revision := c.revision
	c.mu.Unlock()
	c.replaced(source, revision)
}

// Tick is the periodic refresh: resend any queued save, then run a background fetch.
func (c *Coordinator) Tick(ctx context.Context) {
	if err := c.Flush(ctx); err != nil {
		slog.Debug("Outbox resend failed on tick", logfields.Error(err))
	}
	_, _ = c.Fetch(ctx, true)
}

// Run subscribes to remote change notifications for the document and fleet
// tables and turns bursts of them into a single debounced background fetch.
// It blocks until ctx is done.
func (c *Coordinator) Run(ctx context.Context) error {
	changes := make(chan remote.Change, 64)
	unsubscribe, err := c.remote.Subscribe(ctx, []remote.Table{remote.TableDocument, remote.TableFleet}, func(ch remote.Change) {
		select {
		case changes <- ch:
		default:
			// A fetch is already due; the burst is coalesced anyway.
		}
	})
	if err != nil {
		return err
	}
	defer unsubscribe()

	timer := c.clock.NewTimer(time.Hour)
	timer.Stop()
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case ch := <-changes:
			timer.Reset(c.changeDebounce)
			fire = timer.Chan()
			c.bus.Offer(events.RemoteChanged{Table: string(ch.Table), Key: ch.Key, At: c.clock.Now()})
		case <-fire:
			fire = nil
			if c.Locked() {
				slog.Debug("Change-triggered fetch skipped: save lock held")
				continue
			}
			_, _ = c.Fetch(ctx, true)
		}
	}
}
