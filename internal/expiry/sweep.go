// Package expiry moves time-expired catalogues into the archive partition and
// prunes the archive according to a retention policy.
package expiry

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"git.home.luguber.info/inful/showroom/internal/logfields"
	"git.home.luguber.info/inful/showroom/internal/metrics"
	"git.home.luguber.info/inful/showroom/internal/model"
)

// Retention bounds the archive. Zero values disable the respective rule.
type Retention struct {
	MaxAge     time.Duration
	MaxEntries int
}

// Result reports what a sweep changed.
type Result struct {
	Expired []string
	Pruned  []string
}

// Changed reports whether the document was modified.
func (r Result) Changed() bool {
	return len(r.Expired) > 0 || len(r.Pruned) > 0
}

// Sweep partitions catalogues into active and expired, appends the expired ones
// to the archive with their deletion time, then applies retention. When nothing
// changes the input document is returned as is; otherwise a modified copy is
// returned and doc is left untouched.
func Sweep(doc *model.Document, now time.Time, retention Retention) (*model.Document, Result) {
	var res Result
	if doc == nil {
		return nil, res
	}

	expired := make([]model.Catalogue, 0)
	for _, c := range doc.Catalogues {
		if c.Expired(now) {
			expired = append(expired, c)
		}
	}
	prunable := prunableIDs(doc.Archive, now, retention, len(expired))
	if len(expired) == 0 && len(prunable) == 0 {
		return doc, res
	}

	out := model.Clone(doc)
	if out.Archive.DeletedAt == nil {
		out.Archive.DeletedAt = map[string]string{}
	}
	stamp := now.UTC().Format(time.RFC3339)

	out.Catalogues = slices.DeleteFunc(out.Catalogues, func(c model.Catalogue) bool { return c.Expired(now) })
	for _, c := range expired {
		// An id already archived is replaced, never duplicated.
		out.Archive.Catalogues = slices.DeleteFunc(out.Archive.Catalogues, func(a model.Catalogue) bool { return a.ID == c.ID })
		out.Archive.Catalogues = append(out.Archive.Catalogues, c)
		out.Archive.DeletedAt[c.ID] = stamp
		res.Expired = append(res.Expired, c.ID)
	}

	if pruned := prunableIDs(out.Archive, now, retention, 0); len(pruned) > 0 {
		prune(&out.Archive, pruned)
		for id := range pruned {
			res.Pruned = append(res.Pruned, id)
		}
		slices.Sort(res.Pruned)
	}
	return out, res
}

// prunableIDs selects archive ids beyond the retention policy. incoming counts
// entries about to be added so the count rule accounts for them.
func prunableIDs(a model.Archive, now time.Time, r Retention, incoming int) map[string]bool {
	type entry struct {
		id string
		at time.Time
	}
	var entries []entry
	collect := func(id string) {
		at, _ := a.DeletedTime(id)
		entries = append(entries, entry{id: id, at: at})
	}
	for _, c := range a.Catalogues {
		collect(c.ID)
	}
	for _, b := range a.Brands {
		collect(b.ID)
	}
	for _, p := range a.Products {
		collect(p.ID)
	}
	for _, p := range a.Pricelists {
		collect(p.ID)
	}

	out := map[string]bool{}
	if r.MaxAge > 0 {
		cutoff := now.Add(-r.MaxAge)
		for _, e := range entries {
			// Entries without a deletion time never age out.
			if !e.at.IsZero() && e.at.Before(cutoff) {
				out[e.id] = true
			}
		}
	}
	if r.MaxEntries > 0 {
		remaining := len(entries) + incoming - len(out)
		if remaining > r.MaxEntries {
			slices.SortStableFunc(entries, func(x, y entry) int { return x.at.Compare(y.at) })
			for _, e := range entries {
				if remaining <= r.MaxEntries {
					break
				}
				if !out[e.id] {
					out[e.id] = true
					remaining--
				}
			}
		}
	}
	return out
}

func prune(a *model.Archive, ids map[string]bool) {
	a.Catalogues = slices.DeleteFunc(a.Catalogues, func(c model.Catalogue) bool { return ids[c.ID] })
	a.Brands = slices.DeleteFunc(a.Brands, func(b model.Brand) bool { return ids[b.ID] })
	a.Products = slices.DeleteFunc(a.Products, func(p model.Product) bool { return ids[p.ID] })
	a.Pricelists = slices.DeleteFunc(a.Pricelists, func(p model.Pricelist) bool { return ids[p.ID] })
	for id := range ids {
		delete(a.DeletedAt, id)
	}
}

// Writer persists a swept document to the shared remote row.
type Writer interface {
	UpsertDocument(ctx context.Context, doc *model.Document) error
}

// Sweeper applies the retention policy and pushes swept documents back to the
// shared row so all clients converge. Sweeping and writing are separate steps:
// callers decide whether a swept document is still current before writing it.
type Sweeper struct {
	writer    Writer
	retention Retention
	recorder  metrics.Recorder
}

// NewSweeper creates a Sweeper. A nil recorder disables metrics.
func NewSweeper(writer Writer, retention Retention, recorder metrics.Recorder) *Sweeper {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Sweeper{writer: writer, retention: retention, recorder: recorder}
}

// Sweep runs Sweep with the sweeper's retention and records what moved. It
// never writes.
func (s *Sweeper) Sweep(doc *model.Document, now time.Time) (*model.Document, Result) {
	out, res := Sweep(doc, now, s.retention)
	if res.Changed() {
		s.recorder.IncExpired(len(res.Expired))
		slog.Info("Archived expired catalogues",
			logfields.Count(len(res.Expired)),
			slog.Int("pruned", len(res.Pruned)))
	}
	return out, res
}

// Write pushes a swept document, without fleet, to the shared row.
func (s *Sweeper) Write(ctx context.Context, doc *model.Document) error {
	if s.writer == nil || doc == nil {
		return nil
	}
	return s.writer.UpsertDocument(ctx, model.ForRemote(doc))
}
