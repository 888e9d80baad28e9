package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"git.home.luguber.info/inful/showroom/internal/coordinator"
	"git.home.luguber.info/inful/showroom/internal/events"
	"git.home.luguber.info/inful/showroom/internal/kiosk"
	"git.home.luguber.info/inful/showroom/internal/model"
)

// SyncCmd implements the 'sync' command.
type SyncCmd struct {
	JSON bool `help:"Print the summary as JSON"`
}

// SyncSummary describes the document a one-shot sync produced.
type SyncSummary struct {
	Source             events.DocumentSource `json:"source"`
	Revision           uint64                `json:"revision"`
	Brands             int                   `json:"brands"`
	Products           int                   `json:"products"`
	Catalogues         int                   `json:"catalogues"`
	ActiveCatalogues   int                   `json:"activeCatalogues"`
	ScreensaverAds     int                   `json:"screensaverAds"`
	EligibleAds        int                   `json:"eligibleAds"`
	ArchivedCatalogues int                   `json:"archivedCatalogues"`
	Fleet              int                   `json:"fleet"`
	OutboxPending      bool                  `json:"outboxPending"`
}

func (s *SyncCmd) Run(g *Global, root *CLI) error {
	cfg, _, err := loadConfig(g, root)
	if err != nil {
		return err
	}
	cfg.Playback.Enabled = false

	ctx := context.Background()
	rt, err := kiosk.New(ctx, cfg, kiosk.Options{DisableHTTP: true})
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close(ctx) }()

	src, err := rt.Coordinator.Init(ctx)
	if err != nil {
		return err
	}
	summary := Summarize(src, rt.Coordinator.Document(), rt.Coordinator.Snapshot(), time.Now())
	return printSummary(os.Stdout, summary, s.JSON)
}

// Summarize counts what the document holds at now.
func Summarize(src events.DocumentSource, doc *model.Document, snap coordinator.Snapshot, now time.Time) SyncSummary {
	out := SyncSummary{Source: src, Revision: snap.Revision, OutboxPending: snap.OutboxPending}
	if doc == nil {
		return out
	}
	out.Brands = len(doc.Brands)
	out.Products = len(doc.Products())
	out.Catalogues = len(doc.Catalogues)
	for _, c := range doc.Catalogues {
		if c.Active(now) {
			out.ActiveCatalogues++
		}
	}
	out.ScreensaverAds = len(doc.Ads.Screensaver)
	out.EligibleAds = len(doc.Ads.EligibleAds(model.ZoneScreensaver, now))
	out.ArchivedCatalogues = len(doc.Archive.Catalogues)
	out.Fleet = len(doc.Fleet)
	return out
}

func printSummary(w io.Writer, s SyncSummary, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}
	_, err := fmt.Fprintf(w,
		"Source: %s (revision %d)\nBrands: %d, products: %d\nCatalogues: %d (%d active, %d archived)\nScreensaver ads: %d (%d eligible now)\nFleet devices: %d\nUnsent changes: %t\n",
		s.Source, s.Revision,
		s.Brands, s.Products,
		s.Catalogues, s.ActiveCatalogues, s.ArchivedCatalogues,
		s.ScreensaverAds, s.EligibleAds,
		s.Fleet,
		s.OutboxPending)
	return err
}
