package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"text/tabwriter"
	"time"

	"git.home.luguber.info/inful/showroom/internal/kiosk"
	"git.home.luguber.info/inful/showroom/internal/model"
	"git.home.luguber.info/inful/showroom/internal/playback"
	"git.home.luguber.info/inful/showroom/internal/remote"
)

// PlaylistCmd implements the 'playlist' command.
type PlaylistCmd struct {
	Seed     uint64 `help:"Shuffle seed; 0 keeps the weighted order unshuffled"`
	Cached   bool   `help:"Use the locally cached document without contacting the remote"`
	At       string `help:"Evaluate eligibility at this RFC 3339 time instead of now"`
	Settings bool   `help:"Also print the screensaver settings"`
}

func (p *PlaylistCmd) Run(g *Global, root *CLI) error {
	cfg, _, err := loadConfig(g, root)
	if err != nil {
		return err
	}
	cfg.Playback.Enabled = false

	now := time.Now()
	if p.At != "" {
		if now, err = time.Parse(time.RFC3339, p.At); err != nil {
			return fmt.Errorf("invalid --at: %w", err)
		}
	}

	ctx := context.Background()
	opts := kiosk.Options{DisableHTTP: true}
	if p.Cached {
		opts.Remote = offlineRemote()
	}
	rt, err := kiosk.New(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close(ctx) }()

	if _, err := rt.Coordinator.Init(ctx); err != nil {
		return err
	}
	doc := rt.Coordinator.Document()

	var slides []playback.Slide
	if p.Seed == 0 {
		slides = playback.Entries(doc, now)
	} else {
		slides = playback.Build(doc, now, rand.New(rand.NewPCG(p.Seed, p.Seed)))
	}
	if p.Settings {
		printSettings(os.Stdout, doc.ScreensaverSettings)
	}
	return printPlaylist(os.Stdout, slides)
}

func printPlaylist(w io.Writer, slides []playback.Slide) error {
	if len(slides) == 0 {
		_, err := fmt.Fprintln(w, "Playlist is empty: nothing eligible to play")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "#\tKIND\tSOURCE\tMEDIA\tURL")
	for i, s := range slides {
		media := "image"
		if s.Video {
			media = "video"
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i+1, s.Kind, s.SourceID, media, s.URL)
	}
	return tw.Flush()
}

func printSettings(w io.Writer, s model.ScreensaverSettings) {
	_, _ = fmt.Fprintf(w, "Weights: ads %d, pamphlets %d, products %d\n", s.AdWeight, s.PamphletWeight, s.ProductWeight)
	_, _ = fmt.Fprintf(w, "Idle timeout %ds, image duration %ds, effect %s, wake %s\n",
		s.IdleTimeout, s.ImageDuration, s.Effect, s.WakeBehavior)
	if s.EnableSleepMode {
		_, _ = fmt.Fprintf(w, "Sleep outside %s-%s\n", s.ActiveHoursStart, s.ActiveHoursEnd)
	}
}

// offlineRemote fails every call so the coordinator falls back to the cache.
func offlineRemote() remote.Store {
	s := remote.NewMemoryStore()
	s.SetFailure(errors.New("remote disabled for this command"))
	return s
}
