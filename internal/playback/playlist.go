// Package playback implements the idle screensaver: a weighted, shuffled
// playlist played through two double-buffered slots, with per-slide timing,
// failure skipping and a sleep-hours gate.
package playback

import (
	"fmt"
	"math/rand/v2"
	"time"

	"git.home.luguber.info/inful/showroom/internal/model"
)

// SlideKind is the source category of a playlist entry.
type SlideKind string

const (
	KindAd           SlideKind = "ad"
	KindPamphlet     SlideKind = "pamphlet"
	KindProductImage SlideKind = "product_image"
	KindProductVideo SlideKind = "product_video"
)

// Slide is one playlist entry.
type Slide struct {
	Kind     SlideKind `json:"kind"`
	SourceID string    `json:"sourceId"`
	URL      string    `json:"url"`
	Title    string    `json:"title,omitempty"`
	Video    bool      `json:"video"`
}

// ID identifies the slide by source and media.
func (s Slide) ID() string {
	return fmt.Sprintf("%s:%s:%s", s.Kind, s.SourceID, s.URL)
}

// Entries builds the unshuffled playlist for doc at now. Each eligible
// screensaver ad appears adWeight times, each active pamphlet's first page
// pamphletWeight times, and each product image and video productWeight times.
// A weight of 0 excludes the category.
func Entries(doc *model.Document, now time.Time) []Slide {
	if doc == nil {
		return nil
	}
	s := doc.ScreensaverSettings
	var out []Slide

	for _, ad := range doc.Ads.EligibleAds(model.ZoneScreensaver, now) {
		slide := Slide{Kind: KindAd, SourceID: ad.ID, URL: ad.URL, Video: ad.Type == model.AdVideo}
		out = repeat(out, slide, s.AdWeight)
	}

	for _, c := range doc.Catalogues {
		if !c.Active(now) {
			continue
		}
		page := c.ThumbnailURL
		if len(c.Pages) > 0 && c.Pages[0] != "" {
			page = c.Pages[0]
		}
		if page == "" {
			continue
		}
		out = repeat(out, Slide{Kind: KindPamphlet, SourceID: c.ID, URL: page, Title: c.Title}, s.PamphletWeight)
	}

	for _, p := range doc.Products() {
		for _, url := range p.Images() {
			out = repeat(out, Slide{Kind: KindProductImage, SourceID: p.ID, URL: url, Title: p.Name}, s.ProductWeight)
		}
		for _, url := range p.Videos() {
			out = repeat(out, Slide{Kind: KindProductVideo, SourceID: p.ID, URL: url, Title: p.Name, Video: true}, s.ProductWeight)
		}
	}
	return out
}

func repeat(out []Slide, s Slide, n int) []Slide {
	for range n {
		out = append(out, s)
	}
	return out
}

// Shuffle permutes slides in place with a Fisher-Yates shuffle.
func Shuffle(slides []Slide, rng *rand.Rand) {
	for i := len(slides) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		slides[i], slides[j] = slides[j], slides[i]
	}
}

// Build returns the shuffled playlist for doc at now.
func Build(doc *model.Document, now time.Time, rng *rand.Rand) []Slide {
	slides := Entries(doc, now)
	Shuffle(slides, rng)
	return slides
}

// signature changes whenever the playlist inputs change size or the settings change.
func signature(doc *model.Document, now time.Time) string {
	if doc == nil {
		return ""
	}
	counts := map[SlideKind]int{}
	for _, s := range Entries(doc, now) {
		counts[s.Kind]++
	}
	return fmt.Sprintf("%v|%+v", counts, doc.ScreensaverSettings)
}
