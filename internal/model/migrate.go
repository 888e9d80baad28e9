package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

const (
	DefaultIdleTimeout      = 60
	DefaultImageDuration    = 8
	DefaultActiveHoursStart = "08:00"
	DefaultActiveHoursEnd   = "20:00"
	MaxWeight               = 5
)

// DefaultScreensaverSettings returns the playback settings used when a document omits them.
func DefaultScreensaverSettings() ScreensaverSettings {
	return ScreensaverSettings{
		IdleTimeout:      DefaultIdleTimeout,
		ImageDuration:    DefaultImageDuration,
		AdWeight:         1,
		PamphletWeight:   1,
		ProductWeight:    1,
		Effect:           EffectRandom,
		WakeBehavior:     WakeReset,
		MuteVideos:       true,
		ActiveHoursStart: DefaultActiveHoursStart,
		ActiveHoursEnd:   DefaultActiveHoursEnd,
	}
}

// Default returns the built-in document used when neither the remote store nor
// the local cache has one.
func Default() *Document {
	return Migrate(&Document{
		ScreensaverSettings: DefaultScreensaverSettings(),
		Admins: []Admin{
			{ID: "admin-default", Name: "Admin", PIN: "1234", SuperAdmin: true},
		},
	})
}

// Decode parses a raw document and migrates it. Settings absent from the JSON
// keep their defaults; an empty or null payload yields Default().
func Decode(raw []byte) (*Document, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Default(), nil
	}
	doc := &Document{ScreensaverSettings: DefaultScreensaverSettings()}
	if err := json.Unmarshal(trimmed, doc); err != nil {
		return nil, fmt.Errorf("decode store document: %w", err)
	}
	return Migrate(doc), nil
}

// Encode serializes the document, fleet included when present.
func Encode(doc *Document) ([]byte, error) {
	return json.Marshal(doc)
}

// ForRemote returns a copy suitable for the shared document row: fleet is dropped.
func ForRemote(doc *Document) *Document {
	out := Clone(doc)
	out.Fleet = nil
	return out
}

// Clone deep-copies a document so callers can hand out snapshots.
func Clone(doc *Document) *Document {
	if doc == nil {
		return nil
	}
	data, err := json.Marshal(doc)
	if err != nil {
		panic(fmt.Sprintf("model: clone marshal: %v", err))
	}
	out := &Document{}
	if err := json.Unmarshal(data, out); err != nil {
		panic(fmt.Sprintf("model: clone unmarshal: %v", err))
	}
	return out
}

// Migrate fills every optional field with its default, clamps settings into
// range and stamps the current schema version. It mutates and returns doc.
func Migrate(doc *Document) *Document {
	if doc == nil {
		doc = &Document{ScreensaverSettings: DefaultScreensaverSettings()}
	}
	doc.SchemaVersion = SchemaVersion

	doc.Brands = nonNil(doc.Brands)
	for i := range doc.Brands {
		migrateBrand(&doc.Brands[i])
	}
	doc.Catalogues = nonNil(doc.Catalogues)
	for i := range doc.Catalogues {
		doc.Catalogues[i].Pages = nonNil(doc.Catalogues[i].Pages)
	}
	doc.Pricelists = nonNil(doc.Pricelists)
	doc.PricelistBrands = nonNil(doc.PricelistBrands)

	doc.Ads.HomeBottomLeft = migrateAds(doc.Ads.HomeBottomLeft)
	doc.Ads.HomeBottomRight = migrateAds(doc.Ads.HomeBottomRight)
	doc.Ads.Screensaver = migrateAds(doc.Ads.Screensaver)

	migrateSettings(&doc.ScreensaverSettings)

	a := &doc.Archive
	a.Catalogues = nonNil(a.Catalogues)
	a.Brands = nonNil(a.Brands)
	a.Products = nonNil(a.Products)
	a.Pricelists = nonNil(a.Pricelists)
	if a.DeletedAt == nil {
		a.DeletedAt = map[string]string{}
	}

	doc.Admins = nonNil(doc.Admins)
	return doc
}

func migrateBrand(b *Brand) {
	b.Categories = nonNil(b.Categories)
	for i := range b.Categories {
		b.Categories[i].Products = nonNil(b.Categories[i].Products)
	}
}

func migrateAds(ads []Ad) []Ad {
	ads = nonNil(ads)
	for i := range ads {
		if ads[i].Type != AdVideo {
			ads[i].Type = AdImage
		}
		if len(ads[i].ActiveDays) == 0 {
			ads[i].ActiveDays = nil
			continue
		}
		days := ads[i].ActiveDays[:0:0]
		for _, d := range ads[i].ActiveDays {
			if d >= 0 && d <= 6 && !slices.Contains(days, d) {
				days = append(days, d)
			}
		}
		// A list with no real weekday stays as given: it matches no day, so
		// the ad is never shown. Emptying it would mean every day.
		if len(days) > 0 {
			ads[i].ActiveDays = days
		}
	}
	return ads
}

func migrateSettings(s *ScreensaverSettings) {
	if s.IdleTimeout <= 0 {
		s.IdleTimeout = DefaultIdleTimeout
	}
	if s.ImageDuration <= 0 {
		s.ImageDuration = DefaultImageDuration
	}
	s.AdWeight = clampWeight(s.AdWeight)
	s.PamphletWeight = clampWeight(s.PamphletWeight)
	s.ProductWeight = clampWeight(s.ProductWeight)

	switch s.Effect {
	case EffectZoom, EffectDrift, EffectPan, EffectRandom:
	default:
		s.Effect = EffectRandom
	}
	if s.WakeBehavior != WakeResume {
		s.WakeBehavior = WakeReset
	}
	if _, ok := ParseClock(s.ActiveHoursStart); !ok {
		s.ActiveHoursStart = DefaultActiveHoursStart
	}
	if _, ok := ParseClock(s.ActiveHoursEnd); !ok {
		s.ActiveHoursEnd = DefaultActiveHoursEnd
	}
}

func clampWeight(w int) int {
	return max(0, min(w, MaxWeight))
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
