package playback

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/showroom/internal/model"
)

var monday = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func sampleDoc() *model.Document {
	doc := model.Default()
	doc.Ads.Screensaver = []model.Ad{{ID: "ad1", Type: model.AdImage, URL: "https://cdn/ad1.jpg"}}
	doc.Catalogues = []model.Catalogue{{ID: "cat1", Title: "Spring", Pages: []string{"https://cdn/cat1-p1.jpg", "https://cdn/cat1-p2.jpg"}}}
	doc.Brands = []model.Brand{{
		ID:   "b1",
		Name: "Acme",
		Categories: []model.Category{{
			ID:       "c1",
			Name:     "Phones",
			Products: []model.Product{{ID: "p1", Name: "Phone", ImageURL: "https://cdn/p1.jpg"}},
		}},
	}}
	return doc
}

func countKinds(slides []Slide) map[SlideKind]int {
	out := map[SlideKind]int{}
	for _, s := range slides {
		out[s.Kind]++
	}
	return out
}

func TestEntriesWeighting(t *testing.T) {
	doc := sampleDoc()
	doc.ScreensaverSettings.AdWeight = 0
	doc.ScreensaverSettings.PamphletWeight = 2
	doc.ScreensaverSettings.ProductWeight = 1

	slides := Entries(doc, monday)
	require.Len(t, slides, 3)
	counts := countKinds(slides)
	require.Zero(t, counts[KindAd])
	require.Equal(t, 2, counts[KindPamphlet])
	require.Equal(t, 1, counts[KindProductImage])

	// Only the first page of a pamphlet is used.
	for _, s := range slides {
		if s.Kind == KindPamphlet {
			require.Equal(t, "https://cdn/cat1-p1.jpg", s.URL)
		}
	}
}

func TestEntriesIncludesVideosAndFiltersIneligibleAds(t *testing.T) {
	doc := sampleDoc()
	doc.ScreensaverSettings.AdWeight = 3
	doc.Brands[0].Categories[0].Products[0].VideoURL = "https://cdn/p1.mp4"
	doc.Ads.Screensaver = append(doc.Ads.Screensaver,
		model.Ad{ID: "ad2", Type: model.AdVideo, URL: "https://cdn/ad2.mp4", ActiveDays: []int{2}},
		model.Ad{ID: "ad3", Type: model.AdVideo, URL: "https://cdn/ad3.mp4", EndDate: "2026-03-01"},
	)
	doc.Catalogues = append(doc.Catalogues, model.Catalogue{ID: "later", Pages: []string{"x"}, StartDate: "2026-04-01"})

	counts := countKinds(Entries(doc, monday))
	require.Equal(t, 3, counts[KindAd])
	require.Equal(t, 1, counts[KindPamphlet])
	require.Equal(t, 1, counts[KindProductImage])
	require.Equal(t, 1, counts[KindProductVideo])
}

func TestShufflePreservesEntries(t *testing.T) {
	doc := sampleDoc()
	doc.ScreensaverSettings.AdWeight = 5
	doc.ScreensaverSettings.PamphletWeight = 4
	doc.ScreensaverSettings.ProductWeight = 3

	before := Entries(doc, monday)
	after := Build(doc, monday, rand.New(rand.NewPCG(1, 2)))
	require.ElementsMatch(t, before, after)
	require.Equal(t, countKinds(before), countKinds(after))
}

func TestBuildEmptyDocument(t *testing.T) {
	require.Empty(t, Build(model.Default(), monday, rand.New(rand.NewPCG(1, 2))))
	require.Empty(t, Entries(nil, monday))
}

func TestAsleep(t *testing.T) {
	at := func(h, m int) time.Time { return time.Date(2026, 3, 2, h, m, 0, 0, time.UTC) }
	wrap := model.ScreensaverSettings{EnableSleepMode: true, ActiveHoursStart: "22:00", ActiveHoursEnd: "06:00"}
	day := model.ScreensaverSettings{EnableSleepMode: true, ActiveHoursStart: "08:00", ActiveHoursEnd: "20:00"}

	tests := []struct {
		name     string
		settings model.ScreensaverSettings
		at       time.Time
		want     bool
	}{
		{"wrap late evening", wrap, at(23, 0), false},
		{"wrap early morning", wrap, at(3, 0), false},
		{"wrap midday", wrap, at(10, 0), true},
		{"wrap end is exclusive", wrap, at(6, 0), true},
		{"wrap start is inclusive", wrap, at(22, 0), false},
		{"day inside", day, at(12, 0), false},
		{"day before", day, at(7, 59), true},
		{"day end", day, at(20, 0), true},
		{"disabled", model.ScreensaverSettings{ActiveHoursStart: "08:00", ActiveHoursEnd: "20:00"}, at(3, 0), false},
		{"bad clock", model.ScreensaverSettings{EnableSleepMode: true, ActiveHoursStart: "8am", ActiveHoursEnd: "20:00"}, at(3, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Asleep(tt.settings, tt.at))
		})
	}
}
