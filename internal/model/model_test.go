package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDecode_EmptyYieldsDefault(t *testing.T) {
	for _, raw := range []string{"", "  ", "null"} {
		doc, err := Decode([]byte(raw))
		require.NoError(t, err)
		require.Equal(t, Default(), doc)
	}
}

func TestDecode_KeepsDefaultsForMissingSettings(t *testing.T) {
	doc, err := Decode([]byte(`{"screensaverSettings":{"imageDuration":3,"adWeight":0,"productWeight":9,"effect":"spin"}}`))
	require.NoError(t, err)

	s := doc.ScreensaverSettings
	require.Equal(t, 3, s.ImageDuration)
	require.Equal(t, DefaultIdleTimeout, s.IdleTimeout)
	require.Equal(t, 0, s.AdWeight, "explicit zero excludes ads")
	require.Equal(t, 1, s.PamphletWeight)
	require.Equal(t, MaxWeight, s.ProductWeight)
	require.Equal(t, EffectRandom, s.Effect)
	require.Equal(t, WakeReset, s.WakeBehavior)
	require.Equal(t, SchemaVersion, doc.SchemaVersion)
	require.NotNil(t, doc.Brands)
	require.NotNil(t, doc.Archive.DeletedAt)
}

func TestDecode_Invalid(t *testing.T) {
	_, err := Decode([]byte(`{"brands":`))
	require.Error(t, err)
}

func TestMigrate_NormalizesAds(t *testing.T) {
	doc := Migrate(&Document{Ads: Ads{Screensaver: []Ad{
		{ID: "a", URL: "a.jpg", ActiveDays: []int{1, 9, 1, -1, 3}},
		{ID: "b", URL: "b.mp4", Type: AdVideo, ActiveDays: []int{}},
	}}})

	require.Equal(t, []int{1, 3}, doc.Ads.Screensaver[0].ActiveDays)
	require.Equal(t, AdImage, doc.Ads.Screensaver[0].Type)
	require.Nil(t, doc.Ads.Screensaver[1].ActiveDays)
	require.NotNil(t, doc.Ads.HomeBottomLeft)
}

func TestMigrate_AdWithOnlyInvalidDaysIsNeverEligible(t *testing.T) {
	doc := Migrate(&Document{Ads: Ads{Screensaver: []Ad{
		{ID: "a", URL: "a.jpg", ActiveDays: []int{7}},
		{ID: "b", URL: "b.jpg", ActiveDays: []int{-1, 12}},
	}}})
	require.Equal(t, []int{7}, doc.Ads.Screensaver[0].ActiveDays)
	require.Equal(t, []int{-1, 12}, doc.Ads.Screensaver[1].ActiveDays)

	// 2026-03-01 is a Sunday; check a full week.
	for day := 1; day <= 7; day++ {
		now := time.Date(2026, 3, day, 12, 0, 0, 0, time.UTC)
		require.Empty(t, doc.Ads.EligibleAds(ZoneScreensaver, now), "weekday %s", now.Weekday())
	}

	// The list survives an encode and decode.
	raw, err := Encode(doc)
	require.NoError(t, err)
	again, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, []int{7}, again.Ads.Screensaver[0].ActiveDays)
}

func TestForRemote_DropsFleet(t *testing.T) {
	doc := Default()
	doc.Fleet = []FleetDevice{{ID: "dev-1", Name: "Lobby"}}

	out := ForRemote(doc)
	require.Nil(t, out.Fleet)
	require.Len(t, doc.Fleet, 1, "original untouched")

	raw, err := Encode(out)
	require.NoError(t, err)
	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &fields))
	require.NotContains(t, fields, "fleet")
}

func TestClone_IsDeep(t *testing.T) {
	doc := Default()
	doc.Brands = []Brand{{ID: "b1", Name: "Acme", Categories: []Category{{ID: "c1", Products: []Product{{ID: "p1", Name: "Drill"}}}}}}

	cp := Clone(doc)
	cp.Brands[0].Categories[0].Products[0].Name = "Saw"
	require.Equal(t, "Drill", doc.Brands[0].Categories[0].Products[0].Name)
	require.Nil(t, Clone(nil))
}

func TestAdEligibility(t *testing.T) {
	// 2026-03-02 is a Monday.
	ad := Ad{ID: "a", URL: "a.jpg", StartDate: "2026-03-02", EndDate: "2026-03-13", ActiveDays: []int{1, 3, 5}}
	at := func(day, hour int) time.Time { return time.Date(2026, 3, day, hour, 0, 0, 0, time.UTC) }

	cases := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"day before start", at(1, 23), false},
		{"start date inclusive (Mon)", at(2, 0), true},
		{"Tuesday not active", at(3, 12), false},
		{"Wednesday", at(4, 12), true},
		{"end date inclusive (Fri)", at(13, 23), true},
		{"after end", at(14, 0), false},
		{"Monday after end", at(16, 12), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, ad.EligibleAt(tc.now))
		})
	}

	openEnded := Ad{ID: "b", URL: "b.jpg"}
	require.True(t, openEnded.EligibleAt(at(20, 9)))
}

func TestEligibleAds_SkipsEmptyURL(t *testing.T) {
	ads := Ads{Screensaver: []Ad{{ID: "a", URL: "a.jpg"}, {ID: "b"}, {ID: "c", URL: "c.jpg", EndDate: "2020-01-01"}}}
	got := ads.EligibleAds(ZoneScreensaver, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.Len(t, got, 1)
	require.Equal(t, "a", got[0].ID)
	require.Empty(t, ads.EligibleAds("unknown", time.Now()))
}

func TestCatalogueExpired(t *testing.T) {
	now := time.Date(2026, 5, 10, 15, 0, 0, 0, time.UTC)

	require.False(t, Catalogue{}.Expired(now))
	require.False(t, Catalogue{EndDate: "2026-05-10"}.Expired(now), "end date covers the whole day")
	require.True(t, Catalogue{EndDate: "2026-05-09"}.Expired(now))
	require.True(t, Catalogue{EndDate: "2026-05-10T14:59:00Z"}.Expired(now))
	require.False(t, Catalogue{EndDate: "garbage"}.Expired(now))
	require.False(t, Catalogue{StartDate: "2026-05-11"}.Active(now))
}

func TestFindProduct(t *testing.T) {
	doc := Default()
	doc.Brands = []Brand{{ID: "b1", Categories: []Category{{ID: "c1", Products: []Product{{ID: "p1"}, {ID: "p2"}}}}}}

	ref, ok := doc.FindProduct("p2")
	require.True(t, ok)
	require.Equal(t, "b1", ref.Brand.ID)
	require.Equal(t, "c1", ref.Category.ID)
	require.Equal(t, "p2", ref.Product.ID)

	_, ok = doc.FindProduct("missing")
	require.False(t, ok)
	require.Len(t, doc.Products(), 2)
}

func TestProductMedia(t *testing.T) {
	p := Product{ImageURL: "a.jpg", GalleryURLs: []string{"b.jpg", "a.jpg", ""}, VideoURLs: []string{"v.mp4"}}
	require.Equal(t, []string{"a.jpg", "b.jpg"}, p.Images())
	require.Equal(t, []string{"v.mp4"}, p.Videos())
}

func TestVerifyAdmin(t *testing.T) {
	doc := Default()
	a, ok := doc.VerifyAdmin(" admin ", "1234")
	require.True(t, ok)
	require.True(t, a.SuperAdmin)

	_, ok = doc.VerifyAdmin("Admin", "9999")
	require.False(t, ok)
}

func TestRestartPending(t *testing.T) {
	require.False(t, FleetDevice{}.RestartPending())
	require.True(t, FleetDevice{RestartRequested: true}.RestartPending())
	require.True(t, FleetDevice{RestartRequestID: "r1"}.RestartPending())
	require.False(t, FleetDevice{RestartRequestID: "r1", RestartAckID: "r1"}.RestartPending())
}

func TestParseClock(t *testing.T) {
	m, ok := ParseClock("22:30")
	require.True(t, ok)
	require.Equal(t, 22*60+30, m)
	_, ok = ParseClock("25:00")
	require.False(t, ok)
}
