package model

import (
	"slices"
	"strings"
	"time"
)

const dateOnly = "2006-01-02"

var timestampLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02T15:04"}

// parseDate accepts YYYY-MM-DD (interpreted in loc) or a timestamp.
func parseDate(s string, loc *time.Location) (t time.Time, isDateOnly, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false, false
	}
	if t, err := time.ParseInLocation(dateOnly, s, loc); err == nil {
		return t, true, true
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, false, true
		}
	}
	return time.Time{}, false, false
}

// windowStart is the first instant inside a window starting at s.
func windowStart(s string, loc *time.Location) (time.Time, bool) {
	t, _, ok := parseDate(s, loc)
	return t, ok
}

// windowEnd is the first instant after a window ending at s. A date-only end
// covers that whole day.
func windowEnd(s string, loc *time.Location) (time.Time, bool) {
	t, isDateOnly, ok := parseDate(s, loc)
	if !ok {
		return time.Time{}, false
	}
	if isDateOnly {
		return t.AddDate(0, 0, 1), true
	}
	return t.Add(time.Nanosecond), true
}

// InWindow reports whether now falls inside [start, end]. Missing or
// unparseable bounds leave that side open. Date-only bounds use now's location.
func InWindow(now time.Time, start, end string) bool {
	loc := now.Location()
	if from, ok := windowStart(start, loc); ok && now.Before(from) {
		return false
	}
	if until, ok := windowEnd(end, loc); ok && !now.Before(until) {
		return false
	}
	return true
}

// Expired reports whether the catalogue's end date is strictly in the past.
func (c Catalogue) Expired(now time.Time) bool {
	until, ok := windowEnd(c.EndDate, now.Location())
	return ok && !now.Before(until)
}

// Active reports whether the catalogue is inside its validity window.
func (c Catalogue) Active(now time.Time) bool {
	return InWindow(now, c.StartDate, c.EndDate)
}

// EligibleAt reports whether the ad may be shown at now: inside its date window
// and on one of its active weekdays (all days when none are listed). A list
// holding only out-of-range days matches nothing.
func (a Ad) EligibleAt(now time.Time) bool {
	if !InWindow(now, a.StartDate, a.EndDate) {
		return false
	}
	return len(a.ActiveDays) == 0 || slices.Contains(a.ActiveDays, int(now.Weekday()))
}

// EligibleAds filters a zone down to the ads eligible at now, keeping order.
func (a Ads) EligibleAds(zone AdZone, now time.Time) []Ad {
	var out []Ad
	for _, ad := range a.Zone(zone) {
		if ad.URL != "" && ad.EligibleAt(now) {
			out = append(out, ad)
		}
	}
	return out
}

// ParseClock parses "HH:MM" into minutes after midnight.
func ParseClock(s string) (int, bool) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}

// DeletedTime returns when an archived entity entered the archive.
func (a Archive) DeletedTime(id string) (time.Time, bool) {
	raw, ok := a.DeletedAt[id]
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
