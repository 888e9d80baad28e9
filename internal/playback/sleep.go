package playback

import (
	"time"

	"git.home.luguber.info/inful/showroom/internal/model"
)

// Asleep reports whether sleep mode applies at t: sleep mode is enabled and the
// time of day lies outside [ActiveHoursStart, ActiveHoursEnd). The window wraps
// past midnight when start is after end. Unparseable or equal bounds never sleep.
func Asleep(s model.ScreensaverSettings, t time.Time) bool {
	if !s.EnableSleepMode {
		return false
	}
	start, ok1 := model.ParseClock(s.ActiveHoursStart)
	end, ok2 := model.ParseClock(s.ActiveHoursEnd)
	if !ok1 || !ok2 || start == end {
		return false
	}
	m := t.Hour()*60 + t.Minute()
	var active bool
	if start < end {
		active = m >= start && m < end
	} else {
		active = m >= start || m < end
	}
	return !active
}
