package market

import (
	"time"

	"newstrader/internal/logger"
)

const DefaultTimezone = "America/New_York"

// Hours answers calendar questions in the exchange time zone.
type Hours struct {
	loc *time.Location
}

// NewHours falls back to the local zone when tz cannot be loaded.
func NewHours(tz string) Hours {
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		logger.Warnf("market timezone %q unavailable, using local time: %v", tz, err)
		loc = time.Local
	}
	return Hours{loc: loc}
}

func (h Hours) Location() *time.Location {
	if h.loc == nil {
		return time.Local
	}
	return h.loc
}

// Day is the YYYY-MM-DD calendar day of t in the exchange zone.
func (h Hours) Day(t time.Time) string {
	return t.In(h.Location()).Format("2006-01-02")
}

// RegularSession reports Mon-Fri between 09:30 and 16:00 (the whole 16:00 minute included).
// Holidays are not modelled; callers prefer the broker clock.
func (h Hours) RegularSession(t time.Time) bool {
	lt := t.In(h.Location())
	if wd := lt.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	hm := lt.Hour()*60 + lt.Minute()
	return hm >= 9*60+30 && hm <= 16*60
}
