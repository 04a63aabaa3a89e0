package types

import "time"

// UnixSeconds is the fractional epoch form every persisted timestamp uses.
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// FromUnix inverts UnixSeconds.
func FromUnix(ts float64) time.Time {
	sec := int64(ts)
	return time.Unix(sec, int64((ts-float64(sec))*float64(time.Second)))
}
