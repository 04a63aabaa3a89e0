package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUnixSecondsRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 10, 15, 0, 0, 250_000_000, time.UTC)
	ts := UnixSeconds(at)
	assert.InDelta(t, float64(at.Unix())+0.25, ts, 1e-6)
	assert.WithinDuration(t, at, FromUnix(ts), time.Microsecond)
	assert.True(t, FromUnix(0).Equal(time.Unix(0, 0)))
}
