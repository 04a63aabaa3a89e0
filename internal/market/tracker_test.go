package market

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newstrader/internal/types"
)

var t0 = time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC)

func seriesAt(prices ...float64) []PricePoint {
	out := make([]PricePoint, len(prices))
	for i, p := range prices {
		out[i] = PricePoint{TS: types.UnixSeconds(t0.Add(time.Duration(i) * time.Minute)), Price: p}
	}
	return out
}

func TestUpdateNeedsTwoPoints(t *testing.T) {
	tr := NewTracker(30, 10)
	series, ctx := tr.Update(nil, 100, t0)
	assert.Len(t, series, 1)
	assert.Nil(t, ctx)
}

func TestUpdateContext(t *testing.T) {
	tr := NewTracker(30, 10)
	series := seriesAt(100, 102)
	series, ctx := tr.Update(series, 101, t0.Add(2*time.Minute))
	require.NotNil(t, ctx)
	assert.Len(t, series, 3)
	assert.InDelta(t, 1.0, ctx.ChangePct, 1e-9)
	assert.Equal(t, TrendUp, ctx.Trend)
	assert.Equal(t, 100.0, ctx.Min)
	assert.Equal(t, 102.0, ctx.Max)
	assert.Equal(t, 101.0, ctx.Last)
	// returns +2% and -0.98%: population std dev
	r1, r2 := 0.02, (101.0-102.0)/102.0
	mean := (r1 + r2) / 2
	want := ((r1-mean)*(r1-mean) + (r2-mean)*(r2-mean)) / 2
	assert.InDelta(t, 100*math.Sqrt(want), ctx.VolPct, 1e-9)
}

func TestUpdateDropsOldAndDownsamples(t *testing.T) {
	tr := NewTracker(30, 10)
	var series []PricePoint
	series = append(series, PricePoint{TS: types.UnixSeconds(t0.Add(-time.Hour)), Price: 1})
	for i := 0; i < 24; i++ {
		series = append(series, PricePoint{TS: types.UnixSeconds(t0.Add(time.Duration(i) * time.Second)), Price: float64(100 + i)})
	}
	out, ctx := tr.Update(series, 200, t0.Add(25*time.Second))
	require.NotNil(t, ctx)
	// 25 fresh points -> step 2 -> 13 sampled -> first 10
	require.Len(t, out, 10)
	assert.Equal(t, 100.0, out[0].Price)
	assert.Equal(t, 102.0, out[1].Price)
	assert.Equal(t, 118.0, out[9].Price)
}

func TestWindowStats(t *testing.T) {
	series := seriesAt(100, 99, 98, 99, 97, 96, 95)
	now := t0.Add(6 * time.Minute)

	ws := Window(series, 15, now)
	require.NotNil(t, ws)
	assert.Equal(t, 7, ws.Points)
	assert.Equal(t, 3, ws.Downs)
	assert.InDelta(t, -5.0, ws.ChangePct, 1e-9)

	short := Window(series, 0, now)
	require.NotNil(t, short)
	assert.Equal(t, 2, short.Points)

	assert.Nil(t, Window(series[:1], 15, now))
}

func TestFlatTrend(t *testing.T) {
	tr := NewTracker(30, 10)
	_, ctx := tr.Update(seriesAt(50, 51), 50, t0.Add(2*time.Minute))
	require.NotNil(t, ctx)
	assert.Equal(t, TrendFlat, ctx.Trend)
}
