// Package market keeps the short rolling price history per symbol and answers
// market-hours questions.
package market

import (
	"math"
	"time"

	"newstrader/internal/types"
)

const (
	defaultWindowMin = 30.0
	defaultPoints    = 10
)

type PricePoint struct {
	TS    float64 `json:"ts"`
	Price float64 `json:"price"`
}

func (p PricePoint) Time() time.Time {
	return types.FromUnix(p.TS)
}

type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
	TrendFlat Trend = "flat"
)

// PriceContext summarizes the tracked window for scoring and prompting.
type PriceContext struct {
	WindowMin float64
	ChangePct float64
	VolPct    float64
	Trend     Trend
	Series    []float64
	Min       float64
	Max       float64
	Last      float64
}

// Points is len(Series).
func (c *PriceContext) Points() int {
	if c == nil {
		return 0
	}
	return len(c.Series)
}

type WindowStats struct {
	ChangePct float64
	Downs     int
	Points    int
}

// Tracker bounds a series to the last WindowMin minutes and at most Points samples.
type Tracker struct {
	WindowMin float64
	Points    int
}

func NewTracker(windowMin float64, points int) Tracker {
	if windowMin <= 0 {
		windowMin = defaultWindowMin
	}
	if points <= 0 {
		points = defaultPoints
	}
	return Tracker{WindowMin: windowMin, Points: points}
}

// Update appends (now, price), drops points older than the window and
// downsamples to at most Points samples. The context is nil below 2 points.
func (t Tracker) Update(series []PricePoint, price float64, now time.Time) ([]PricePoint, *PriceContext) {
	ts := types.UnixSeconds(now)
	series = append(series, PricePoint{TS: ts, Price: price})

	cutoff := ts - t.WindowMin*60
	kept := make([]PricePoint, 0, len(series))
	for _, p := range series {
		if p.TS >= cutoff {
			kept = append(kept, p)
		}
	}
	if len(kept) > t.Points {
		step := len(kept) / t.Points
		if step < 1 {
			step = 1
		}
		sampled := make([]PricePoint, 0, t.Points)
		for i := 0; i < len(kept) && len(sampled) < t.Points; i += step {
			sampled = append(sampled, kept[i])
		}
		kept = sampled
	}
	return kept, t.context(kept)
}

func (t Tracker) context(series []PricePoint) *PriceContext {
	n := len(series)
	if n < 2 {
		return nil
	}
	first, last := series[0].Price, series[n-1].Price
	ctx := &PriceContext{
		WindowMin: t.WindowMin,
		ChangePct: pctChange(first, last),
		Last:      last,
		Min:       math.Inf(1),
		Max:       math.Inf(-1),
		Series:    make([]float64, n),
	}
	var rets []float64
	for i, p := range series {
		ctx.Series[i] = p.Price
		ctx.Min = math.Min(ctx.Min, p.Price)
		ctx.Max = math.Max(ctx.Max, p.Price)
		if i > 0 && series[i-1].Price != 0 {
			rets = append(rets, (p.Price-series[i-1].Price)/series[i-1].Price)
		}
	}
	ctx.VolPct = stddev(rets) * 100

	slope := (last - first) / float64(n-1)
	switch {
	case slope > 0:
		ctx.Trend = TrendUp
	case slope < 0:
		ctx.Trend = TrendDown
	default:
		ctx.Trend = TrendFlat
	}
	return ctx
}

// Window computes drawdown statistics over the last max(1, windowMin) minutes.
func Window(series []PricePoint, windowMin float64, now time.Time) *WindowStats {
	if len(series) < 2 {
		return nil
	}
	cutoff := types.UnixSeconds(now) - math.Max(1, windowMin)*60
	var seg []PricePoint
	for _, p := range series {
		if p.TS >= cutoff {
			seg = append(seg, p)
		}
	}
	if len(seg) < 2 {
		return nil
	}
	downs, run := 0, 0
	for i := 1; i < len(seg); i++ {
		if seg[i].Price < seg[i-1].Price {
			run++
		} else {
			run = 0
		}
		if run > downs {
			downs = run
		}
	}
	return &WindowStats{
		ChangePct: pctChange(seg[0].Price, seg[len(seg)-1].Price),
		Downs:     downs,
		Points:    len(seg),
	}
}

func pctChange(first, last float64) float64 {
	if first == 0 {
		return 0
	}
	return (last - first) / first * 100
}

// stddev is the population standard deviation.
func stddev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var v float64
	for _, x := range xs {
		v += (x - mean) * (x - mean)
	}
	return math.Sqrt(v / float64(len(xs)))
}

