// Package ratelimit bounds the outbound call rate to the news/price provider.
package ratelimit

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

const (
	window       = 60 * time.Second
	windowSlack  = 50 * time.Millisecond
	backoffFloor = 0.5
)

// Config mirrors the ratelimit section of the runtime configuration.
type Config struct {
	MaxRPM            int
	MinInterval       time.Duration
	BackoffEnabled    bool
	BackoffStart      float64
	BackoffMax        float64
	BackoffMultiplier float64
	BackoffDecay      float64
}

// Gate serializes callers behind a min interval, a 60s sliding window and an adaptive backoff.
// One mutex guards all counters; waits happen while holding it.
type Gate struct {
	mu       sync.Mutex
	cfg      Config
	lastCall time.Time
	calls    []time.Time
	backoff  float64

	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
	jitter    func() time.Duration
	onBackoff func(seconds float64)
}

func NewGate(cfg Config) *Gate {
	return &Gate{
		cfg:    cfg,
		now:    time.Now,
		sleep:  sleepCtx,
		jitter: defaultJitter,
	}
}

// OnBackoffChange registers a hook fired (under the gate lock) whenever backoff changes.
func (g *Gate) OnBackoffChange(fn func(seconds float64)) {
	g.mu.Lock()
	g.onBackoff = fn
	g.mu.Unlock()
}

// Acquire blocks until one external call may be issued and reserves its slot.
func (g *Gate) Acquire(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if g.cfg.MinInterval > 0 && !g.lastCall.IsZero() {
		if dt := now.Sub(g.lastCall); dt < g.cfg.MinInterval {
			if err := g.sleep(ctx, g.cfg.MinInterval-dt+g.jitter()); err != nil {
				return err
			}
			now = g.now()
		}
	}

	if g.cfg.MaxRPM > 0 {
		g.prune(now)
		if len(g.calls) >= g.cfg.MaxRPM {
			earliest := g.calls[0]
			if wait := window - now.Sub(earliest) + windowSlack; wait > 0 {
				if err := g.sleep(ctx, wait); err != nil {
					return err
				}
			}
			g.prune(g.now())
		}
	}

	if g.cfg.BackoffEnabled && g.backoff > 0 {
		wait := math.Min(g.backoff, g.cfg.BackoffMax)
		if err := g.sleep(ctx, seconds(wait)); err != nil {
			return err
		}
	}

	// Reserved under the lock: calls still in flight count toward both limits.
	now = g.now()
	g.lastCall = now
	g.calls = append(g.calls, now)
	return nil
}

func (g *Gate) RecordSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.cfg.BackoffEnabled || g.backoff <= 0 {
		return
	}
	g.backoff *= clamp(g.cfg.BackoffDecay, 0, 1)
	if g.backoff < backoffFloor {
		g.backoff = 0
	}
	g.notify()
}

func (g *Gate) RecordFailure() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.cfg.BackoffEnabled {
		return
	}
	next := math.Max(g.cfg.BackoffStart, g.backoff*math.Max(1, g.cfg.BackoffMultiplier))
	if g.cfg.BackoffMax > 0 {
		next = math.Min(next, g.cfg.BackoffMax)
	}
	g.backoff = next
	g.notify()
}

// Backoff returns the current backoff in seconds.
func (g *Gate) Backoff() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.backoff
}

// Do runs fn behind the gate and feeds the outcome into the backoff.
func (g *Gate) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := g.Acquire(ctx); err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		g.RecordFailure()
		return err
	}
	g.RecordSuccess()
	return nil
}

// prune drops timestamps that left the 60s window. Caller holds mu.
func (g *Gate) prune(now time.Time) {
	keep := g.calls[:0]
	for _, ts := range g.calls {
		if now.Sub(ts) < window {
			keep = append(keep, ts)
		}
	}
	g.calls = keep
}

func (g *Gate) notify() {
	if g.onBackoff != nil {
		g.onBackoff(g.backoff)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func defaultJitter() time.Duration {
	return 50*time.Millisecond + time.Duration(rand.Int63n(int64(200*time.Millisecond)))
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
