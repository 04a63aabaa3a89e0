package news

import (
	"context"
	"math"
	"sync"
	"time"

	"newstrader/internal/logger"
	"newstrader/internal/types"
)

// MacroSource fetches theme-level events (GDELT).
type MacroSource interface {
	MacroEvents(ctx context.Context, themes []string, max, timespanMin int) ([]types.NewsItem, error)
}

type MacroConfig struct {
	Themes      []string
	MaxRecords  int
	TimespanMin int
	Poll        time.Duration
}

// MacroFeed holds the last macro snapshot and refreshes it at most once per poll.
type MacroFeed struct {
	src MacroSource
	cfg MacroConfig

	mu    sync.RWMutex
	items []types.NewsItem
	last  time.Time
	clock func() time.Time
}

func NewMacroFeed(src MacroSource, cfg MacroConfig) *MacroFeed {
	return &MacroFeed{src: src, cfg: cfg, clock: time.Now}
}

// Refresh pulls a new snapshot when forced or when the poll interval elapsed.
// A failed fetch keeps the previous snapshot but still restarts the interval.
func (f *MacroFeed) Refresh(ctx context.Context, force bool) {
	if f == nil || f.src == nil {
		return
	}
	now := f.clock()
	poll := time.Duration(math.Max(float64(time.Second), float64(f.cfg.Poll)))
	f.mu.RLock()
	due := force || f.last.IsZero() || now.Sub(f.last) >= poll
	f.mu.RUnlock()
	if !due {
		return
	}
	items, err := f.src.MacroEvents(ctx, f.cfg.Themes, f.cfg.MaxRecords, f.cfg.TimespanMin)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = now
	if err != nil {
		logger.Warnf("macro refresh failed: %v", err)
		return
	}
	f.items = items
	logger.Debugf("macro refresh: %d events", len(items))
}

// Items returns a copy of the current snapshot.
func (f *MacroFeed) Items() []types.NewsItem {
	if f == nil {
		return nil
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]types.NewsItem, len(f.items))
	copy(out, f.items)
	return out
}

// Run refreshes on every poll tick until ctx is done.
func (f *MacroFeed) Run(ctx context.Context) error {
	f.Refresh(ctx, true)
	poll := f.cfg.Poll
	if poll < time.Second {
		poll = time.Second
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			f.Refresh(ctx, false)
		}
	}
}
