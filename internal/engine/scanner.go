package engine

import (
	"context"
	"sort"
	"time"

	"newstrader/internal/logger"
	"newstrader/internal/metrics"
	"newstrader/internal/pkg/trace"
	"newstrader/internal/state"
	"newstrader/internal/types"
)

type ScanConfig struct {
	SymbolsPerBatch int
	BatchSleep      time.Duration
	Poll            time.Duration
	// SkipHeld leaves held symbols to the holdings watcher in loop mode.
	SkipHeld bool
}

type PrefetchConfig struct {
	UseSnapshots     bool
	MarketOnlyPrice  bool
	SnapshotOffhours bool
}

// Prefetcher warms the per-symbol price cache with one batch snapshot call.
type Prefetcher struct {
	cfg   PrefetchConfig
	data  DataSource
	clock *MarketClock
	store *state.Store
	now   func() time.Time
}

func NewPrefetcher(cfg PrefetchConfig, data DataSource, clock *MarketClock, store *state.Store) *Prefetcher {
	return &Prefetcher{cfg: cfg, data: data, clock: clock, store: store, now: time.Now}
}

func (p *Prefetcher) Prefetch(ctx context.Context, symbols []string) {
	if p == nil || !p.cfg.UseSnapshots || len(symbols) == 0 {
		return
	}
	if p.cfg.MarketOnlyPrice && !p.cfg.SnapshotOffhours && !p.clock.IsOpen(ctx) {
		return
	}
	prices, err := p.data.Snapshots(ctx, symbols)
	if err != nil {
		logger.Debugf("batch snapshots failed: %v", err)
		return
	}
	ts := types.UnixSeconds(p.now())
	for sym, px := range prices {
		if px > 0 {
			p.store.SetPrice(sym, px, ts)
		}
	}
}

// Scanner walks the universe in batches.
type Scanner struct {
	cfg      ScanConfig
	proc     *Processor
	broker   Broker
	prefetch *Prefetcher
	store    *state.Store
	symbols  func() []string

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewScanner takes the universe as a function so hot-reloaded watchlists apply
// from the next pass. broker is nil in dry-run mode.
func NewScanner(cfg ScanConfig, proc *Processor, broker Broker, prefetch *Prefetcher, store *state.Store, symbols func() []string) *Scanner {
	return &Scanner{
		cfg:      cfg,
		proc:     proc,
		broker:   broker,
		prefetch: prefetch,
		store:    store,
		symbols:  symbols,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// RunOnce processes every batch once and saves state.
func (s *Scanner) RunOnce(ctx context.Context) error {
	return s.pass(ctx, false)
}

// Run repeats passes until ctx ends, sleeping at least one second between them.
func (s *Scanner) Run(ctx context.Context) error {
	for {
		if err := s.pass(ctx, s.cfg.SkipHeld); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		wait := s.cfg.Poll
		if wait < time.Second {
			wait = time.Second
		}
		if err := s.sleep(ctx, wait); err != nil {
			return nil
		}
	}
}

func (s *Scanner) pass(ctx context.Context, skipHeld bool) error {
	universe := s.symbols()
	size := s.cfg.SymbolsPerBatch
	if size < 1 {
		size = 1
	}
	traceID := trace.New(s.now())
	logger.Infof("scan pass %s: %d symbols", traceID, len(universe))
	for start := 0; start < len(universe); start += size {
		end := min(start+size, len(universe))
		batch := universe[start:end]
		s.prefetch.Prefetch(ctx, batch)
		positions := fetchPositions(ctx, s.broker)
		if skipHeld && len(positions) > 0 {
			batch = withoutHeld(batch, positions)
		}
		for _, sym := range batch {
			if err := ctx.Err(); err != nil {
				s.save()
				return err
			}
			if _, err := s.proc.Process(ctx, sym, traceID, positions); err != nil {
				if ctx.Err() != nil {
					s.save()
					return ctx.Err()
				}
				logger.Warnf("%s: %v", sym, err)
			}
		}
		if end < len(universe) {
			if err := s.sleep(ctx, s.cfg.BatchSleep); err != nil {
				s.save()
				return err
			}
		}
	}
	s.save()
	metrics.ObserveScanCycle()
	return nil
}

func (s *Scanner) save() {
	if err := s.store.Save(); err != nil {
		logger.Warnf("state save failed: %v", err)
	}
}

func fetchPositions(ctx context.Context, broker Broker) types.PositionMap {
	if broker == nil {
		return types.PositionMap{}
	}
	positions, err := broker.Positions(ctx)
	if err != nil {
		logger.Warnf("positions unavailable: %v", err)
		return types.PositionMap{}
	}
	return positions
}

func withoutHeld(batch []string, positions types.PositionMap) []string {
	out := make([]string, 0, len(batch))
	for _, sym := range batch {
		if _, held := positions[sym]; !held {
			out = append(out, sym)
		}
	}
	return out
}

func heldSymbols(positions types.PositionMap) []string {
	out := make([]string, 0, len(positions))
	for sym := range positions {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
