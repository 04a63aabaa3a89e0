package engine

import (
	"context"
	"sync"
	"time"

	"newstrader/internal/logger"
	"newstrader/internal/pkg/trace"
	"newstrader/internal/state"
)

// Watcher re-runs the symbol pipeline for held positions on its own cadence so
// exits do not wait for the full universe scan.
type Watcher struct {
	poll     time.Duration
	proc     *Processor
	broker   Broker
	prefetch *Prefetcher
	store    *state.Store

	stopOnce sync.Once
	stop     chan struct{}

	now func() time.Time
}

func NewWatcher(poll time.Duration, proc *Processor, broker Broker, prefetch *Prefetcher, store *state.Store) *Watcher {
	return &Watcher{
		poll:     poll,
		proc:     proc,
		broker:   broker,
		prefetch: prefetch,
		store:    store,
		stop:     make(chan struct{}),
		now:      time.Now,
	}
}

// Stop ends Run after the current iteration.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}

func (w *Watcher) Run(ctx context.Context) error {
	wait := w.poll
	if wait < time.Second {
		wait = time.Second
	}
	logger.Infof("holdings watcher started (every %s)", wait)
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.stop:
			return nil
		case <-timer.C:
		}
		w.Tick(ctx)
		timer.Reset(wait)
	}
}

// Tick processes every held symbol once and saves state.
func (w *Watcher) Tick(ctx context.Context) {
	positions := fetchPositions(ctx, w.broker)
	symbols := heldSymbols(positions)
	if len(symbols) > 0 {
		w.prefetch.Prefetch(ctx, symbols)
		traceID := trace.New(w.now())
	loop:
		for _, sym := range symbols {
			if ctx.Err() != nil {
				break
			}
			select {
			case <-w.stop:
				break loop
			default:
			}
			if _, err := w.proc.Process(ctx, sym, traceID, positions); err != nil {
				logger.Warnf("watcher %s: %v", sym, err)
			}
		}
	}
	if err := w.store.Save(); err != nil {
		logger.Warnf("state save failed: %v", err)
	}
}
