package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"newstrader/internal/audit"
	"newstrader/internal/config"
	"newstrader/internal/engine"
	"newstrader/internal/logger"
	"newstrader/internal/news"
	"newstrader/internal/state"
	livehttp "newstrader/internal/transport/http/live"
	"newstrader/internal/universe"
)

// App owns the assembled engine: scan loop, holdings watcher, macro refresher
// and admin API.
type App struct {
	cfg       *config.Config
	store     *state.Store
	scanner   *engine.Scanner
	watcher   *engine.Watcher
	macro     *news.MacroFeed
	watchlist *universe.Watchlist
	history   *audit.SQLiteSink
	http      *livehttp.Server
	Summary   *StartupSummary
}

func NewApp(ctx context.Context, cfg *config.Config, opts ...AppBuilderOption) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(ctx, cfg, opts)
}

// Run scans once, or loops until ctx ends when loop mode is on.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.scanner == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.Close()
	if a.Summary != nil {
		a.Summary.Print()
	}
	a.macro.Refresh(ctx, true)
	if !a.cfg.Loop.Enabled {
		return a.scanner.RunOnce(ctx)
	}
	if a.watchlist != nil {
		a.watchlist.Watch()
	}

	group, ctx := errgroup.WithContext(ctx)
	if a.http != nil {
		group.Go(func() error {
			if err := a.http.Start(ctx); err != nil {
				return fmt.Errorf("admin http server error: %w", err)
			}
			return nil
		})
	}
	if a.macro != nil {
		group.Go(func() error { return a.macro.Run(ctx) })
	}
	if a.watcher != nil {
		group.Go(func() error { return a.watcher.Run(ctx) })
	}
	group.Go(func() error { return a.scanner.Run(ctx) })
	return group.Wait()
}

// ScanOnce runs a single pass regardless of loop mode.
func (a *App) ScanOnce(ctx context.Context) error {
	defer a.Close()
	a.macro.Refresh(ctx, true)
	return a.scanner.RunOnce(ctx)
}

// Close saves state and releases the audit database.
func (a *App) Close() {
	if a == nil {
		return
	}
	if err := a.store.Save(); err != nil {
		logger.Warnf("final state save failed: %v", err)
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			logger.Debugf("close audit db: %v", err)
		}
		a.history = nil
	}
}

func (a *App) Store() *state.Store {
	if a == nil {
		return nil
	}
	return a.store
}
