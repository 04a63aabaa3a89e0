// Package engine runs the per-symbol news-to-order cycle, the batch scan loop
// and the holdings watcher.
package engine

import (
	"context"
	"time"

	"newstrader/internal/types"
)

// DataSource supplies news and prices. Snapshots may return an empty map.
type DataSource interface {
	News(ctx context.Context, symbol string, from, to time.Time, limit int) ([]types.NewsItem, error)
	Quote(ctx context.Context, symbol string) (float64, bool, error)
	MacroEvents(ctx context.Context, themes []string, max, timespanMin int) ([]types.NewsItem, error)
	Snapshots(ctx context.Context, symbols []string) (map[string]float64, error)
}

// Broker is the order and account port. Position returns nil for a flat symbol.
// ClosePosition with qty 0 closes the whole position.
type Broker interface {
	PlaceOrder(ctx context.Context, req types.OrderRequest) (types.OrderResult, error)
	ClosePosition(ctx context.Context, symbol string, qty int) (types.OrderResult, error)
	Positions(ctx context.Context) (types.PositionMap, error)
	Position(ctx context.Context, symbol string) (*types.Position, error)
	Account(ctx context.Context) (types.Account, error)
	Clock(ctx context.Context) (types.Clock, error)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

