package data

import (
	"context"
	"time"

	"newstrader/internal/types"
)

// Source joins the providers behind the engine data port. Macro and Prices may
// be nil; their methods then return nothing.
type Source struct {
	Company *Finnhub
	Macro   *GDELT
	Prices  *AlpacaSnapshots
}

func (s *Source) News(ctx context.Context, symbol string, from, to time.Time, limit int) ([]types.NewsItem, error) {
	return s.Company.News(ctx, symbol, from, to, limit)
}

func (s *Source) Quote(ctx context.Context, symbol string) (float64, bool, error) {
	return s.Company.Quote(ctx, symbol)
}

func (s *Source) MacroEvents(ctx context.Context, themes []string, max, timespanMin int) ([]types.NewsItem, error) {
	if s.Macro == nil {
		return nil, nil
	}
	return s.Macro.MacroEvents(ctx, themes, max, timespanMin)
}

func (s *Source) Snapshots(ctx context.Context, symbols []string) (map[string]float64, error) {
	if s.Prices == nil {
		return map[string]float64{}, nil
	}
	return s.Prices.Snapshots(ctx, symbols)
}
