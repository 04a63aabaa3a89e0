package universe

import (
	"context"
	"math/rand"
	"strings"

	"newstrader/internal/config"
)

// Resolver picks the universe: the watchlist file first, then the S&P 500
// when enabled, then the configured tickers.
type Resolver struct {
	cfg       config.UniverseConfig
	fetcher   *Fetcher
	watchlist *Watchlist
	shuffle   func([]string)

	static []string
}

func NewResolver(cfg config.UniverseConfig, fetcher *Fetcher, watchlist *Watchlist) *Resolver {
	return &Resolver{
		cfg:       cfg,
		fetcher:   fetcher,
		watchlist: watchlist,
		shuffle: func(s []string) {
			rand.Shuffle(len(s), func(i, j int) { s[i], s[j] = s[j], s[i] })
		},
	}
}

// Load fixes the non-watchlist universe for the process lifetime.
func (r *Resolver) Load(ctx context.Context) []string {
	switch {
	case r.cfg.SP500 && r.fetcher != nil:
		syms, _ := r.fetcher.SP500(ctx)
		if r.cfg.Randomize {
			r.shuffle(syms)
		}
		r.static = limit(syms, r.cfg.LimitTickers)
	default:
		r.static = limit(normalizeKeepOrder(r.cfg.Tickers), r.cfg.LimitTickers)
	}
	return r.Symbols()
}

// Symbols is read once per scan pass so watchlist edits apply on the next pass.
func (r *Resolver) Symbols() []string {
	if r.watchlist != nil {
		if syms := r.watchlist.Tickers(); len(syms) > 0 {
			return limit(syms, r.cfg.LimitTickers)
		}
	}
	return append([]string(nil), r.static...)
}

func limit(syms []string, n int) []string {
	if n > 0 && len(syms) > n {
		return syms[:n]
	}
	return syms
}

func normalizeKeepOrder(syms []string) []string {
	seen := make(map[string]struct{}, len(syms))
	out := make([]string, 0, len(syms))
	for _, s := range syms {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
