package decision

import (
	"fmt"
	"time"

	"newstrader/internal/market"
)

const pdtLookbackDays = 7

type PDTConfig struct {
	// Enforce applies the gate regardless of equity.
	Enforce       bool
	MinEquity     float64
	MaxDaytrades  int
	AllowRiskExit bool
}

// PDTGate approximates the pattern-day-trader rule from locally recorded
// same-day round trips. Days are YYYY-MM-DD in the exchange zone.
type PDTGate struct {
	cfg   PDTConfig
	hours market.Hours
}

func NewPDTGate(cfg PDTConfig, hours market.Hours) PDTGate {
	return PDTGate{cfg: cfg, hours: hours}
}

// Applies reports whether the account is small enough for the rule to bite.
func (g PDTGate) Applies(equity float64) bool {
	if g.cfg.Enforce {
		return true
	}
	return equity > 0 && equity < g.cfg.MinEquity
}

// DaytradeCount is the number of distinct recorded days within the last 7 calendar days.
func (g PDTGate) DaytradeCount(days []string, now time.Time) int {
	cutoff := g.hours.Day(now.AddDate(0, 0, -pdtLookbackDays))
	seen := make(map[string]struct{}, len(days))
	for _, d := range days {
		if d >= cutoff {
			seen[d] = struct{}{}
		}
	}
	return len(seen)
}

// WouldBeDaytrade reports whether closing now completes a same-day round trip.
func (g PDTGate) WouldBeDaytrade(entryDay string, now time.Time) bool {
	return entryDay != "" && entryDay == g.hours.Day(now)
}

// AllowEntry returns a non-empty reason when a new position must not be opened.
func (g PDTGate) AllowEntry(equity float64, days []string, now time.Time) (bool, string) {
	if !g.Applies(equity) {
		return true, ""
	}
	if n := g.DaytradeCount(days, now); n >= g.cfg.MaxDaytrades {
		return false, fmt.Sprintf("PDT: blocking new entry; %d/%d day trades in 5d and equity $%.2f < $%.2f",
			n, g.cfg.MaxDaytrades, equity, g.cfg.MinEquity)
	}
	return true, ""
}

// AllowClose blocks a close only when it would be a new day trade over the limit
// and risk exits are not exempt.
func (g PDTGate) AllowClose(equity float64, days []string, entryDay string, now time.Time) (bool, string) {
	if !g.Applies(equity) || g.cfg.AllowRiskExit || !g.WouldBeDaytrade(entryDay, now) {
		return true, ""
	}
	if n := g.DaytradeCount(days, now); n >= g.cfg.MaxDaytrades {
		return false, fmt.Sprintf("PDT: blocking close to avoid new day trade; %d/%d in 5d and equity $%.2f < $%.2f",
			n, g.cfg.MaxDaytrades, equity, g.cfg.MinEquity)
	}
	return true, ""
}
