// Package sizing turns a decision into order size, exposure checks and bracket levels.
package sizing

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"newstrader/internal/types"
)

const (
	ModeAuto    = "auto"
	ModeShares  = "shares"
	ModeDollars = "dollars"

	minPrice = 0.01
	minRR    = 0.1
)

type BracketConfig struct {
	Enabled           bool
	Dynamic           bool
	TPPct             float64
	SLPct             float64
	TPMin             float64
	TPMax             float64
	SLMin             float64
	SLMax             float64
	RRMultiple        float64
	ScaleByConfidence bool
	DualHorizon       bool
	CoreAllocationPct float64
	CoreUseBracket    bool
	CoreTPPct         float64
	CoreSLPct         float64
}

type Config struct {
	SizeMode         string
	SharesPerTrade   int
	DollarsPerTrade  float64
	AllocationPct    float64
	MaxOpenPositions int
	MaxUSDPerSymbol  float64
	MaxPctPerSymbol  float64
	Bracket          BracketConfig
}

type Planner struct {
	cfg Config
}

func NewPlanner(cfg Config) *Planner {
	return &Planner{cfg: cfg}
}

func (p *Planner) Config() Config { return p.cfg }

// Cap is the per-symbol exposure ceiling: a share of equity when configured, else a fixed USD amount.
func (p *Planner) Cap(equity float64) float64 {
	if p.cfg.MaxPctPerSymbol > 0 && equity > 0 {
		return p.cfg.MaxPctPerSymbol * equity
	}
	return p.cfg.MaxUSDPerSymbol
}

// Budget is the dollar amount for one new position.
func (p *Planner) Budget(acct types.Account) float64 {
	if acct.BuyingPower <= 0 {
		return p.cfg.DollarsPerTrade
	}
	slots := math.Max(1, float64(p.cfg.MaxOpenPositions))
	base := p.cfg.AllocationPct * acct.BuyingPower / slots
	return math.Min(base, p.Cap(acct.Equity))
}

// Quantity is whole shares for budget at price, at least one.
func (p *Planner) Quantity(budget, price float64) int {
	if p.cfg.SizeMode == ModeShares && p.cfg.SharesPerTrade > 0 {
		return p.cfg.SharesPerTrade
	}
	if q := floorShares(budget, price); q > 1 {
		return q
	}
	return 1
}

// WantNotional reports whether the order is sent as a dollar amount.
func (p *Planner) WantNotional(action types.Action, side types.Side) bool {
	if side != types.SideBuy {
		return false
	}
	switch p.cfg.SizeMode {
	case ModeDollars:
		return !p.cfg.Bracket.Enabled
	case ModeShares:
		return false
	default:
		return action == types.ActionLong && !p.cfg.Bracket.Enabled
	}
}

// RiskError explains why an order was refused before reaching the broker.
type RiskError struct {
	Reason string
}

func (e *RiskError) Error() string { return "risk: " + e.Reason }

// RiskCheck is one prospective order against current holdings.
type RiskCheck struct {
	Symbol    string
	Positions types.PositionMap
	Equity    float64
	NewUSD    float64
}

// CheckRisk rejects entries beyond the open-position limit or the per-symbol cap.
func (p *Planner) CheckRisk(rc RiskCheck) error {
	held, ok := rc.Positions[rc.Symbol]
	if !ok && len(rc.Positions) >= p.cfg.MaxOpenPositions {
		return &RiskError{Reason: fmt.Sprintf("max open positions reached (%d/%d)", len(rc.Positions), p.cfg.MaxOpenPositions)}
	}
	current := math.Abs(held.MarketValue)
	limit := p.Cap(rc.Equity)
	if current+rc.NewUSD > limit {
		if p.cfg.MaxPctPerSymbol > 0 && rc.Equity > 0 {
			return &RiskError{Reason: fmt.Sprintf("per-symbol cap %.2f%% of equity exceeded (current $%.2f + new $%.2f > $%.2f)",
				p.cfg.MaxPctPerSymbol*100, current, rc.NewUSD, limit)}
		}
		return &RiskError{Reason: fmt.Sprintf("per-symbol USD limit exceeded (current $%.2f + new $%.2f > $%.2f)",
			current, rc.NewUSD, limit)}
	}
	return nil
}

// Signal carries the readings a dynamic bracket is derived from.
type Signal struct {
	AvgMovePct    float64
	Confidence    float64
	HasConfidence bool
	Sentiment     float64
}

// Bracket sizes TP/SL for an entry at price. It returns nil when brackets are off.
func (p *Planner) Bracket(price float64, action types.Action, side types.Side, qty int, sig Signal) *types.BracketPlan {
	b := p.cfg.Bracket
	if !b.Enabled {
		return nil
	}
	tp := math.Max(0, b.TPPct)
	sl := math.Max(0, b.SLPct)
	if b.Dynamic {
		tp, sl = p.dynamicPcts(sig)
	}
	return plan(price, action, side, qty, tp, sl)
}

func (p *Planner) dynamicPcts(sig Signal) (float64, float64) {
	b := p.cfg.Bracket
	var tp float64
	if move := math.Abs(sig.AvgMovePct); move > 0 {
		tp = move / 100
		if b.ScaleByConfidence && sig.HasConfidence {
			tp *= 0.5 + 0.5*clamp(sig.Confidence, 0, 1)
		}
	} else {
		mag := math.Min(1, math.Abs(sig.Sentiment))
		tp = b.TPMin + (b.TPMax-b.TPMin)*mag
	}
	tp = clamp(tp, b.TPMin, b.TPMax)
	sl := clamp(tp/math.Max(minRR, b.RRMultiple), b.SLMin, b.SLMax)
	return tp, sl
}

// CoreBracket is the wider bracket for the core leg, or nil when disabled.
func (p *Planner) CoreBracket(price float64, qty int) *types.BracketPlan {
	b := p.cfg.Bracket
	if !b.CoreUseBracket {
		return nil
	}
	return plan(price, types.ActionLong, types.SideBuy, qty, math.Max(0, b.CoreTPPct), math.Max(0, b.CoreSLPct))
}

// Split divides a long budget into core and tactical share counts. When both
// round to zero the whole budget goes to one tactical share minimum.
func (p *Planner) Split(budget, price float64) (core, tactical int) {
	coreBudget := budget * p.cfg.Bracket.CoreAllocationPct
	core = floorShares(coreBudget, price)
	tactical = floorShares(budget-coreBudget, price)
	if core+tactical <= 0 {
		tactical = floorShares(budget, price)
		if tactical < 1 {
			tactical = 1
		}
		core = 0
	}
	return core, tactical
}

func plan(price float64, action types.Action, side types.Side, qty int, tp, sl float64) *types.BracketPlan {
	bp := &types.BracketPlan{TPPct: tp, SLPct: sl, EntryPrice: price, Side: side, Qty: qty}
	if action == types.ActionLong {
		bp.TPPrice = round2(price * (1 + tp))
		bp.SLPrice = round2(price * (1 - sl))
	} else {
		bp.TPPrice = round2(price * (1 - tp))
		bp.SLPrice = round2(price * (1 + sl))
	}
	return bp
}

func floorShares(budget, price float64) int {
	if budget <= 0 {
		return 0
	}
	px := decimal.NewFromFloat(math.Max(price, minPrice))
	return int(decimal.NewFromFloat(budget).Div(px).Floor().IntPart())
}

func round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
