// Package decision turns an aggregated sentiment reading into a trading action.
//
// The stages run in a fixed order: factor blend, threshold rule, strategy
// override, in-position damping, drawdown stop, tax hold. Each stage that
// changes the outcome appends a "+tag" to the decision source. The PDT gate
// lives in pdt.go and is evaluated by the executor because it needs the account.
package decision

import (
	"math"
	"time"

	"newstrader/internal/market"
	"newstrader/internal/sentiment"
	"newstrader/internal/types"
)

const (
	StrategyRule   = "rule"
	StrategyGPT    = "gpt"
	StrategyHybrid = "hybrid"
)

const (
	TagFactors    = "factors"
	TagHoldPos    = "hold_pos"
	TagDrawdown   = "dd_stop"
	TagTaxMinHold = "tax_hold_min"
	TagTaxLTCG    = "tax_hold_ltcg"
	TagTaxMinPnL  = "tax_hold_minpnl"
)

const (
	maxVolPenalty = 0.3
	secondsPerDay = 86400.0
	sourceRule    = "rule"
	sourceModel   = "gpt"
)

type FactorConfig struct {
	Weight      float64
	ChgScale    float64
	VolScale    float64
	TrendBonus  float64
	RangeWeight float64
}

type DrawdownConfig struct {
	Enabled            bool
	MaxDropPct         float64
	WindowMin          float64
	WindowDropPct      float64
	MinConsecutiveDown int
	RequireBoth        bool
}

type TaxConfig struct {
	Enabled      bool
	LTCGDays     int
	MinHoldDays  int
	MinProfitUSD float64
}

type Config struct {
	Strategy           string
	PosThreshold       float64
	CloseThreshold     float64
	InPosExitSentiment float64
	UseGPTDecision     bool
	MinGPTConfidence   float64
	Factor             FactorConfig
	Drawdown           DrawdownConfig
	Tax                TaxConfig
}

// Input is everything one decision needs. Price 0 means unknown; EntryTS is unix seconds.
type Input struct {
	Sentiment  float64
	Price      float64
	Context    *market.PriceContext
	Series     []market.PricePoint
	Summary    sentiment.Summary
	HasLong    bool
	EntryPrice float64
	EntryTS    float64
	Now        time.Time
}

type Pipeline struct {
	cfg Config
}

func New(cfg Config) *Pipeline {
	return &Pipeline{cfg: cfg}
}

func (p *Pipeline) Config() Config { return p.cfg }

func (p *Pipeline) Decide(in Input) types.Decision {
	used := in.Sentiment
	factored := p.cfg.Factor.Weight > 0 && in.Context != nil
	if factored {
		f := FactorScore(p.cfg.Factor, in.Context)
		used = (1-p.cfg.Factor.Weight)*in.Sentiment + p.cfg.Factor.Weight*f
	}

	d := types.Decision{
		Action:        Threshold(used, p.cfg.PosThreshold, p.cfg.CloseThreshold),
		Source:        sourceRule,
		SentimentUsed: used,
	}
	p.override(&d, in.Summary)

	if in.HasLong && d.Action == types.ActionClose && used > p.cfg.InPosExitSentiment {
		d.Action = types.ActionHold
		d.Tag(TagHoldPos)
	}

	forced := p.drawdownStop(&d, in)
	if !forced {
		p.taxHold(&d, in, used)
	}

	if factored {
		d.Tag(TagFactors)
	}
	return d
}

// Threshold maps a score onto an action; close wins over hold near zero even
// when close >= pos.
func Threshold(s, pos, close float64) types.Action {
	switch {
	case s >= pos:
		return types.ActionLong
	case s <= -pos:
		return types.ActionShort
	case math.Abs(s) < close:
		return types.ActionClose
	default:
		return types.ActionHold
	}
}

// FactorScore maps window change, volatility, trend and range position to [-1, 1].
func FactorScore(cfg FactorConfig, ctx *market.PriceContext) float64 {
	if ctx == nil {
		return 0
	}
	var score float64
	if cfg.ChgScale > 0 {
		score += clamp(ctx.ChangePct/cfg.ChgScale, -1, 1)
	}
	if cfg.VolScale > 0 {
		score -= clamp(ctx.VolPct/cfg.VolScale, 0, 1) * maxVolPenalty
	}
	switch ctx.Trend {
	case market.TrendUp:
		score += math.Abs(cfg.TrendBonus)
	case market.TrendDown:
		score -= math.Abs(cfg.TrendBonus)
	}
	if len(ctx.Series) >= 2 && ctx.Max > ctx.Min {
		pos := (ctx.Last - ctx.Min) / (ctx.Max - ctx.Min)
		score += (pos - 0.5) * 2 * math.Max(0, cfg.RangeWeight)
	}
	return clamp(score, -1, 1)
}

func (p *Pipeline) override(d *types.Decision, sum sentiment.Summary) {
	if sum.Decision == "" {
		return
	}
	apply := false
	switch p.cfg.Strategy {
	case StrategyGPT:
		apply = true
	case StrategyHybrid:
		apply = sum.Count > 0 && sum.AvgConfidence >= p.cfg.MinGPTConfidence
	default:
		apply = p.cfg.UseGPTDecision
	}
	if apply {
		d.Action = sum.Decision
		d.Source = sourceModel
	}
}

func (p *Pipeline) drawdownStop(d *types.Decision, in Input) bool {
	dd := p.cfg.Drawdown
	if !dd.Enabled || !in.HasLong || in.Price <= 0 || in.EntryPrice <= 0 {
		return false
	}
	drop := (in.Price - in.EntryPrice) / in.EntryPrice * 100
	if drop > -math.Abs(dd.MaxDropPct) {
		return false
	}
	windowOK, consecOK := false, false
	if ws := market.Window(in.Series, dd.WindowMin, in.Now); ws != nil {
		windowOK = ws.ChangePct <= -math.Abs(dd.WindowDropPct)
		minDowns := dd.MinConsecutiveDown
		if minDowns < 1 {
			minDowns = 1
		}
		consecOK = ws.Downs >= minDowns
	}
	hit := windowOK || consecOK
	if dd.RequireBoth {
		hit = windowOK && consecOK
	}
	if !hit {
		return false
	}
	d.Action = types.ActionClose
	d.Tag(TagDrawdown)
	return true
}

func (p *Pipeline) taxHold(d *types.Decision, in Input, used float64) {
	tax := p.cfg.Tax
	if !tax.Enabled || !in.HasLong || d.Action != types.ActionClose || in.EntryTS <= 0 {
		return
	}
	nowSec := types.UnixSeconds(in.Now)
	days := (nowSec - in.EntryTS) / secondsPerDay
	switch {
	case tax.MinHoldDays > 0 && days < float64(tax.MinHoldDays):
		d.Action = types.ActionHold
		d.Tag(TagTaxMinHold)
	case tax.LTCGDays > 0 && days < float64(tax.LTCGDays) && used > -math.Abs(p.cfg.InPosExitSentiment):
		d.Action = types.ActionHold
		d.Tag(TagTaxLTCG)
	case tax.MinProfitUSD > 0 && in.EntryPrice > 0 && in.Price > 0:
		if pnl := in.Price - in.EntryPrice; pnl > 0 && pnl < tax.MinProfitUSD {
			d.Action = types.ActionHold
			d.Tag(TagTaxMinPnL)
		}
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
