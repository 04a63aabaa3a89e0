package sizing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newstrader/internal/types"
)

func defaultConfig() Config {
	return Config{
		SizeMode:         ModeAuto,
		DollarsPerTrade:  1000,
		AllocationPct:    0.2,
		MaxOpenPositions: 20,
		MaxUSDPerSymbol:  2000,
		Bracket: BracketConfig{
			TPPct: 0.02, SLPct: 0.01,
			TPMin: 0.01, TPMax: 0.05, SLMin: 0.005, SLMax: 0.02,
			RRMultiple:        2,
			CoreAllocationPct: 0.6,
			CoreTPPct:         0.06,
			CoreSLPct:         0.03,
		},
	}
}

func TestBudgetAndQuantityScenario(t *testing.T) {
	p := NewPlanner(defaultConfig())
	budget := p.Budget(types.Account{Equity: 100000, BuyingPower: 100000})
	assert.InDelta(t, 1000.0, budget, 1e-9)
	assert.Equal(t, 6, p.Quantity(budget, 150))
}

func TestBudgetFallbacksAndCaps(t *testing.T) {
	p := NewPlanner(defaultConfig())
	assert.Equal(t, 1000.0, p.Budget(types.Account{}))
	// 0.2 * 500k / 20 = 5000, capped at 2000 USD
	assert.Equal(t, 2000.0, p.Budget(types.Account{BuyingPower: 500000}))

	cfg := defaultConfig()
	cfg.MaxPctPerSymbol = 0.01
	p = NewPlanner(cfg)
	assert.Equal(t, 1000.0, p.Budget(types.Account{BuyingPower: 500000, Equity: 100000}))
	assert.Equal(t, 1000.0, p.Cap(100000))
	assert.Equal(t, 2000.0, p.Cap(0))
}

func TestQuantityModes(t *testing.T) {
	p := NewPlanner(defaultConfig())
	assert.Equal(t, 1, p.Quantity(100, 150), "never below one share")
	assert.Equal(t, 10000, p.Quantity(100, 0), "price floor of one cent")

	cfg := defaultConfig()
	cfg.SizeMode = ModeShares
	cfg.SharesPerTrade = 7
	assert.Equal(t, 7, NewPlanner(cfg).Quantity(1000, 150))
}

func TestWantNotional(t *testing.T) {
	p := NewPlanner(defaultConfig())
	assert.True(t, p.WantNotional(types.ActionLong, types.SideBuy))
	assert.False(t, p.WantNotional(types.ActionShort, types.SideSell))

	cfg := defaultConfig()
	cfg.Bracket.Enabled = true
	assert.False(t, NewPlanner(cfg).WantNotional(types.ActionLong, types.SideBuy))

	cfg = defaultConfig()
	cfg.SizeMode = ModeShares
	assert.False(t, NewPlanner(cfg).WantNotional(types.ActionLong, types.SideBuy))
}

func TestCheckRisk(t *testing.T) {
	cfg := defaultConfig()
	cfg.MaxOpenPositions = 2
	p := NewPlanner(cfg)
	positions := types.PositionMap{
		"AAPL": {Symbol: "AAPL", Qty: 5, MarketValue: 1500},
		"MSFT": {Symbol: "MSFT", Qty: 1, MarketValue: 400},
	}

	err := p.CheckRisk(RiskCheck{Symbol: "NVDA", Positions: positions, NewUSD: 100})
	var re *RiskError
	require.True(t, errors.As(err, &re))
	assert.Contains(t, re.Reason, "max open positions")

	err = p.CheckRisk(RiskCheck{Symbol: "AAPL", Positions: positions, NewUSD: 600})
	require.True(t, errors.As(err, &re))
	assert.Contains(t, re.Reason, "USD limit")

	assert.NoError(t, p.CheckRisk(RiskCheck{Symbol: "MSFT", Positions: positions, NewUSD: 600}))
}

func TestStaticBracketPrices(t *testing.T) {
	cfg := defaultConfig()
	cfg.Bracket.Enabled = true
	p := NewPlanner(cfg)

	long := p.Bracket(150, types.ActionLong, types.SideBuy, 6, Signal{})
	require.NotNil(t, long)
	assert.Equal(t, 153.0, long.TPPrice)
	assert.Equal(t, 148.5, long.SLPrice)
	assert.Equal(t, 6, long.Qty)

	short := p.Bracket(99.99, types.ActionShort, types.SideSell, 3, Signal{})
	assert.Equal(t, 97.99, short.TPPrice)
	assert.Equal(t, 100.99, short.SLPrice)

	assert.Nil(t, NewPlanner(defaultConfig()).Bracket(150, types.ActionLong, types.SideBuy, 1, Signal{}))
}

func TestDynamicBracketStaysWithinBounds(t *testing.T) {
	cfg := defaultConfig()
	cfg.Bracket.Enabled = true
	cfg.Bracket.Dynamic = true
	cfg.Bracket.ScaleByConfidence = true
	p := NewPlanner(cfg)

	signals := []Signal{
		{AvgMovePct: 20, Confidence: 1, HasConfidence: true},
		{AvgMovePct: -0.1},
		{AvgMovePct: 3, Confidence: 0.5, HasConfidence: true},
		{Sentiment: 0.9},
		{Sentiment: -5},
		{},
	}
	for _, sig := range signals {
		bp := p.Bracket(100, types.ActionLong, types.SideBuy, 1, sig)
		require.NotNil(t, bp)
		assert.GreaterOrEqual(t, bp.TPPct, cfg.Bracket.TPMin)
		assert.LessOrEqual(t, bp.TPPct, cfg.Bracket.TPMax)
		assert.GreaterOrEqual(t, bp.SLPct, cfg.Bracket.SLMin)
		assert.LessOrEqual(t, bp.SLPct, cfg.Bracket.SLMax)
	}

	// 3% move scaled by 0.75 confidence factor = 2.25%, sl = tp/2
	bp := p.Bracket(100, types.ActionLong, types.SideBuy, 1, Signal{AvgMovePct: 3, Confidence: 0.5, HasConfidence: true})
	assert.InDelta(t, 0.0225, bp.TPPct, 1e-12)
	assert.InDelta(t, 0.01125, bp.SLPct, 1e-12)
	assert.Equal(t, 102.25, bp.TPPrice)

	// no model move: sentiment magnitude maps across the tp range
	bp = p.Bracket(100, types.ActionLong, types.SideBuy, 1, Signal{Sentiment: -0.5})
	assert.InDelta(t, 0.03, bp.TPPct, 1e-12)
}

func TestSplit(t *testing.T) {
	p := NewPlanner(defaultConfig())
	core, tact := p.Split(1000, 150)
	assert.Equal(t, 4, core)
	assert.Equal(t, 2, tact)

	core, tact = p.Split(200, 150)
	assert.Equal(t, 0, core)
	assert.Equal(t, 1, tact)

	core, tact = p.Split(50, 150)
	assert.Equal(t, 0, core)
	assert.Equal(t, 1, tact)

	cfg := defaultConfig()
	cfg.Bracket.CoreUseBracket = true
	cb := NewPlanner(cfg).CoreBracket(150, 4)
	require.NotNil(t, cb)
	assert.Equal(t, 159.0, cb.TPPrice)
	assert.Equal(t, 145.5, cb.SLPrice)
	assert.Nil(t, NewPlanner(defaultConfig()).CoreBracket(150, 4))
}
