package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"newstrader/internal/audit"
	"newstrader/internal/decision"
	"newstrader/internal/market"
	"newstrader/internal/news"
	"newstrader/internal/pkg/ratelimit"
	"newstrader/internal/sentiment"
	"newstrader/internal/sizing"
	"newstrader/internal/state"
	"newstrader/internal/types"
)

// 11:00 in New York, a regular session.
var testNow = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

type brokerMock struct{ mock.Mock }

func (m *brokerMock) PlaceOrder(ctx context.Context, req types.OrderRequest) (types.OrderResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(types.OrderResult), args.Error(1)
}

func (m *brokerMock) ClosePosition(ctx context.Context, symbol string, qty int) (types.OrderResult, error) {
	args := m.Called(ctx, symbol, qty)
	return args.Get(0).(types.OrderResult), args.Error(1)
}

func (m *brokerMock) Positions(ctx context.Context) (types.PositionMap, error) {
	args := m.Called(ctx)
	pm, _ := args.Get(0).(types.PositionMap)
	return pm, args.Error(1)
}

func (m *brokerMock) Position(ctx context.Context, symbol string) (*types.Position, error) {
	args := m.Called(ctx, symbol)
	p, _ := args.Get(0).(*types.Position)
	return p, args.Error(1)
}

func (m *brokerMock) Account(ctx context.Context) (types.Account, error) {
	args := m.Called(ctx)
	return args.Get(0).(types.Account), args.Error(1)
}

func (m *brokerMock) Clock(ctx context.Context) (types.Clock, error) {
	args := m.Called(ctx)
	return args.Get(0).(types.Clock), args.Error(1)
}

type dataMock struct{ mock.Mock }

func (m *dataMock) News(ctx context.Context, symbol string, from, to time.Time, limit int) ([]types.NewsItem, error) {
	args := m.Called(ctx, symbol, from, to, limit)
	items, _ := args.Get(0).([]types.NewsItem)
	return items, args.Error(1)
}

func (m *dataMock) Quote(ctx context.Context, symbol string) (float64, bool, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(float64), args.Bool(1), args.Error(2)
}

func (m *dataMock) MacroEvents(ctx context.Context, themes []string, max, timespanMin int) ([]types.NewsItem, error) {
	args := m.Called(ctx, themes, max, timespanMin)
	items, _ := args.Get(0).([]types.NewsItem)
	return items, args.Error(1)
}

func (m *dataMock) Snapshots(ctx context.Context, symbols []string) (map[string]float64, error) {
	args := m.Called(ctx, symbols)
	prices, _ := args.Get(0).(map[string]float64)
	return prices, args.Error(1)
}

type recordingSink struct {
	mu        sync.Mutex
	trades    []audit.TradeEvent
	decisions []audit.DecisionEvent
}

func (s *recordingSink) LogTrade(ev audit.TradeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, ev)
}

func (s *recordingSink) LogDecision(ev audit.DecisionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions = append(s.decisions, ev)
}

type recordingNotifier struct{ texts []string }

func (n *recordingNotifier) SendText(text string) error {
	n.texts = append(n.texts, text)
	return nil
}

type harnessOpts struct {
	broker Broker
	data   DataSource
	exec   ExecConfig
	sizing sizing.Config
	pdt    decision.PDTConfig
	decide decision.Config
	proc   ProcessorConfig
}

type harness struct {
	store *state.Store
	sink  *recordingSink
	notes *recordingNotifier
	hours market.Hours
	exec  *Executor
	proc  *Processor
}

func defaultSizing() sizing.Config {
	return sizing.Config{
		SizeMode:         sizing.ModeAuto,
		DollarsPerTrade:  1000,
		AllocationPct:    0.1,
		MaxOpenPositions: 5,
		MaxUSDPerSymbol:  5000,
	}
}

func defaultPDT() decision.PDTConfig {
	return decision.PDTConfig{MinEquity: 25000, MaxDaytrades: 3}
}

func defaultDecision() decision.Config {
	return decision.Config{
		Strategy:           decision.StrategyRule,
		PosThreshold:       0.4,
		CloseThreshold:     0.1,
		InPosExitSentiment: -0.1,
	}
}

func newHarness(t *testing.T, o harnessOpts) *harness {
	t.Helper()
	if o.sizing.SizeMode == "" {
		o.sizing = defaultSizing()
	}
	if o.pdt.MaxDaytrades == 0 {
		o.pdt = defaultPDT()
	}
	if o.decide.Strategy == "" {
		o.decide = defaultDecision()
	}
	hours := market.NewHours(market.DefaultTimezone)
	store := state.NewStore(filepath.Join(t.TempDir(), "state.json"), 0, 0)
	sink := &recordingSink{}
	notes := &recordingNotifier{}
	clock := NewMarketClock(o.broker, hours)
	clock.now = func() time.Time { return testNow }

	exec := NewExecutor(o.exec, ExecutorDeps{
		Broker:   o.broker,
		Planner:  sizing.NewPlanner(o.sizing),
		PDT:      decision.NewPDTGate(o.pdt, hours),
		Store:    store,
		Clock:    clock,
		Hours:    hours,
		Sink:     sink,
		Notifier: notes,
	})
	exec.now = func() time.Time { return testNow }

	proc := NewProcessor(o.proc, ProcessorDeps{
		Data:     o.data,
		Gate:     ratelimit.NewGate(ratelimit.Config{}),
		Cache:    news.NewCache("", 0, 0),
		Store:    store,
		Tracker:  market.NewTracker(30, 10),
		Fuser:    sentiment.NewFuser(sentiment.NewLexicon(), nil, nil, sentiment.FusionConfig{Weight: 0.5, MaxModelItems: 3}),
		Pipeline: decision.New(o.decide),
		Executor: exec,
		Clock:    clock,
		Hours:    hours,
		Sink:     sink,
	})
	proc.now = func() time.Time { return testNow }
	proc.sleep = func(context.Context, time.Duration) error { return nil }

	return &harness{store: store, sink: sink, notes: notes, hours: hours, exec: exec, proc: proc}
}

func longIntent(symbol string, price float64) Intent {
	return Intent{
		Trace:    "trace-1",
		Symbol:   symbol,
		Decision: types.Decision{Action: types.ActionLong, Source: decision.StrategyRule, SentimentUsed: 0.6},
		Price:    price,
		Fusion:   sentiment.Result{Combined: 0.6, Lexical: 0.6},
	}
}

func TestExecutorDryRunRecordsIntent(t *testing.T) {
	h := newHarness(t, harnessOpts{exec: ExecConfig{Enabled: false}})

	out := h.exec.Execute(context.Background(), longIntent("AAPL", 100))

	assert.Equal(t, StatusDryRun, out.Status)
	assert.Equal(t, types.SideBuy, out.Side)
	assert.Equal(t, 10, out.Qty)
	require.Len(t, h.sink.trades, 1)
	assert.Equal(t, StatusDryRun, h.sink.trades[0].Status)
	assert.Equal(t, StatusDryRun, h.sink.trades[0].Mode)
	assert.Zero(t, h.store.Snapshot("AAPL").LastTradeTS)
}

func TestExecutorDryRunHoldDoesNothing(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	in := longIntent("AAPL", 100)
	in.Decision.Action = types.ActionHold

	out := h.exec.Execute(context.Background(), in)

	assert.Equal(t, StatusSkipped, out.Status)
	assert.Empty(t, h.sink.trades)
}

func TestExecutorMissingPriceSkips(t *testing.T) {
	b := &brokerMock{}
	h := newHarness(t, harnessOpts{broker: b, exec: ExecConfig{Enabled: true, Mode: "paper"}})

	out := h.exec.Execute(context.Background(), longIntent("AAPL", 0))

	assert.Equal(t, StatusSkipped, out.Status)
	assert.Equal(t, "missing price", out.Reason)
	b.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything)
}

func TestExecutorLongOnlySkipsShortWhenFlat(t *testing.T) {
	b := &brokerMock{}
	h := newHarness(t, harnessOpts{broker: b, exec: ExecConfig{Enabled: true, Mode: "paper", LongOnly: true}})
	in := longIntent("AAPL", 100)
	in.Decision.Action = types.ActionShort

	out := h.exec.Execute(context.Background(), in)

	assert.Equal(t, StatusSkipped, out.Status)
	assert.Equal(t, "long-only", out.Reason)
	b.AssertExpectations(t)
}

func TestExecutorLongOnlyShortClosesHeldLong(t *testing.T) {
	b := &brokerMock{}
	b.On("Position", mock.Anything, "AAPL").Return(&types.Position{Symbol: "AAPL", Qty: 5}, nil).Once()
	b.On("Account", mock.Anything).Return(types.Account{Equity: 100000, BuyingPower: 50000}, nil)
	b.On("ClosePosition", mock.Anything, "AAPL", 5).Return(types.OrderResult{ID: "close-1"}, nil).Once()
	h := newHarness(t, harnessOpts{broker: b, exec: ExecConfig{Enabled: true, Mode: "paper", LongOnly: true}})
	day := h.hours.Day(testNow)
	h.store.RecordEntry("AAPL", 95, types.UnixSeconds(testNow.Add(-time.Hour)), day)

	in := longIntent("AAPL", 100)
	in.Decision.Action = types.ActionShort
	in.Positions = types.PositionMap{"AAPL": {Symbol: "AAPL", Qty: 5}}
	out := h.exec.Execute(context.Background(), in)

	assert.Equal(t, StatusPlaced, out.Status)
	assert.Equal(t, types.ActionClose, out.Action)
	assert.Equal(t, []string{"close-1"}, out.Orders)
	assert.Equal(t, []string{day}, h.store.PDTDays())
	snap := h.store.Snapshot("AAPL")
	assert.Equal(t, 100.0, snap.LastExitPrice)
	assert.Nil(t, snap.Bracket)
	require.Len(t, h.sink.trades, 1)
	assert.Equal(t, types.SideNone, h.sink.trades[0].Side)
	b.AssertExpectations(t)
}

func TestExecutorClosesFractionalPositionWhole(t *testing.T) {
	for _, held := range []float64{2.5, 0.4} {
		b := &brokerMock{}
		b.On("Position", mock.Anything, "AAPL").Return(&types.Position{Symbol: "AAPL", Qty: held}, nil).Once()
		b.On("Account", mock.Anything).Return(types.Account{Equity: 100000, BuyingPower: 50000}, nil)
		b.On("ClosePosition", mock.Anything, "AAPL", 0).Return(types.OrderResult{ID: "close-f"}, nil).Once()
		h := newHarness(t, harnessOpts{broker: b, exec: ExecConfig{Enabled: true, Mode: "paper"}})

		in := longIntent("AAPL", 100)
		in.Decision.Action = types.ActionClose
		out := h.exec.Execute(context.Background(), in)

		assert.Equal(t, StatusPlaced, out.Status, "held %v", held)
		assert.Equal(t, []string{"close-f"}, out.Orders)
		assert.Equal(t, 100.0, h.store.Snapshot("AAPL").LastExitPrice)
		b.AssertExpectations(t)
	}
}

func TestExecutorPDTBlocksEntry(t *testing.T) {
	b := &brokerMock{}
	b.On("Account", mock.Anything).Return(types.Account{Equity: 10000, BuyingPower: 10000}, nil)
	h := newHarness(t, harnessOpts{broker: b, exec: ExecConfig{Enabled: true, Mode: "paper"}})
	for k := 1; k <= 3; k++ {
		at := testNow.AddDate(0, 0, -k)
		h.store.RecordEntry("MSFT", 100, types.UnixSeconds(at), h.hours.Day(at))
		h.store.RecordExit("MSFT", 101, types.UnixSeconds(at.Add(time.Hour)), h.hours.Day(at))
	}
	require.Len(t, h.store.PDTDays(), 3)

	out := h.exec.Execute(context.Background(), longIntent("AAPL", 100))

	assert.Equal(t, StatusSkipped, out.Status)
	assert.True(t, strings.HasPrefix(out.Reason, "PDT"), out.Reason)
	b.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything)
}

func TestExecutorTradeCooldown(t *testing.T) {
	b := &brokerMock{}
	b.On("Account", mock.Anything).Return(types.Account{Equity: 100000, BuyingPower: 50000}, nil)
	h := newHarness(t, harnessOpts{broker: b, exec: ExecConfig{Enabled: true, Mode: "paper", TradeCooldown: 10 * time.Minute}})
	h.store.SetLastTrade("AAPL", types.UnixSeconds(testNow.Add(-time.Minute)))

	out := h.exec.Execute(context.Background(), longIntent("AAPL", 100))

	assert.Equal(t, "trade cooldown", out.Reason)
	b.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything)
}

func TestExecutorRiskCapSkips(t *testing.T) {
	b := &brokerMock{}
	b.On("Account", mock.Anything).Return(types.Account{Equity: 100000, BuyingPower: 50000}, nil)
	h := newHarness(t, harnessOpts{broker: b, exec: ExecConfig{Enabled: true, Mode: "paper"}})
	in := longIntent("AAPL", 100)
	in.Positions = types.PositionMap{"AAPL": {Symbol: "AAPL", Qty: 45, MarketValue: 4500}}

	out := h.exec.Execute(context.Background(), in)

	assert.Equal(t, StatusSkipped, out.Status)
	assert.Contains(t, out.Reason, "risk")
}

func bracketSizing() sizing.Config {
	cfg := defaultSizing()
	cfg.Bracket = sizing.BracketConfig{Enabled: true, TPPct: 0.05, SLPct: 0.02}
	return cfg
}

func TestExecutorPlacesBracketOrder(t *testing.T) {
	b := &brokerMock{}
	b.On("Account", mock.Anything).Return(types.Account{Equity: 100000, BuyingPower: 50000}, nil)
	wantID := fmt.Sprintf("nt-AAPL-%d-buy-10", testNow.Unix())
	b.On("PlaceOrder", mock.Anything, mock.MatchedBy(func(req types.OrderRequest) bool {
		return req.Qty == 10 && req.Notional == 0 && req.TakeProfit == 105 && req.StopLoss == 98 &&
			req.ClientOrderID == wantID && req.Type == "market" && req.TimeInForce == "day"
	})).Return(types.OrderResult{ID: "o-1"}, nil).Once()
	h := newHarness(t, harnessOpts{broker: b, sizing: bracketSizing(), exec: ExecConfig{Enabled: true, Mode: "paper"}})

	out := h.exec.Execute(context.Background(), longIntent("AAPL", 100))

	require.Equal(t, StatusPlaced, out.Status, out.Reason)
	assert.Equal(t, []string{"o-1"}, out.Orders)
	snap := h.store.Snapshot("AAPL")
	assert.Equal(t, types.UnixSeconds(testNow), snap.LastTradeTS)
	require.NotNil(t, snap.Bracket)
	assert.Equal(t, 105.0, snap.Bracket.TPPrice)
	assert.Equal(t, h.hours.Day(testNow), snap.LastEntryDay)
	assert.Equal(t, 100.0, snap.LastEntryPrice)
	require.Len(t, h.sink.trades, 1)
	ev := h.sink.trades[0]
	assert.Equal(t, StatusPlaced, ev.Status)
	assert.Equal(t, "o-1", ev.OrderID)
	require.NotNil(t, ev.TPPrice)
	assert.Equal(t, 98.0, *ev.SLPrice)
	require.Len(t, h.notes.texts, 1)
	assert.Contains(t, h.notes.texts[0], "AAPL long placed")
	b.AssertExpectations(t)
}

func TestExecutorNotionalWithoutBracket(t *testing.T) {
	b := &brokerMock{}
	b.On("Account", mock.Anything).Return(types.Account{Equity: 100000, BuyingPower: 50000}, nil)
	b.On("PlaceOrder", mock.Anything, mock.MatchedBy(func(req types.OrderRequest) bool {
		return req.Qty == 0 && req.Notional == 1000 && !req.Bracket()
	})).Return(types.OrderResult{ClientOrderID: "cid"}, nil).Once()
	h := newHarness(t, harnessOpts{broker: b, exec: ExecConfig{Enabled: true, Mode: "paper"}})

	out := h.exec.Execute(context.Background(), longIntent("AAPL", 100))

	assert.Equal(t, StatusPlaced, out.Status)
	assert.Equal(t, []string{"cid"}, out.Orders)
	assert.Nil(t, h.store.Snapshot("AAPL").Bracket)
	b.AssertExpectations(t)
}

func TestExecutorRejectionIsAudited(t *testing.T) {
	b := &brokerMock{}
	b.On("Account", mock.Anything).Return(types.Account{Equity: 100000, BuyingPower: 50000}, nil)
	b.On("PlaceOrder", mock.Anything, mock.Anything).
		Return(types.OrderResult{}, &types.BrokerRejection{Code: 422, Message: "insufficient buying power"}).Once()
	h := newHarness(t, harnessOpts{broker: b, sizing: bracketSizing(), exec: ExecConfig{Enabled: true, Mode: "live"}})

	out := h.exec.Execute(context.Background(), longIntent("AAPL", 100))

	assert.Equal(t, StatusError, out.Status)
	require.Len(t, h.sink.trades, 1)
	ev := h.sink.trades[0]
	assert.Equal(t, StatusError, ev.Status)
	assert.Equal(t, "live", ev.Mode)
	assert.Equal(t, "422 insufficient buying power", ev.Error)
	assert.Zero(t, h.store.Snapshot("AAPL").LastTradeTS)
	require.Len(t, h.notes.texts, 1)
	assert.Contains(t, h.notes.texts[0], "rejected")
}

func TestExecutorDualHorizonKeepsPlacedLeg(t *testing.T) {
	b := &brokerMock{}
	b.On("Account", mock.Anything).Return(types.Account{Equity: 100000, BuyingPower: 50000}, nil)
	b.On("PlaceOrder", mock.Anything, mock.MatchedBy(func(req types.OrderRequest) bool {
		return strings.Contains(req.ClientOrderID, "-buy-core-")
	})).Return(types.OrderResult{}, &types.NetworkError{Op: "place order", Err: errors.New("reset")}).Once()
	b.On("PlaceOrder", mock.Anything, mock.MatchedBy(func(req types.OrderRequest) bool {
		return strings.Contains(req.ClientOrderID, "-buy-tact-") && req.Qty == 5 && req.TakeProfit == 105
	})).Return(types.OrderResult{ID: "tact-1"}, nil).Once()
	cfg := bracketSizing()
	cfg.Bracket.DualHorizon = true
	cfg.Bracket.CoreAllocationPct = 0.5
	cfg.Bracket.CoreUseBracket = true
	cfg.Bracket.CoreTPPct = 0.2
	cfg.Bracket.CoreSLPct = 0.1
	h := newHarness(t, harnessOpts{broker: b, sizing: cfg, exec: ExecConfig{Enabled: true, Mode: "paper"}})

	out := h.exec.Execute(context.Background(), longIntent("AAPL", 100))

	assert.Equal(t, StatusPlaced, out.Status)
	assert.Equal(t, 5, out.Qty)
	assert.Equal(t, []string{"tact-1"}, out.Orders)
	snap := h.store.Snapshot("AAPL")
	assert.Nil(t, snap.CoreBracket)
	require.NotNil(t, snap.TacticalBracket)
	assert.Equal(t, 5, snap.TacticalBracket.Qty)
	assert.Len(t, h.sink.trades, 2)
	b.AssertExpectations(t)
}

func TestExecutorMarketOnlyTradeWhenClosed(t *testing.T) {
	b := &brokerMock{}
	b.On("Account", mock.Anything).Return(types.Account{Equity: 100000, BuyingPower: 50000}, nil)
	b.On("Clock", mock.Anything).Return(types.Clock{IsOpen: false}, nil).Once()
	h := newHarness(t, harnessOpts{broker: b, exec: ExecConfig{Enabled: true, Mode: "paper", MarketOnlyTrade: true}})

	out := h.exec.Execute(context.Background(), longIntent("AAPL", 100))

	assert.Equal(t, "market closed", out.Reason)
	b.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything)
}

func TestProcessorNewsCooldownSkips(t *testing.T) {
	d := &dataMock{}
	h := newHarness(t, harnessOpts{data: d, proc: ProcessorConfig{NewsPoll: 10 * time.Minute}})
	h.store.SetLastNews("AAPL", types.UnixSeconds(testNow.Add(-time.Minute)))

	res, err := h.proc.Process(context.Background(), "AAPL", "t", nil)

	require.NoError(t, err)
	assert.Equal(t, "news cooldown", res.Skipped)
	d.AssertNotCalled(t, "News", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessorRecoversPanic(t *testing.T) {
	d := &dataMock{}
	d.On("News", mock.Anything, "AAPL", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, nil).
		Run(func(mock.Arguments) { panic("boom") })
	h := newHarness(t, harnessOpts{data: d})

	_, err := h.proc.Process(context.Background(), "AAPL", "t", nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic")
}

func TestProcessorDrawdownClosesHeldPosition(t *testing.T) {
	d := &dataMock{}
	d.On("News", mock.Anything, "AAPL", mock.Anything, mock.Anything, 5).
		Return([]types.NewsItem{{ID: "n1", Headline: "Company schedules annual meeting", Datetime: testNow.Unix()}}, nil).Once()
	d.On("Quote", mock.Anything, "AAPL").Return(90.0, true, nil).Once()
	b := &brokerMock{}
	b.On("Position", mock.Anything, "AAPL").Return(&types.Position{Symbol: "AAPL", Qty: 5}, nil).Once()
	b.On("Account", mock.Anything).Return(types.Account{Equity: 100000, BuyingPower: 50000}, nil)
	b.On("ClosePosition", mock.Anything, "AAPL", 5).Return(types.OrderResult{ID: "close-7"}, nil).Once()

	dc := defaultDecision()
	dc.Drawdown = decision.DrawdownConfig{Enabled: true, MaxDropPct: 5, WindowMin: 30, WindowDropPct: 3, MinConsecutiveDown: 2}
	h := newHarness(t, harnessOpts{
		broker: b,
		data:   d,
		decide: dc,
		exec:   ExecConfig{Enabled: true, Mode: "paper"},
		proc:   ProcessorConfig{MaxNews: 5, LookbackDays: 1},
	})
	yesterday := testNow.AddDate(0, 0, -1)
	h.store.RecordEntry("AAPL", 100, types.UnixSeconds(yesterday), h.hours.Day(yesterday))
	h.store.SetPriceSeries("AAPL", []market.PricePoint{
		{TS: types.UnixSeconds(testNow.Add(-10 * time.Minute)), Price: 100},
		{TS: types.UnixSeconds(testNow.Add(-5 * time.Minute)), Price: 95},
	})

	positions := types.PositionMap{"AAPL": {Symbol: "AAPL", Qty: 5, MarketValue: 450}}
	res, err := h.proc.Process(context.Background(), "AAPL", "t-1", positions)

	require.NoError(t, err)
	assert.Equal(t, types.ActionClose, res.Decision.Action)
	assert.True(t, res.Decision.HasTag(decision.TagDrawdown), res.Decision.Source)
	assert.Equal(t, StatusPlaced, res.Outcome.Status)
	assert.Equal(t, []string{"close-7"}, res.Outcome.Orders)

	snap := h.store.Snapshot("AAPL")
	assert.Equal(t, 90.0, snap.LastPrice)
	assert.Equal(t, 90.0, snap.LastExitPrice)
	assert.Equal(t, types.UnixSeconds(testNow), snap.LastNewsTS)
	assert.Contains(t, snap.SeenNewsIDs, "n1")
	assert.Len(t, snap.PriceSeries, 3)
	assert.Empty(t, h.store.PDTDays())

	require.Len(t, h.sink.decisions, 1)
	assert.Equal(t, "t-1", h.sink.decisions[0].Trace)
	assert.Contains(t, h.sink.decisions[0].Strategy, decision.TagDrawdown)
	d.AssertExpectations(t)
	b.AssertExpectations(t)
}

func TestProcessorNewsFailureStillDecides(t *testing.T) {
	d := &dataMock{}
	d.On("News", mock.Anything, "AAPL", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, &types.DataUnavailable{Symbol: "AAPL", What: "news"}).Once()
	d.On("Quote", mock.Anything, "AAPL").Return(0.0, false, nil).Once()
	h := newHarness(t, harnessOpts{data: d})

	res, err := h.proc.Process(context.Background(), "AAPL", "t", nil)

	require.NoError(t, err)
	// A flat score inside the close band closes, which is a dry-run intent here.
	assert.Equal(t, types.ActionClose, res.Decision.Action)
	assert.Equal(t, StatusDryRun, res.Outcome.Status)
	assert.Zero(t, res.Price)
	assert.Zero(t, h.store.Snapshot("AAPL").LastNewsTS)
	require.Len(t, h.sink.decisions, 1)
	assert.Nil(t, h.sink.decisions[0].Price)
}

func TestProcessorMissingQuoteReusesCachedPrice(t *testing.T) {
	d := &dataMock{}
	d.On("News", mock.Anything, "AAPL", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil).Once()
	d.On("Quote", mock.Anything, "AAPL").Return(0.0, false, nil).Once()
	h := newHarness(t, harnessOpts{data: d, proc: ProcessorConfig{PricePoll: time.Minute}})
	h.store.SetPrice("AAPL", 150, types.UnixSeconds(testNow.Add(-time.Hour)))

	res, err := h.proc.Process(context.Background(), "AAPL", "t", nil)

	require.NoError(t, err)
	assert.Equal(t, 150.0, res.Price)
	require.Len(t, h.sink.decisions, 1)
	require.NotNil(t, h.sink.decisions[0].Price)
	assert.Equal(t, 150.0, *h.sink.decisions[0].Price)
	d.AssertExpectations(t)
}

func TestScannerPassBatchesAndSkipsHeld(t *testing.T) {
	d := &dataMock{}
	d.On("Snapshots", mock.Anything, []string{"AAPL", "MSFT"}).Return(map[string]float64{"AAPL": 150, "MSFT": 300}, nil).Once()
	d.On("Snapshots", mock.Anything, []string{"NVDA"}).Return(map[string]float64{"NVDA": 500}, nil).Once()
	d.On("News", mock.Anything, "AAPL", mock.Anything, mock.Anything, mock.Anything).Return([]types.NewsItem{}, nil).Once()
	d.On("News", mock.Anything, "NVDA", mock.Anything, mock.Anything, mock.Anything).Return([]types.NewsItem{}, nil).Once()
	b := &brokerMock{}
	b.On("Positions", mock.Anything).Return(types.PositionMap{"MSFT": {Symbol: "MSFT", Qty: 1}}, nil).Twice()

	h := newHarness(t, harnessOpts{data: d, proc: ProcessorConfig{PricePoll: time.Hour}})
	prefetch := NewPrefetcher(PrefetchConfig{UseSnapshots: true}, d, h.proc.Clock, h.store)
	prefetch.now = func() time.Time { return testNow }
	s := NewScanner(ScanConfig{SymbolsPerBatch: 2, BatchSleep: 3 * time.Second, SkipHeld: true}, h.proc, b, prefetch, h.store,
		func() []string { return []string{"AAPL", "MSFT", "NVDA"} })
	s.now = func() time.Time { return testNow }
	var slept []time.Duration
	s.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	require.NoError(t, s.pass(context.Background(), true))

	assert.Equal(t, []time.Duration{3 * time.Second}, slept)
	assert.Equal(t, 300.0, h.store.Snapshot("MSFT").LastPrice)
	assert.Equal(t, []string{"AAPL", "NVDA"}, decisionSymbols(h.sink))
	assert.FileExists(t, filepath.Join(filepath.Dir(h.store.Path()), "state.json"))
	d.AssertExpectations(t)
	b.AssertExpectations(t)
}

func TestScannerRunOnceKeepsHeldSymbols(t *testing.T) {
	d := &dataMock{}
	d.On("News", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return([]types.NewsItem{}, nil)
	d.On("Quote", mock.Anything, mock.Anything).Return(10.0, true, nil)
	b := &brokerMock{}
	b.On("Positions", mock.Anything).Return(types.PositionMap{"MSFT": {Symbol: "MSFT", Qty: 1}}, nil)

	h := newHarness(t, harnessOpts{data: d})
	s := NewScanner(ScanConfig{SymbolsPerBatch: 10, SkipHeld: true}, h.proc, b, nil, h.store,
		func() []string { return []string{"AAPL", "MSFT"} })

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, []string{"AAPL", "MSFT"}, decisionSymbols(h.sink))
}

func TestPrefetchRespectsMarketOnlyPrice(t *testing.T) {
	d := &dataMock{}
	b := &brokerMock{}
	b.On("Clock", mock.Anything).Return(types.Clock{IsOpen: false}, nil).Once()
	h := newHarness(t, harnessOpts{broker: b, data: d})

	p := NewPrefetcher(PrefetchConfig{UseSnapshots: true, MarketOnlyPrice: true}, d, h.exec.clock, h.store)
	p.Prefetch(context.Background(), []string{"AAPL"})
	d.AssertNotCalled(t, "Snapshots", mock.Anything, mock.Anything)

	d.On("Snapshots", mock.Anything, []string{"AAPL"}).Return(map[string]float64{"AAPL": 12.5}, nil).Once()
	p = NewPrefetcher(PrefetchConfig{UseSnapshots: true, MarketOnlyPrice: true, SnapshotOffhours: true}, d, h.exec.clock, h.store)
	p.Prefetch(context.Background(), []string{"AAPL"})
	assert.Equal(t, 12.5, h.store.Snapshot("AAPL").LastPrice)
}

func TestWatcherTickProcessesHoldings(t *testing.T) {
	d := &dataMock{}
	d.On("Snapshots", mock.Anything, []string{"AMZN", "TSLA"}).Return(map[string]float64{"AMZN": 180, "TSLA": 200}, nil).Once()
	d.On("News", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return([]types.NewsItem{}, nil).Twice()
	b := &brokerMock{}
	b.On("Positions", mock.Anything).Return(types.PositionMap{
		"TSLA": {Symbol: "TSLA", Qty: 2},
		"AMZN": {Symbol: "AMZN", Qty: 1},
	}, nil).Once()

	h := newHarness(t, harnessOpts{data: d, proc: ProcessorConfig{PricePoll: time.Hour}})
	prefetch := NewPrefetcher(PrefetchConfig{UseSnapshots: true}, d, h.proc.Clock, h.store)
	prefetch.now = func() time.Time { return testNow }
	w := NewWatcher(0, h.proc, b, prefetch, h.store)
	w.now = func() time.Time { return testNow }

	w.Tick(context.Background())

	assert.Equal(t, []string{"AMZN", "TSLA"}, decisionSymbols(h.sink))
	d.AssertExpectations(t)
	b.AssertExpectations(t)
}

func TestWatcherStopsOnCancel(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	w := NewWatcher(time.Minute, h.proc, nil, nil, h.store)
	w.Stop()
	w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func decisionSymbols(s *recordingSink) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.decisions))
	for _, ev := range s.decisions {
		out = append(out, ev.Symbol)
	}
	return out
}
