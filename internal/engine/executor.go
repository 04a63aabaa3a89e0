package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"newstrader/internal/audit"
	"newstrader/internal/decision"
	"newstrader/internal/gateway/notifier"
	"newstrader/internal/logger"
	"newstrader/internal/metrics"
	"newstrader/internal/market"
	"newstrader/internal/sentiment"
	"newstrader/internal/sizing"
	"newstrader/internal/state"
	"newstrader/internal/types"
)

// Order outcome statuses, as written to the trade log.
const (
	StatusPlaced  = "placed"
	StatusError   = "error"
	StatusDryRun  = "dry-run"
	StatusSkipped = "skipped"
)

type ExecConfig struct {
	// Enabled submits orders; otherwise the executor only logs intents.
	Enabled         bool
	Mode            string
	LongOnly        bool
	MarketOnlyTrade bool
	TradeCooldown   time.Duration
}

// Intent is one decision ready for execution.
type Intent struct {
	Trace     string
	Symbol    string
	Decision  types.Decision
	Price     float64
	Positions types.PositionMap
	Fusion    sentiment.Result
}

// Outcome reports what the executor did with an intent.
type Outcome struct {
	Status string
	Action types.Action
	Side   types.Side
	Qty    int
	Orders []string
	Reason string
}

type Executor struct {
	cfg      ExecConfig
	broker   Broker
	planner  *sizing.Planner
	pdt      decision.PDTGate
	store    *state.Store
	clock    *MarketClock
	hours    market.Hours
	sink     audit.Sink
	notifier notifier.TextNotifier

	now func() time.Time
}

type ExecutorDeps struct {
	Broker   Broker
	Planner  *sizing.Planner
	PDT      decision.PDTGate
	Store    *state.Store
	Clock    *MarketClock
	Hours    market.Hours
	Sink     audit.Sink
	Notifier notifier.TextNotifier
}

func NewExecutor(cfg ExecConfig, deps ExecutorDeps) *Executor {
	sink := deps.Sink
	if sink == nil {
		sink = audit.Multi{}
	}
	n := deps.Notifier
	if n == nil {
		n = notifier.Nop{}
	}
	return &Executor{
		cfg:      cfg,
		broker:   deps.Broker,
		planner:  deps.Planner,
		pdt:      deps.PDT,
		store:    deps.Store,
		clock:    deps.Clock,
		hours:    deps.Hours,
		sink:     sink,
		notifier: n,
		now:      time.Now,
	}
}

func skipped(action types.Action, reason string) Outcome {
	return Outcome{Status: StatusSkipped, Action: action, Reason: reason}
}

func (e *Executor) Execute(ctx context.Context, in Intent) Outcome {
	log := logger.Symbol(in.Symbol, in.Trace)
	action := in.Decision.Action
	if !e.cfg.Enabled || e.broker == nil {
		return e.dryRun(ctx, log, in)
	}
	if in.Price <= 0 {
		log.Info("skip trading: missing price")
		return skipped(action, "missing price")
	}

	var side types.Side
	switch action {
	case types.ActionLong:
		side = types.SideBuy
	case types.ActionShort:
		if !e.cfg.LongOnly {
			side = types.SideSell
			break
		}
		if in.Positions.HasLong(in.Symbol) {
			log.Info("long-only: converting short signal to close")
			action = types.ActionClose
		} else {
			log.Info("long-only: skipping short signal")
			return skipped(action, "long-only")
		}
	case types.ActionClose:
	default:
		log.Debug("hold: no order placed")
		return skipped(action, "hold")
	}

	if action == types.ActionClose {
		return e.close(ctx, log, in)
	}
	return e.enter(ctx, log, in, action, side)
}

func (e *Executor) account(ctx context.Context, log *slog.Logger) types.Account {
	if e.broker == nil {
		return types.Account{}
	}
	acct, err := e.broker.Account(ctx)
	if err != nil {
		log.Warn("account unavailable", "err", err)
		return types.Account{}
	}
	metrics.SetEquity(acct.Equity)
	return acct
}

func (e *Executor) dryRun(ctx context.Context, log *slog.Logger, in Intent) Outcome {
	action := in.Decision.Action
	switch {
	case in.Price > 0 && (action == types.ActionLong || action == types.ActionShort):
		side := types.SideBuy
		if action == types.ActionShort {
			side = types.SideSell
		}
		budget := e.planner.Budget(e.account(ctx, log))
		qty := e.planner.Quantity(budget, in.Price)
		if e.planner.WantNotional(action, side) {
			log.Info(fmt.Sprintf("DRY-RUN would %s $%.2f notional (~%d sh) @ ~%.2f", action, budget, qty, in.Price))
		} else {
			log.Info(fmt.Sprintf("DRY-RUN would %s %d sh @ ~%.2f", action, qty, in.Price))
		}
		e.record(in, action, side, qty, nil, "", StatusDryRun, "")
		return Outcome{Status: StatusDryRun, Action: action, Side: side, Qty: qty}
	case action == types.ActionClose:
		log.Info("DRY-RUN would close any open position")
		e.record(in, action, types.SideNone, 0, nil, "", StatusDryRun, "")
		return Outcome{Status: StatusDryRun, Action: action, Side: types.SideNone}
	}
	return skipped(action, "dry-run")
}

func (e *Executor) enter(ctx context.Context, log *slog.Logger, in Intent, action types.Action, side types.Side) Outcome {
	now := e.now()
	acct := e.account(ctx, log)

	if ok, reason := e.pdt.AllowEntry(acct.Equity, e.store.PDTDays(), now); !ok {
		log.Info(reason)
		return skipped(action, reason)
	}

	snap := e.store.Snapshot(in.Symbol)
	if e.cfg.TradeCooldown > 0 && snap.LastTradeTS > 0 {
		if gap := now.Sub(types.FromUnix(snap.LastTradeTS)); gap < e.cfg.TradeCooldown {
			wait := (e.cfg.TradeCooldown - gap).Round(time.Second)
			log.Info("skip trading: cooldown active", "remaining", wait)
			return skipped(action, "trade cooldown")
		}
	}

	budget := e.planner.Budget(acct)
	qty := e.planner.Quantity(budget, in.Price)
	notional := e.planner.WantNotional(action, side)
	newUSD := float64(qty) * in.Price
	if notional {
		newUSD = budget
	}
	if err := e.planner.CheckRisk(sizing.RiskCheck{
		Symbol: in.Symbol, Positions: in.Positions, Equity: acct.Equity, NewUSD: newUSD,
	}); err != nil {
		log.Info(err.Error())
		return skipped(action, err.Error())
	}

	if e.cfg.MarketOnlyTrade && !e.clock.IsOpen(ctx) {
		log.Info("market closed: skipping order (market-only-trade)")
		return skipped(action, "market closed")
	}

	sig := sizing.Signal{
		AvgMovePct:    in.Fusion.Summary.AvgMovePct,
		Confidence:    in.Fusion.Summary.AvgConfidence,
		HasConfidence: in.Fusion.Summary.Count > 0,
		Sentiment:     in.Fusion.Combined,
	}
	if e.planner.Config().Bracket.DualHorizon && action == types.ActionLong && side == types.SideBuy {
		return e.enterDual(ctx, log, in, budget, sig)
	}

	plan := e.planner.Bracket(in.Price, action, side, qty, sig)
	req := types.OrderRequest{
		Symbol:        in.Symbol,
		Side:          side,
		Type:          "market",
		TimeInForce:   "day",
		ClientOrderID: fmt.Sprintf("nt-%s-%d-%s-%d", in.Symbol, now.Unix(), side, qty),
	}
	if notional {
		req.Notional = budget
	} else {
		req.Qty = qty
	}
	if plan != nil {
		plan.CreatedTS = types.UnixSeconds(now)
		req.TakeProfit, req.StopLoss = plan.TPPrice, plan.SLPrice
		log.Info(fmt.Sprintf("bracket: tp=%.2f%% sl=%.2f%%", plan.TPPct*100, plan.SLPct*100))
	}
	id, err := e.submit(ctx, log, in, action, req, plan)
	if err != nil {
		return Outcome{Status: StatusError, Action: action, Side: side, Qty: qty, Reason: err.Error()}
	}
	e.store.SetLastTrade(in.Symbol, types.UnixSeconds(now))
	if plan != nil {
		e.store.SetBrackets(in.Symbol, state.Brackets{Single: plan})
	}
	if side == types.SideBuy && action == types.ActionLong {
		e.store.RecordEntry(in.Symbol, in.Price, types.UnixSeconds(now), e.hours.Day(now))
	}
	return Outcome{Status: StatusPlaced, Action: action, Side: side, Qty: qty, Orders: []string{id}}
}

// enterDual splits a long entry into a core leg with a wide bracket and a
// tactical leg with the regular one.
func (e *Executor) enterDual(ctx context.Context, log *slog.Logger, in Intent, budget float64, sig sizing.Signal) Outcome {
	now := e.now()
	coreQty, tactQty := e.planner.Split(budget, in.Price)
	out := Outcome{Status: StatusError, Action: types.ActionLong, Side: types.SideBuy}
	var brackets state.Brackets

	if core := e.planner.CoreBracket(in.Price, coreQty); core != nil && coreQty > 0 {
		core.CreatedTS = types.UnixSeconds(now)
		req := types.OrderRequest{
			Symbol: in.Symbol, Side: types.SideBuy, Qty: coreQty, Type: "market", TimeInForce: "day",
			ClientOrderID: fmt.Sprintf("nt-%s-%d-buy-core-%d", in.Symbol, now.Unix(), coreQty),
			TakeProfit:    core.TPPrice, StopLoss: core.SLPrice,
		}
		if id, err := e.submit(ctx, log, in, types.ActionLong, req, core); err == nil {
			out.Orders = append(out.Orders, id)
			out.Qty += coreQty
			brackets.Core = core
		}
	}
	if tactQty > 0 {
		req := types.OrderRequest{
			Symbol: in.Symbol, Side: types.SideBuy, Qty: tactQty, Type: "market", TimeInForce: "day",
			ClientOrderID: fmt.Sprintf("nt-%s-%d-buy-tact-%d", in.Symbol, now.Unix(), tactQty),
		}
		plan := e.planner.Bracket(in.Price, types.ActionLong, types.SideBuy, tactQty, sig)
		if plan != nil {
			plan.CreatedTS = types.UnixSeconds(now)
			req.TakeProfit, req.StopLoss = plan.TPPrice, plan.SLPrice
		}
		if id, err := e.submit(ctx, log, in, types.ActionLong, req, plan); err == nil {
			out.Orders = append(out.Orders, id)
			out.Qty += tactQty
			brackets.Tactical = plan
		}
	}
	if len(out.Orders) == 0 {
		return out
	}
	out.Status = StatusPlaced
	e.store.SetLastTrade(in.Symbol, types.UnixSeconds(now))
	e.store.SetBrackets(in.Symbol, brackets)
	e.store.RecordEntry(in.Symbol, in.Price, types.UnixSeconds(now), e.hours.Day(now))
	return out
}

func (e *Executor) close(ctx context.Context, log *slog.Logger, in Intent) Outcome {
	pos, err := e.broker.Position(ctx, in.Symbol)
	if err != nil {
		log.Warn("position lookup failed", "err", err)
		return skipped(types.ActionClose, "position unavailable")
	}
	var held float64
	if pos != nil {
		held = math.Abs(pos.Qty)
	}
	if held <= 0 {
		log.Info("no open position to close")
		return skipped(types.ActionClose, "no position")
	}
	// Fractional holdings (notional buys) are liquidated whole; qty 0 asks the
	// broker for the entire position.
	qty := int(held)
	closeQty := qty
	if float64(qty) != held {
		closeQty = 0
	}

	now := e.now()
	acct := e.account(ctx, log)
	snap := e.store.Snapshot(in.Symbol)
	if ok, reason := e.pdt.AllowClose(acct.Equity, e.store.PDTDays(), snap.LastEntryDay, now); !ok {
		log.Info(reason)
		return skipped(types.ActionClose, reason)
	}
	if e.cfg.MarketOnlyTrade && !e.clock.IsOpen(ctx) {
		log.Info("market closed: skipping close (market-only-trade)")
		return skipped(types.ActionClose, "market closed")
	}

	res, err := e.broker.ClosePosition(ctx, in.Symbol, closeQty)
	if err != nil {
		msg := errorText(err)
		log.Warn("close error", "err", msg)
		e.record(in, types.ActionClose, types.SideNone, qty, nil, "", StatusError, msg)
		e.notify(in, types.ActionClose, types.SideNone, qty, "", msg)
		return Outcome{Status: StatusError, Action: types.ActionClose, Side: types.SideNone, Qty: qty, Reason: msg}
	}
	id := firstNonEmpty(res.ID, res.ClientOrderID, "close")
	log.Info("close placed", "qty", held, "id", id)
	e.record(in, types.ActionClose, types.SideNone, qty, nil, id, StatusPlaced, "")
	e.notify(in, types.ActionClose, types.SideNone, qty, id, "")
	e.store.RecordExit(in.Symbol, in.Price, types.UnixSeconds(now), e.hours.Day(now))
	return Outcome{Status: StatusPlaced, Action: types.ActionClose, Side: types.SideNone, Qty: qty, Orders: []string{id}}
}

func (e *Executor) submit(ctx context.Context, log *slog.Logger, in Intent, action types.Action, req types.OrderRequest, plan *types.BracketPlan) (string, error) {
	qty := req.Qty
	if req.Notional > 0 {
		qty = e.planner.Quantity(req.Notional, in.Price)
	}
	res, err := e.broker.PlaceOrder(ctx, req)
	if err != nil {
		msg := errorText(err)
		log.Warn("order error", "client_order_id", req.ClientOrderID, "err", msg)
		e.record(in, action, req.Side, qty, plan, "", StatusError, msg)
		e.notify(in, action, req.Side, qty, "", msg)
		return "", err
	}
	id := firstNonEmpty(res.ID, res.ClientOrderID)
	log.Info(fmt.Sprintf("placed %s order", req.Side), "qty", qty, "notional", req.Notional, "id", id)
	e.record(in, action, req.Side, qty, plan, id, StatusPlaced, "")
	e.notify(in, action, req.Side, qty, id, "")
	return id, nil
}

func (e *Executor) record(in Intent, action types.Action, side types.Side, qty int, plan *types.BracketPlan, orderID, status, errMsg string) {
	mode := e.cfg.Mode
	if mode == "" {
		mode = StatusDryRun
	}
	metrics.ObserveOrder(mode, string(side), status)
	ev := audit.TradeEvent{
		TS:             e.now(),
		Trace:          in.Trace,
		Mode:           mode,
		Symbol:         in.Symbol,
		Action:         action,
		Side:           side,
		Qty:            qty,
		DecisionSource: in.Decision.Source,
		Sentiment:      in.Fusion.Combined,
		Lexical:        in.Fusion.Lexical,
		LLMDecision:    in.Fusion.Summary.Decision,
		OrderID:        orderID,
		Status:         status,
		Error:          errMsg,
	}
	if in.Price > 0 {
		ev.Price = audit.Float(in.Price)
	}
	if in.Fusion.HasLLM {
		ev.LLM = audit.Float(in.Fusion.LLM)
	}
	if len(in.Fusion.Summary.TopEmotions) > 0 {
		ev.LLMEmotions = in.Fusion.Summary.EmotionString()
	}
	if in.Fusion.Summary.Count > 0 {
		ev.LLMMovePct = audit.Float(in.Fusion.Summary.AvgMovePct)
	}
	if plan != nil {
		ev.TPPrice = audit.Float(plan.TPPrice)
		ev.SLPrice = audit.Float(plan.SLPrice)
	}
	e.sink.LogTrade(ev)
}

func (e *Executor) notify(in Intent, action types.Action, side types.Side, qty int, orderID, errMsg string) {
	icon, title := "🟢", fmt.Sprintf("%s %s placed", in.Symbol, action)
	lines := []string{fmt.Sprintf("side %s qty %d", side, qty)}
	if orderID != "" {
		lines = append(lines, "id "+orderID)
	}
	if errMsg != "" {
		icon, title = "🔴", fmt.Sprintf("%s %s rejected", in.Symbol, action)
		lines = append(lines, errMsg)
	}
	msg := notifier.StructuredMessage{
		Icon:  icon,
		Title: title,
		Sections: []notifier.MessageSection{
			{Title: "Order", Lines: lines},
			{Title: "Signal", Lines: []string{
				fmt.Sprintf("source %s", in.Decision.Source),
				fmt.Sprintf("sentiment %+.3f", in.Decision.SentimentUsed),
				fmt.Sprintf("price %.2f", in.Price),
			}},
		},
		Footer:    e.cfg.Mode,
		Timestamp: e.now(),
	}
	if err := e.notifier.SendText(msg.RenderMarkdown()); err != nil {
		logger.Debugf("notify %s: %v", in.Symbol, err)
	}
}

func errorText(err error) string {
	var rej *types.BrokerRejection
	if errors.As(err, &rej) {
		return strings.TrimSpace(fmt.Sprintf("%d %s", rej.Code, rej.Message))
	}
	return err.Error()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
