package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"newstrader/internal/audit"
	"newstrader/internal/decision"
	"newstrader/internal/logger"
	"newstrader/internal/market"
	"newstrader/internal/metrics"
	"newstrader/internal/news"
	"newstrader/internal/pkg/ratelimit"
	"newstrader/internal/sentiment"
	"newstrader/internal/state"
	"newstrader/internal/types"
)

type ProcessorConfig struct {
	MaxNews      int
	LookbackDays int
	// NewsPoll skips a symbol whose news was fetched more recently than this.
	NewsPoll time.Duration
	// NewsSleep pauses between the news fetch and the price fetch.
	NewsSleep             time.Duration
	PricePoll             time.Duration
	MarketOnlyPrice       bool
	MacroAffectsSentiment bool
	UseGPT                bool
}

type ProcessorDeps struct {
	Data     DataSource
	Gate     *ratelimit.Gate
	Cache    *news.Cache
	Macro    *news.MacroFeed
	Store    *state.Store
	Tracker  market.Tracker
	Fuser    *sentiment.Fuser
	Pipeline *decision.Pipeline
	Executor *Executor
	Clock    *MarketClock
	Hours    market.Hours
	Sink     audit.Sink
}

// Processor runs one symbol through news, scoring, decision and execution.
type Processor struct {
	cfg ProcessorConfig
	ProcessorDeps

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

func NewProcessor(cfg ProcessorConfig, deps ProcessorDeps) *Processor {
	if deps.Sink == nil {
		deps.Sink = audit.Multi{}
	}
	return &Processor{cfg: cfg, ProcessorDeps: deps, now: time.Now, sleep: sleepCtx}
}

// Result is what one Process call decided and did.
type Result struct {
	Symbol   string
	Skipped  string
	Price    float64
	Fusion   sentiment.Result
	Decision types.Decision
	Outcome  Outcome
}

// Process never lets a panic escape; it is reported as an error so the caller
// can move on to the next symbol.
func (p *Processor) Process(ctx context.Context, symbol, traceID string, positions types.PositionMap) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.ObserveSymbolError("panic")
			logger.Errorf("%s: panic in processing: %v\n%s", symbol, r, debug.Stack())
			err = fmt.Errorf("process %s: panic: %v", symbol, r)
		}
	}()
	return p.process(ctx, symbol, traceID, positions)
}

func (p *Processor) process(ctx context.Context, symbol, traceID string, positions types.PositionMap) (Result, error) {
	log := logger.Symbol(symbol, traceID)
	res := Result{Symbol: symbol}
	now := p.now()
	snap := p.Store.Snapshot(symbol)

	if p.cfg.NewsPoll > 0 && snap.LastNewsTS > 0 && now.Sub(types.FromUnix(snap.LastNewsTS)) < p.cfg.NewsPoll {
		log.Debug("skip: news cooldown", "poll", p.cfg.NewsPoll)
		res.Skipped = "news cooldown"
		return res, nil
	}

	items := p.fetchNews(ctx, symbol, now)
	if err := p.sleep(ctx, p.cfg.NewsSleep); err != nil {
		return res, err
	}
	if p.cfg.MacroAffectsSentiment && p.Macro != nil {
		items = append(items, p.Macro.Items()...)
	}

	price := p.resolvePrice(ctx, symbol, snap, now)
	res.Price = price
	items = news.Dedupe(symbol, items)

	var pctx *market.PriceContext
	series := snap.PriceSeries
	if price > 0 {
		series, pctx = p.Tracker.Update(snap.PriceSeries, price, now)
		p.Store.SetPriceSeries(symbol, series)
	}

	fused := p.Fuser.Fuse(ctx, symbol, items, price, pctx)
	res.Fusion = fused
	for _, key := range fused.SeenKeys {
		p.Store.MarkEventSeen(symbol, key)
	}

	in := decision.Input{
		Sentiment:  fused.Combined,
		Price:      price,
		Context:    pctx,
		Series:     series,
		Summary:    fused.Summary,
		HasLong:    positions.HasLong(symbol),
		EntryPrice: snap.LastEntryPrice,
		EntryTS:    snap.LastEntryTS,
		Now:        now,
	}
	d := p.Pipeline.Decide(in)
	res.Decision = d
	metrics.ObserveDecision(string(d.Action), d.Source)
	p.logDecision(log, symbol, traceID, price, fused, d, pctx)

	for _, item := range items {
		p.Store.MarkEventSeen(symbol, news.EventKey(item, symbol))
		p.Store.MarkNewsSeen(symbol, news.ID(item))
	}

	res.Outcome = p.Executor.Execute(ctx, Intent{
		Trace:     traceID,
		Symbol:    symbol,
		Decision:  d,
		Price:     price,
		Positions: positions,
		Fusion:    fused,
	})
	return res, nil
}

func (p *Processor) fetchNews(ctx context.Context, symbol string, now time.Time) []types.NewsItem {
	if items, ok := p.Cache.Get(symbol); ok {
		return items
	}
	day := now.In(p.Hours.Location())
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location()).AddDate(0, 0, -p.cfg.LookbackDays)
	var items []types.NewsItem
	err := p.Gate.Do(ctx, func(ctx context.Context) error {
		var err error
		items, err = p.Data.News(ctx, symbol, from, day, p.cfg.MaxNews)
		return err
	})
	if err != nil {
		metrics.ObserveSymbolError("news")
		logger.Warnf("%s: news fetch failed: %v", symbol, err)
		return nil
	}
	p.Store.SetLastNews(symbol, types.UnixSeconds(now))
	p.Cache.Set(symbol, items)
	return items
}

// resolvePrice prefers a fresh cached price, then a quote when trading hours
// allow it, then the last known price. It returns 0 only when no price was
// ever recorded.
func (p *Processor) resolvePrice(ctx context.Context, symbol string, snap state.SymbolState, now time.Time) float64 {
	if p.cfg.PricePoll > 0 && snap.LastPriceTS > 0 && snap.LastPrice > 0 &&
		now.Sub(types.FromUnix(snap.LastPriceTS)) < p.cfg.PricePoll {
		return snap.LastPrice
	}
	if p.cfg.MarketOnlyPrice && !p.Clock.IsOpen(ctx) {
		return snap.LastPrice
	}
	var (
		price float64
		ok    bool
	)
	err := p.Gate.Do(ctx, func(ctx context.Context) error {
		var err error
		price, ok, err = p.Data.Quote(ctx, symbol)
		return err
	})
	if err != nil {
		metrics.ObserveSymbolError("quote")
		logger.Debugf("%s: quote failed, reusing last price: %v", symbol, err)
		return snap.LastPrice
	}
	if !ok {
		logger.Debugf("%s: no quote, reusing last price %.2f", symbol, snap.LastPrice)
		return snap.LastPrice
	}
	p.Store.SetPrice(symbol, price, types.UnixSeconds(p.now()))
	return price
}

func (p *Processor) logDecision(log *slog.Logger, symbol, traceID string, price float64, fused sentiment.Result, d types.Decision, pctx *market.PriceContext) {
	attrs := []any{"sentiment", fmt.Sprintf("%+.3f", d.SentimentUsed), "action", d.Action, "source", d.Source}
	if price > 0 {
		attrs = append(attrs, "price", price)
	}
	if p.cfg.UseGPT {
		attrs = append(attrs, "lexical", fmt.Sprintf("%+.3f", fused.Lexical))
		if fused.HasLLM {
			attrs = append(attrs, "llm", fmt.Sprintf("%+.3f", fused.LLM))
		}
		if fused.Summary.Count > 0 {
			attrs = append(attrs,
				"emotions", fused.Summary.EmotionString(),
				"exp_move", fmt.Sprintf("%+.2f%% (%s)", fused.Summary.AvgMovePct, fused.Summary.MoveDir))
			if fused.Summary.Decision != "" {
				attrs = append(attrs, "llm_decision", fused.Summary.Decision)
			}
		}
	}
	log.Info("decision", attrs...)

	ev := audit.DecisionEvent{
		TS:        p.now(),
		Trace:     traceID,
		Symbol:    symbol,
		Lexical:   fused.Lexical,
		Sentiment: d.SentimentUsed,
		Action:    string(d.Action),
		Strategy:  d.Source,
	}
	if price > 0 {
		ev.Price = audit.Float(price)
	}
	if fused.HasLLM {
		ev.LLM = audit.Float(fused.LLM)
	}
	if len(fused.Summary.TopEmotions) > 0 {
		ev.Emotions = fused.Summary.EmotionString()
	}
	if fused.Summary.Count > 0 {
		ev.LLMConfidence = audit.Float(fused.Summary.AvgConfidence)
		ev.ExpMovePct = audit.Float(fused.Summary.AvgMovePct)
	}
	if pctx != nil {
		ev.PriceChangePct = audit.Float(pctx.ChangePct)
		ev.VolPct = audit.Float(pctx.VolPct)
		ev.Trend = string(pctx.Trend)
	}
	p.Sink.LogDecision(ev)
}
