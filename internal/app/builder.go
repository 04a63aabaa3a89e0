package app

import (
	"context"
	"fmt"
	"time"

	"newstrader/internal/audit"
	"newstrader/internal/config"
	"newstrader/internal/decision"
	"newstrader/internal/engine"
	"newstrader/internal/gateway/broker"
	"newstrader/internal/gateway/data"
	"newstrader/internal/gateway/notifier"
	"newstrader/internal/gateway/provider"
	"newstrader/internal/logger"
	"newstrader/internal/market"
	"newstrader/internal/metrics"
	"newstrader/internal/news"
	"newstrader/internal/pkg/circuit"
	"newstrader/internal/pkg/ratelimit"
	"newstrader/internal/sentiment"
	"newstrader/internal/sizing"
	"newstrader/internal/state"
	livehttp "newstrader/internal/transport/http/live"
	"newstrader/internal/universe"
)

const latestDecisionTTL = 24 * time.Hour

// AppBuilder assembles the engine from configuration. The function fields are
// the seams tests replace.
type AppBuilder struct {
	cfg *config.Config

	brokerFn   func(*config.Config) engine.Broker
	dataFn     func(*config.Config) engine.DataSource
	assessorFn func(*config.Config) sentiment.Assessor
	notifierFn func(*config.Config) notifier.TextNotifier
	fetcherFn  func(*config.Config) *universe.Fetcher
}

type AppBuilderOption func(*AppBuilder)

// WithBroker replaces the Alpaca trading client. A nil broker means dry-run.
func WithBroker(b engine.Broker) AppBuilderOption {
	return func(ab *AppBuilder) {
		ab.brokerFn = func(*config.Config) engine.Broker { return b }
	}
}

func WithDataSource(src engine.DataSource) AppBuilderOption {
	return func(ab *AppBuilder) {
		ab.dataFn = func(*config.Config) engine.DataSource { return src }
	}
}

func WithAssessor(a sentiment.Assessor) AppBuilderOption {
	return func(ab *AppBuilder) {
		ab.assessorFn = func(*config.Config) sentiment.Assessor { return a }
	}
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:        cfg,
		brokerFn:   buildBroker,
		dataFn:     buildDataSource,
		assessorFn: buildAssessor,
		notifierFn: buildNotifier,
		fetcherFn:  func(*config.Config) *universe.Fetcher { return universe.NewFetcher() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func provideAppBuilder(cfg *config.Config, opts []AppBuilderOption) *AppBuilder {
	return NewAppBuilder(cfg, opts...)
}

type appBuilderDeps interface {
	Build(context.Context) (*App, error)
}

func provideAppFromBuilder(b appBuilderDeps, ctx context.Context) (*App, error) {
	return b.Build(ctx)
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	if cfg.Normalize() {
		logger.Infof("loop mode: poll clamped to %.0fs, news poll %.0fs", cfg.Loop.PollSeconds, cfg.News.PollSeconds)
	}

	hours := market.NewHours(cfg.Price.MarketTimezone)
	store := state.NewStore(cfg.App.StateFile, cfg.News.MaxSeenPerSymbol, cfg.Price.HistoryPoints)
	store.SetSeriesWindow(cfg.Price.HistoryWindowMin)
	if err := store.Load(); err != nil {
		logger.Warnf("starting from empty state: %v", err)
	}

	brk := b.brokerFn(cfg)
	src := b.dataFn(cfg)
	clock := engine.NewMarketClock(brk, hours)

	sinks, latest, history, err := buildSinks(cfg.Audit)
	if err != nil {
		return nil, err
	}

	gate := ratelimit.NewGate(ratelimit.Config{
		MaxRPM:            cfg.RateLimit.MaxRPM,
		MinInterval:       seconds(cfg.RateLimit.MinIntervalSeconds),
		BackoffEnabled:    cfg.RateLimit.Backoff,
		BackoffStart:      cfg.RateLimit.BackoffStartSeconds,
		BackoffMax:        cfg.RateLimit.BackoffMaxSeconds,
		BackoffMultiplier: cfg.RateLimit.BackoffMultiplier,
		BackoffDecay:      cfg.RateLimit.BackoffDecay,
	})
	gate.OnBackoffChange(metrics.SetGateBackoff)

	var macro *news.MacroFeed
	switch {
	case cfg.Macro.GDELT && len(cfg.Macro.Themes) == 0:
		logger.Warnf("macro.gdelt is set without macro.themes; macro feed disabled")
	case cfg.Macro.GDELT:
		macro = news.NewMacroFeed(src, news.MacroConfig{
			Themes:      cfg.Macro.Themes,
			MaxRecords:  cfg.Macro.MaxRecords,
			TimespanMin: cfg.Macro.TimespanMin,
			Poll:        seconds(cfg.Macro.PollSeconds),
		})
	}

	var assessor sentiment.Assessor
	if cfg.Sentiment.UseGPT {
		assessor = b.assessorFn(cfg)
	}
	fuser := sentiment.NewFuser(sentiment.NewLexicon(), assessor, store, sentiment.FusionConfig{
		Weight:           cfg.Sentiment.GPTWeight,
		MaxModelItems:    cfg.Sentiment.GPTMaxNews,
		MinAbsLexical:    cfg.Sentiment.GPTMinAbsVader,
		MinWindowMovePct: cfg.Sentiment.GPTMinWindowMovePct,
	})

	executor := engine.NewExecutor(engine.ExecConfig{
		Enabled:         cfg.Trading.Enabled,
		Mode:            cfg.Trading.Mode(),
		LongOnly:        cfg.Trading.LongOnly,
		MarketOnlyTrade: cfg.Trading.MarketOnlyTrade,
		TradeCooldown:   time.Duration(cfg.Trading.TradeCooldownMinutes * float64(time.Minute)),
	}, engine.ExecutorDeps{
		Broker:   brk,
		Planner:  sizing.NewPlanner(sizingConfig(cfg)),
		PDT:      decision.NewPDTGate(pdtConfig(cfg.Compliance), hours),
		Store:    store,
		Clock:    clock,
		Hours:    hours,
		Sink:     sinks,
		Notifier: b.notifierFn(cfg),
	})

	proc := engine.NewProcessor(engine.ProcessorConfig{
		MaxNews:               cfg.News.MaxNews,
		LookbackDays:          cfg.News.LookbackDays,
		NewsPoll:              seconds(cfg.News.PollSeconds),
		NewsSleep:             seconds(cfg.News.SleepSeconds),
		PricePoll:             seconds(cfg.Price.PollSeconds),
		MarketOnlyPrice:       cfg.Price.MarketOnlyPrice,
		MacroAffectsSentiment: cfg.Macro.AffectsSentiment,
		UseGPT:                assessor != nil,
	}, engine.ProcessorDeps{
		Data:     src,
		Gate:     gate,
		Cache:    news.NewCache(cfg.News.CacheFile, time.Duration(cfg.News.CacheTTLSeconds)*time.Second, cfg.News.CacheMaxItems),
		Macro:    macro,
		Store:    store,
		Tracker:  market.NewTracker(cfg.Price.HistoryWindowMin, cfg.Price.HistoryPoints),
		Fuser:    fuser,
		Pipeline: decision.New(decisionConfig(cfg)),
		Executor: executor,
		Clock:    clock,
		Hours:    hours,
		Sink:     sinks,
	})

	var watchlist *universe.Watchlist
	if cfg.Universe.WatchlistFile != "" {
		if watchlist, err = universe.LoadWatchlist(cfg.Universe.WatchlistFile); err != nil {
			return nil, err
		}
	}
	var fetcher *universe.Fetcher
	if cfg.Universe.SP500 {
		fetcher = b.fetcherFn(cfg)
	}
	resolver := universe.NewResolver(cfg.Universe, fetcher, watchlist)
	symbols := resolver.Load(ctx)
	if len(symbols) == 0 {
		return nil, fmt.Errorf("empty universe: set universe.tickers, universe.sp500 or universe.watchlist_file")
	}

	prefetch := engine.NewPrefetcher(engine.PrefetchConfig{
		UseSnapshots:     cfg.Price.UseAlpacaData,
		MarketOnlyPrice:  cfg.Price.MarketOnlyPrice,
		SnapshotOffhours: cfg.Price.SnapshotOffhoursPrices,
	}, src, clock, store)
	watcherOn := cfg.Loop.HoldingsWatcher && brk != nil
	scanner := engine.NewScanner(engine.ScanConfig{
		SymbolsPerBatch: cfg.Loop.SymbolsPerBatch,
		BatchSleep:      seconds(cfg.Loop.BatchSleepSeconds),
		Poll:            seconds(cfg.Loop.PollSeconds),
		SkipHeld:        watcherOn,
	}, proc, brk, prefetch, store, resolver.Symbols)

	a := &App{
		cfg:       cfg,
		store:     store,
		scanner:   scanner,
		macro:     macro,
		watchlist: watchlist,
		history:   history,
		Summary:   newStartupSummary(cfg, symbols, assessor != nil),
	}
	if watcherOn {
		a.watcher = engine.NewWatcher(seconds(cfg.Loop.HoldingsPollSeconds), proc, brk, prefetch, store)
	}
	if cfg.Loop.Enabled && cfg.App.HTTPAddr != "" {
		a.http, err = livehttp.NewServer(livehttp.ServerConfig{
			Addr:    cfg.App.HTTPAddr,
			Store:   store,
			Latest:  latest,
			History: history,
			Mode:    cfg.Trading.Mode(),
		})
		if err != nil {
			return nil, err
		}
	}
	return a, nil
}

func buildSinks(cfg config.AuditConfig) (audit.Multi, *audit.Latest, *audit.SQLiteSink, error) {
	latest := audit.NewLatest(latestDecisionTTL)
	sinks := audit.Multi{audit.NewCSVSink(cfg.TradesCSV, cfg.DecisionsCSV), latest}
	var history *audit.SQLiteSink
	if cfg.SQLitePath != "" {
		var err error
		if history, err = audit.NewSQLiteSink(cfg.SQLitePath); err != nil {
			return nil, nil, nil, fmt.Errorf("open audit db: %w", err)
		}
		sinks = append(sinks, history)
	}
	return sinks, latest, history, nil
}

func buildBroker(cfg *config.Config) engine.Broker {
	if !cfg.Trading.Enabled {
		return nil
	}
	return broker.NewAlpaca(broker.Config{
		BaseURL: cfg.Trading.AlpacaBaseURL,
		Key:     cfg.Keys.AlpacaKey,
		Secret:  cfg.Keys.AlpacaSecret,
	})
}

func buildDataSource(cfg *config.Config) engine.DataSource {
	src := &data.Source{Company: data.NewFinnhub(cfg.News.FinnhubBaseURL, cfg.Keys.Finnhub)}
	if cfg.Macro.GDELT {
		src.Macro = data.NewGDELT(cfg.Macro.BaseURL)
	}
	if cfg.Price.UseAlpacaData && cfg.Keys.AlpacaKey != "" {
		src.Prices = data.NewAlpacaSnapshots(cfg.Price.AlpacaDataBaseURL, cfg.Keys.AlpacaKey, cfg.Keys.AlpacaSecret)
	}
	return src
}

// buildAssessor returns nil when no key is configured, which turns the model
// scorer off instead of failing every call.
func buildAssessor(cfg *config.Config) sentiment.Assessor {
	if cfg.Keys.OpenAI == "" {
		logger.Warnf("sentiment.use_gpt is set but no OpenAI key is configured; using the lexicon only")
		return nil
	}
	timeout := seconds(cfg.Sentiment.GPTTimeoutSeconds)
	model := provider.NewOpenAIChatClient(cfg.Sentiment.APIBaseURL, cfg.Keys.OpenAI, cfg.Sentiment.GPTModel, timeout)
	breaker := circuit.New("llm", cfg.Sentiment.BreakerThreshold, time.Duration(cfg.Sentiment.BreakerCooldownSecs)*time.Second)
	breaker.OnStateChange(func(name string, from, to circuit.State) {
		logger.Warnf("circuit %s: %s -> %s", name, from, to)
	})
	a, err := sentiment.NewLLMAssessor(model, cfg.Sentiment.GPTModel, breaker, timeout)
	if err != nil {
		logger.Errorf("sentiment model disabled: %v", err)
		return nil
	}
	return a
}

func buildNotifier(cfg *config.Config) notifier.TextNotifier {
	tg := cfg.Notify.Telegram
	if !tg.Enabled {
		return notifier.Nop{}
	}
	return notifier.NewTelegram("", tg.BotToken, tg.ChatID)
}

func sizingConfig(cfg *config.Config) sizing.Config {
	t, b := cfg.Trading, cfg.Bracket
	return sizing.Config{
		SizeMode:         t.OrderSizeMode,
		SharesPerTrade:   t.SharesPerTrade,
		DollarsPerTrade:  t.DollarsPerTrade,
		AllocationPct:    t.AllocationPct,
		MaxOpenPositions: t.MaxOpenPositions,
		MaxUSDPerSymbol:  t.MaxUSDPerSymbol,
		MaxPctPerSymbol:  t.MaxPctPerSymbol,
		Bracket: sizing.BracketConfig{
			Enabled:           b.UseBracket,
			Dynamic:           b.Dynamic,
			TPPct:             b.TPPct,
			SLPct:             b.SLPct,
			TPMin:             b.TPPctMin,
			TPMax:             b.TPPctMax,
			SLMin:             b.SLPctMin,
			SLMax:             b.SLPctMax,
			RRMultiple:        b.RRMultiple,
			ScaleByConfidence: b.ScaleByGPTConf,
			DualHorizon:       b.DualHorizon,
			CoreAllocationPct: b.CoreAllocationPct,
			CoreUseBracket:    b.CoreUseBracket,
			CoreTPPct:         b.CoreTPPct,
			CoreSLPct:         b.CoreSLPct,
		},
	}
}

func pdtConfig(c config.ComplianceConfig) decision.PDTConfig {
	return decision.PDTConfig{
		Enforce:       c.EnforcePDT,
		MinEquity:     c.PDTMinEquity,
		MaxDaytrades:  c.MaxDaytrades5d,
		AllowRiskExit: c.PDTAllowRiskExit,
	}
}

func decisionConfig(cfg *config.Config) decision.Config {
	s, dd, c := cfg.Strategy, cfg.Drawdown, cfg.Compliance
	return decision.Config{
		Strategy:           s.Name,
		PosThreshold:       s.PosThreshold,
		CloseThreshold:     s.CloseThreshold,
		InPosExitSentiment: s.InPosExitSentiment,
		UseGPTDecision:     s.UseGPTDecision,
		MinGPTConfidence:   s.GPTDecisionMinConfidence,
		Factor: decision.FactorConfig{
			Weight:      s.FactorWeight,
			ChgScale:    s.FactorWindowChgScale,
			VolScale:    s.FactorVolPenaltyScale,
			TrendBonus:  s.FactorTrendBonus,
			RangeWeight: s.FactorRangeBiasWeight,
		},
		Drawdown: decision.DrawdownConfig{
			Enabled:            dd.Enabled,
			MaxDropPct:         dd.MaxDropPct,
			WindowMin:          dd.WindowMin,
			WindowDropPct:      dd.WindowDropPct,
			MinConsecutiveDown: dd.MinConsecutiveDown,
			RequireBoth:        dd.RequireBoth,
		},
		Tax: decision.TaxConfig{
			Enabled:      c.TaxAware,
			LTCGDays:     c.LTCGDays,
			MinHoldDays:  c.TaxMinHoldDays,
			MinProfitUSD: c.TaxMinProfitUSD,
		},
	}
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
