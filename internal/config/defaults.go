package config

import (
	"math"
	"strings"
)

const (
	defaultAppEnv       = "dev"
	defaultAppLogLevel  = "info"
	defaultAppLogFormat = "text"
	defaultAppHTTPAddr  = ":9991"
	defaultAppLogPath   = "logs/newstrader.log"
	defaultAppLLMLog    = "logs/newstrader-llm.log"
	defaultStateFile    = "nt_state.json"

	defaultMaxNews          = 20
	defaultLookbackDays     = 3
	defaultNewsCacheFile    = "logs/news_cache.json"
	defaultNewsCacheTTL     = 300
	defaultNewsCacheMax     = 50
	defaultMaxSeenPerSymbol = 500
	defaultFinnhubBaseURL   = "https://finnhub.io/api/v1"

	defaultMaxRPM          = 50
	defaultMinInterval     = 0.25
	defaultBackoffStart    = 2.0
	defaultBackoffMax      = 120.0
	defaultBackoffMultiply = 2.0
	defaultBackoffDecay    = 0.5

	defaultLoopPoll          = 60.0
	defaultSymbolsPerBatch   = 50
	defaultBatchSleepSeconds = 5.0
	defaultHoldingsPoll      = 20.0

	defaultHistoryWindowMin  = 30.0
	defaultHistoryPoints     = 10
	defaultMarketTimezone    = "America/New_York"
	defaultAlpacaDataBaseURL = "https://data.alpaca.markets/v2"

	defaultGPTModel            = "gpt-4o-mini"
	defaultGPTWeight           = 0.5
	defaultGPTMaxNews          = 5
	defaultGPTTimeout          = 20.0
	defaultGPTMinAbsVader      = 0.1
	defaultGPTMinWindowMovePct = 0.5
	defaultOpenAIBaseURL       = "https://api.openai.com/v1"
	defaultBreakerThreshold    = 3
	defaultBreakerCooldown     = 60

	defaultStrategy          = "rule"
	defaultPosThreshold      = 0.4
	defaultCloseThreshold    = 0.1
	defaultInPosExit         = -0.05
	defaultFactorChgScale    = 2.0
	defaultFactorVolScale    = 10.0
	defaultFactorTrendBonus  = 0.1
	defaultFactorRangeWeight = 0.1

	defaultDDMaxDropPct       = 5.0
	defaultDDWindowMin        = 15.0
	defaultDDWindowDropPct    = 1.0
	defaultDDMinConsecutiveDn = 3

	defaultAlpacaEnv        = "paper"
	defaultAlpacaPaperURL   = "https://paper-api.alpaca.markets/v2"
	defaultAlpacaLiveURL    = "https://api.alpaca.markets/v2"
	defaultOrderSizeMode    = "auto"
	defaultDollarsPerTrade  = 1000.0
	defaultAllocationPct    = 0.2
	defaultMaxOpenPositions = 20
	defaultMaxUSDPerSymbol  = 2000.0

	defaultTPPct          = 0.02
	defaultSLPct          = 0.01
	defaultRRMultiple     = 2.0
	defaultCoreAllocation = 0.6
	defaultCoreTPPct      = 0.06
	defaultCoreSLPct      = 0.03

	defaultPDTMinEquity   = 25000.0
	defaultMaxDaytrades5d = 3
	defaultLTCGDays       = 365

	defaultGDELTMaxRecords  = 30
	defaultGDELTTimespanMin = 180
	defaultGDELTPollSeconds = 60.0
	defaultGDELTBaseURL     = "https://api.gdeltproject.org/api/v2/doc/doc"

	defaultTradesCSV    = "logs/trades.csv"
	defaultDecisionsCSV = "logs/decisions.csv"
)

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Universe.Tickers = normalizeList(c.Universe.Tickers, true)
	c.News.applyDefaults(keys)
	c.RateLimit.applyDefaults(keys)
	c.Loop.applyDefaults(keys)
	c.Price.applyDefaults(keys)
	c.Sentiment.applyDefaults(keys)
	c.Strategy.applyDefaults(keys)
	c.Drawdown.applyDefaults(keys)
	c.Trading.applyDefaults(keys)
	c.Bracket.applyDefaults(keys)
	c.Compliance.applyDefaults(keys)
	c.Macro.applyDefaults(keys)
	c.Audit.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_format", &a.LogFormat, defaultAppLogFormat),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
		stringFieldDefault("app.llm_log_path", &a.LLMLog, defaultAppLLMLog),
		stringFieldDefault("app.state_file", &a.StateFile, defaultStateFile),
	)
}

func (n *NewsConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		intFieldDefault("news.max_news", &n.MaxNews, defaultMaxNews),
		intFieldDefault("news.lookback_days", &n.LookbackDays, defaultLookbackDays),
		stringFieldDefault("news.cache_file", &n.CacheFile, defaultNewsCacheFile),
		intFieldDefault("news.cache_ttl_seconds", &n.CacheTTLSeconds, defaultNewsCacheTTL),
		intFieldDefault("news.cache_max_items", &n.CacheMaxItems, defaultNewsCacheMax),
		intFieldDefault("news.max_seen_per_symbol", &n.MaxSeenPerSymbol, defaultMaxSeenPerSymbol),
		stringFieldDefault("news.finnhub_base_url", &n.FinnhubBaseURL, defaultFinnhubBaseURL),
	)
}

func (r *RateLimitConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		intFieldDefault("ratelimit.max_rpm", &r.MaxRPM, defaultMaxRPM),
		floatFieldDefault("ratelimit.min_interval_seconds", &r.MinIntervalSeconds, defaultMinInterval),
		boolFieldDefault("ratelimit.backoff", &r.Backoff, true),
		floatFieldDefault("ratelimit.backoff_start_seconds", &r.BackoffStartSeconds, defaultBackoffStart),
		floatFieldDefault("ratelimit.backoff_max_seconds", &r.BackoffMaxSeconds, defaultBackoffMax),
		floatFieldDefault("ratelimit.backoff_multiplier", &r.BackoffMultiplier, defaultBackoffMultiply),
		floatFieldDefault("ratelimit.backoff_decay", &r.BackoffDecay, defaultBackoffDecay),
	)
}

func (l *LoopConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		floatFieldDefault("loop.poll_seconds", &l.PollSeconds, defaultLoopPoll),
		boolFieldDefault("loop.clamp_news_rate", &l.ClampNewsRate, true),
		intFieldDefault("loop.symbols_per_batch", &l.SymbolsPerBatch, defaultSymbolsPerBatch),
		floatFieldDefault("loop.batch_sleep_seconds", &l.BatchSleepSeconds, defaultBatchSleepSeconds),
		floatFieldDefault("loop.holdings_poll_seconds", &l.HoldingsPollSeconds, defaultHoldingsPoll),
	)
}

func (p *PriceConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		floatFieldDefault("price.history_window_min", &p.HistoryWindowMin, defaultHistoryWindowMin),
		intFieldDefault("price.history_points", &p.HistoryPoints, defaultHistoryPoints),
		boolFieldDefault("price.market_only_price", &p.MarketOnlyPrice, true),
		stringFieldDefault("price.market_timezone", &p.MarketTimezone, defaultMarketTimezone),
		stringFieldDefault("price.alpaca_data_base_url", &p.AlpacaDataBaseURL, defaultAlpacaDataBaseURL),
	)
}

func (s *SentimentConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("sentiment.gpt_model", &s.GPTModel, defaultGPTModel),
		floatFieldDefault("sentiment.gpt_weight", &s.GPTWeight, defaultGPTWeight),
		intFieldDefault("sentiment.gpt_max_news", &s.GPTMaxNews, defaultGPTMaxNews),
		floatFieldDefault("sentiment.gpt_timeout_seconds", &s.GPTTimeoutSeconds, defaultGPTTimeout),
		floatFieldDefault("sentiment.gpt_min_abs_vader", &s.GPTMinAbsVader, defaultGPTMinAbsVader),
		floatFieldDefault("sentiment.gpt_min_window_move_pct", &s.GPTMinWindowMovePct, defaultGPTMinWindowMovePct),
		stringFieldDefault("sentiment.api_base_url", &s.APIBaseURL, defaultOpenAIBaseURL),
		intFieldDefault("sentiment.breaker_threshold", &s.BreakerThreshold, defaultBreakerThreshold),
		intFieldDefault("sentiment.breaker_cooldown_seconds", &s.BreakerCooldownSecs, defaultBreakerCooldown),
	)
}

func (s *StrategyConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("strategy.name", &s.Name, defaultStrategy),
		floatFieldDefault("strategy.pos_threshold", &s.PosThreshold, defaultPosThreshold),
		floatFieldDefault("strategy.close_threshold", &s.CloseThreshold, defaultCloseThreshold),
		floatFieldDefault("strategy.in_pos_exit_sentiment", &s.InPosExitSentiment, defaultInPosExit),
		floatFieldDefault("strategy.factor_window_chg_scale", &s.FactorWindowChgScale, defaultFactorChgScale),
		floatFieldDefault("strategy.factor_vol_penalty_scale", &s.FactorVolPenaltyScale, defaultFactorVolScale),
		floatFieldDefault("strategy.factor_trend_bonus", &s.FactorTrendBonus, defaultFactorTrendBonus),
		floatFieldDefault("strategy.factor_range_bias_weight", &s.FactorRangeBiasWeight, defaultFactorRangeWeight),
	)
	s.Name = strings.ToLower(strings.TrimSpace(s.Name))
	s.FactorWeight = clampUnit(s.FactorWeight)
}

func (d *DrawdownConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		floatFieldDefault("drawdown.max_drop_pct", &d.MaxDropPct, defaultDDMaxDropPct),
		floatFieldDefault("drawdown.window_min", &d.WindowMin, defaultDDWindowMin),
		floatFieldDefault("drawdown.window_drop_pct", &d.WindowDropPct, defaultDDWindowDropPct),
		intFieldDefault("drawdown.min_consecutive_down", &d.MinConsecutiveDown, defaultDDMinConsecutiveDn),
	)
}

func (t *TradingConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("trading.alpaca_env", &t.AlpacaEnv, defaultAlpacaEnv),
		boolFieldDefault("trading.long_only", &t.LongOnly, true),
		boolFieldDefault("trading.market_only_trade", &t.MarketOnlyTrade, true),
		stringFieldDefault("trading.order_size_mode", &t.OrderSizeMode, defaultOrderSizeMode),
		floatFieldDefault("trading.dollars_per_trade", &t.DollarsPerTrade, defaultDollarsPerTrade),
		floatFieldDefault("trading.allocation_pct", &t.AllocationPct, defaultAllocationPct),
		intFieldDefault("trading.max_open_positions", &t.MaxOpenPositions, defaultMaxOpenPositions),
		floatFieldDefault("trading.max_usd_per_symbol", &t.MaxUSDPerSymbol, defaultMaxUSDPerSymbol),
	)
	t.AlpacaEnv = strings.ToLower(strings.TrimSpace(t.AlpacaEnv))
	t.OrderSizeMode = strings.ToLower(strings.TrimSpace(t.OrderSizeMode))
	if strings.TrimSpace(t.AlpacaBaseURL) == "" {
		t.AlpacaBaseURL = defaultAlpacaPaperURL
		if t.Live() {
			t.AlpacaBaseURL = defaultAlpacaLiveURL
		}
	}
	t.AllocationPct = clampUnit(t.AllocationPct)
	t.MaxPctPerSymbol = clampUnit(t.MaxPctPerSymbol)
}

func (b *BracketConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		floatFieldDefault("bracket.tp_pct", &b.TPPct, defaultTPPct),
		floatFieldDefault("bracket.sl_pct", &b.SLPct, defaultSLPct),
		floatFieldDefault("bracket.rr_multiple", &b.RRMultiple, defaultRRMultiple),
		boolFieldDefault("bracket.scale_by_gpt_conf", &b.ScaleByGPTConf, true),
		floatFieldDefault("bracket.core_allocation_pct", &b.CoreAllocationPct, defaultCoreAllocation),
		floatFieldDefault("bracket.core_tp_pct", &b.CoreTPPct, defaultCoreTPPct),
		floatFieldDefault("bracket.core_sl_pct", &b.CoreSLPct, defaultCoreSLPct),
	)
	// Dynamic bounds derive from the static percentages unless set explicitly.
	if !keys.isSet("bracket.tp_pct_min") {
		b.TPPctMin = b.TPPct
	}
	if !keys.isSet("bracket.tp_pct_max") {
		b.TPPctMax = math.Max(b.TPPctMin, b.TPPct)
	}
	if !keys.isSet("bracket.sl_pct_min") {
		b.SLPctMin = b.SLPct
	}
	if !keys.isSet("bracket.sl_pct_max") {
		b.SLPctMax = math.Max(b.SLPctMin, b.SLPct)
	}
	b.CoreAllocationPct = clampUnit(b.CoreAllocationPct)
}

func (c *ComplianceConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		floatFieldDefault("compliance.pdt_min_equity", &c.PDTMinEquity, defaultPDTMinEquity),
		intFieldDefault("compliance.max_daytrades_5d", &c.MaxDaytrades5d, defaultMaxDaytrades5d),
		boolFieldDefault("compliance.pdt_allow_risk_exit", &c.PDTAllowRiskExit, true),
		intFieldDefault("compliance.ltcg_days", &c.LTCGDays, defaultLTCGDays),
	)
}

func (m *MacroConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		intFieldDefault("macro.max_records", &m.MaxRecords, defaultGDELTMaxRecords),
		intFieldDefault("macro.timespan_min", &m.TimespanMin, defaultGDELTTimespanMin),
		floatFieldDefault("macro.poll_seconds", &m.PollSeconds, defaultGDELTPollSeconds),
		stringFieldDefault("macro.base_url", &m.BaseURL, defaultGDELTBaseURL),
	)
	m.Themes = normalizeList(m.Themes, false)
}

func (a *AuditConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("audit.trades_csv", &a.TradesCSV, defaultTradesCSV),
		stringFieldDefault("audit.decisions_csv", &a.DecisionsCSV, defaultDecisionsCSV),
	)
}

// Normalize applies the loop-mode news rate clamp (1..5 polls per minute).
// It reports whether any value changed.
func (c *Config) Normalize() bool {
	if !c.Loop.Enabled || !c.Loop.ClampNewsRate {
		return false
	}
	changed := false
	if p := clampFloat(c.Loop.PollSeconds, 12, 60); p != c.Loop.PollSeconds {
		c.Loop.PollSeconds = p
		changed = true
	}
	if c.News.PollSeconds != 0 {
		if p := clampFloat(c.News.PollSeconds, 12, 60); p != c.News.PollSeconds {
			c.News.PollSeconds = p
			changed = true
		}
	}
	return changed
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return target != nil && strings.TrimSpace(*target) == "" },
		apply: func() { *target = def },
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return target != nil },
		apply: func() { *target = def },
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return target != nil && *target == 0 },
		apply: func() { *target = def },
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return target != nil && *target == 0 },
		apply: func() { *target = def },
	}
}

func normalizeList(items []string, upper bool) []string {
	if len(items) == 0 {
		return nil
	}
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if upper {
			it = strings.ToUpper(it)
		}
		if it == "" {
			continue
		}
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	return out
}

func clampUnit(v float64) float64 {
	return clampFloat(v, 0, 1)
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
