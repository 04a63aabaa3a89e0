package config

import "strings"

// Config is the single, fully enumerated runtime configuration.
type Config struct {
	App        AppConfig        `toml:"app"`
	Universe   UniverseConfig   `toml:"universe"`
	News       NewsConfig       `toml:"news"`
	RateLimit  RateLimitConfig  `toml:"ratelimit"`
	Loop       LoopConfig       `toml:"loop"`
	Price      PriceConfig      `toml:"price"`
	Sentiment  SentimentConfig  `toml:"sentiment"`
	Strategy   StrategyConfig   `toml:"strategy"`
	Drawdown   DrawdownConfig   `toml:"drawdown"`
	Trading    TradingConfig    `toml:"trading"`
	Bracket    BracketConfig    `toml:"bracket"`
	Compliance ComplianceConfig `toml:"compliance"`
	Macro      MacroConfig      `toml:"macro"`
	Audit      AuditConfig      `toml:"audit"`
	Notify     NotifyConfig     `toml:"notify"`
	Keys       KeysConfig       `toml:"keys"`
}

type AppConfig struct {
	Env       string `toml:"env"`
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
	LogPath   string `toml:"log_path"`
	LLMLog    string `toml:"llm_log_path"`
	LLMDump   bool   `toml:"llm_dump"`
	HTTPAddr  string `toml:"http_addr"`
	StateFile string `toml:"state_file"`
}

type UniverseConfig struct {
	Tickers       []string `toml:"tickers"`
	SP500         bool     `toml:"sp500"`
	Randomize     bool     `toml:"randomize"`
	LimitTickers  int      `toml:"limit_tickers"`
	WatchlistFile string   `toml:"watchlist_file"`
}

type NewsConfig struct {
	MaxNews          int     `toml:"max_news"`
	LookbackDays     int     `toml:"lookback_days"`
	PollSeconds      float64 `toml:"poll_seconds"`
	CacheFile        string  `toml:"cache_file"`
	CacheTTLSeconds  int     `toml:"cache_ttl_seconds"`
	CacheMaxItems    int     `toml:"cache_max_items"`
	MaxSeenPerSymbol int     `toml:"max_seen_per_symbol"`
	SleepSeconds     float64 `toml:"sleep_seconds"`
	FinnhubBaseURL   string  `toml:"finnhub_base_url"`
}

type RateLimitConfig struct {
	MaxRPM              int     `toml:"max_rpm"`
	MinIntervalSeconds  float64 `toml:"min_interval_seconds"`
	Backoff             bool    `toml:"backoff"`
	BackoffStartSeconds float64 `toml:"backoff_start_seconds"`
	BackoffMaxSeconds   float64 `toml:"backoff_max_seconds"`
	BackoffMultiplier   float64 `toml:"backoff_multiplier"`
	BackoffDecay        float64 `toml:"backoff_decay"`
}

type LoopConfig struct {
	Enabled             bool    `toml:"enabled"`
	PollSeconds         float64 `toml:"poll_seconds"`
	ClampNewsRate       bool    `toml:"clamp_news_rate"`
	SymbolsPerBatch     int     `toml:"symbols_per_batch"`
	BatchSleepSeconds   float64 `toml:"batch_sleep_seconds"`
	HoldingsWatcher     bool    `toml:"holdings_watcher"`
	HoldingsPollSeconds float64 `toml:"holdings_poll_seconds"`
}

type PriceConfig struct {
	PollSeconds            float64 `toml:"poll_seconds"`
	HistoryWindowMin       float64 `toml:"history_window_min"`
	HistoryPoints          int     `toml:"history_points"`
	MarketOnlyPrice        bool    `toml:"market_only_price"`
	MarketTimezone         string  `toml:"market_timezone"`
	UseAlpacaData          bool    `toml:"use_alpaca_data"`
	AlpacaDataBaseURL      string  `toml:"alpaca_data_base_url"`
	SnapshotOffhoursPrices bool    `toml:"snapshot_offhours_prices"`
}

type SentimentConfig struct {
	UseGPT              bool    `toml:"use_gpt"`
	GPTModel            string  `toml:"gpt_model"`
	GPTWeight           float64 `toml:"gpt_weight"`
	GPTMaxNews          int     `toml:"gpt_max_news"`
	GPTTimeoutSeconds   float64 `toml:"gpt_timeout_seconds"`
	GPTMinAbsVader      float64 `toml:"gpt_min_abs_vader"`
	GPTMinWindowMovePct float64 `toml:"gpt_min_window_move_pct"`
	APIBaseURL          string  `toml:"api_base_url"`
	BreakerThreshold    int     `toml:"breaker_threshold"`
	BreakerCooldownSecs int     `toml:"breaker_cooldown_seconds"`
}

type StrategyConfig struct {
	Name                     string  `toml:"name"`
	PosThreshold             float64 `toml:"pos_threshold"`
	CloseThreshold           float64 `toml:"close_threshold"`
	InPosExitSentiment       float64 `toml:"in_pos_exit_sentiment"`
	UseGPTDecision           bool    `toml:"use_gpt_decision"`
	GPTDecisionMinConfidence float64 `toml:"gpt_decision_min_confidence"`
	FactorWeight             float64 `toml:"factor_weight"`
	FactorWindowChgScale     float64 `toml:"factor_window_chg_scale"`
	FactorVolPenaltyScale    float64 `toml:"factor_vol_penalty_scale"`
	FactorTrendBonus         float64 `toml:"factor_trend_bonus"`
	FactorRangeBiasWeight    float64 `toml:"factor_range_bias_weight"`
}

type DrawdownConfig struct {
	Enabled            bool    `toml:"enabled"`
	MaxDropPct         float64 `toml:"max_drop_pct"`
	WindowMin          float64 `toml:"window_min"`
	WindowDropPct      float64 `toml:"window_drop_pct"`
	MinConsecutiveDown int     `toml:"min_consecutive_down"`
	RequireBoth        bool    `toml:"require_both"`
}

// TradingConfig switches between dry-run and broker submission and holds the sizing knobs.
type TradingConfig struct {
	Enabled              bool    `toml:"enabled"`
	AlpacaEnv            string  `toml:"alpaca_env"`
	AlpacaBaseURL        string  `toml:"alpaca_base_url"`
	ConfirmLiveTrade     bool    `toml:"confirm_live_trade"`
	LongOnly             bool    `toml:"long_only"`
	MarketOnlyTrade      bool    `toml:"market_only_trade"`
	TradeCooldownMinutes float64 `toml:"trade_cooldown_minutes"`
	OrderSizeMode        string  `toml:"order_size_mode"`
	SharesPerTrade       int     `toml:"shares_per_trade"`
	DollarsPerTrade      float64 `toml:"dollars_per_trade"`
	AllocationPct        float64 `toml:"allocation_pct"`
	MaxOpenPositions     int     `toml:"max_open_positions"`
	MaxUSDPerSymbol      float64 `toml:"max_usd_per_symbol"`
	MaxPctPerSymbol      float64 `toml:"max_pct_per_symbol"`
}

// Mode labels the trade log rows.
func (t TradingConfig) Mode() string {
	if !t.Enabled {
		return "dry-run"
	}
	if t.Live() {
		return "trade-live"
	}
	return "trade-paper"
}

func (t TradingConfig) Live() bool {
	return strings.EqualFold(strings.TrimSpace(t.AlpacaEnv), "live")
}

type BracketConfig struct {
	UseBracket        bool    `toml:"use_bracket"`
	TPPct             float64 `toml:"tp_pct"`
	SLPct             float64 `toml:"sl_pct"`
	Dynamic           bool    `toml:"dynamic"`
	TPPctMin          float64 `toml:"tp_pct_min"`
	TPPctMax          float64 `toml:"tp_pct_max"`
	SLPctMin          float64 `toml:"sl_pct_min"`
	SLPctMax          float64 `toml:"sl_pct_max"`
	RRMultiple        float64 `toml:"rr_multiple"`
	ScaleByGPTConf    bool    `toml:"scale_by_gpt_conf"`
	DualHorizon       bool    `toml:"dual_horizon"`
	CoreAllocationPct float64 `toml:"core_allocation_pct"`
	CoreUseBracket    bool    `toml:"core_use_bracket"`
	CoreTPPct         float64 `toml:"core_tp_pct"`
	CoreSLPct         float64 `toml:"core_sl_pct"`
}

type ComplianceConfig struct {
	EnforcePDT       bool    `toml:"enforce_pdt"`
	PDTMinEquity     float64 `toml:"pdt_min_equity"`
	MaxDaytrades5d   int     `toml:"max_daytrades_5d"`
	PDTAllowRiskExit bool    `toml:"pdt_allow_risk_exit"`
	TaxAware         bool    `toml:"tax_aware"`
	LTCGDays         int     `toml:"ltcg_days"`
	TaxMinHoldDays   int     `toml:"tax_min_hold_days"`
	TaxMinProfitUSD  float64 `toml:"tax_min_profit_usd"`
}

type MacroConfig struct {
	GDELT            bool     `toml:"gdelt"`
	Themes           []string `toml:"themes"`
	MaxRecords       int      `toml:"max_records"`
	TimespanMin      int      `toml:"timespan_min"`
	PollSeconds      float64  `toml:"poll_seconds"`
	AffectsSentiment bool     `toml:"affects_sentiment"`
	BaseURL          string   `toml:"base_url"`
}

type AuditConfig struct {
	TradesCSV    string `toml:"trades_csv"`
	DecisionsCSV string `toml:"decisions_csv"`
	SQLitePath   string `toml:"sqlite_path"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

// KeysConfig holds credentials; environment variables win over file values.
type KeysConfig struct {
	Finnhub      string `toml:"finnhub"`
	AlpacaKey    string `toml:"alpaca_key"`
	AlpacaSecret string `toml:"alpaca_secret"`
	OpenAI       string `toml:"openai"`
}

// keySet tracks the dotted paths explicitly set in the config files.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	_, ok := k[strings.ToLower(strings.TrimSpace(path))]
	return ok
}

type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
