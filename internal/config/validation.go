package config

import (
	"strings"

	"newstrader/internal/types"
)

// Validate checks startup invariants. Every failure is a *types.ConfigurationError.
func Validate(c *Config) error {
	if c == nil {
		return &types.ConfigurationError{Reason: "nil config"}
	}
	checks := []func() error{
		c.Keys.validate,
		c.Strategy.validate,
		c.Trading.validate,
		c.Bracket.validate,
		c.Loop.validate,
		func() error { return c.validateCredentials() },
		func() error { return c.Notify.validate() },
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func (k *KeysConfig) validate() error {
	if strings.TrimSpace(k.Finnhub) == "" {
		return &types.ConfigurationError{Field: "keys.finnhub", Reason: "is required (or set " + EnvFinnhubKey + ")"}
	}
	return nil
}

func (s *StrategyConfig) validate() error {
	switch s.Name {
	case "rule", "gpt", "hybrid":
	default:
		return &types.ConfigurationError{Field: "strategy.name", Reason: "must be one of rule|gpt|hybrid, got " + s.Name}
	}
	if s.PosThreshold < 0 {
		return &types.ConfigurationError{Field: "strategy.pos_threshold", Reason: "must be >= 0"}
	}
	if s.CloseThreshold < 0 {
		return &types.ConfigurationError{Field: "strategy.close_threshold", Reason: "must be >= 0"}
	}
	return nil
}

func (t *TradingConfig) validate() error {
	switch t.AlpacaEnv {
	case "paper", "live":
	default:
		return &types.ConfigurationError{Field: "trading.alpaca_env", Reason: "must be paper or live"}
	}
	switch t.OrderSizeMode {
	case "auto", "shares", "dollars":
	default:
		return &types.ConfigurationError{Field: "trading.order_size_mode", Reason: "must be auto|shares|dollars"}
	}
	if t.Enabled && t.Live() && !t.ConfirmLiveTrade {
		return &types.ConfigurationError{
			Field:  "trading.confirm_live_trade",
			Reason: "must be true when alpaca_env=live; refusing to place live orders by accident",
		}
	}
	if t.MaxOpenPositions < 0 {
		return &types.ConfigurationError{Field: "trading.max_open_positions", Reason: "must be >= 0"}
	}
	if t.SharesPerTrade < 0 {
		return &types.ConfigurationError{Field: "trading.shares_per_trade", Reason: "must be >= 0"}
	}
	return nil
}

func (b *BracketConfig) validate() error {
	if b.TPPctMin > b.TPPctMax {
		return &types.ConfigurationError{Field: "bracket.tp_pct_min", Reason: "must not exceed tp_pct_max"}
	}
	if b.SLPctMin > b.SLPctMax {
		return &types.ConfigurationError{Field: "bracket.sl_pct_min", Reason: "must not exceed sl_pct_max"}
	}
	return nil
}

func (l *LoopConfig) validate() error {
	if l.SymbolsPerBatch < 0 {
		return &types.ConfigurationError{Field: "loop.symbols_per_batch", Reason: "must be >= 0"}
	}
	return nil
}

func (c *Config) validateCredentials() error {
	if c.Trading.Enabled || c.Price.UseAlpacaData {
		if strings.TrimSpace(c.Keys.AlpacaKey) == "" || strings.TrimSpace(c.Keys.AlpacaSecret) == "" {
			return &types.ConfigurationError{
				Field:  "keys.alpaca_key",
				Reason: "alpaca key and secret are required for trading or alpaca data (" + EnvAlpacaKey + "/" + EnvAlpacaSecret + ")",
			}
		}
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	if !n.Telegram.Enabled {
		return nil
	}
	if strings.TrimSpace(n.Telegram.BotToken) == "" || strings.TrimSpace(n.Telegram.ChatID) == "" {
		return &types.ConfigurationError{Field: "notify.telegram", Reason: "enabled but bot_token/chat_id missing"}
	}
	return nil
}
