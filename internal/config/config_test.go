package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"newstrader/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultsAreEnumerated(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 50, cfg.RateLimit.MaxRPM)
	assert.Equal(t, 0.25, cfg.RateLimit.MinIntervalSeconds)
	assert.True(t, cfg.RateLimit.Backoff)
	assert.Equal(t, 2.0, cfg.RateLimit.BackoffStartSeconds)
	assert.Equal(t, 120.0, cfg.RateLimit.BackoffMaxSeconds)
	assert.Equal(t, 300, cfg.News.CacheTTLSeconds)
	assert.Equal(t, 50, cfg.News.CacheMaxItems)
	assert.Equal(t, 10, cfg.Price.HistoryPoints)
	assert.Equal(t, 30.0, cfg.Price.HistoryWindowMin)
	assert.Equal(t, -0.05, cfg.Strategy.InPosExitSentiment)
	assert.Equal(t, 0.02, cfg.Bracket.TPPctMin)
	assert.Equal(t, 0.02, cfg.Bracket.TPPctMax)
	assert.Equal(t, 0.01, cfg.Bracket.SLPctMin)
	assert.Equal(t, 25000.0, cfg.Compliance.PDTMinEquity)
	assert.True(t, cfg.Compliance.PDTAllowRiskExit)
	assert.True(t, cfg.Trading.LongOnly)
	assert.Equal(t, "https://paper-api.alpaca.markets/v2", cfg.Trading.AlpacaBaseURL)
	assert.Equal(t, "dry-run", cfg.Trading.Mode())
}

func TestLoadKeepsExplicitZeroAndFalse(t *testing.T) {
	t.Setenv(EnvFinnhubKey, "fh-test")
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
ratelimit:
  backoff: false
  min_interval_seconds: 0
trading:
  long_only: false
strategy:
  in_pos_exit_sentiment: 0
universe:
  tickers: [aapl, " msft ", AAPL]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.RateLimit.Backoff)
	assert.Equal(t, 0.0, cfg.RateLimit.MinIntervalSeconds)
	assert.False(t, cfg.Trading.LongOnly)
	assert.Equal(t, 0.0, cfg.Strategy.InPosExitSentiment)
	assert.Equal(t, []string{"AAPL", "MSFT"}, cfg.Universe.Tickers)
	assert.Equal(t, "fh-test", cfg.Keys.Finnhub)
}

func TestLoadFollowsIncludes(t *testing.T) {
	t.Setenv(EnvFinnhubKey, "fh-test")
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "strategy:\n  pos_threshold: 0.3\n  close_threshold: 0.05\n")
	path := writeFile(t, dir, "config.yaml", "include: [base.yaml]\nstrategy:\n  pos_threshold: 0.5\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.Strategy.PosThreshold)
	assert.Equal(t, 0.05, cfg.Strategy.CloseThreshold)
}

func TestLoadRejectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "include: [b.yaml]\n")
	writeFile(t, dir, "b.yaml", "include: [a.yaml]\n")
	_, err := Load(filepath.Join(dir, "a.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "include cycle")
}

func TestValidateConfigurationErrors(t *testing.T) {
	base := func() *Config {
		cfg := Default()
		cfg.Keys.Finnhub = "fh"
		return cfg
	}
	cases := []struct {
		name  string
		mut   func(*Config)
		field string
	}{
		{"missing finnhub key", func(c *Config) { c.Keys.Finnhub = "" }, "keys.finnhub"},
		{"bad strategy", func(c *Config) { c.Strategy.Name = "yolo" }, "strategy.name"},
		{"bad sizing mode", func(c *Config) { c.Trading.OrderSizeMode = "lots" }, "trading.order_size_mode"},
		{"live without confirmation", func(c *Config) {
			c.Trading.Enabled = true
			c.Trading.AlpacaEnv = "live"
			c.Keys.AlpacaKey, c.Keys.AlpacaSecret = "k", "s"
		}, "trading.confirm_live_trade"},
		{"trading without alpaca creds", func(c *Config) { c.Trading.Enabled = true }, "keys.alpaca_key"},
		{"telegram without token", func(c *Config) { c.Notify.Telegram.Enabled = true }, "notify.telegram"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mut(cfg)
			err := Validate(cfg)
			var cfgErr *types.ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "expected ConfigurationError, got %v", err)
			assert.Equal(t, tc.field, cfgErr.Field)
		})
	}

	t.Run("live with confirmation passes", func(t *testing.T) {
		cfg := base()
		cfg.Trading.Enabled = true
		cfg.Trading.AlpacaEnv = "live"
		cfg.Trading.ConfirmLiveTrade = true
		cfg.Keys.AlpacaKey, cfg.Keys.AlpacaSecret = "k", "s"
		assert.NoError(t, Validate(cfg))
		assert.Equal(t, "trade-live", cfg.Trading.Mode())
	})
}

func TestNormalizeClampsLoopPolling(t *testing.T) {
	cfg := Default()
	cfg.Loop.Enabled = true
	cfg.Loop.PollSeconds = 5
	cfg.News.PollSeconds = 90
	assert.True(t, cfg.Normalize())
	assert.Equal(t, 12.0, cfg.Loop.PollSeconds)
	assert.Equal(t, 60.0, cfg.News.PollSeconds)

	cfg.News.PollSeconds = 0
	cfg.Loop.PollSeconds = 30
	assert.False(t, cfg.Normalize())
	assert.Equal(t, 0.0, cfg.News.PollSeconds)
}
