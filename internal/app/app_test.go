package app

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newstrader/internal/config"
	"newstrader/internal/types"
)

type stubData struct {
	price float64
	news  []types.NewsItem
	calls int
}

func (s *stubData) News(context.Context, string, time.Time, time.Time, int) ([]types.NewsItem, error) {
	s.calls++
	return s.news, nil
}

func (s *stubData) Quote(context.Context, string) (float64, bool, error) {
	return s.price, s.price > 0, nil
}

func (s *stubData) MacroEvents(context.Context, []string, int, int) ([]types.NewsItem, error) {
	return nil, nil
}

func (s *stubData) Snapshots(context.Context, []string) (map[string]float64, error) {
	return map[string]float64{}, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Keys.Finnhub = "fh"
	cfg.Universe.Tickers = []string{"AAPL", "MSFT"}
	cfg.App.StateFile = filepath.Join(dir, "state.json")
	cfg.News.CacheFile = ""
	cfg.Price.MarketOnlyPrice = false
	cfg.Price.UseAlpacaData = false
	cfg.RateLimit.MinIntervalSeconds = 0
	cfg.News.SleepSeconds = 0
	cfg.Audit.TradesCSV = filepath.Join(dir, "trades.csv")
	cfg.Audit.DecisionsCSV = filepath.Join(dir, "decisions.csv")
	cfg.Audit.SQLitePath = ""
	return cfg
}

func TestNewAppRejectsEmptyUniverse(t *testing.T) {
	cfg := testConfig(t)
	cfg.Universe.Tickers = nil
	_, err := NewApp(context.Background(), cfg, WithDataSource(&stubData{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty universe")
}

func TestNewAppNilConfig(t *testing.T) {
	_, err := NewApp(context.Background(), nil)
	require.Error(t, err)
}

func TestScanOnceDryRunPersistsState(t *testing.T) {
	cfg := testConfig(t)
	src := &stubData{price: 187.5, news: []types.NewsItem{{
		ID:       "n1",
		Headline: "Apple beats estimates",
		Datetime: time.Now().Add(-time.Hour).Unix(),
	}}}
	a, err := NewApp(context.Background(), cfg, WithDataSource(src), WithBroker(nil))
	require.NoError(t, err)
	assert.Nil(t, a.watcher)
	assert.Nil(t, a.http)
	assert.Nil(t, a.macro)

	require.NoError(t, a.ScanOnce(context.Background()))
	assert.Equal(t, 2, src.calls)

	raw, err := os.ReadFile(cfg.App.StateFile)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Contains(t, string(raw), "AAPL")
	assert.Contains(t, string(raw), "MSFT")

	snap := a.Store().Snapshot("AAPL")
	assert.Equal(t, 187.5, snap.LastPrice)

	decisions, err := os.ReadFile(cfg.Audit.DecisionsCSV)
	require.NoError(t, err)
	assert.Contains(t, string(decisions), "AAPL")
}

func TestRunSinglePassWhenLoopDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Loop.Enabled = false
	src := &stubData{price: 50}
	a, err := NewApp(context.Background(), cfg, WithDataSource(src))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, a.Run(ctx))
	assert.Equal(t, 2, src.calls)
}

func TestMacroFeedNeedsThemes(t *testing.T) {
	cfg := testConfig(t)
	cfg.Macro.GDELT = true
	cfg.Macro.Themes = nil
	a, err := NewApp(context.Background(), cfg, WithDataSource(&stubData{}))
	require.NoError(t, err)
	assert.Nil(t, a.macro)

	cfg = testConfig(t)
	cfg.Macro.GDELT = true
	cfg.Macro.Themes = []string{"ECON_INFLATION"}
	a, err = NewApp(context.Background(), cfg, WithDataSource(&stubData{}))
	require.NoError(t, err)
	assert.NotNil(t, a.macro)
}

func TestStartupSummary(t *testing.T) {
	cfg := config.Default()
	cfg.Loop.Enabled = true
	cfg.Loop.HoldingsWatcher = true
	cfg.Bracket.UseBracket = true
	cfg.Bracket.TPPct = 0.02
	cfg.Bracket.SLPct = 0.01
	syms := make([]string, 25)
	for i := range syms {
		syms[i] = "S" + string(rune('A'+i))
	}
	s := newStartupSummary(cfg, syms, false)
	out := s.String()
	assert.Contains(t, out, "25 symbols")
	assert.Contains(t, out, "(+5)")
	assert.Contains(t, out, "dry-run")
	assert.Contains(t, out, "tp 2.00% sl 1.00%")
	assert.Contains(t, out, "holdings every")
	assert.Contains(t, out, "llm:        off")
}
