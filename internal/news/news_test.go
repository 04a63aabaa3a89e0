package news

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"newstrader/internal/types"
)

func TestEventKeyIgnoresPunctuationCaseAndTicker(t *testing.T) {
	ts := time.Date(2024, 5, 6, 14, 0, 0, 0, time.UTC).Unix()
	a := types.NewsItem{Headline: "AAPL beats earnings estimates!", Summary: "Revenue climbs", Datetime: ts}
	b := types.NewsItem{Headline: "Earnings estimates: aapl BEATS", Summary: "revenue, climbs.", Datetime: ts + 3600}

	assert.Equal(t, EventKeyIn(a, "AAPL", time.UTC), EventKeyIn(b, "AAPL", time.UTC))
	assert.Equal(t, EventKeyIn(a, "AAPL", time.UTC), EventKeyIn(a, "AAPL", time.UTC))

	nextDay := a
	nextDay.Datetime = ts + 86400
	assert.NotEqual(t, EventKeyIn(a, "AAPL", time.UTC), EventKeyIn(nextDay, "AAPL", time.UTC))
}

func TestEventKeyFallsBackToHeadlineHash(t *testing.T) {
	item := types.NewsItem{Headline: "MSFT: on it", Datetime: 1}
	assert.Equal(t, sha1Hex("MSFT: on it"), EventKey(item, "MSFT"))
}

func TestEventKeyWithoutDatetimeHasNoDaySuffix(t *testing.T) {
	item := types.NewsItem{Headline: "Tesla recalls vehicles"}
	assert.Equal(t, sha1Hex("recalls tesla vehicles"), EventKey(item, "TSLA"))
}

func TestDedupeIsIdempotentAndKeepsOrder(t *testing.T) {
	items := []types.NewsItem{
		{ID: "1", Headline: "Nvidia unveils new chip"},
		{ID: "2", Headline: "Fed holds rates steady"},
		{ID: "3", Headline: "NEW CHIP unveils: Nvidia?"},
		{ID: "4", Headline: "nvidia unveils new chip"},
	}
	once := Dedupe("NVDA", items)
	require.Len(t, once, 2)
	assert.Equal(t, "1", once[0].ID)
	assert.Equal(t, "2", once[1].ID)
	assert.Equal(t, once, Dedupe("NVDA", once))
}

func TestIDFallsBackToContentHash(t *testing.T) {
	assert.Equal(t, "abc", ID(types.NewsItem{ID: "abc"}))
	item := types.NewsItem{Source: "Reuters", Datetime: 42, Headline: "x"}
	assert.Equal(t, sha1Hex("Reuters|42|x"), ID(item))
}

func TestCacheTTLAndPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "news.json")
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	c := NewCache(path, 300*time.Second, 2)
	c.clock = func() time.Time { return now }
	c.Set("AAPL", []types.NewsItem{{ID: "a"}, {ID: "b"}, {ID: "c"}})

	got, ok := c.Get("AAPL")
	require.True(t, ok)
	assert.Len(t, got, 2)

	now = now.Add(301 * time.Second)
	_, ok = c.Get("AAPL")
	assert.False(t, ok)

	reloaded := NewCache(path, time.Hour, 2)
	reloaded.clock = func() time.Time { return now }
	got, ok = reloaded.Get("AAPL")
	require.True(t, ok)
	assert.Equal(t, "a", got[0].ID)
}

func TestCacheDisabledByZeroTTL(t *testing.T) {
	c := NewCache("", 0, 10)
	c.Set("AAPL", []types.NewsItem{{ID: "a"}})
	_, ok := c.Get("AAPL")
	assert.False(t, ok)
}

type macroSourceMock struct{ mock.Mock }

func (m *macroSourceMock) MacroEvents(ctx context.Context, themes []string, max, timespanMin int) ([]types.NewsItem, error) {
	args := m.Called(ctx, themes, max, timespanMin)
	items, _ := args.Get(0).([]types.NewsItem)
	return items, args.Error(1)
}

func TestMacroFeedRespectsPollAndKeepsSnapshotOnError(t *testing.T) {
	src := &macroSourceMock{}
	themes := []string{"ECON_INFLATION"}
	first := []types.NewsItem{{ID: "u1", IsMacro: true}}
	src.On("MacroEvents", mock.Anything, themes, 30, 180).Return(first, nil).Once()
	src.On("MacroEvents", mock.Anything, themes, 30, 180).Return(nil, errors.New("503")).Once()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	feed := NewMacroFeed(src, MacroConfig{Themes: themes, MaxRecords: 30, TimespanMin: 180, Poll: time.Minute})
	feed.clock = func() time.Time { return now }

	feed.Refresh(context.Background(), true)
	assert.Equal(t, first, feed.Items())

	now = now.Add(30 * time.Second)
	feed.Refresh(context.Background(), false)

	now = now.Add(31 * time.Second)
	feed.Refresh(context.Background(), false)
	assert.Equal(t, first, feed.Items())
	src.AssertNumberOfCalls(t, "MacroEvents", 2)
}
