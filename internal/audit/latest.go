package audit

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Latest keeps the most recent decision per symbol for the admin API.
type Latest struct {
	mu   sync.RWMutex
	data map[string]DecisionEvent
	ttl  time.Duration
}

func NewLatest(ttl time.Duration) *Latest {
	return &Latest{data: make(map[string]DecisionEvent), ttl: ttl}
}

func (l *Latest) LogTrade(TradeEvent) {}

func (l *Latest) LogDecision(ev DecisionEvent) {
	sym := strings.ToUpper(strings.TrimSpace(ev.Symbol))
	if sym == "" {
		return
	}
	ev.Symbol = sym
	l.mu.Lock()
	l.data[sym] = ev
	l.mu.Unlock()
}

// Snapshot returns the unexpired decisions ordered by symbol.
func (l *Latest) Snapshot(now time.Time) []DecisionEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]DecisionEvent, 0, len(l.data))
	for _, ev := range l.data {
		if l.ttl > 0 && now.Sub(ev.TS) > l.ttl {
			continue
		}
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
