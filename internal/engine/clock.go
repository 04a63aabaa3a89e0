package engine

import (
	"context"
	"sync"
	"time"

	"newstrader/internal/logger"
	"newstrader/internal/market"
)

const clockCacheTTL = 30 * time.Second

// MarketClock answers "is the market open" from the broker clock, falling back
// to the regular session in the exchange zone when no broker is wired or the
// call fails.
type MarketClock struct {
	broker Broker
	hours  market.Hours

	mu     sync.Mutex
	isOpen bool
	at     time.Time

	now func() time.Time
}

func NewMarketClock(broker Broker, hours market.Hours) *MarketClock {
	return &MarketClock{broker: broker, hours: hours, now: time.Now}
}

func (c *MarketClock) IsOpen(ctx context.Context) bool {
	now := c.now()
	if c.broker == nil {
		return c.hours.RegularSession(now)
	}
	c.mu.Lock()
	if !c.at.IsZero() && now.Sub(c.at) < clockCacheTTL {
		open := c.isOpen
		c.mu.Unlock()
		return open
	}
	c.mu.Unlock()

	clk, err := c.broker.Clock(ctx)
	if err != nil {
		logger.Debugf("broker clock unavailable, using session hours: %v", err)
		return c.hours.RegularSession(now)
	}
	c.mu.Lock()
	c.isOpen = clk.IsOpen
	c.at = now
	c.mu.Unlock()
	return clk.IsOpen
}
