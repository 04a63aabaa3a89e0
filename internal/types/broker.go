package types

import "time"

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
	SideNone Side = "none"
)

// BracketPlan is the locally remembered TP/SL expectation for an entry leg.
type BracketPlan struct {
	TPPct      float64 `json:"tp_pct"`
	SLPct      float64 `json:"sl_pct"`
	TPPrice    float64 `json:"tp_price,omitempty"`
	SLPrice    float64 `json:"sl_price,omitempty"`
	EntryPrice float64 `json:"entry_price"`
	Side       Side    `json:"side"`
	Qty        int     `json:"qty"`
	CreatedTS  float64 `json:"ts"`
}

type Account struct {
	Equity      float64 `json:"equity"`
	BuyingPower float64 `json:"buying_power"`
}

type Position struct {
	Symbol      string  `json:"symbol"`
	Qty         float64 `json:"qty"`
	MarketValue float64 `json:"market_value"`
}

// PositionMap indexes open positions by upper-case symbol.
type PositionMap map[string]Position

// HasLong reports a held long position for symbol.
func (m PositionMap) HasLong(symbol string) bool {
	if m == nil {
		return false
	}
	p, ok := m[symbol]
	return ok && p.Qty > 0
}

type Clock struct {
	IsOpen    bool      `json:"is_open"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderRequest carries either Qty or Notional, never both.
type OrderRequest struct {
	Symbol        string
	Side          Side
	Qty           int
	Notional      float64
	Type          string
	TimeInForce   string
	ClientOrderID string
	TakeProfit    float64
	StopLoss      float64
}

// Bracket reports whether TP/SL legs are attached.
func (r OrderRequest) Bracket() bool {
	return r.TakeProfit > 0 && r.StopLoss > 0
}

type OrderResult struct {
	ID            string `json:"id"`
	ClientOrderID string `json:"client_order_id"`
	Status        string `json:"status"`
}
