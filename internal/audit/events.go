// Package audit records decisions and order outcomes. Every sink is append-only
// and never fails the caller.
package audit

import (
	"time"

	"newstrader/internal/types"
)

// Sink receives audit events. Implementations log their own failures.
type Sink interface {
	LogTrade(TradeEvent)
	LogDecision(DecisionEvent)
}

// TradeEvent is one order attempt or dry-run intent. Nil pointers are blank cells.
type TradeEvent struct {
	TS             time.Time
	Trace          string
	Mode           string
	Symbol         string
	Action         types.Action
	Side           types.Side
	Qty            int
	Price          *float64
	DecisionSource string
	Sentiment      float64
	Lexical        float64
	LLM            *float64
	LLMDecision    types.Action
	LLMMovePct     *float64
	LLMEmotions    string
	TPPrice        *float64
	SLPrice        *float64
	OrderID        string
	Status         string
	Error          string
}

// DecisionEvent is the per-symbol snapshot written every cycle.
type DecisionEvent struct {
	TS             time.Time `json:"ts"`
	Trace          string    `json:"trace,omitempty"`
	Symbol         string    `json:"symbol"`
	Price          *float64  `json:"price,omitempty"`
	Lexical        float64   `json:"lexical"`
	LLM            *float64  `json:"llm,omitempty"`
	Sentiment      float64   `json:"sentiment"`
	Action         string    `json:"action"`
	Strategy       string    `json:"strategy"`
	LLMConfidence  *float64  `json:"llm_confidence,omitempty"`
	Emotions       string    `json:"emotions,omitempty"`
	ExpMovePct     *float64  `json:"exp_move_pct,omitempty"`
	PriceChangePct *float64  `json:"price_change_pct,omitempty"`
	VolPct         *float64  `json:"vol_pct,omitempty"`
	Trend          string    `json:"trend,omitempty"`
}

// Float boxes v for optional event fields.
func Float(v float64) *float64 { return &v }

// Multi fans events out to every non-nil sink.
type Multi []Sink

func (m Multi) LogTrade(ev TradeEvent) {
	for _, s := range m {
		if s != nil {
			s.LogTrade(ev)
		}
	}
}

func (m Multi) LogDecision(ev DecisionEvent) {
	for _, s := range m {
		if s != nil {
			s.LogDecision(ev)
		}
	}
}
