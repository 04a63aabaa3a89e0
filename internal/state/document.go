// Package state persists per-symbol engine state between runs as one JSON document.
package state

import (
	"encoding/json"
	"fmt"

	"newstrader/internal/market"
	"newstrader/internal/types"
)

const (
	globalKey = "__global__"
	pdtKey    = "__pdt__"

	maxPDTDays = 7
)

type SymbolState struct {
	LastNewsTS      float64                     `json:"last_news"`
	LastTradeTS     float64                     `json:"last_trade"`
	LastPrice       float64                     `json:"last_price,omitempty"`
	LastPriceTS     float64                     `json:"last_price_ts,omitempty"`
	SeenNewsIDs     []string                    `json:"seen_news,omitempty"`
	SeenEventKeys   []string                    `json:"seen_events,omitempty"`
	GPTCache        map[string]types.Assessment `json:"gpt_cache,omitempty"`
	PriceSeries     []market.PricePoint         `json:"price_series,omitempty"`
	LastEntryPrice  float64                     `json:"last_entry_price,omitempty"`
	LastEntryTS     float64                     `json:"last_entry_ts,omitempty"`
	LastEntryDay    string                      `json:"last_entry_day,omitempty"`
	LastExitPrice   float64                     `json:"last_exit_price,omitempty"`
	LastExitTS      float64                     `json:"last_exit_ts,omitempty"`
	LastExitDay     string                      `json:"last_exit_day,omitempty"`
	Bracket         *types.BracketPlan          `json:"last_bracket,omitempty"`
	CoreBracket     *types.BracketPlan          `json:"last_bracket_core,omitempty"`
	TacticalBracket *types.BracketPlan          `json:"last_bracket_tactical,omitempty"`
}

type GlobalState struct {
	GPTCache map[string]types.Assessment `json:"gpt_cache,omitempty"`
}

type PDTState struct {
	Days []string `json:"days"`
}

// Document is the whole state file: symbol entries plus the two reserved keys.
type Document struct {
	Symbols map[string]*SymbolState
	Global  GlobalState
	PDT     PDTState
}

func newDocument() *Document {
	return &Document{Symbols: make(map[string]*SymbolState)}
}

func (d *Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Symbols)+2)
	for sym, st := range d.Symbols {
		out[sym] = st
	}
	out[globalKey] = d.Global
	out[pdtKey] = d.PDT
	return json.Marshal(out)
}

func (d *Document) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	doc := newDocument()
	for key, val := range raw {
		switch key {
		case globalKey:
			if err := json.Unmarshal(val, &doc.Global); err != nil {
				return fmt.Errorf("%s: %w", globalKey, err)
			}
		case pdtKey:
			if err := json.Unmarshal(val, &doc.PDT); err != nil {
				return fmt.Errorf("%s: %w", pdtKey, err)
			}
		default:
			st := &SymbolState{}
			if err := json.Unmarshal(val, st); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			doc.Symbols[key] = st
		}
	}
	*d = *doc
	return nil
}

func (s *SymbolState) clone() SymbolState {
	out := *s
	out.SeenNewsIDs = append([]string(nil), s.SeenNewsIDs...)
	out.SeenEventKeys = append([]string(nil), s.SeenEventKeys...)
	out.PriceSeries = append([]market.PricePoint(nil), s.PriceSeries...)
	if s.GPTCache != nil {
		out.GPTCache = make(map[string]types.Assessment, len(s.GPTCache))
		for k, v := range s.GPTCache {
			out.GPTCache[k] = v
		}
	}
	out.Bracket = cloneBracket(s.Bracket)
	out.CoreBracket = cloneBracket(s.CoreBracket)
	out.TacticalBracket = cloneBracket(s.TacticalBracket)
	return out
}

func cloneBracket(b *types.BracketPlan) *types.BracketPlan {
	if b == nil {
		return nil
	}
	c := *b
	return &c
}

func trimTail[T any](s []T, max int) []T {
	if max <= 0 || len(s) <= max {
		return s
	}
	return append([]T(nil), s[len(s)-max:]...)
}
