package state

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"newstrader/internal/market"
	"newstrader/internal/types"
)

const (
	defaultMaxSeen   = 500
	defaultMaxPoints = 10
)

// Store guards the document with one mutex. Callers never see internal maps.
// saveMu orders writes so the file always holds the latest saved snapshot.
type Store struct {
	mu        sync.Mutex
	saveMu    sync.Mutex
	path      string
	doc       *Document
	maxSeen   int
	maxPoints int
	windowMin float64
}

func NewStore(path string, maxSeen, maxPoints int) *Store {
	if maxSeen <= 0 {
		maxSeen = defaultMaxSeen
	}
	if maxPoints <= 0 {
		maxPoints = defaultMaxPoints
	}
	return &Store{path: path, doc: newDocument(), maxSeen: maxSeen, maxPoints: maxPoints}
}

// SetSeriesWindow bounds persisted price series by age, in minutes, measured
// back from each series' newest point. Zero keeps the count bound only.
func (s *Store) SetSeriesWindow(minutes float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windowMin = minutes
}

// Path is the state file location; empty for an in-memory store.
func (s *Store) Path() string { return s.path }

// Load replaces the in-memory document with the file contents. A missing file is
// an empty state; a corrupt one yields StatePersistenceError and an empty state.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = newDocument()
	if s.path == "" {
		return nil
	}
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return &types.StatePersistenceError{Path: s.path, Err: err}
	}
	doc := newDocument()
	if err := json.Unmarshal(raw, doc); err != nil {
		return &types.StatePersistenceError{Path: s.path, Err: err}
	}
	s.doc = doc
	return nil
}

// Save trims bounded lists and writes the document through a temp file and rename.
func (s *Store) Save() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	s.trimLocked()
	raw, err := json.Marshal(s.doc)
	s.mu.Unlock()
	if err != nil {
		return &types.StatePersistenceError{Path: s.path, Err: err}
	}
	if s.path == "" {
		return nil
	}
	if err := writeAtomic(s.path, raw); err != nil {
		return &types.StatePersistenceError{Path: s.path, Err: err}
	}
	return nil
}

func (s *Store) trimLocked() {
	for _, st := range s.doc.Symbols {
		st.SeenNewsIDs = trimTail(st.SeenNewsIDs, s.maxSeen)
		st.SeenEventKeys = trimTail(st.SeenEventKeys, s.maxSeen)
		st.PriceSeries = trimTail(trimAge(st.PriceSeries, s.windowMin), s.maxPoints)
	}
	s.doc.PDT.Days = trimTail(s.doc.PDT.Days, maxPDTDays)
}

func trimAge(series []market.PricePoint, windowMin float64) []market.PricePoint {
	if windowMin <= 0 || len(series) == 0 {
		return series
	}
	cutoff := series[len(series)-1].TS - windowMin*60
	kept := series[:0]
	for _, p := range series {
		if p.TS >= cutoff {
			kept = append(kept, p)
		}
	}
	return kept
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

func (s *Store) symbolLocked(symbol string) *SymbolState {
	st, ok := s.doc.Symbols[symbol]
	if !ok {
		st = &SymbolState{}
		s.doc.Symbols[symbol] = st
	}
	return st
}

// Snapshot returns a deep copy of the symbol's state.
func (s *Store) Snapshot(symbol string) SymbolState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.doc.Symbols[symbol]; ok {
		return st.clone()
	}
	return SymbolState{}
}

// Symbols lists the tracked symbols in order.
func (s *Store) Symbols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.doc.Symbols))
	for sym := range s.doc.Symbols {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

func (s *Store) SetLastNews(symbol string, ts float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.symbolLocked(symbol).LastNewsTS = ts
}

func (s *Store) SetLastTrade(symbol string, ts float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.symbolLocked(symbol).LastTradeTS = ts
}

func (s *Store) SetPrice(symbol string, price, ts float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.symbolLocked(symbol)
	st.LastPrice = price
	st.LastPriceTS = ts
}

func (s *Store) SetPriceSeries(symbol string, series []market.PricePoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.symbolLocked(symbol).PriceSeries = append([]market.PricePoint(nil), series...)
}

func (s *Store) NewsSeen(symbol, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.doc.Symbols[symbol]
	if !ok {
		return false
	}
	for _, v := range st.SeenNewsIDs {
		if v == id {
			return true
		}
	}
	return false
}

func (s *Store) MarkNewsSeen(symbol, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.symbolLocked(symbol)
	st.SeenNewsIDs = appendUnique(st.SeenNewsIDs, id)
}

func (s *Store) MarkEventSeen(symbol, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.symbolLocked(symbol)
	st.SeenEventKeys = appendUnique(st.SeenEventKeys, key)
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

func (s *Store) CachedAssessment(symbol, key string) (types.Assessment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.doc.Symbols[symbol]
	if !ok || st.GPTCache == nil {
		return types.Assessment{}, false
	}
	a, ok := st.GPTCache[key]
	return a, ok
}

func (s *Store) GlobalAssessment(key string) (types.Assessment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.doc.Global.GPTCache[key]
	return a, ok
}

func (s *Store) CacheAssessment(symbol, key string, a types.Assessment, global bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.symbolLocked(symbol)
	if st.GPTCache == nil {
		st.GPTCache = make(map[string]types.Assessment)
	}
	st.GPTCache[key] = a
	if global {
		if s.doc.Global.GPTCache == nil {
			s.doc.Global.GPTCache = make(map[string]types.Assessment)
		}
		s.doc.Global.GPTCache[key] = a
	}
}

// Brackets groups the three remembered bracket plans; nil entries are left untouched.
type Brackets struct {
	Single   *types.BracketPlan
	Core     *types.BracketPlan
	Tactical *types.BracketPlan
}

func (s *Store) SetBrackets(symbol string, b Brackets) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.symbolLocked(symbol)
	if b.Single != nil {
		st.Bracket = cloneBracket(b.Single)
	}
	if b.Core != nil {
		st.CoreBracket = cloneBracket(b.Core)
	}
	if b.Tactical != nil {
		st.TacticalBracket = cloneBracket(b.Tactical)
	}
}

// RecordEntry stamps the entry used by drawdown, tax and PDT rules.
func (s *Store) RecordEntry(symbol string, price, ts float64, day string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.symbolLocked(symbol)
	st.LastEntryTS = ts
	st.LastEntryDay = day
	if price > 0 {
		st.LastEntryPrice = price
	}
}

// RecordExit clears the bracket plans, stamps the exit and records a PDT day when
// the exit lands on the entry day.
func (s *Store) RecordExit(symbol string, price, ts float64, day string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.symbolLocked(symbol)
	st.Bracket, st.CoreBracket, st.TacticalBracket = nil, nil, nil
	st.LastExitTS = ts
	st.LastExitDay = day
	if price > 0 {
		st.LastExitPrice = price
	}
	if st.LastEntryDay != "" && st.LastEntryDay == day {
		s.doc.PDT.Days = trimTail(appendUnique(s.doc.PDT.Days, day), maxPDTDays)
	}
}

func (s *Store) PDTDays() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.doc.PDT.Days...)
}

// Export returns a deep copy of the document for inspection endpoints.
func (s *Store) Export() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.doc.Symbols)+2)
	for sym, st := range s.doc.Symbols {
		out[sym] = st.clone()
	}
	global := GlobalState{GPTCache: make(map[string]types.Assessment, len(s.doc.Global.GPTCache))}
	for k, v := range s.doc.Global.GPTCache {
		global.GPTCache[k] = v
	}
	out[globalKey] = global
	out[pdtKey] = PDTState{Days: append([]string(nil), s.doc.PDT.Days...)}
	return out
}
