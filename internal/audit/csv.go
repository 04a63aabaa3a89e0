package audit

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"newstrader/internal/logger"
)

const tsLayout = "2006-01-02T15:04:05"

var (
	tradeColumns = []string{
		"ts", "mode", "symbol", "action", "side", "qty", "price", "decision_source",
		"sentiment", "vader", "gpt", "gpt_decision", "gpt_exp_move_pct", "gpt_emotions",
		"tp_price", "sl_price",
		"order_id", "status", "error",
	}
	decisionColumns = []string{
		"ts", "symbol", "price", "vader", "gpt", "sentiment", "action", "strategy",
		"gpt_conf", "emotions", "exp_move_pct", "price_change_pct", "vol_pct", "trend",
	}
)

// CSVSink appends rows to the trade and decision CSV files. An empty path
// disables that file. Headers are written once, when the file is empty.
type CSVSink struct {
	mu        sync.Mutex
	trades    string
	decisions string
}

func NewCSVSink(tradesPath, decisionsPath string) *CSVSink {
	return &CSVSink{trades: tradesPath, decisions: decisionsPath}
}

func (s *CSVSink) LogTrade(ev TradeEvent) {
	if s.trades == "" {
		return
	}
	row := []string{
		ev.TS.Format(tsLayout), ev.Mode, ev.Symbol, string(ev.Action), sideOrNone(string(ev.Side)),
		strconv.Itoa(ev.Qty), optFloat(ev.Price), ev.DecisionSource,
		fmtFloat(ev.Sentiment), fmtFloat(ev.Lexical), optFloat(ev.LLM), string(ev.LLMDecision),
		optFloat(ev.LLMMovePct), ev.LLMEmotions,
		optFloat(ev.TPPrice), optFloat(ev.SLPrice),
		ev.OrderID, ev.Status, ev.Error,
	}
	s.append(s.trades, tradeColumns, row)
}

func (s *CSVSink) LogDecision(ev DecisionEvent) {
	if s.decisions == "" {
		return
	}
	row := []string{
		ev.TS.Format(tsLayout), ev.Symbol, optFloat(ev.Price), fmtFloat(ev.Lexical), optFloat(ev.LLM),
		fmtFloat(ev.Sentiment), ev.Action, ev.Strategy,
		optFloat(ev.LLMConfidence), ev.Emotions, optFloat(ev.ExpMovePct),
		optFloat(ev.PriceChangePct), optFloat(ev.VolPct), ev.Trend,
	}
	s.append(s.decisions, decisionColumns, row)
}

func (s *CSVSink) append(path string, header, row []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		logger.Warnf("audit csv %s: %v", path, err)
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		logger.Warnf("audit csv %s: %v", path, err)
		return
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if info, err := f.Stat(); err == nil && info.Size() == 0 {
		_ = w.Write(header)
	}
	_ = w.Write(row)
	w.Flush()
	if err := w.Error(); err != nil {
		logger.Warnf("audit csv %s: %v", path, err)
	}
}

func sideOrNone(side string) string {
	if side == "" {
		return "none"
	}
	return side
}

func fmtFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func optFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return fmtFloat(*v)
}
