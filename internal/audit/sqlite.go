package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"newstrader/internal/logger"
)

type DecisionRecord struct {
	ID        string         `gorm:"column:id;primaryKey"`
	Trace     string         `gorm:"column:trace;index"`
	Symbol    string         `gorm:"column:symbol;index"`
	Action    string         `gorm:"column:action"`
	Strategy  string         `gorm:"column:strategy"`
	Sentiment float64        `gorm:"column:sentiment"`
	Price     *float64       `gorm:"column:price"`
	Detail    datatypes.JSON `gorm:"column:detail"`
	CreatedAt time.Time      `gorm:"column:created_at;index"`
}

func (DecisionRecord) TableName() string { return "decision_log" }

type TradeRecord struct {
	ID        string         `gorm:"column:id;primaryKey"`
	Trace     string         `gorm:"column:trace;index"`
	Mode      string         `gorm:"column:mode"`
	Symbol    string         `gorm:"column:symbol;index"`
	Action    string         `gorm:"column:action"`
	Side      string         `gorm:"column:side"`
	Qty       int            `gorm:"column:qty"`
	Price     *float64       `gorm:"column:price"`
	OrderID   string         `gorm:"column:order_id"`
	Status    string         `gorm:"column:status;index"`
	Error     string         `gorm:"column:error"`
	Detail    datatypes.JSON `gorm:"column:detail"`
	CreatedAt time.Time      `gorm:"column:created_at;index"`
}

func (TradeRecord) TableName() string { return "trade_log" }

// SQLiteSink mirrors the audit stream into a local SQLite database.
type SQLiteSink struct {
	db *gorm.DB
}

func NewSQLiteSink(path string) (*SQLiteSink, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("audit sqlite: path is empty")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&DecisionRecord{}, &TradeRecord{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return &SQLiteSink{db: db}, nil
}

func (s *SQLiteSink) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLiteSink) LogDecision(ev DecisionEvent) {
	detail, _ := json.Marshal(ev)
	rec := DecisionRecord{
		ID:        uuid.NewString(),
		Trace:     ev.Trace,
		Symbol:    ev.Symbol,
		Action:    ev.Action,
		Strategy:  ev.Strategy,
		Sentiment: ev.Sentiment,
		Price:     ev.Price,
		Detail:    datatypes.JSON(detail),
		CreatedAt: ev.TS,
	}
	if err := s.db.Create(&rec).Error; err != nil {
		logger.Warnf("audit sqlite decision %s: %v", ev.Symbol, err)
	}
}

func (s *SQLiteSink) LogTrade(ev TradeEvent) {
	detail, _ := json.Marshal(map[string]any{
		"decision_source": ev.DecisionSource,
		"sentiment":       ev.Sentiment,
		"lexical":         ev.Lexical,
		"llm":             ev.LLM,
		"llm_decision":    ev.LLMDecision,
		"llm_move_pct":    ev.LLMMovePct,
		"llm_emotions":    ev.LLMEmotions,
		"tp_price":        ev.TPPrice,
		"sl_price":        ev.SLPrice,
	})
	rec := TradeRecord{
		ID:        uuid.NewString(),
		Trace:     ev.Trace,
		Mode:      ev.Mode,
		Symbol:    ev.Symbol,
		Action:    string(ev.Action),
		Side:      sideOrNone(string(ev.Side)),
		Qty:       ev.Qty,
		Price:     ev.Price,
		OrderID:   ev.OrderID,
		Status:    ev.Status,
		Error:     ev.Error,
		Detail:    datatypes.JSON(detail),
		CreatedAt: ev.TS,
	}
	if err := s.db.Create(&rec).Error; err != nil {
		logger.Warnf("audit sqlite trade %s: %v", ev.Symbol, err)
	}
}

// RecentDecisions returns the newest rows first; an empty symbol matches all.
func (s *SQLiteSink) RecentDecisions(ctx context.Context, symbol string, limit int) ([]DecisionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	q := s.db.WithContext(ctx).Order("created_at desc").Limit(limit)
	if symbol = strings.ToUpper(strings.TrimSpace(symbol)); symbol != "" {
		q = q.Where("symbol = ?", symbol)
	}
	var out []DecisionRecord
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLiteSink) RecentTrades(ctx context.Context, limit int) ([]TradeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []TradeRecord
	if err := s.db.WithContext(ctx).Order("created_at desc").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
