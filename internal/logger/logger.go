package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	levelVar   slog.LevelVar
	loggerMu   sync.RWMutex
	baseLogger *slog.Logger
	jsonOutput bool
)

func init() {
	levelVar.Set(slog.LevelInfo)
	baseLogger = newLogger(os.Stdout)
}

func newLogger(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: &levelVar}
	if jsonOutput {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func SetOutput(w io.Writer) {
	loggerMu.Lock()
	baseLogger = newLogger(w)
	loggerMu.Unlock()
}

// SetFormat switches between "text" (default) and "json" records. Call before SetOutput.
func SetFormat(format string) {
	loggerMu.Lock()
	jsonOutput = strings.EqualFold(strings.TrimSpace(format), "json")
	loggerMu.Unlock()
}

func SetLevel(level string) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		levelVar.Set(slog.LevelDebug)
	case "warn", "warning":
		levelVar.Set(slog.LevelWarn)
	case "error":
		levelVar.Set(slog.LevelError)
	default:
		levelVar.Set(slog.LevelInfo)
	}
}

func activeLogger() *slog.Logger {
	loggerMu.RLock()
	l := baseLogger
	loggerMu.RUnlock()
	if l != nil {
		return l
	}
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if baseLogger == nil {
		baseLogger = newLogger(os.Stdout)
	}
	return baseLogger
}

func Debugf(format string, v ...any) {
	activeLogger().Debug(fmt.Sprintf(format, v...))
}

func Infof(format string, v ...any) {
	activeLogger().Info(fmt.Sprintf(format, v...))
}

func Warnf(format string, v ...any) {
	activeLogger().Warn(fmt.Sprintf(format, v...))
}

func Errorf(format string, v ...any) {
	activeLogger().Error(fmt.Sprintf(format, v...))
}

// Symbol returns a logger scoped to one ticker and scan trace.
func Symbol(symbol, trace string) *slog.Logger {
	l := activeLogger().With("symbol", symbol)
	if trace != "" {
		l = l.With("trace", trace)
	}
	return l
}

// InfoBlock logs a multi-line block one line per record (startup banner).
func InfoBlock(block string) {
	block = strings.TrimSpace(block)
	if block == "" {
		return
	}
	for _, line := range strings.Split(block, "\n") {
		Infof("%s", line)
	}
}
