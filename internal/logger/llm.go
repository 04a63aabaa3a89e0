package logger

import (
	"io"
	"log"
	"strings"
	"sync"
)

var (
	llmMu  sync.Mutex
	llmLog *log.Logger
)

// SetLLMWriter enables transcript dumps of sentiment-model exchanges. nil disables them.
func SetLLMWriter(w io.Writer) {
	llmMu.Lock()
	defer llmMu.Unlock()
	if w == nil {
		llmLog = nil
		return
	}
	llmLog = log.New(w, "", log.LstdFlags)
}

func llmWriter() *log.Logger {
	llmMu.Lock()
	defer llmMu.Unlock()
	return llmLog
}

// LogLLMExchange writes one request/response pair for symbol.
func LogLLMExchange(symbol, model, system, user, raw string) {
	l := llmWriter()
	if l == nil {
		return
	}
	var b strings.Builder
	b.WriteString("[LLM][" + model + "][" + symbol + "]\n")
	for _, sec := range [][2]string{{"SYSTEM", system}, {"USER", user}, {"RAW", raw}} {
		b.WriteString("--- " + sec[0] + " ---\n")
		b.WriteString(sec[1])
		if !strings.HasSuffix(sec[1], "\n") {
			b.WriteString("\n")
		}
	}
	b.WriteString("=====\n")
	l.Print(b.String())
}
