package app

import (
	"fmt"
	"strings"

	"newstrader/internal/config"
	"newstrader/internal/logger"
)

const bannerListMax = 20

// StartupSummary is the banner logged before the first scan.
type StartupSummary struct {
	Symbols   []string
	Mode      string
	Strategy  string
	Pos       float64
	Close     float64
	LLM       string
	Loop      string
	Brackets  string
	StateFile string
}

func newStartupSummary(cfg *config.Config, symbols []string, llm bool) *StartupSummary {
	s := &StartupSummary{
		Symbols:   symbols,
		Mode:      cfg.Trading.Mode(),
		Strategy:  cfg.Strategy.Name,
		Pos:       cfg.Strategy.PosThreshold,
		Close:     cfg.Strategy.CloseThreshold,
		LLM:       "off",
		Loop:      "single pass",
		Brackets:  "off",
		StateFile: cfg.App.StateFile,
	}
	if llm {
		s.LLM = fmt.Sprintf("%s (weight %.2f, max %d items)", cfg.Sentiment.GPTModel, cfg.Sentiment.GPTWeight, cfg.Sentiment.GPTMaxNews)
	}
	if cfg.Loop.Enabled {
		s.Loop = fmt.Sprintf("every %.0fs, %d per batch", cfg.Loop.PollSeconds, cfg.Loop.SymbolsPerBatch)
		if cfg.Loop.HoldingsWatcher {
			s.Loop += fmt.Sprintf(", holdings every %.0fs", cfg.Loop.HoldingsPollSeconds)
		}
	}
	if cfg.Bracket.UseBracket {
		s.Brackets = fmt.Sprintf("tp %.2f%% sl %.2f%%", cfg.Bracket.TPPct*100, cfg.Bracket.SLPct*100)
		if cfg.Bracket.Dynamic {
			s.Brackets += " (dynamic)"
		}
		if cfg.Bracket.DualHorizon {
			s.Brackets += fmt.Sprintf(", dual horizon core %.0f%%", cfg.Bracket.CoreAllocationPct*100)
		}
	}
	return s
}

func (s *StartupSummary) String() string {
	line := strings.Repeat("=", 60)
	return strings.Join([]string{
		line,
		"newstrader startup",
		line,
		fmt.Sprintf("universe:   %d symbols: %s", len(s.Symbols), formatList(s.Symbols)),
		fmt.Sprintf("mode:       %s", s.Mode),
		fmt.Sprintf("strategy:   %s (pos %.2f, close %.2f)", s.Strategy, s.Pos, s.Close),
		fmt.Sprintf("llm:        %s", s.LLM),
		fmt.Sprintf("loop:       %s", s.Loop),
		fmt.Sprintf("brackets:   %s", s.Brackets),
		fmt.Sprintf("state file: %s", s.StateFile),
		line,
	}, "\n")
}

func (s *StartupSummary) Print() {
	logger.InfoBlock(s.String())
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	if len(items) > bannerListMax {
		return strings.Join(items[:bannerListMax], ", ") + fmt.Sprintf(", ... (+%d)", len(items)-bannerListMax)
	}
	return strings.Join(items, ", ")
}
