package sentiment

import (
	"context"
	"errors"
	"math"

	"newstrader/internal/logger"
	"newstrader/internal/market"
	"newstrader/internal/metrics"
	"newstrader/internal/news"
	"newstrader/internal/types"
)

// AssessmentCache is the persisted model-result cache keyed by event key.
type AssessmentCache interface {
	CachedAssessment(symbol, key string) (types.Assessment, bool)
	GlobalAssessment(key string) (types.Assessment, bool)
	CacheAssessment(symbol, key string, a types.Assessment, global bool)
}

type FusionConfig struct {
	Weight           float64
	MaxModelItems    int
	MinAbsLexical    float64
	MinWindowMovePct float64
}

// Result carries the per-cycle aggregates. Scores are medians.
type Result struct {
	Combined    float64
	Lexical     float64
	LLM         float64
	HasLLM      bool
	Assessments []types.Assessment
	Summary     Summary
	SeenKeys    []string
	Items       int
}

type Fuser struct {
	lexical  LexicalScorer
	assessor Assessor
	cache    AssessmentCache
	cfg      FusionConfig
}

// NewFuser builds a fuser; assessor and cache may be nil for lexical-only scoring.
func NewFuser(lexical LexicalScorer, assessor Assessor, cache AssessmentCache, cfg FusionConfig) *Fuser {
	return &Fuser{lexical: lexical, assessor: assessor, cache: cache, cfg: cfg}
}

func (f *Fuser) Fuse(ctx context.Context, symbol string, items []types.NewsItem, price float64, pctx *market.PriceContext) Result {
	res := Result{Items: len(items)}
	var lexScores, llmScores, combined []float64
	w := math.Max(0, math.Min(1, f.cfg.Weight))

	for idx, item := range items {
		text := item.Text()
		lex := 0.0
		if text != "" && f.lexical != nil {
			lex = f.lexical.Score(text)
		}
		lexScores = append(lexScores, lex)

		c := lex
		if f.assessor != nil && idx < f.cfg.MaxModelItems {
			if a, ok := f.assess(ctx, symbol, item, text, lex, price, pctx, &res); ok {
				res.Assessments = append(res.Assessments, a)
				llmScores = append(llmScores, a.Score)
				c = (1-w)*lex + w*a.Score
			}
		}
		combined = append(combined, c)
	}

	res.Combined = Median(combined)
	res.Lexical = Median(lexScores)
	res.LLM = Median(llmScores)
	res.HasLLM = len(llmScores) > 0
	res.Summary = Summarize(res.Assessments)
	return res
}

func (f *Fuser) assess(ctx context.Context, symbol string, item types.NewsItem, text string, lex, price float64, pctx *market.PriceContext, res *Result) (types.Assessment, bool) {
	key := news.EventKey(item, symbol)
	if f.cache != nil {
		if item.IsMacro {
			if a, ok := f.cache.GlobalAssessment(key); ok {
				metrics.ObserveLLM("cached")
				return a, true
			}
		}
		if a, ok := f.cache.CachedAssessment(symbol, key); ok {
			metrics.ObserveLLM("cached")
			return a, true
		}
	}
	if !f.worthAsking(lex, pctx) {
		metrics.ObserveLLM("skipped")
		return types.Assessment{}, false
	}
	a, err := f.assessor.Assess(ctx, symbol, text, price, pctx)
	if err != nil {
		if !errors.Is(err, ErrBreakerOpen) {
			logger.Debugf("%s: model assessment failed: %v", symbol, err)
		}
		return types.Assessment{}, false
	}
	if a == nil {
		return types.Assessment{}, false
	}
	if f.cache != nil {
		f.cache.CacheAssessment(symbol, key, *a, item.IsMacro)
	}
	res.SeenKeys = append(res.SeenKeys, key)
	return *a, true
}

// worthAsking gates paid model calls on a strong lexical read or a real price move.
func (f *Fuser) worthAsking(lex float64, pctx *market.PriceContext) bool {
	if math.Abs(lex) >= f.cfg.MinAbsLexical {
		return true
	}
	return pctx != nil && math.Abs(pctx.ChangePct) >= f.cfg.MinWindowMovePct
}
