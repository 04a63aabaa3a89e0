package sentiment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/markcheno/go-talib"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"

	"newstrader/internal/gateway/provider"
	"newstrader/internal/logger"
	"newstrader/internal/market"
	"newstrader/internal/metrics"
	"newstrader/internal/pkg/circuit"
	"newstrader/internal/pkg/jsonutil"
	"newstrader/internal/types"
)

// Assessor returns a structured model read of one news item. A nil assessment
// with nil error means "no opinion" (breaker open, empty text).
type Assessor interface {
	Assess(ctx context.Context, symbol, text string, price float64, pctx *market.PriceContext) (*types.Assessment, error)
}

var ErrBreakerOpen = errors.New("sentiment model circuit open")

const (
	maxReasonLen   = 300
	maxEmotions    = 3
	defaultHorizon = 2
	assessSchemaID = "assessment.json"
)

const assessSchema = `{
  "type": "object",
  "properties": {
    "score": {"type": ["number", "string"]},
    "emotions": {"type": "array"},
    "expected_move_pct": {"type": ["number", "string", "null"]},
    "horizon_days": {"type": ["number", "string", "null"]},
    "decision": {"type": ["string", "null"]},
    "confidence": {"type": ["number", "string", "null"]},
    "reason": {"type": ["string", "null"]}
  }
}`

const systemPrompt = "You are a disciplined markets analyst. Evaluate short-term (1-5 trading days) price impact " +
	"of the provided news for the given stock. Assess sentiment, key emotions, expected move (percent), and " +
	"provide a clear trading decision anchored on the news and current price. Respond ONLY as compact JSON."

const outputContract = "Output JSON with keys: score[-1..1], emotions[list<=3], expected_move_pct[number], " +
	"horizon_days[int 1-5], decision[long|short|hold|close], confidence[0..1], reason[str<=200]. No extra text."

type LLMAssessor struct {
	model   provider.ModelProvider
	name    string
	breaker *circuit.Breaker
	schema  *jsonschema.Schema
	timeout time.Duration
}

func NewLLMAssessor(model provider.ModelProvider, name string, breaker *circuit.Breaker, timeout time.Duration) (*LLMAssessor, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(assessSchemaID, strings.NewReader(assessSchema)); err != nil {
		return nil, err
	}
	schema, err := compiler.Compile(assessSchemaID)
	if err != nil {
		return nil, fmt.Errorf("compile assessment schema: %w", err)
	}
	return &LLMAssessor{model: model, name: name, breaker: breaker, schema: schema, timeout: timeout}, nil
}

func (a *LLMAssessor) Assess(ctx context.Context, symbol, text string, price float64, pctx *market.PriceContext) (*types.Assessment, error) {
	if strings.TrimSpace(text) == "" || a.model == nil {
		return nil, nil
	}
	if a.breaker != nil && !a.breaker.Allow() {
		metrics.ObserveLLM("breaker_open")
		return nil, ErrBreakerOpen
	}
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	user := BuildPrompt(symbol, text, price, pctx)
	raw, err := a.model.Call(ctx, provider.ChatPayload{System: systemPrompt, User: user, ExpectJSON: true, MaxTokens: 400})
	logger.LogLLMExchange(symbol, a.name, systemPrompt, user, raw)
	if err != nil {
		if a.breaker != nil {
			a.breaker.RecordFailure()
		}
		metrics.ObserveLLM("error")
		return nil, fmt.Errorf("assess %s: %w", symbol, err)
	}
	if a.breaker != nil {
		a.breaker.RecordSuccess()
	}
	out, err := a.parse(raw)
	if err != nil {
		metrics.ObserveLLM("invalid")
		return nil, fmt.Errorf("assess %s: %w", symbol, err)
	}
	metrics.ObserveLLM("ok")
	return out, nil
}

func (a *LLMAssessor) parse(raw string) (*types.Assessment, error) {
	obj, ok := jsonutil.ExtractObject(raw)
	if !ok || !gjson.Valid(obj) {
		return nil, fmt.Errorf("reply is not a JSON object")
	}
	var doc any
	dec := json.NewDecoder(strings.NewReader(obj))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	if err := a.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("reply schema: %w", err)
	}
	return ParseAssessment(obj), nil
}

// ParseAssessment applies the normalization rules to a JSON object, tolerating
// numbers sent as strings and missing keys.
func ParseAssessment(obj string) *types.Assessment {
	res := gjson.Parse(obj)
	out := &types.Assessment{
		Score:           clamp(res.Get("score").Float(), -1, 1),
		ExpectedMovePct: finite(res.Get("expected_move_pct").Float()),
		HorizonDays:     defaultHorizon,
		Decision:        types.ActionHold,
		Confidence:      clamp(res.Get("confidence").Float(), 0, 1),
	}
	switch h := res.Get("horizon_days"); h.Type {
	case gjson.Number:
		out.HorizonDays = int(h.Float())
	case gjson.String:
		if v, err := strconv.Atoi(strings.TrimSpace(h.Str)); err == nil {
			out.HorizonDays = v
		}
	}
	if out.HorizonDays < 1 {
		out.HorizonDays = 1
	} else if out.HorizonDays > 5 {
		out.HorizonDays = 5
	}
	if dec, ok := types.ParseAction(res.Get("decision").String()); ok {
		out.Decision = dec
	}
	res.Get("emotions").ForEach(func(_, v gjson.Result) bool {
		if v.Type == gjson.String {
			if e := strings.TrimSpace(v.String()); e != "" {
				out.Emotions = append(out.Emotions, e)
			}
		}
		return len(out.Emotions) < maxEmotions
	})
	reason := res.Get("reason").String()
	if reason == "" {
		reason = res.Get("explanation").String()
	}
	if r := []rune(reason); len(r) > maxReasonLen {
		reason = string(r[:maxReasonLen])
	}
	out.Reason = reason
	return out
}

// BuildPrompt renders the user message; the price context line is omitted without history.
func BuildPrompt(symbol, text string, price float64, pctx *market.PriceContext) string {
	px := "unknown"
	if price > 0 {
		px = fmt.Sprintf("%.2f", price)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Ticker: %s\nCurrent price: %s\nNews: %s\n", symbol, px, text)
	if line := DescribeContext(pctx); line != "" {
		fmt.Fprintf(&b, "Price context: %s\n", line)
	}
	b.WriteString("\n")
	b.WriteString(outputContract)
	return b.String()
}

// DescribeContext summarizes the tracked window, adding SMA and RSI once enough samples exist.
func DescribeContext(pctx *market.PriceContext) string {
	if pctx == nil || pctx.Points() < 2 {
		return ""
	}
	rounded := make([]string, len(pctx.Series))
	for i, p := range pctx.Series {
		rounded[i] = fmt.Sprintf("%.2f", p)
	}
	line := fmt.Sprintf("window=%gm, points=%d, change=%+.2f%%, vol~%.2f%%, trend=%s, series=[%s]",
		pctx.WindowMin, pctx.Points(), pctx.ChangePct, pctx.VolPct, pctx.Trend, strings.Join(rounded, ", "))
	n := len(pctx.Series)
	if n >= 3 {
		period := n
		if period > 5 {
			period = 5
		}
		sma := talib.Sma(pctx.Series, period)
		line += fmt.Sprintf(", sma%d=%.2f", period, sma[n-1])
	}
	if n >= 4 {
		period := n - 1
		if period > 14 {
			period = 14
		}
		rsi := talib.Rsi(pctx.Series, period)
		if v := rsi[n-1]; !math.IsNaN(v) {
			line += fmt.Sprintf(", rsi%d=%.1f", period, v)
		}
	}
	return line
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, finite(v)))
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
