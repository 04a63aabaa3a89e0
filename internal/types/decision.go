package types

import "strings"

type Action string

const (
	ActionLong  Action = "long"
	ActionShort Action = "short"
	ActionHold  Action = "hold"
	ActionClose Action = "close"
)

// ParseAction maps free text onto an Action; ok is false for anything else.
func ParseAction(s string) (Action, bool) {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case ActionLong:
		return ActionLong, true
	case ActionShort:
		return ActionShort, true
	case ActionHold:
		return ActionHold, true
	case ActionClose:
		return ActionClose, true
	default:
		return "", false
	}
}

// Assessment is the structured read of one news item by the LLM scorer.
type Assessment struct {
	Score           float64  `json:"score"`
	Emotions        []string `json:"emotions"`
	ExpectedMovePct float64  `json:"expected_move_pct"`
	HorizonDays     int      `json:"horizon_days"`
	Decision        Action   `json:"decision"`
	Confidence      float64  `json:"confidence"`
	Reason          string   `json:"reason"`
}

// Decision is the pipeline output for one symbol in one cycle.
type Decision struct {
	Action        Action  `json:"action"`
	Source        string  `json:"source"`
	SentimentUsed float64 `json:"sentiment_used"`
}

// Tag appends a modifier to the decision source.
func (d *Decision) Tag(modifier string) {
	d.Source += "+" + modifier
}

// HasTag reports whether the modifier was already appended.
func (d Decision) HasTag(modifier string) bool {
	return strings.Contains(d.Source, "+"+modifier)
}
