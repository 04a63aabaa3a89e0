package sentiment

import (
	"sort"
	"strconv"
	"strings"

	"newstrader/internal/types"
)

// Median is the robust aggregate used for every score list; empty input is 0.
func Median(scores []float64) float64 {
	n := len(scores)
	if n == 0 {
		return 0
	}
	s := make([]float64, n)
	copy(s, scores)
	sort.Float64s(s)
	mid := n / 2
	if n%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}

type EmotionCount struct {
	Name  string
	Count int
}

type MoveDirection string

const (
	MoveUp   MoveDirection = "up"
	MoveDown MoveDirection = "down"
	MoveFlat MoveDirection = "flat"
)

// Summary condenses the model assessments of one cycle.
type Summary struct {
	TopEmotions   []EmotionCount
	AvgMovePct    float64
	MoveDir       MoveDirection
	Decision      types.Action // empty when no assessment carried a valid decision
	AvgConfidence float64
	Count         int
}

func Summarize(assessments []types.Assessment) Summary {
	sum := Summary{MoveDir: MoveFlat, Count: len(assessments)}
	if len(assessments) == 0 {
		return sum
	}

	counts := map[string]int{}
	var moves, confs float64
	decCounts := map[types.Action]int{}
	var decOrder []types.Action
	for _, a := range assessments {
		for _, e := range a.Emotions {
			if key := strings.ToLower(strings.TrimSpace(e)); key != "" {
				counts[key]++
			}
		}
		moves += a.ExpectedMovePct
		confs += a.Confidence
		if dec, ok := types.ParseAction(string(a.Decision)); ok {
			if decCounts[dec] == 0 {
				decOrder = append(decOrder, dec)
			}
			decCounts[dec]++
		}
	}

	for name, c := range counts {
		sum.TopEmotions = append(sum.TopEmotions, EmotionCount{Name: name, Count: c})
	}
	sort.Slice(sum.TopEmotions, func(i, j int) bool {
		a, b := sum.TopEmotions[i], sum.TopEmotions[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Name < b.Name
	})
	if len(sum.TopEmotions) > 3 {
		sum.TopEmotions = sum.TopEmotions[:3]
	}

	sum.AvgMovePct = moves / float64(len(assessments))
	switch {
	case sum.AvgMovePct > 0:
		sum.MoveDir = MoveUp
	case sum.AvgMovePct < 0:
		sum.MoveDir = MoveDown
	}

	best := 0
	for _, dec := range decOrder {
		if decCounts[dec] > best {
			best = decCounts[dec]
			sum.Decision = dec
		}
	}
	sum.AvgConfidence = confs / float64(len(assessments))
	return sum
}

// EmotionString renders "name:count" pairs, or "none".
func (s Summary) EmotionString() string {
	if len(s.TopEmotions) == 0 {
		return "none"
	}
	parts := make([]string, len(s.TopEmotions))
	for i, e := range s.TopEmotions {
		parts[i] = e.Name + ":" + strconv.Itoa(e.Count)
	}
	return strings.Join(parts, ", ")
}
