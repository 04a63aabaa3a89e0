// Package sentiment scores news text and fuses the lexical and model scores.
package sentiment

import (
	"math"
	"strings"
	"unicode"
)

// LexicalScorer maps text to a compound polarity in [-1, 1].
type LexicalScorer interface {
	Score(text string) float64
}

const (
	normAlpha    = 15.0
	negateScalar = -0.74
	boostIncr    = 0.293
	negateWindow = 3
)

// Valences use the usual -4..+4 lexicon scale, tuned for market headlines.
var defaultLexicon = map[string]float64{
	"beat": 2.0, "beats": 2.0, "surge": 2.6, "surges": 2.6, "soar": 2.8, "soars": 2.8,
	"rally": 2.2, "rallies": 2.2, "gain": 1.8, "gains": 1.8, "jump": 1.9, "jumps": 1.9,
	"rise": 1.4, "rises": 1.4, "climb": 1.5, "climbs": 1.5, "upgrade": 2.2, "upgrades": 2.2,
	"upgraded": 2.2, "record": 1.3, "strong": 1.9, "stronger": 1.9, "growth": 1.6,
	"profit": 1.8, "profits": 1.8, "profitable": 2.0, "raise": 1.2, "raises": 1.2,
	"outperform": 2.0, "outperforms": 2.0, "approve": 1.9, "approves": 1.9, "approval": 1.9,
	"approved": 1.9, "win": 2.4, "wins": 2.4, "bullish": 2.4, "boost": 1.7, "boosts": 1.7,
	"optimism": 2.0, "optimistic": 2.1, "exceed": 1.8, "exceeds": 1.8, "breakthrough": 2.5,
	"partnership": 1.2, "expands": 1.1, "dividend": 1.0, "buyback": 1.3, "good": 1.9,
	"great": 3.1, "positive": 2.3, "success": 2.7, "successful": 2.8, "recover": 1.6,
	"recovers": 1.6, "rebound": 1.7, "rebounds": 1.7,

	"miss": -1.8, "misses": -1.8, "missed": -1.8, "plunge": -2.8, "plunges": -2.8,
	"fall": -1.6, "falls": -1.6, "drop": -1.6, "drops": -1.6, "downgrade": -2.2,
	"downgrades": -2.2, "downgraded": -2.2, "lawsuit": -2.1, "sued": -2.1, "probe": -1.7,
	"investigation": -1.8, "recall": -1.9, "recalls": -1.9, "loss": -2.0, "losses": -2.0,
	"weak": -1.9, "weaker": -1.9, "cut": -1.3, "cuts": -1.3, "bearish": -2.4,
	"fraud": -3.2, "bankruptcy": -3.3, "bankrupt": -3.3, "layoffs": -2.2, "decline": -1.6,
	"declines": -1.6, "slump": -2.2, "slumps": -2.2, "sink": -1.9, "sinks": -1.9,
	"tumble": -2.3, "tumbles": -2.3, "warn": -1.7, "warns": -1.7, "warning": -1.7,
	"fine": -0.8, "fined": -2.0, "penalty": -2.0, "halt": -1.6, "halts": -1.6,
	"delay": -1.4, "delays": -1.4, "crash": -3.0, "crashes": -3.0, "bad": -2.5,
	"negative": -2.3, "fail": -2.4, "fails": -2.4, "failure": -2.6, "concern": -1.2,
	"concerns": -1.2, "risk": -1.1, "risks": -1.1, "volatile": -1.2, "selloff": -2.2,
	"inflation": -0.8, "recession": -2.6, "default": -2.3, "scandal": -2.8,
}

var negations = map[string]struct{}{
	"not": {}, "no": {}, "never": {}, "without": {}, "isn't": {}, "aren't": {},
	"wasn't": {}, "weren't": {}, "don't": {}, "doesn't": {}, "didn't": {}, "won't": {},
	"can't": {}, "cannot": {}, "nor": {}, "neither": {},
}

var boosters = map[string]float64{
	"very": boostIncr, "extremely": boostIncr, "highly": boostIncr, "sharply": boostIncr,
	"significantly": boostIncr, "hugely": boostIncr, "strongly": boostIncr, "massive": boostIncr,
	"slightly": -boostIncr, "marginally": -boostIncr, "somewhat": -boostIncr, "modestly": -boostIncr,
}

// Lexicon is a dictionary scorer with negation and intensity handling whose
// compound output is normalized as x/sqrt(x^2+15).
type Lexicon struct {
	words map[string]float64
}

func NewLexicon() *Lexicon {
	return &Lexicon{words: defaultLexicon}
}

// WithWords overlays extra valences (case-insensitive).
func (l *Lexicon) WithWords(extra map[string]float64) *Lexicon {
	merged := make(map[string]float64, len(l.words)+len(extra))
	for k, v := range l.words {
		merged[k] = v
	}
	for k, v := range extra {
		merged[strings.ToLower(k)] = v
	}
	return &Lexicon{words: merged}
}

func (l *Lexicon) Score(text string) float64 {
	tokens := words(text)
	if len(tokens) == 0 {
		return 0
	}
	var sum float64
	for i, tok := range tokens {
		v, ok := l.words[tok]
		if !ok {
			continue
		}
		for back := 1; back <= negateWindow && i-back >= 0; back++ {
			prev := tokens[i-back]
			if b, ok := boosters[prev]; ok {
				if v > 0 {
					v += b
				} else {
					v -= b
				}
			}
			if _, neg := negations[prev]; neg {
				v *= negateScalar
			}
		}
		sum += v
	}
	if bangs := strings.Count(text, "!"); bangs > 0 && sum != 0 {
		emph := math.Min(float64(bangs), 4) * 0.292
		if sum > 0 {
			sum += emph
		} else {
			sum -= emph
		}
	}
	return normalize(sum)
}

func normalize(x float64) float64 {
	if x == 0 {
		return 0
	}
	n := x / math.Sqrt(x*x+normAlpha)
	return math.Max(-1, math.Min(1, n))
}

func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}
