package news

import (
	"crypto/sha1"
	"encoding/hex"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"newstrader/internal/types"
)

var nonWord = regexp.MustCompile(`[^a-z0-9\s]+`)

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "from": {}, "into": {}, "over": {},
	"this": {}, "that": {}, "are": {}, "was": {}, "were": {}, "will": {}, "has": {},
	"have": {}, "had": {}, "a": {}, "an": {}, "of": {}, "to": {}, "in": {}, "on": {},
	"by": {}, "as": {}, "at": {}, "is": {}, "it": {},
}

// EventKey fingerprints the story an item reports so that reworded copies of the
// same headline on the same day collapse to one key. Days are bucketed in the local zone.
func EventKey(item types.NewsItem, symbol string) string {
	return EventKeyIn(item, symbol, time.Local)
}

// EventKeyIn is EventKey with an explicit zone for the day bucket.
func EventKeyIn(item types.NewsItem, symbol string, loc *time.Location) string {
	tokens := tokenize(item.Text(), symbol)
	if len(tokens) == 0 {
		return sha1Hex(item.Headline)
	}
	uniq := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		uniq[t] = struct{}{}
	}
	words := make([]string, 0, len(uniq))
	for t := range uniq {
		words = append(words, t)
	}
	sort.Strings(words)
	sig := strings.Join(words, " ")
	if item.Datetime != 0 {
		if loc == nil {
			loc = time.Local
		}
		sig += "|" + time.Unix(item.Datetime, 0).In(loc).Format("2006-01-02")
	}
	return sha1Hex(sig)
}

func tokenize(text, symbol string) []string {
	t := nonWord.ReplaceAllString(strings.ToLower(text), " ")
	if sym := strings.ToLower(strings.TrimSpace(symbol)); sym != "" {
		t = strings.ReplaceAll(t, sym, " ")
	}
	var out []string
	for _, w := range strings.Fields(t) {
		if len(w) <= 2 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		out = append(out, w)
	}
	return out
}

// Dedupe keeps the first item for every event key, preserving order.
func Dedupe(symbol string, items []types.NewsItem) []types.NewsItem {
	seen := make(map[string]struct{}, len(items))
	out := make([]types.NewsItem, 0, len(items))
	for _, it := range items {
		key := EventKey(it, symbol)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, it)
	}
	return out
}

// ID is the provider id, or a content hash when the provider gave none.
func ID(item types.NewsItem) string {
	if item.ID != "" {
		return item.ID
	}
	return sha1Hex(item.Source + "|" + strconv.FormatInt(item.Datetime, 10) + "|" + item.Headline)
}

func sha1Hex(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
