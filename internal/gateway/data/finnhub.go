// Package data adapts the news and quote providers to the engine's data port.
package data

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"newstrader/internal/types"
)

const (
	FinnhubBaseURL = "https://finnhub.io/api/v1"

	finnhubTimeout = 30 * time.Second
)

// Finnhub fetches company news and last quotes.
type Finnhub struct {
	http  *resty.Client
	token string
}

func NewFinnhub(baseURL, token string) *Finnhub {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = FinnhubBaseURL
	}
	client := resty.New().
		SetBaseURL(base).
		SetTimeout(finnhubTimeout).
		SetRetryCount(3).
		SetRetryWaitTime(800 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil || r == nil {
				return true
			}
			switch r.StatusCode() {
			case 429, 500, 502, 503, 504:
				return true
			}
			return false
		})
	return &Finnhub{http: client, token: token}
}

type finnhubNews struct {
	ID       int64  `json:"id"`
	Datetime int64  `json:"datetime"`
	Source   string `json:"source"`
	Headline string `json:"headline"`
	Summary  string `json:"summary"`
	URL      string `json:"url"`
}

// News returns the newest limit items between the two calendar days.
func (f *Finnhub) News(ctx context.Context, symbol string, from, to time.Time, limit int) ([]types.NewsItem, error) {
	var raw []finnhubNews
	resp, err := f.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol": symbol,
			"from":   from.Format("2006-01-02"),
			"to":     to.Format("2006-01-02"),
			"token":  f.token,
		}).
		SetResult(&raw).
		Get("/company-news")
	if err != nil {
		return nil, &types.NetworkError{Op: "company news", Err: err}
	}
	if resp.IsError() {
		return nil, &types.DataUnavailable{Symbol: symbol, What: "news", Err: fmt.Errorf("status=%d", resp.StatusCode())}
	}
	sort.SliceStable(raw, func(i, j int) bool { return raw[i].Datetime > raw[j].Datetime })
	if limit > 0 && len(raw) > limit {
		raw = raw[:limit]
	}
	out := make([]types.NewsItem, 0, len(raw))
	for _, n := range raw {
		id := ""
		if n.ID != 0 {
			id = strconv.FormatInt(n.ID, 10)
		}
		out = append(out, types.NewsItem{
			ID:       id,
			Datetime: n.Datetime,
			Source:   n.Source,
			Headline: n.Headline,
			Summary:  n.Summary,
			URL:      n.URL,
		})
	}
	return out, nil
}

type finnhubQuote struct {
	Current *float64 `json:"c"`
}

// Quote reports ok=false when the provider has no current price.
func (f *Finnhub) Quote(ctx context.Context, symbol string) (float64, bool, error) {
	var q finnhubQuote
	resp, err := f.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"symbol": symbol, "token": f.token}).
		SetResult(&q).
		Get("/quote")
	if err != nil {
		return 0, false, &types.NetworkError{Op: "quote", Err: err}
	}
	if resp.IsError() {
		return 0, false, &types.DataUnavailable{Symbol: symbol, What: "quote", Err: fmt.Errorf("status=%d", resp.StatusCode())}
	}
	if q.Current == nil || *q.Current <= 0 {
		return 0, false, nil
	}
	return *q.Current, true, nil
}
