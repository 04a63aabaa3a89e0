package data

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"newstrader/internal/types"
)

const (
	AlpacaDataBaseURL = "https://data.alpaca.markets/v2"

	snapshotTimeout = 20 * time.Second
)

// AlpacaSnapshots fetches last trade prices for a batch of symbols.
type AlpacaSnapshots struct {
	http *resty.Client
}

func NewAlpacaSnapshots(baseURL, key, secret string) *AlpacaSnapshots {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = AlpacaDataBaseURL
	}
	client := resty.New().
		SetBaseURL(base).
		SetTimeout(snapshotTimeout).
		SetHeader("APCA-API-KEY-ID", key).
		SetHeader("APCA-API-SECRET-KEY", secret)
	return &AlpacaSnapshots{http: client}
}

// Snapshots maps upper-case symbols to the latest trade price, falling back to
// the daily bar close. Symbols without a price are absent from the result.
func (a *AlpacaSnapshots) Snapshots(ctx context.Context, symbols []string) (map[string]float64, error) {
	if len(symbols) == 0 {
		return map[string]float64{}, nil
	}
	resp, err := a.http.R().
		SetContext(ctx).
		SetQueryParam("symbols", strings.Join(symbols, ",")).
		Get("/stocks/snapshots")
	if err != nil {
		return nil, &types.NetworkError{Op: "snapshots", Err: err}
	}
	if resp.IsError() {
		return nil, &types.DataUnavailable{Symbol: strings.Join(symbols, ","), What: "snapshots", Err: fmt.Errorf("status=%d", resp.StatusCode())}
	}
	return parseSnapshots(resp.Body())
}

func parseSnapshots(body []byte) (map[string]float64, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("snapshots: invalid json")
	}
	root := gjson.ParseBytes(body)
	if nested := root.Get("snapshots"); nested.IsObject() {
		root = nested
	}
	out := make(map[string]float64)
	root.ForEach(func(key, snap gjson.Result) bool {
		if !snap.IsObject() {
			return true
		}
		price := firstNumber(snap, "latestTrade.p", "latestTrade.price", "dailyBar.c", "dailyBar.close")
		if price > 0 {
			out[strings.ToUpper(key.String())] = price
		}
		return true
	})
	return out, nil
}

func firstNumber(v gjson.Result, paths ...string) float64 {
	for _, p := range paths {
		if r := v.Get(p); r.Exists() && r.Type == gjson.Number {
			return r.Float()
		}
	}
	return 0
}
