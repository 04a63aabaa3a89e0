// Package universe resolves the list of symbols a scan walks.
package universe

import (
	"context"
	"encoding/csv"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"newstrader/internal/logger"
)

const (
	DatahubJSONURL = "https://datahub.io/core/s-and-p-500-companies/r/constituents.json"
	DatahubCSVURL  = "https://datahub.io/core/s-and-p-500-companies/r/constituents.csv"
	WikipediaURL   = "https://en.wikipedia.org/wiki/List_of_S%26P_500_companies"

	fetchTimeout = 15 * time.Second
)

// Fallback is used when every remote source fails.
var Fallback = []string{"AAPL", "MSFT", "AMZN", "GOOGL", "META", "BRK.B", "NVDA", "JPM", "TSLA", "UNH"}

// Fetcher loads the S&P 500 constituents from the first source that answers.
type Fetcher struct {
	http    *resty.Client
	jsonURL string
	csvURL  string
	wikiURL string
}

func NewFetcher() *Fetcher {
	return NewFetcherWithURLs(DatahubJSONURL, DatahubCSVURL, WikipediaURL)
}

func NewFetcherWithURLs(jsonURL, csvURL, wikiURL string) *Fetcher {
	client := resty.New().
		SetTimeout(fetchTimeout).
		SetHeader("User-Agent", "newstrader/1.0")
	return &Fetcher{http: client, jsonURL: jsonURL, csvURL: csvURL, wikiURL: wikiURL}
}

// SP500 returns sorted unique tickers and the name of the source that served them.
func (f *Fetcher) SP500(ctx context.Context) ([]string, string) {
	sources := []struct {
		name string
		url  string
		fn   func(context.Context, string) ([]string, error)
	}{
		{"datahub-json", f.jsonURL, f.fromJSON},
		{"datahub-csv", f.csvURL, f.fromCSV},
		{"wikipedia", f.wikiURL, f.fromWikipedia},
	}
	for _, src := range sources {
		if src.url == "" {
			continue
		}
		syms, err := src.fn(ctx, src.url)
		if err != nil {
			logger.Warnf("universe: %s failed: %v", src.name, err)
			continue
		}
		if len(syms) > 0 {
			return normalize(syms), src.name
		}
	}
	logger.Warnf("universe: all sources failed, using the static list")
	return normalize(Fallback), "static"
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	resp, err := f.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("GET %s: status %d", url, resp.StatusCode())
	}
	return resp.Body(), nil
}

func (f *Fetcher) fromJSON(ctx context.Context, url string) ([]string, error) {
	body, err := f.get(ctx, url)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid json")
	}
	var out []string
	gjson.ParseBytes(body).ForEach(func(_, row gjson.Result) bool {
		sym := row.Get("Symbol").String()
		if sym == "" {
			sym = row.Get("symbol").String()
		}
		if sym != "" {
			out = append(out, sym)
		}
		return true
	})
	return out, nil
}

func (f *Fetcher) fromCSV(ctx context.Context, url string) ([]string, error) {
	body, err := f.get(ctx, url)
	if err != nil {
		return nil, err
	}
	r := csv.NewReader(strings.NewReader(string(body)))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	var out []string
	for i, row := range rows {
		if i == 0 || len(row) == 0 {
			continue
		}
		out = append(out, row[0])
	}
	return out, nil
}

// fromWikipedia reads the first cell of each row of the constituents table,
// or of the first table on the page when the id is missing.
func (f *Fetcher) fromWikipedia(ctx context.Context, url string) ([]string, error) {
	body, err := f.get(ctx, url)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	table := doc.Find("table#constituents").First()
	if table.Length() == 0 {
		table = doc.Find("table").First()
	}
	var out []string
	table.Find("tbody tr").Each(func(_ int, row *goquery.Selection) {
		cell := strings.TrimSpace(row.Find("td").First().Text())
		if cell == "" || strings.EqualFold(cell, "symbol") {
			return
		}
		out = append(out, cell)
	})
	if len(out) == 0 {
		return nil, fmt.Errorf("no constituents table")
	}
	return out, nil
}

func normalize(syms []string) []string {
	seen := make(map[string]struct{}, len(syms))
	out := make([]string, 0, len(syms))
	for _, s := range syms {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
