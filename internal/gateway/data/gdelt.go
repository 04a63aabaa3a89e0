package data

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"newstrader/internal/types"
)

const (
	GDELTBaseURL = "https://api.gdeltproject.org/api/v2/doc/doc"

	gdeltTimeout = 25 * time.Second
)

var gdeltDateLayouts = []string{"20060102T150405Z", time.RFC3339}

// GDELT queries the DOC 2.1 article list for macro themes.
type GDELT struct {
	http *resty.Client
	url  string
}

func NewGDELT(baseURL string) *GDELT {
	url := strings.TrimSpace(baseURL)
	if url == "" {
		url = GDELTBaseURL
	}
	return &GDELT{http: resty.New().SetTimeout(gdeltTimeout), url: url}
}

type gdeltArticle struct {
	URL              string `json:"url"`
	Title            string `json:"title"`
	SeenDate         string `json:"seendate"`
	Domain           string `json:"domain"`
	SourceCommonName string `json:"sourcecommonname"`
}

type gdeltResponse struct {
	Articles []gdeltArticle `json:"articles"`
}

func (g *GDELT) MacroEvents(ctx context.Context, themes []string, max, timespanMin int) ([]types.NewsItem, error) {
	query := themeQuery(themes)
	if query == "" {
		return nil, nil
	}
	var out gdeltResponse
	resp, err := g.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"query":      query,
			"mode":       "ArtList",
			"maxrecords": strconv.Itoa(max),
			"timespan":   fmt.Sprintf("%dmin", timespanMin),
			"format":     "json",
			"sort":       "DateDesc",
		}).
		SetResult(&out).
		Get(g.url)
	if err != nil {
		return nil, &types.NetworkError{Op: "gdelt", Err: err}
	}
	if resp.IsError() {
		return nil, &types.DataUnavailable{Symbol: "macro", What: "gdelt articles", Err: fmt.Errorf("status=%d", resp.StatusCode())}
	}
	items := make([]types.NewsItem, 0, len(out.Articles))
	for _, a := range out.Articles {
		items = append(items, a.toItem())
	}
	return items, nil
}

func themeQuery(themes []string) string {
	parts := make([]string, 0, len(themes))
	for _, t := range themes {
		if t = strings.TrimSpace(t); t != "" {
			parts = append(parts, "theme:"+t)
		}
	}
	return strings.Join(parts, " OR ")
}

func (a gdeltArticle) toItem() types.NewsItem {
	title := a.Title
	if title == "" {
		title = a.SeenDate
	}
	domain := a.Domain
	if domain == "" {
		domain = a.SourceCommonName
	}
	if domain == "" {
		domain = "GDELT"
	}
	id := a.URL
	if id == "" {
		id = title + a.SeenDate
	}
	summary := a.URL
	if summary == "" {
		summary = domain
	}
	return types.NewsItem{
		ID:       id,
		Datetime: parseSeenDate(a.SeenDate),
		Source:   "GDELT:" + domain,
		Headline: title,
		Summary:  summary,
		URL:      a.URL,
		IsMacro:  true,
	}
}

func parseSeenDate(s string) int64 {
	s = strings.TrimSpace(s)
	for _, layout := range gdeltDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Unix()
		}
	}
	return 0
}
