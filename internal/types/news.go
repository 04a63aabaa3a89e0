package types

// NewsItem is one normalized article from the company-news or macro feed.
type NewsItem struct {
	ID       string `json:"id"`
	Datetime int64  `json:"datetime"`
	Source   string `json:"source"`
	Headline string `json:"headline"`
	Summary  string `json:"summary"`
	URL      string `json:"url"`
	IsMacro  bool   `json:"is_macro"`
}

// Text joins the scoreable fields the same way for every scorer.
func (n NewsItem) Text() string {
	switch {
	case n.Headline != "" && n.Summary != "":
		return n.Headline + ". " + n.Summary
	case n.Headline != "":
		return n.Headline
	default:
		return n.Summary
	}
}
