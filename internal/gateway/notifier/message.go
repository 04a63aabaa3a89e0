package notifier

import (
	"strings"
	"time"
)

const maxStructuredMessageLen = 3800

type MessageSection struct {
	Title string
	Lines []string
}

// StructuredMessage renders as a Markdown header plus a fenced body.
type StructuredMessage struct {
	Icon      string
	Title     string
	Sections  []MessageSection
	Footer    string
	Timestamp time.Time
}

func (m StructuredMessage) RenderMarkdown() string {
	var b strings.Builder
	if header := strings.TrimSpace(m.Icon + " " + m.Title); header != "" {
		b.WriteString(header + "\n\n")
	}
	b.WriteString(renderSections(m.Sections))
	if footer := strings.TrimSpace(m.Footer); footer != "" {
		b.WriteString(sanitize(footer))
		b.WriteString("\n")
	}
	if !m.Timestamp.IsZero() {
		b.WriteString("time: " + m.Timestamp.Format("2006-01-02 15:04:05 MST"))
	}
	body := strings.TrimSpace(b.String())
	if len(body) > maxStructuredMessageLen {
		body = body[:maxStructuredMessageLen] + "..."
	}
	return body
}

func renderSections(secs []MessageSection) string {
	var b strings.Builder
	written := 0
	for _, sec := range secs {
		lines := sanitizeLines(sec.Lines)
		if len(lines) == 0 {
			continue
		}
		if written > 0 {
			b.WriteString("\n")
		}
		if title := strings.TrimSpace(sec.Title); title != "" {
			b.WriteString(sanitize(title) + "\n")
		}
		for _, line := range lines {
			b.WriteString("- " + sanitize(line) + "\n")
		}
		written++
	}
	if written == 0 {
		return ""
	}
	return "```\n" + b.String() + "```\n\n"
}

func sanitizeLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if text := strings.TrimSpace(line); text != "" {
			out = append(out, text)
		}
	}
	return out
}

func sanitize(s string) string {
	return strings.ReplaceAll(s, "```", "'''")
}
