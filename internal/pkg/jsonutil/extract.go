// Package jsonutil pulls JSON payloads out of chatty model replies.
package jsonutil

import (
	"encoding/json"
	"strings"
)

const fence = "```"

// ExtractObject returns the first balanced JSON object in raw. A fenced block
// (```json ... ```) is preferred over bare text.
func ExtractObject(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if block, ok := fenced(raw); ok {
		if obj, ok := balanced(block, '{', '}'); ok {
			return obj, true
		}
	}
	return balanced(raw, '{', '}')
}

func fenced(raw string) (string, bool) {
	start := strings.Index(raw, fence)
	if start == -1 {
		return "", false
	}
	rest := raw[start+len(fence):]
	end := strings.Index(rest, fence)
	if end == -1 {
		return "", false
	}
	block := strings.TrimLeft(rest[:end], "\r\n")
	// drop a language tag line such as "json"
	if idx := strings.Index(block, "\n"); idx != -1 {
		if first := strings.TrimSpace(block[:idx]); first != "" && !strings.ContainsAny(first, "[{") {
			block = block[idx+1:]
		}
	}
	block = strings.TrimSpace(block)
	return block, block != ""
}

func balanced(raw string, open, close byte) (string, bool) {
	start := strings.IndexByte(raw, open)
	if start == -1 {
		return "", false
	}
	depth := 0
	inString, escape := false, false
	for i := start; i < len(raw); i++ {
		ch := raw[i]
		if inString {
			switch {
			case escape:
				escape = false
			case ch == '\\':
				escape = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return raw[start : i+1], true
			}
		}
	}
	return "", false
}

// Pretty indents any JSON-marshalable value; on failure it returns "{}".
func Pretty(v any) string {
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(buf)
}
