// Package payload recovers structured insight candidates from unreliable
// agent output: prose-wrapped JSON, fenced code blocks, or raw provider
// response objects. All functions are pure and never panic on bad input.
package payload

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	fenceRe = regexp.MustCompile("(?s)```[a-zA-Z]*[ \t]*\n?(.*?)```")
	braceRe = regexp.MustCompile(`(?s)\{.*\}`)
)

// RecoverStructure tries an ordered list of substrings of text and returns
// the first that parses as a JSON object or array: the trimmed input, the
// body of the first fenced code block, the first balanced bracket span, and
// the first greedy {…} match. Returns nil when nothing parses.
func RecoverStructure(text string) any {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	candidates := []string{trimmed}
	if body := fencedBody(trimmed); body != "" {
		candidates = append(candidates, body)
	}
	if span := balancedSpan(trimmed); span != "" {
		candidates = append(candidates, span)
	}
	if m := braceRe.FindString(trimmed); m != "" {
		candidates = append(candidates, m)
	}

	for _, c := range candidates {
		var v any
		if err := json.Unmarshal([]byte(c), &v); err != nil {
			continue
		}
		switch v.(type) {
		case map[string]any, []any:
			return v
		}
	}
	return nil
}

// fencedBody returns the body of the first ``` code block, or "".
func fencedBody(s string) string {
	m := fenceRe.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// balancedSpan returns the first balanced bracket span starting at the first
// [ or {. The depth scan is quote-aware: brackets inside single- or
// double-quoted strings are ignored, and backslash escapes are honoured.
// Unmatched or overlapping brackets yield "".
func balancedSpan(s string) string {
	start := strings.IndexAny(s, "[{")
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	var quote byte
	escaped := false

	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			if escaped {
				escaped = false
				continue
			}
			switch ch {
			case '\\':
				escaped = true
			case quote:
				inString = false
			}
			continue
		}
		switch ch {
		case '"', '\'':
			inString = true
			quote = ch
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
			if depth < 0 {
				return ""
			}
		}
	}
	return ""
}

// sanitize strips code fences and surrounding prose: the fence body when a
// fence is present, otherwise the substring from the first bracket to the
// last closing bracket.
func sanitize(s string) string {
	trimmed := strings.TrimSpace(s)
	if body := fencedBody(trimmed); body != "" {
		return body
	}
	first := strings.IndexAny(trimmed, "[{")
	last := strings.LastIndexAny(trimmed, "]}")
	if first >= 0 && last > first {
		return trimmed[first : last+1]
	}
	return trimmed
}

// ExtractText pulls human-readable text out of a provider-shaped response
// object: content-block arrays (with one level of nested sub-blocks), flat
// string content fields, and choice-list/message shapes. Fragments are
// concatenated in order; "" means nothing usable was found.
func ExtractText(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case []any:
		var sb strings.Builder
		for _, block := range v {
			switch b := block.(type) {
			case string:
				sb.WriteString(b)
			case map[string]any:
				if t, ok := b["text"].(string); ok {
					sb.WriteString(t)
				}
				if sub, ok := b["content"].([]any); ok {
					for _, inner := range sub {
						if m, ok := inner.(map[string]any); ok {
							if t, ok := m["text"].(string); ok {
								sb.WriteString(t)
							}
						}
					}
				}
			}
		}
		return sb.String()
	case map[string]any:
		if c, ok := v["content"]; ok {
			if s := ExtractText(c); s != "" {
				return s
			}
		}
		if t, ok := v["text"].(string); ok {
			return t
		}
		if choices, ok := v["choices"].([]any); ok {
			var sb strings.Builder
			for _, choice := range choices {
				m, ok := choice.(map[string]any)
				if !ok {
					continue
				}
				if msg, ok := m["message"].(map[string]any); ok {
					sb.WriteString(ExtractText(msg["content"]))
					continue
				}
				if t, ok := m["text"].(string); ok {
					sb.WriteString(t)
				}
			}
			return sb.String()
		}
		if msg, ok := v["message"].(map[string]any); ok {
			return ExtractText(msg["content"])
		}
	}
	return ""
}
