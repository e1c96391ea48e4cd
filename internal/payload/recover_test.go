package payload

import (
	"testing"
)

func TestRecoverStructure_DirectJSON(t *testing.T) {
	v := RecoverStructure(`{"insights": []}`)
	m, ok := v.(map[string]any)
	if !ok {
		t.Fatalf("expected object, got %T", v)
	}
	if _, ok := m["insights"]; !ok {
		t.Error("expected insights key")
	}
}

func TestRecoverStructure_FencedBlock(t *testing.T) {
	cases := []struct {
		name string
		text string
	}{
		{"json fence", "Here is what I found:\n```json\n[{\"content\": \"a\"}]\n```\nHope that helps!"},
		{"bare fence", "Sure!\n```\n[{\"content\": \"a\"}]\n```"},
		{"fence with prose before and after", "preamble\n\n```json\n{\"insights\": [{\"content\": \"a\"}]}\n```\ntrailing notes"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if v := RecoverStructure(tc.text); v == nil {
				t.Fatalf("expected recovery from %q", tc.text)
			}
		})
	}
}

func TestRecoverStructure_BalancedSpanInsideProse(t *testing.T) {
	text := `The model says {"content": "users want dark mode", "type": "idea"} and nothing else.`
	v := RecoverStructure(text)
	m, ok := v.(map[string]any)
	if !ok {
		t.Fatalf("expected object, got %T", v)
	}
	if m["content"] != "users want dark mode" {
		t.Errorf("unexpected content: %v", m["content"])
	}
}

func TestRecoverStructure_BracketsInsideStrings(t *testing.T) {
	// The } inside the quoted value must not terminate the span early.
	text := `noise {"content": "use map[string]any{} here", "type": "idea"} noise`
	v := RecoverStructure(text)
	if v == nil {
		t.Fatal("expected recovery despite brackets inside string value")
	}
}

func TestRecoverStructure_Unrecoverable(t *testing.T) {
	for _, text := range []string{
		"",
		"   ",
		"just plain prose with no structure",
		`"a bare string"`,
		"42",
	} {
		if v := RecoverStructure(text); v != nil {
			t.Errorf("expected nil for %q, got %v", text, v)
		}
	}
}

func TestBalancedSpan_Unbalanced(t *testing.T) {
	cases := []string{
		`{"content": "never closed`,
		`}{`,
		`text ] before [`,
		`{"a": [1, 2}`,
		`no brackets here`,
	}
	for _, s := range cases {
		if span := balancedSpan(s); span != "" {
			t.Errorf("expected no span for %q, got %q", s, span)
		}
	}
}

func TestBalancedSpan_QuoteEscapes(t *testing.T) {
	s := `{"a": "escaped \" quote with } inside"}`
	if span := balancedSpan(s); span != s {
		t.Errorf("expected full span, got %q", span)
	}
	s = `{'a': 'single-quoted } value'}`
	if span := balancedSpan(s); span != s {
		t.Errorf("expected full span for single quotes, got %q", span)
	}
}

func TestSanitize(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"prose before {\"a\":1} prose after", `{"a":1}`},
		{"no structure at all", "no structure at all"},
		{"  [1,2,3]  ", "[1,2,3]"},
	}
	for _, tc := range cases {
		if got := sanitize(tc.in); got != tc.want {
			t.Errorf("sanitize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestExtractText_ContentBlocks(t *testing.T) {
	raw := map[string]any{
		"content": []any{
			map[string]any{"type": "text", "text": "first "},
			map[string]any{"type": "text", "text": "second"},
		},
	}
	if got := ExtractText(raw); got != "first second" {
		t.Errorf("expected concatenated blocks, got %q", got)
	}
}

func TestExtractText_NestedBlocks(t *testing.T) {
	raw := map[string]any{
		"content": []any{
			map[string]any{
				"type": "tool_result",
				"content": []any{
					map[string]any{"type": "text", "text": "inner a "},
					map[string]any{"type": "text", "text": "inner b"},
				},
			},
		},
	}
	if got := ExtractText(raw); got != "inner a inner b" {
		t.Errorf("expected nested text, got %q", got)
	}
}

func TestExtractText_FlatString(t *testing.T) {
	raw := map[string]any{"content": "just a string"}
	if got := ExtractText(raw); got != "just a string" {
		t.Errorf("expected flat string, got %q", got)
	}
}

func TestExtractText_ChoiceList(t *testing.T) {
	raw := map[string]any{
		"choices": []any{
			map[string]any{
				"message": map[string]any{"content": "choice text"},
			},
		},
	}
	if got := ExtractText(raw); got != "choice text" {
		t.Errorf("expected choice text, got %q", got)
	}
}

func TestExtractText_NothingUsable(t *testing.T) {
	if got := ExtractText(map[string]any{"usage": map[string]any{"tokens": 5.0}}); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
	if got := ExtractText(nil); got != "" {
		t.Errorf("expected empty string for nil, got %q", got)
	}
}
