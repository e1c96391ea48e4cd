package payload

import (
	"errors"
	"testing"
)

func TestResolvePayload_FencedInsightsObject(t *testing.T) {
	text := "Here you go:\n```json\n{\"insights\": [{\"content\": \"Users want dark mode\", \"type\": \"idea\"}]}\n```"
	cands, err := ResolvePayload(text, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cands) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(cands))
	}
	if cands[0].Content != "Users want dark mode" {
		t.Errorf("unexpected content: %q", cands[0].Content)
	}
	if cands[0].Type != "idea" {
		t.Errorf("unexpected type: %q", cands[0].Type)
	}
}

func TestResolvePayload_BareArray(t *testing.T) {
	cands, err := ResolvePayload(`[{"content": "a"}, {"content": "b"}]`, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cands) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(cands))
	}
}

func TestResolvePayload_SingleInsightWrapped(t *testing.T) {
	cands, err := ResolvePayload(`{"content": "slow load times", "summary": "perf"}`, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cands) != 1 {
		t.Fatalf("expected wrapped single insight, got %d candidates", len(cands))
	}
	if cands[0].Summary != "perf" {
		t.Errorf("unexpected summary: %q", cands[0].Summary)
	}
}

func TestResolvePayload_ItemsField(t *testing.T) {
	cands, err := ResolvePayload(`{"items": [{"content": "x"}]}`, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cands) != 1 {
		t.Fatalf("expected 1 candidate from items, got %d", len(cands))
	}
}

func TestResolvePayload_ForeignShape(t *testing.T) {
	_, err := ResolvePayload(`{"keywords": ["alpha", "beta"], "themes": ["x"]}`, nil)
	if !errors.Is(err, ErrForeignShape) {
		t.Fatalf("expected ErrForeignShape, got %v", err)
	}
}

func TestResolvePayload_TextFallsBackToRawObject(t *testing.T) {
	raw := map[string]any{
		"content": []any{
			map[string]any{"type": "text", "text": "```json\n{\"insights\": [{\"content\": \"from raw\"}]}\n```"},
		},
	}
	cands, err := ResolvePayload("no structure in the direct text", raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cands) != 1 || cands[0].Content != "from raw" {
		t.Fatalf("expected candidate recovered from raw object text, got %v", cands)
	}
}

func TestResolvePayload_RawObjectDirectInspection(t *testing.T) {
	raw := map[string]any{
		"insights": []any{
			map[string]any{"content": "direct from raw"},
		},
	}
	cands, err := ResolvePayload("", raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cands) != 1 || cands[0].Content != "direct from raw" {
		t.Fatalf("expected candidate from raw inspection, got %v", cands)
	}
}

func TestResolvePayload_RawObjectNestedUnderContent(t *testing.T) {
	raw := map[string]any{
		"content": map[string]any{
			"items": []any{
				map[string]any{"content": "nested"},
			},
		},
	}
	cands, err := ResolvePayload("", raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cands) != 1 || cands[0].Content != "nested" {
		t.Fatalf("expected nested raw candidate, got %v", cands)
	}
}

func TestResolvePayload_NothingRecoverable(t *testing.T) {
	cands, err := ResolvePayload("pure prose, nothing structured", map[string]any{"usage": 5.0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cands != nil {
		t.Fatalf("expected nil candidates, got %v", cands)
	}
}

func TestResolvePayload_DropsNonObjectElements(t *testing.T) {
	cands, err := ResolvePayload(`["just a string", {"content": "kept"}, 42]`, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cands) != 1 || cands[0].Content != "kept" {
		t.Fatalf("expected only the object element, got %v", cands)
	}
}

func TestResolvePayload_KPIValueCoercion(t *testing.T) {
	text := `{"insights": [{"content": "conversion", "kpis": [{"label": "rate", "value": 3.5}, {"value": "12%"}]}]}`
	cands, err := ResolvePayload(text, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cands) != 1 || len(cands[0].KPIs) != 2 {
		t.Fatalf("expected 1 candidate with 2 KPIs, got %v", cands)
	}
	if cands[0].KPIs[0].Value != "3.5" {
		t.Errorf("expected numeric KPI coerced to %q, got %q", "3.5", cands[0].KPIs[0].Value)
	}
	if cands[0].KPIs[1].Value != "12%" {
		t.Errorf("expected string KPI kept, got %q", cands[0].KPIs[1].Value)
	}
}

func TestResolvePayload_AuthorsAbsentVsEmpty(t *testing.T) {
	cands, err := ResolvePayload(`[{"content": "no authors field"}]`, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cands[0].Authors != nil {
		t.Error("expected nil authors when field absent")
	}

	cands, err = ResolvePayload(`[{"content": "empty authors", "authors": []}]`, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cands[0].Authors == nil {
		t.Error("expected non-nil empty authors when field explicitly supplied")
	}
}
