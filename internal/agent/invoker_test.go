package agent

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/interviewloop/insightd/internal/anthropic"
)

type fakeRecorder struct {
	status   string
	errMsg   string
	request  []byte
	response []byte
	id       uuid.UUID
	err      error
}

func (f *fakeRecorder) RecordInvocation(ctx context.Context, status, errorMessage string, request, response []byte) (uuid.UUID, error) {
	f.status = status
	f.errMsg = errorMessage
	f.request = request
	f.response = response
	if f.err != nil {
		return uuid.Nil, f.err
	}
	if f.id == uuid.Nil {
		f.id = uuid.New()
	}
	return f.id, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func anthropicServer(t *testing.T, handler http.HandlerFunc) *anthropic.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := anthropic.NewClient("test-key", "claude-test")
	c.SetTestTransport(srv.URL)
	return c
}

func TestInvoke_Success(t *testing.T) {
	var gotPrompt string
	llm := anthropicServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if msgs, ok := req["messages"].([]any); ok && len(msgs) == 1 {
			gotPrompt, _ = msgs[0].(map[string]any)["content"].(string)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"content":     []map[string]any{{"type": "text", "text": `{"insights": []}`}},
			"stop_reason": "end_turn",
		})
	})
	recorder := &fakeRecorder{}
	inv := NewAnthropicInvoker(llm, recorder, testLogger())

	res, err := inv.Invoke(context.Background(), map[string]string{"goal": "find risks"}, "the transcript")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Kind != KindText {
		t.Errorf("expected text result, got %v", res.Kind)
	}
	if res.TextContent != `{"insights": []}` {
		t.Errorf("unexpected text content %q", res.TextContent)
	}
	if res.ModelConfigID != "claude-test" {
		t.Errorf("expected model id stamped, got %q", res.ModelConfigID)
	}
	if res.InvocationLogID != recorder.id {
		t.Error("expected invocation log id returned")
	}
	if recorder.status != "completed" {
		t.Errorf("expected completed log, got %q", recorder.status)
	}
	if !strings.Contains(gotPrompt, "the transcript") {
		t.Error("expected conversation context in prompt")
	}
	if !strings.Contains(gotPrompt, "goal: find risks") {
		t.Error("expected prompt variables rendered into prompt")
	}
}

func TestInvoke_APIErrorRecordedAsFailed(t *testing.T) {
	llm := anthropicServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"type": "overloaded_error", "message": "try again"},
		})
	})
	recorder := &fakeRecorder{}
	inv := NewAnthropicInvoker(llm, recorder, testLogger())

	_, err := inv.Invoke(context.Background(), nil, "ctx")
	if err == nil {
		t.Fatal("expected error")
	}
	if recorder.status != "failed" {
		t.Errorf("expected failed log, got %q", recorder.status)
	}
	if !strings.Contains(recorder.errMsg, "overloaded_error") {
		t.Errorf("expected api error recorded, got %q", recorder.errMsg)
	}
}

func TestInvoke_LogWriteFailureDoesNotFailInvocation(t *testing.T) {
	llm := anthropicServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{{"type": "text", "text": "ok"}},
		})
	})
	recorder := &fakeRecorder{err: context.DeadlineExceeded}
	inv := NewAnthropicInvoker(llm, recorder, testLogger())

	res, err := inv.Invoke(context.Background(), nil, "ctx")
	if err != nil {
		t.Fatalf("log failure must not fail the invocation: %v", err)
	}
	if res.InvocationLogID != uuid.Nil {
		t.Error("expected nil log id when the log write fails")
	}
}

func TestRenderVars(t *testing.T) {
	out := renderVars(map[string]string{"b": "2", "a": "1"})
	ai := strings.Index(out, "a: 1")
	bi := strings.Index(out, "b: 2")
	if ai == -1 || bi == -1 || ai > bi {
		t.Errorf("expected stable sorted rendering, got %q", out)
	}
	if renderVars(nil) != "" {
		t.Error("expected empty rendering for nil vars")
	}
}
