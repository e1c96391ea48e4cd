package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/interviewloop/insightd/internal/anthropic"
)

// AnthropicInvoker runs extractions against the Anthropic Messages API and
// records every call to the invocation log.
type AnthropicInvoker struct {
	llm    *anthropic.Client
	logs   InvocationRecorder
	logger *slog.Logger
}

var _ Invoker = (*AnthropicInvoker)(nil)

func NewAnthropicInvoker(llm *anthropic.Client, logs InvocationRecorder, logger *slog.Logger) *AnthropicInvoker {
	return &AnthropicInvoker{llm: llm, logs: logs, logger: logger}
}

func (a *AnthropicInvoker) Invoke(ctx context.Context, promptVars map[string]string, conversationContext string) (Result, error) {
	prompt := fmt.Sprintf(userPromptTemplate, conversationContext, renderVars(promptVars))
	messages := []anthropic.Message{{Role: "user", Content: prompt}}

	reqPayload, _ := json.Marshal(map[string]any{
		"model":       a.llm.Model(),
		"prompt_vars": promptVars,
		"context_len": len(conversationContext),
	})

	resp, err := a.llm.Complete(ctx, systemPrompt, messages, 8192)
	if err != nil {
		logID := a.record(ctx, "failed", err.Error(), reqPayload, nil)
		return Result{InvocationLogID: logID}, fmt.Errorf("agent invocation: %w", err)
	}

	respPayload, _ := json.Marshal(resp.Raw)
	logID := a.record(ctx, "completed", "", reqPayload, respPayload)

	return Result{
		Kind:            KindText,
		TextContent:     resp.Text(),
		Raw:             resp.Raw,
		ModelConfigID:   a.llm.Model(),
		InvocationLogID: logID,
	}, nil
}

// record writes the invocation log row. Log-write failures are reported but
// never fail the invocation itself.
func (a *AnthropicInvoker) record(ctx context.Context, status, errMsg string, request, response []byte) uuid.UUID {
	id, err := a.logs.RecordInvocation(ctx, status, errMsg, request, response)
	if err != nil {
		a.logger.Warn("failed to record agent invocation", "status", status, "error", err)
		return uuid.Nil
	}
	return id
}

// renderVars flattens prompt variables into stable "key: value" lines.
func renderVars(vars map[string]string) string {
	if len(vars) == 0 {
		return ""
	}
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString("Interview focus:\n")
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteString(": ")
		sb.WriteString(vars[k])
		sb.WriteString("\n")
	}
	return sb.String()
}
