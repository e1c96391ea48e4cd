// Package agent is the invocation boundary for the text-generating agent.
// The coordinator only sees Invoker and Result; the concrete implementation
// records every call to the invocation log for best-effort recovery.
package agent

import (
	"context"

	"github.com/google/uuid"
)

type Kind string

const (
	// KindText is a text-generation result, the only kind valid for
	// insight extraction.
	KindText Kind = "text"
	// KindVoice marks a voice-agent response, rejected by the coordinator.
	KindVoice Kind = "voice"
)

// Result is the outcome of one agent invocation. TextContent and Raw may
// both be empty when the provider returned an unusable response; callers
// then fall back to the invocation log.
type Result struct {
	Kind            Kind
	TextContent     string
	Raw             map[string]any
	ModelConfigID   string
	InvocationLogID uuid.UUID
}

// Invoker runs the agent once over the conversation context.
type Invoker interface {
	Invoke(ctx context.Context, promptVars map[string]string, conversationContext string) (Result, error)
}

// InvocationRecorder persists one invocation log row.
type InvocationRecorder interface {
	RecordInvocation(ctx context.Context, status, errorMessage string, request, response []byte) (uuid.UUID, error)
}
