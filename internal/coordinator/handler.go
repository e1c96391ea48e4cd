package coordinator

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

// MessageStoredEvent is the NATS payload published by the chat service
// after each stored conversation message.
type MessageStoredEvent struct {
	ConversationID  string            `json:"conversation_id"`
	ThreadID        string            `json:"thread_id"`
	UserID          string            `json:"user_id"`
	PromptVariables map[string]string `json:"prompt_variables"`
}

// HandleMessageStored is the NATS handler for interview.message.stored.
// Errors are logged, not returned: the bus delivery must not fail because
// one detection attempt did.
func (c *Coordinator) HandleMessageStored(subject string, data []byte) {
	ctx := context.Background()

	var evt MessageStoredEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		c.logger.Error("failed to parse message stored event", "error", err)
		return
	}

	conversationID, err := uuid.Parse(evt.ConversationID)
	if err != nil {
		c.logger.Error("invalid conversation id in event", "conversation_id", evt.ConversationID, "error", err)
		return
	}

	var threadID, userID *uuid.UUID
	if id, err := uuid.Parse(evt.ThreadID); err == nil {
		threadID = &id
	}
	if id, err := uuid.Parse(evt.UserID); err == nil {
		userID = &id
	}

	if _, err := c.Run(ctx, conversationID, threadID, evt.PromptVariables, userID); err != nil {
		c.logger.Error("insight detection failed",
			"conversation_id", conversationID, "error", err)
	}
}
