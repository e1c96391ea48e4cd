package coordinator

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/interviewloop/insightd/internal/store"
)

func TestHandleMessageStored(t *testing.T) {
	jobs := newFakeJobStore()
	invoker := &fakeInvoker{result: textResult(insightsJSON)}
	rec := &fakeReconciler{result: []store.Insight{{ID: uuid.New()}}}
	c := newTestCoordinator(jobs, invoker, rec, nil)

	evt, _ := json.Marshal(MessageStoredEvent{
		ConversationID:  uuid.New().String(),
		ThreadID:        uuid.New().String(),
		UserID:          uuid.New().String(),
		PromptVariables: map[string]string{"conversation_context": "transcript"},
	})
	c.HandleMessageStored("interview.message.stored", evt)

	if invoker.callCount() != 1 {
		t.Fatalf("expected one extraction from the event, got %d", invoker.callCount())
	}
	if rec.calls != 1 {
		t.Errorf("expected one reconcile call, got %d", rec.calls)
	}
}

func TestHandleMessageStored_BadPayload(t *testing.T) {
	jobs := newFakeJobStore()
	invoker := &fakeInvoker{result: textResult(insightsJSON)}
	c := newTestCoordinator(jobs, invoker, &fakeReconciler{}, nil)

	c.HandleMessageStored("interview.message.stored", []byte("not json"))
	c.HandleMessageStored("interview.message.stored", []byte(`{"conversation_id": "not-a-uuid"}`))

	if invoker.callCount() != 0 {
		t.Errorf("expected no extraction for malformed events, got %d", invoker.callCount())
	}
}
