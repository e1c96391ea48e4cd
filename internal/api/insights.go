package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/interviewloop/insightd/internal/store"
)

// Detector runs one insight detection pass for a conversation.
type Detector interface {
	Run(ctx context.Context, conversationID uuid.UUID, threadID *uuid.UUID, promptVars map[string]string, actingUserID *uuid.UUID) ([]store.Insight, error)
}

// InsightReader returns the persisted insight set.
type InsightReader interface {
	ListInsights(ctx context.Context, conversationID uuid.UUID) ([]store.Insight, error)
}

// DetectRequest is the body of POST .../insights/detect. All fields are
// optional; detection with no pending message is safe and returns the
// unchanged set.
type DetectRequest struct {
	ThreadID        string            `json:"thread_id,omitempty"`
	UserID          string            `json:"user_id,omitempty"`
	PromptVariables map[string]string `json:"prompt_variables,omitempty"`
}

type InsightsResponse struct {
	Insights []store.Insight `json:"insights"`
}

// detectInsights handles POST /api/v1/conversations/{conversationID}/insights/detect.
func (s *Server) detectInsights(w http.ResponseWriter, r *http.Request) {
	conversationID, err := uuid.Parse(chi.URLParam(r, "conversationID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}

	var req DetectRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
	}

	var threadID, userID *uuid.UUID
	if id, err := uuid.Parse(req.ThreadID); err == nil {
		threadID = &id
	}
	if id, err := uuid.Parse(req.UserID); err == nil {
		userID = &id
	}

	insights, err := s.detector.Run(r.Context(), conversationID, threadID, req.PromptVariables, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if insights == nil {
		insights = []store.Insight{}
	}
	writeJSON(w, http.StatusOK, InsightsResponse{Insights: insights})
}

// listInsights handles GET /api/v1/conversations/{conversationID}/insights.
func (s *Server) listInsights(w http.ResponseWriter, r *http.Request) {
	conversationID, err := uuid.Parse(chi.URLParam(r, "conversationID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}

	insights, err := s.insights.ListInsights(r.Context(), conversationID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if insights == nil {
		insights = []store.Insight{}
	}
	writeJSON(w, http.StatusOK, InsightsResponse{Insights: insights})
}
