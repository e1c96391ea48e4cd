// Package coordinator owns the single-writer guarantee per conversation:
// the extraction job row is a time-boxed lease acquired by optimistic
// insert, and exactly one caller at a time runs the agent and reconciler.
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/interviewloop/insightd/internal/agent"
	"github.com/interviewloop/insightd/internal/events"
	"github.com/interviewloop/insightd/internal/payload"
	"github.com/interviewloop/insightd/internal/store"
)

const (
	// jobTimeout is how long a processing job may run before the next
	// caller unilaterally expires it. A liveness safeguard against
	// crashed workers, not a cancellation signal.
	jobTimeout = 30 * time.Second

	// completedCooldown suppresses redundant extraction on rapid
	// successive messages after a completed job.
	completedCooldown = 10 * time.Second
)

// JobStore is the job-lease slice of the store.
type JobStore interface {
	ActiveJob(ctx context.Context, conversationID uuid.UUID) (*store.Job, error)
	LatestCompletedJob(ctx context.Context, conversationID uuid.UUID) (*store.Job, error)
	CreateJob(ctx context.Context, conversationID uuid.UUID) (*store.Job, error)
	CompleteJob(ctx context.Context, jobID uuid.UUID, modelConfigID string) error
	FailJob(ctx context.Context, jobID uuid.UUID, lastError string) error
}

// InsightReader returns the current persisted insight set.
type InsightReader interface {
	ListInsights(ctx context.Context, conversationID uuid.UUID) ([]store.Insight, error)
}

// LogReader reads back persisted invocation logs for best-effort recovery.
type LogReader interface {
	GetInvocationLog(ctx context.Context, id uuid.UUID) (*store.InvocationLog, error)
}

// PlanResolver resolves the thread's currently active conversation-plan step.
type PlanResolver interface {
	ActivePlanStep(ctx context.Context, threadID uuid.UUID) (*uuid.UUID, error)
}

// Reconciling hands recovered candidates to the insight reconciler.
type Reconciling interface {
	Reconcile(ctx context.Context, conversationID uuid.UUID, threadID, planStepID *uuid.UUID, candidates []payload.Candidate, actingUserID *uuid.UUID) ([]store.Insight, error)
}

// Publisher announces detection outcomes. May be nil.
type Publisher interface {
	Publish(subject string, data any) error
}

type Coordinator struct {
	jobs       JobStore
	insights   InsightReader
	invoker    agent.Invoker
	logs       LogReader
	plan       PlanResolver
	reconciler Reconciling
	publisher  Publisher
	logger     *slog.Logger
}

func New(jobs JobStore, insights InsightReader, invoker agent.Invoker, logs LogReader, plan PlanResolver, rec Reconciling, publisher Publisher, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		jobs:       jobs,
		insights:   insights,
		invoker:    invoker,
		logs:       logs,
		plan:       plan,
		reconciler: rec,
		publisher:  publisher,
		logger:     logger,
	}
}

// Run performs one extraction attempt for the conversation. Idempotent under
// rapid repeated calls: an in-flight job or a freshly completed one short-
// circuits to the unchanged insight set.
func (c *Coordinator) Run(ctx context.Context, conversationID uuid.UUID, threadID *uuid.UUID, promptVars map[string]string, actingUserID *uuid.UUID) ([]store.Insight, error) {
	active, err := c.jobs.ActiveJob(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		if time.Since(active.StartedAt) <= jobTimeout {
			c.logger.Info("extraction already in flight",
				"conversation_id", conversationID, "job_id", active.ID)
			return c.insights.ListInsights(ctx, conversationID)
		}
		msg := fmt.Sprintf("expired: processing for more than %s", jobTimeout)
		if err := c.jobs.FailJob(ctx, active.ID, msg); err != nil {
			return nil, fmt.Errorf("expire stuck job %s: %w", active.ID, err)
		}
		c.logger.Warn("expired stuck extraction job",
			"conversation_id", conversationID, "job_id", active.ID)
	}

	done, err := c.jobs.LatestCompletedJob(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if done != nil && done.FinishedAt != nil && time.Since(*done.FinishedAt) <= completedCooldown {
		c.logger.Info("extraction cooldown in effect",
			"conversation_id", conversationID, "completed_job_id", done.ID)
		return c.insights.ListInsights(ctx, conversationID)
	}

	job, err := c.jobs.CreateJob(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateJob) {
			winner, qerr := c.jobs.ActiveJob(ctx, conversationID)
			if qerr == nil && winner != nil {
				c.logger.Info("lost job race, deferring to winner",
					"conversation_id", conversationID, "winner_job_id", winner.ID)
				return c.insights.ListInsights(ctx, conversationID)
			}
			// No winner found: the conflicting job vanished underneath
			// us, which must not look like a silent success.
		}
		return nil, err
	}

	insights, err := c.runExtraction(ctx, job, conversationID, threadID, promptVars, actingUserID)
	if err != nil {
		failMsg := fmt.Sprintf("%s (attempt %d)", err.Error(), job.Attempts)
		if ferr := c.jobs.FailJob(ctx, job.ID, failMsg); ferr != nil {
			c.logger.Error("failed to mark job failed", "job_id", job.ID, "error", ferr)
		}
		return nil, err
	}
	return insights, nil
}

// runExtraction is the leased section: invoke the agent, recover a candidate
// list, reconcile, and settle the job. Any error here is recorded on the job
// by the caller before propagating.
func (c *Coordinator) runExtraction(ctx context.Context, job *store.Job, conversationID uuid.UUID, threadID *uuid.UUID, promptVars map[string]string, actingUserID *uuid.UUID) ([]store.Insight, error) {
	res, err := c.invoker.Invoke(ctx, promptVars, promptVars["conversation_context"])
	if err != nil {
		return nil, err
	}
	if res.Kind == agent.KindVoice {
		return nil, fmt.Errorf("voice agent response is not valid input for insight extraction")
	}

	text := res.TextContent
	if text == "" && res.Raw == nil {
		text, err = c.recoverFromLog(ctx, res.InvocationLogID)
		if err != nil {
			return nil, err
		}
	}

	candidates, err := payload.ResolvePayload(text, anyRaw(res.Raw))
	if errors.Is(err, payload.ErrForeignShape) {
		c.logger.Warn("agent returned a foreign extraction shape, recording zero candidates",
			"conversation_id", conversationID, "job_id", job.ID)
		candidates = nil
	} else if err != nil {
		return nil, err
	}

	if len(candidates) == 0 {
		if err := c.jobs.CompleteJob(ctx, job.ID, res.ModelConfigID); err != nil {
			return nil, err
		}
		c.logger.Info("extraction yielded no candidates",
			"conversation_id", conversationID, "job_id", job.ID)
		return c.insights.ListInsights(ctx, conversationID)
	}

	var planStepID *uuid.UUID
	if threadID != nil {
		planStepID, err = c.plan.ActivePlanStep(ctx, *threadID)
		if err != nil {
			return nil, err
		}
	}

	insights, err := c.reconciler.Reconcile(ctx, conversationID, threadID, planStepID, candidates, actingUserID)
	if err != nil {
		return nil, err
	}

	if err := c.jobs.CompleteJob(ctx, job.ID, res.ModelConfigID); err != nil {
		return nil, err
	}

	if c.publisher != nil {
		if perr := c.publisher.Publish(events.SubjectInsightsDetected, map[string]any{
			"conversation_id": conversationID.String(),
			"job_id":          job.ID.String(),
			"candidates":      len(candidates),
			"insights":        len(insights),
		}); perr != nil {
			c.logger.Warn("failed to publish detection event", "error", perr)
		}
	}

	c.logger.Info("extraction completed",
		"conversation_id", conversationID,
		"job_id", job.ID,
		"candidates", len(candidates),
		"insights", len(insights),
	)
	return insights, nil
}

// recoverFromLog re-reads the persisted invocation log and tries to extract
// text from its stored response payload. The one recovery path for an
// agent result that carried neither text nor a raw object.
func (c *Coordinator) recoverFromLog(ctx context.Context, logID uuid.UUID) (string, error) {
	logRow, err := c.logs.GetInvocationLog(ctx, logID)
	if err != nil {
		return "", fmt.Errorf("agent returned an empty result and the invocation log is unavailable: %w", err)
	}

	var stored any
	if len(logRow.ResponsePayload) > 0 {
		_ = json.Unmarshal(logRow.ResponsePayload, &stored)
	}
	if text := payload.ExtractText(stored); text != "" {
		return text, nil
	}
	return "", fmt.Errorf("agent returned an empty result (invocation log status=%s error=%q)",
		logRow.Status, logRow.ErrorMessage)
}

// anyRaw keeps a nil map from becoming a non-nil interface downstream.
func anyRaw(raw map[string]any) any {
	if raw == nil {
		return nil
	}
	return raw
}
