package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrDuplicateJob is returned by CreateJob when another caller already holds
// the active job row for the conversation. The extraction_jobs table carries
// a partial unique index over conversation_id where status is pending or
// processing, so losing a concurrent insert fails deterministically.
var ErrDuplicateJob = errors.New("active extraction job already exists")

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// Job is one extraction attempt for one conversation. The row doubles as a
// time-boxed lease: at most one pending/processing row exists per
// conversation.
type Job struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	Status         string
	Attempts       int
	StartedAt      time.Time
	FinishedAt     *time.Time
	LastError      string
	ModelConfigID  string
}

const jobColumns = `id, conversation_id, status, attempts, started_at,
	finished_at, COALESCE(last_error, ''), COALESCE(model_config_id, '')`

// ActiveJob returns the conversation's pending or processing job, or nil.
func (s *Store) ActiveJob(ctx context.Context, conversationID uuid.UUID) (*Job, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+jobColumns+`
		FROM extraction_jobs
		WHERE conversation_id = $1 AND status IN ($2, $3)
		LIMIT 1`, conversationID, JobStatusPending, JobStatusProcessing)

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query active job: %w", err)
	}
	return job, nil
}

// LatestCompletedJob returns the most recently completed job, or nil.
func (s *Store) LatestCompletedJob(ctx context.Context, conversationID uuid.UUID) (*Job, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+jobColumns+`
		FROM extraction_jobs
		WHERE conversation_id = $1 AND status = $2
		ORDER BY finished_at DESC
		LIMIT 1`, conversationID, JobStatusCompleted)

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query completed job: %w", err)
	}
	return job, nil
}

// CreateJob inserts a new processing job, acquiring the per-conversation
// lease. A uniqueness conflict maps to ErrDuplicateJob. The attempt count
// continues from the conversation's failed attempts.
func (s *Store) CreateJob(ctx context.Context, conversationID uuid.UUID) (*Job, error) {
	job := Job{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Status:         JobStatusProcessing,
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO extraction_jobs (id, conversation_id, status, attempts, started_at)
		VALUES ($1, $2, $3,
			(SELECT count(*) + 1 FROM extraction_jobs WHERE conversation_id = $2 AND status = $4),
			now())
		RETURNING attempts, started_at`,
		job.ID, conversationID, JobStatusProcessing, JobStatusFailed,
	).Scan(&job.Attempts, &job.StartedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("create job for %s: %w", conversationID, ErrDuplicateJob)
		}
		return nil, fmt.Errorf("create job: %w", err)
	}
	return &job, nil
}

// CompleteJob transitions a job to completed, stamping the model config used.
func (s *Store) CompleteJob(ctx context.Context, jobID uuid.UUID, modelConfigID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE extraction_jobs SET status = $1, finished_at = now(), model_config_id = $2
		WHERE id = $3`,
		JobStatusCompleted, modelConfigID, jobID,
	)
	if err != nil {
		return fmt.Errorf("complete job %s: %w", jobID, err)
	}
	return nil
}

// FailJob transitions a job to failed, recording the error text.
func (s *Store) FailJob(ctx context.Context, jobID uuid.UUID, lastError string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE extraction_jobs SET status = $1, finished_at = now(), last_error = $2
		WHERE id = $3`,
		JobStatusFailed, lastError, jobID,
	)
	if err != nil {
		return fmt.Errorf("fail job %s: %w", jobID, err)
	}
	return nil
}

func scanJob(row scannable) (*Job, error) {
	var j Job
	err := row.Scan(&j.ID, &j.ConversationID, &j.Status, &j.Attempts,
		&j.StartedAt, &j.FinishedAt, &j.LastError, &j.ModelConfigID)
	if err != nil {
		return nil, err
	}
	return &j, nil
}
