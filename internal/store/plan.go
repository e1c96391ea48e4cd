package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ActivePlanStep returns the conversation thread's currently active plan
// step id, or nil when the thread has no active step.
func (s *Store) ActivePlanStep(ctx context.Context, threadID uuid.UUID) (*uuid.UUID, error) {
	var stepID uuid.UUID
	err := s.pool.QueryRow(ctx, `
		SELECT id FROM plan_steps
		WHERE thread_id = $1 AND status = 'active'
		ORDER BY position
		LIMIT 1`, threadID).Scan(&stepID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query active plan step: %w", err)
	}
	return &stepID, nil
}
