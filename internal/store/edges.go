package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// DeleteInsightEdges removes all graph edges referencing the insight, on
// either side. Called before an insight row is hard-deleted.
func (s *Store) DeleteInsightEdges(ctx context.Context, insightID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM insight_edges WHERE source_id = $1 OR target_id = $1`, insightID)
	if err != nil {
		return fmt.Errorf("delete edges for insight %s: %w", insightID, err)
	}
	return nil
}
