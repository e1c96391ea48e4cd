package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// UpdateInsightEmbedding stores the insight's embedding vector. Called from
// the reconciler's fire-and-forget embedding path.
func (s *Store) UpdateInsightEmbedding(ctx context.Context, insightID uuid.UUID, vector []float32) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE insights SET embedding = $1 WHERE id = $2`,
		pgVector(vector), insightID,
	)
	if err != nil {
		return fmt.Errorf("update embedding for insight %s: %w", insightID, err)
	}
	return nil
}

// pgVector formats a float32 slice as a pgvector-compatible string literal,
// e.g. "[0.1,0.2,0.3]", suitable for a parameterized query targeting a
// vector column.
func pgVector(v []float32) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = fmt.Sprintf("%g", f)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
