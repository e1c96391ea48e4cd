package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// FindActiveProfiles returns the subset of ids that belong to active,
// known profiles.
func (s *Store) FindActiveProfiles(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id FROM profiles WHERE id = ANY($1) AND status = 'active'`, ids)
	if err != nil {
		return nil, fmt.Errorf("find active profiles: %w", err)
	}
	defer rows.Close()

	var active []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		active = append(active, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find active profiles: %w", err)
	}
	return active, nil
}
