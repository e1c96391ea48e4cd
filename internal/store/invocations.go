package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// InvocationLog is one recorded agent call. Request and response payloads
// are stored verbatim as JSON for best-effort recovery and diagnosis.
type InvocationLog struct {
	ID              uuid.UUID
	Status          string
	ErrorMessage    string
	RequestPayload  []byte
	ResponsePayload []byte
	CreatedAt       time.Time
}

// RecordInvocation writes one agent invocation log row.
func (s *Store) RecordInvocation(ctx context.Context, status, errorMessage string, request, response []byte) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO agent_invocations (id, status, error_message, request_payload, response_payload, created_at)
		VALUES ($1, $2, $3, $4, $5, now())`,
		id, status, errorMessage, request, response,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("record invocation: %w", err)
	}
	return id, nil
}

// GetInvocationLog fetches an invocation log by id.
func (s *Store) GetInvocationLog(ctx context.Context, id uuid.UUID) (*InvocationLog, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, status, COALESCE(error_message, ''), request_payload, response_payload, created_at
		FROM agent_invocations WHERE id = $1`, id)

	var l InvocationLog
	err := row.Scan(&l.ID, &l.Status, &l.ErrorMessage, &l.RequestPayload, &l.ResponsePayload, &l.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("invocation log %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get invocation log: %w", err)
	}
	return &l, nil
}
