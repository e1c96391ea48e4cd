package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Insight is one persisted extracted observation. KPIs and Authors are
// always written as whole sets, never patched element-by-element.
type Insight struct {
	ID                  uuid.UUID   `json:"id"`
	ConversationID      uuid.UUID   `json:"conversation_id"`
	ThreadID            *uuid.UUID  `json:"thread_id,omitempty"`
	TypeID              uuid.UUID   `json:"type_id"`
	Content             string      `json:"content"`
	Summary             string      `json:"summary"`
	Category            string      `json:"category"`
	Status              string      `json:"status"`
	Priority            string      `json:"priority"`
	ChallengeID         *uuid.UUID  `json:"challenge_id,omitempty"`
	RelatedChallengeIDs []uuid.UUID `json:"related_challenge_ids,omitempty"`
	SourceMessageID     *uuid.UUID  `json:"source_message_id,omitempty"`
	PlanStepID          *uuid.UUID  `json:"plan_step_id,omitempty"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
	KPIs                []KPI       `json:"kpis"`
	Authors             []Author    `json:"authors"`
}

type KPI struct {
	Label       string `json:"label"`
	Value       string `json:"value"`
	Description string `json:"description"`
}

// Author links an insight to a contributor: a known profile id, with an
// optional display name carried alongside.
type Author struct {
	ProfileID   *uuid.UUID `json:"profile_id,omitempty"`
	DisplayName string     `json:"display_name,omitempty"`
}

const insightColumns = `id, conversation_id, thread_id, type_id, content,
	COALESCE(summary, ''), COALESCE(category, ''), status, COALESCE(priority, ''),
	challenge_id, related_challenge_ids, source_message_id, plan_step_id,
	created_at, updated_at`

// ListInsights returns all insights for a conversation in creation order,
// with their KPI and author sets attached.
func (s *Store) ListInsights(ctx context.Context, conversationID uuid.UUID) ([]Insight, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+insightColumns+`
		FROM insights WHERE conversation_id = $1
		ORDER BY created_at, id`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list insights: %w", err)
	}
	defer rows.Close()

	var insights []Insight
	for rows.Next() {
		ins, err := scanInsight(rows)
		if err != nil {
			return nil, fmt.Errorf("scan insight: %w", err)
		}
		insights = append(insights, *ins)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list insights: %w", err)
	}

	if err := s.attachSubRecords(ctx, insights); err != nil {
		return nil, err
	}
	return insights, nil
}

// GetInsight fetches one insight with its KPI and author sets.
func (s *Store) GetInsight(ctx context.Context, id uuid.UUID) (*Insight, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+insightColumns+`
		FROM insights WHERE id = $1`, id)
	ins, err := scanInsight(row)
	if err != nil {
		return nil, fmt.Errorf("get insight %s: %w", id, err)
	}

	single := []Insight{*ins}
	if err := s.attachSubRecords(ctx, single); err != nil {
		return nil, err
	}
	return &single[0], nil
}

// InsertInsight writes a new insight row with its KPI and author sets in one
// transaction. Timestamps are assigned by the database and read back.
func (s *Store) InsertInsight(ctx context.Context, ins *Insight) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO insights (id, conversation_id, thread_id, type_id, content, summary,
			category, status, priority, challenge_id, related_challenge_ids,
			source_message_id, plan_step_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now(), now())
		RETURNING created_at, updated_at`,
		ins.ID, ins.ConversationID, ins.ThreadID, ins.TypeID, ins.Content, ins.Summary,
		ins.Category, ins.Status, ins.Priority, ins.ChallengeID, ins.RelatedChallengeIDs,
		ins.SourceMessageID, ins.PlanStepID,
	).Scan(&ins.CreatedAt, &ins.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert insight: %w", err)
	}

	if err := insertKPIs(ctx, tx, ins.ID, ins.KPIs); err != nil {
		return err
	}
	if err := insertAuthors(ctx, tx, ins.ID, ins.Authors); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// UpdateInsight overwrites the mutable row fields. KPI and author sets are
// replaced separately via ReplaceKPIs / ReplaceAuthors.
func (s *Store) UpdateInsight(ctx context.Context, ins *Insight) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE insights SET content = $1, summary = $2, category = $3, status = $4,
			priority = $5, challenge_id = $6, related_challenge_ids = $7,
			source_message_id = $8, thread_id = $9, plan_step_id = $10, updated_at = now()
		WHERE id = $11`,
		ins.Content, ins.Summary, ins.Category, ins.Status, ins.Priority,
		ins.ChallengeID, ins.RelatedChallengeIDs, ins.SourceMessageID,
		ins.ThreadID, ins.PlanStepID, ins.ID,
	)
	if err != nil {
		return fmt.Errorf("update insight %s: %w", ins.ID, err)
	}
	return nil
}

// DeleteInsight hard-deletes an insight together with its KPI and author
// rows, in one transaction.
func (s *Store) DeleteInsight(ctx context.Context, id uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, q := range []string{
		`DELETE FROM insight_kpis WHERE insight_id = $1`,
		`DELETE FROM insight_authors WHERE insight_id = $1`,
		`DELETE FROM insights WHERE id = $1`,
	} {
		if _, err := tx.Exec(ctx, q, id); err != nil {
			return fmt.Errorf("delete insight %s: %w", id, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ReplaceKPIs rewrites the insight's whole KPI set.
func (s *Store) ReplaceKPIs(ctx context.Context, insightID uuid.UUID, kpis []KPI) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM insight_kpis WHERE insight_id = $1`, insightID); err != nil {
		return fmt.Errorf("clear kpis: %w", err)
	}
	if err := insertKPIs(ctx, tx, insightID, kpis); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ReplaceAuthors rewrites the insight's whole author set.
func (s *Store) ReplaceAuthors(ctx context.Context, insightID uuid.UUID, authors []Author) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM insight_authors WHERE insight_id = $1`, insightID); err != nil {
		return fmt.Errorf("clear authors: %w", err)
	}
	if err := insertAuthors(ctx, tx, insightID, authors); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListInsightTypes returns the conversation's insight-type vocabulary keyed
// by lower-cased type name.
func (s *Store) ListInsightTypes(ctx context.Context, conversationID uuid.UUID) (map[string]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name FROM insight_types WHERE conversation_id = $1`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list insight types: %w", err)
	}
	defer rows.Close()

	types := make(map[string]uuid.UUID)
	for rows.Next() {
		var id uuid.UUID
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan insight type: %w", err)
		}
		types[strings.ToLower(name)] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list insight types: %w", err)
	}
	return types, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanInsight(row scannable) (*Insight, error) {
	var ins Insight
	err := row.Scan(&ins.ID, &ins.ConversationID, &ins.ThreadID, &ins.TypeID,
		&ins.Content, &ins.Summary, &ins.Category, &ins.Status, &ins.Priority,
		&ins.ChallengeID, &ins.RelatedChallengeIDs, &ins.SourceMessageID,
		&ins.PlanStepID, &ins.CreatedAt, &ins.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &ins, nil
}

// attachSubRecords loads KPI and author sets for the given insights in two
// batched queries.
func (s *Store) attachSubRecords(ctx context.Context, insights []Insight) error {
	if len(insights) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(insights))
	byID := make(map[uuid.UUID]*Insight, len(insights))
	for i := range insights {
		ids[i] = insights[i].ID
		byID[insights[i].ID] = &insights[i]
	}

	rows, err := s.pool.Query(ctx, `
		SELECT insight_id, label, value, COALESCE(description, '')
		FROM insight_kpis WHERE insight_id = ANY($1) ORDER BY position`, ids)
	if err != nil {
		return fmt.Errorf("list kpis: %w", err)
	}
	for rows.Next() {
		var insightID uuid.UUID
		var k KPI
		if err := rows.Scan(&insightID, &k.Label, &k.Value, &k.Description); err != nil {
			rows.Close()
			return fmt.Errorf("scan kpi: %w", err)
		}
		if ins, ok := byID[insightID]; ok {
			ins.KPIs = append(ins.KPIs, k)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("list kpis: %w", err)
	}

	rows, err = s.pool.Query(ctx, `
		SELECT insight_id, profile_id, COALESCE(display_name, '')
		FROM insight_authors WHERE insight_id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("list authors: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var insightID uuid.UUID
		var a Author
		if err := rows.Scan(&insightID, &a.ProfileID, &a.DisplayName); err != nil {
			return fmt.Errorf("scan author: %w", err)
		}
		if ins, ok := byID[insightID]; ok {
			ins.Authors = append(ins.Authors, a)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("list authors: %w", err)
	}
	return nil
}

func insertKPIs(ctx context.Context, tx pgx.Tx, insightID uuid.UUID, kpis []KPI) error {
	for i, k := range kpis {
		_, err := tx.Exec(ctx, `
			INSERT INTO insight_kpis (id, insight_id, label, value, description, position)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.New(), insightID, k.Label, k.Value, k.Description, i,
		)
		if err != nil {
			return fmt.Errorf("insert kpi: %w", err)
		}
	}
	return nil
}

func insertAuthors(ctx context.Context, tx pgx.Tx, insightID uuid.UUID, authors []Author) error {
	for _, a := range authors {
		_, err := tx.Exec(ctx, `
			INSERT INTO insight_authors (id, insight_id, profile_id, display_name)
			VALUES ($1, $2, $3, $4)`,
			uuid.New(), insightID, a.ProfileID, a.DisplayName,
		)
		if err != nil {
			return fmt.Errorf("insert author: %w", err)
		}
	}
	return nil
}
