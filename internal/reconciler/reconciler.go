// Package reconciler merges newly extracted insight candidates into the
// persisted set for one conversation: create, update, merge or delete per
// candidate, deduplicated within the batch and across requests by an ordered
// set of matching keys.
package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/interviewloop/insightd/internal/embedding"
	"github.com/interviewloop/insightd/internal/payload"
	"github.com/interviewloop/insightd/internal/store"
)

// InsightStore is the slice of the store the reconciler needs.
type InsightStore interface {
	ListInsightTypes(ctx context.Context, conversationID uuid.UUID) (map[string]uuid.UUID, error)
	ListInsights(ctx context.Context, conversationID uuid.UUID) ([]store.Insight, error)
	GetInsight(ctx context.Context, id uuid.UUID) (*store.Insight, error)
	InsertInsight(ctx context.Context, ins *store.Insight) error
	UpdateInsight(ctx context.Context, ins *store.Insight) error
	DeleteInsight(ctx context.Context, id uuid.UUID) error
	ReplaceKPIs(ctx context.Context, insightID uuid.UUID, kpis []store.KPI) error
	ReplaceAuthors(ctx context.Context, insightID uuid.UUID, authors []store.Author) error
	UpdateInsightEmbedding(ctx context.Context, insightID uuid.UUID, vector []float32) error
}

// ProfileDirectory validates author profile ids.
type ProfileDirectory interface {
	FindActiveProfiles(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error)
}

// EdgeDeleter removes graph edges before an insight is hard-deleted.
type EdgeDeleter interface {
	DeleteInsightEdges(ctx context.Context, insightID uuid.UUID) error
}

type Reconciler struct {
	store    InsightStore
	profiles ProfileDirectory
	edges    EdgeDeleter
	embedder embedding.Embedder
	logger   *slog.Logger

	embedTimeout time.Duration
}

func New(s InsightStore, profiles ProfileDirectory, edges EdgeDeleter, embedder embedding.Embedder, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:        s,
		profiles:     profiles,
		edges:        edges,
		embedder:     embedder,
		logger:       logger,
		embedTimeout: 30 * time.Second,
	}
}

var deleteActions = map[string]bool{
	"delete":   true,
	"remove":   true,
	"obsolete": true,
}

// Reconcile processes candidates in input order against the conversation's
// persisted insights and returns the resulting insight set. The in-memory
// text index is updated after each candidate, so later candidates in the
// same batch can match rows created or updated earlier in the batch.
func (r *Reconciler) Reconcile(ctx context.Context, conversationID uuid.UUID, threadID, planStepID *uuid.UUID, candidates []payload.Candidate, actingUserID *uuid.UUID) ([]store.Insight, error) {
	types, err := r.store.ListInsightTypes(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load insight types: %w", err)
	}
	if len(types) == 0 {
		return nil, fmt.Errorf("no insight types configured for conversation %s", conversationID)
	}

	existing, err := r.store.ListInsights(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load insights: %w", err)
	}

	ix := newIndexes(existing)
	seen := make(map[string]bool)

	for _, c := range candidates {
		thread := candidateThread(c, threadID)

		key := dedupeKey(c, thread)
		if seen[key] {
			r.logger.Debug("skipping duplicate candidate in batch", "key", key)
			continue
		}
		seen[key] = true

		match := ix.match(c, thread)
		action := strings.ToLower(strings.TrimSpace(c.Action))

		switch {
		case deleteActions[action] && match != nil:
			if err := r.deleteInsight(ctx, match); err != nil {
				return nil, err
			}
			ix.remove(match)

		case action == "merge" && match != nil:
			if err := r.mergeInsight(ctx, ix, match, c, actingUserID); err != nil {
				return nil, err
			}

		case match != nil:
			if err := r.updateInsight(ctx, ix, match, c, thread, planStepID, actingUserID); err != nil {
				return nil, err
			}

		default:
			if err := r.createInsight(ctx, ix, types, c, conversationID, thread, planStepID, actingUserID); err != nil {
				return nil, err
			}
		}
	}

	return r.store.ListInsights(ctx, conversationID)
}

func (r *Reconciler) deleteInsight(ctx context.Context, ins *store.Insight) error {
	if err := r.edges.DeleteInsightEdges(ctx, ins.ID); err != nil {
		return fmt.Errorf("delete edges: %w", err)
	}
	if err := r.store.DeleteInsight(ctx, ins.ID); err != nil {
		return err
	}
	r.logger.Info("insight deleted", "insight_id", ins.ID)
	return nil
}

// mergeInsight archives the matched row: the merge target absorbed it. The
// row keeps its identity; its summary carries the merge note as free text.
func (r *Reconciler) mergeInsight(ctx context.Context, ix *indexes, ins *store.Insight, c payload.Candidate, actingUserID *uuid.UUID) error {
	ix.remove(ins)

	updated := *ins
	updated.Status = "archived"
	updated.Summary = appendMergeNote(updated.Summary, c.MergeTarget)

	if err := r.store.UpdateInsight(ctx, &updated); err != nil {
		return err
	}
	if err := r.store.ReplaceKPIs(ctx, updated.ID, nil); err != nil {
		return err
	}
	if c.Authors != nil {
		authors, err := r.resolveAuthors(ctx, c.Authors, actingUserID)
		if err != nil {
			return err
		}
		if err := r.store.ReplaceAuthors(ctx, updated.ID, authors); err != nil {
			return err
		}
	}

	fresh, err := r.store.GetInsight(ctx, updated.ID)
	if err != nil {
		return fmt.Errorf("refetch merged insight: %w", err)
	}
	ix.add(fresh)
	r.logger.Info("insight archived by merge", "insight_id", fresh.ID, "merge_target", c.MergeTarget)
	return nil
}

func (r *Reconciler) updateInsight(ctx context.Context, ix *indexes, ins *store.Insight, c payload.Candidate, thread, planStepID *uuid.UUID, actingUserID *uuid.UUID) error {
	ix.remove(ins)

	updated := *ins
	overlay(&updated, c, thread, planStepID)

	if err := r.store.UpdateInsight(ctx, &updated); err != nil {
		return err
	}
	if err := r.store.ReplaceKPIs(ctx, updated.ID, relabelKPIs(c.KPIs)); err != nil {
		return err
	}
	if c.Authors != nil {
		authors, err := r.resolveAuthors(ctx, c.Authors, actingUserID)
		if err != nil {
			return err
		}
		if err := r.store.ReplaceAuthors(ctx, updated.ID, authors); err != nil {
			return err
		}
	}

	fresh, err := r.store.GetInsight(ctx, updated.ID)
	if err != nil {
		return fmt.Errorf("refetch updated insight: %w", err)
	}
	ix.add(fresh)
	r.scheduleEmbedding(fresh)
	r.logger.Info("insight updated", "insight_id", fresh.ID)
	return nil
}

func (r *Reconciler) createInsight(ctx context.Context, ix *indexes, types map[string]uuid.UUID, c payload.Candidate, conversationID uuid.UUID, thread, planStepID *uuid.UUID, actingUserID *uuid.UUID) error {
	typeID, err := resolveTypeID(types, c.Type)
	if err != nil {
		return err
	}

	id := uuid.New()
	if candID, perr := uuid.Parse(c.ID); perr == nil {
		if _, taken := ix.byID[candID]; !taken {
			id = candID
		}
	}

	status := c.Status
	if status == "" {
		status = "new"
	}

	ins := store.Insight{
		ID:              id,
		ConversationID:  conversationID,
		ThreadID:        thread,
		TypeID:          typeID,
		Content:         c.Content,
		Summary:         c.Summary,
		Category:        c.Category,
		Status:          status,
		Priority:        c.Priority,
		ChallengeID:     parseOptionalID(c.ChallengeID),
		SourceMessageID: parseOptionalID(c.SourceMessageID),
		PlanStepID:      planStepID,
		KPIs:            relabelKPIs(c.KPIs),
	}
	if stepID := parseOptionalID(c.PlanStepID); stepID != nil {
		ins.PlanStepID = stepID
	}
	for _, rel := range c.RelatedChallengeIDs {
		if relID, perr := uuid.Parse(rel); perr == nil {
			ins.RelatedChallengeIDs = append(ins.RelatedChallengeIDs, relID)
		}
	}
	if c.Authors != nil {
		authors, err := r.resolveAuthors(ctx, c.Authors, actingUserID)
		if err != nil {
			return err
		}
		ins.Authors = authors
	}

	if err := r.store.InsertInsight(ctx, &ins); err != nil {
		return err
	}
	ix.add(&ins)
	r.scheduleEmbedding(&ins)
	r.logger.Info("insight created", "insight_id", ins.ID, "type", c.Type)
	return nil
}

// overlay applies the candidate's values over the existing row, keeping the
// prior value wherever the candidate supplied nothing.
func overlay(ins *store.Insight, c payload.Candidate, thread, planStepID *uuid.UUID) {
	if c.Content != "" {
		ins.Content = c.Content
	}
	if c.Summary != "" {
		ins.Summary = c.Summary
	}
	if c.Category != "" {
		ins.Category = c.Category
	}
	if c.Status != "" {
		ins.Status = c.Status
	}
	if c.Priority != "" {
		ins.Priority = c.Priority
	}
	if id := parseOptionalID(c.ChallengeID); id != nil {
		ins.ChallengeID = id
	}
	if c.RelatedChallengeIDs != nil {
		ins.RelatedChallengeIDs = nil
		for _, rel := range c.RelatedChallengeIDs {
			if relID, err := uuid.Parse(rel); err == nil {
				ins.RelatedChallengeIDs = append(ins.RelatedChallengeIDs, relID)
			}
		}
	}
	if id := parseOptionalID(c.SourceMessageID); id != nil {
		ins.SourceMessageID = id
	}
	if c.ThreadID != "" && thread != nil {
		ins.ThreadID = thread
	}
	if id := parseOptionalID(c.PlanStepID); id != nil {
		ins.PlanStepID = id
	} else if planStepID != nil {
		ins.PlanStepID = planStepID
	}
}

// resolveAuthors keeps only entries whose profile id resolves to an active
// profile. When everything is filtered out, the acting user becomes the sole
// fallback author, provided it resolves active itself.
func (r *Reconciler) resolveAuthors(ctx context.Context, cands []payload.AuthorCandidate, actingUserID *uuid.UUID) ([]store.Author, error) {
	var lookup []uuid.UUID
	for _, a := range cands {
		if id, err := uuid.Parse(a.ProfileID); err == nil {
			lookup = append(lookup, id)
		}
	}
	if actingUserID != nil {
		lookup = append(lookup, *actingUserID)
	}

	activeList, err := r.profiles.FindActiveProfiles(ctx, lookup)
	if err != nil {
		return nil, fmt.Errorf("validate authors: %w", err)
	}
	active := make(map[uuid.UUID]bool, len(activeList))
	for _, id := range activeList {
		active[id] = true
	}

	var authors []store.Author
	for _, a := range cands {
		id, err := uuid.Parse(a.ProfileID)
		if err != nil || !active[id] {
			continue
		}
		pid := id
		authors = append(authors, store.Author{ProfileID: &pid, DisplayName: a.DisplayName})
	}

	if len(authors) == 0 && actingUserID != nil && active[*actingUserID] {
		pid := *actingUserID
		authors = append(authors, store.Author{ProfileID: &pid})
	}
	return authors, nil
}

// scheduleEmbedding triggers embedding generation in a detached goroutine.
// Failures are logged and never propagate to the reconciliation.
func (r *Reconciler) scheduleEmbedding(ins *store.Insight) {
	if r.embedder == nil {
		return
	}
	text := strings.TrimSpace(ins.Content + "\n" + ins.Summary)
	if text == "" {
		return
	}

	id := ins.ID
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("embedding generation panicked", "insight_id", id, "panic", rec)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), r.embedTimeout)
		defer cancel()

		vec, err := r.embedder.Embed(ctx, text)
		if err != nil {
			r.logger.Warn("embedding generation failed", "insight_id", id, "error", err)
			return
		}
		if err := r.store.UpdateInsightEmbedding(ctx, id, vec); err != nil {
			r.logger.Warn("embedding write failed", "insight_id", id, "error", err)
		}
	}()
}

// resolveTypeID maps a free-text type name to a configured type id, falling
// back to "idea", then to an arbitrary (but deterministic) configured type.
func resolveTypeID(types map[string]uuid.UUID, name string) (uuid.UUID, error) {
	if id, ok := types[strings.ToLower(strings.TrimSpace(name))]; ok {
		return id, nil
	}
	if id, ok := types["idea"]; ok {
		return id, nil
	}
	names := make([]string, 0, len(types))
	for n := range types {
		names = append(names, n)
	}
	sort.Strings(names)
	if len(names) > 0 {
		return types[names[0]], nil
	}
	return uuid.Nil, fmt.Errorf("insight type vocabulary is empty")
}

func relabelKPIs(cands []payload.KPICandidate) []store.KPI {
	kpis := make([]store.KPI, 0, len(cands))
	for i, k := range cands {
		label := k.Label
		if label == "" {
			label = fmt.Sprintf("KPI %d", i+1)
		}
		kpis = append(kpis, store.KPI{Label: label, Value: string(k.Value), Description: k.Description})
	}
	return kpis
}

func appendMergeNote(summary, target string) string {
	note := "[merged]"
	if target != "" {
		note = "[merged into " + target + "]"
	}
	if summary == "" {
		return note
	}
	return summary + " " + note
}

func candidateThread(c payload.Candidate, requestThread *uuid.UUID) *uuid.UUID {
	if id, err := uuid.Parse(c.ThreadID); err == nil {
		return &id
	}
	return requestThread
}

func parseOptionalID(s string) *uuid.UUID {
	if id, err := uuid.Parse(s); err == nil {
		return &id
	}
	return nil
}

// normalize lower-cases, collapses whitespace runs and trims.
func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func threadKey(threadID *uuid.UUID) string {
	if threadID == nil {
		return "no-thread"
	}
	return threadID.String()
}

func dedupeKey(c payload.Candidate, thread *uuid.UUID) string {
	return strings.Join([]string{
		strings.ToLower(strings.TrimSpace(c.Type)),
		threadKey(thread),
		normalize(c.Content),
		normalize(c.Summary),
	}, "|")
}
