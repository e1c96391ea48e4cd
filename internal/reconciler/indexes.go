package reconciler

import (
	"github.com/google/uuid"
	"github.com/interviewloop/insightd/internal/payload"
	"github.com/interviewloop/insightd/internal/store"
)

// indexes holds the in-memory view of the persisted insight set during one
// reconciliation pass: by id, and by normalized content/summary scoped to
// the owning thread. Text matching never crosses thread boundaries.
type indexes struct {
	byID      map[uuid.UUID]*store.Insight
	byContent map[string]uuid.UUID
	bySummary map[string]uuid.UUID
}

func newIndexes(existing []store.Insight) *indexes {
	ix := &indexes{
		byID:      make(map[uuid.UUID]*store.Insight, len(existing)),
		byContent: make(map[string]uuid.UUID),
		bySummary: make(map[string]uuid.UUID),
	}
	for i := range existing {
		ix.add(&existing[i])
	}
	return ix
}

func (ix *indexes) add(ins *store.Insight) {
	ix.byID[ins.ID] = ins
	if n := normalize(ins.Content); n != "" {
		ix.byContent[textKey(ins.ThreadID, n)] = ins.ID
	}
	if n := normalize(ins.Summary); n != "" {
		ix.bySummary[textKey(ins.ThreadID, n)] = ins.ID
	}
}

func (ix *indexes) remove(ins *store.Insight) {
	delete(ix.byID, ins.ID)
	if n := normalize(ins.Content); n != "" {
		if id, ok := ix.byContent[textKey(ins.ThreadID, n)]; ok && id == ins.ID {
			delete(ix.byContent, textKey(ins.ThreadID, n))
		}
	}
	if n := normalize(ins.Summary); n != "" {
		if id, ok := ix.bySummary[textKey(ins.ThreadID, n)]; ok && id == ins.ID {
			delete(ix.bySummary, textKey(ins.ThreadID, n))
		}
	}
}

// match resolves a candidate against the indexed rows in priority order:
// explicit id, duplicate-of reference, same-thread content equality, then
// same-thread summary equality.
func (ix *indexes) match(c payload.Candidate, thread *uuid.UUID) *store.Insight {
	if id, err := uuid.Parse(c.ID); err == nil {
		if ins, ok := ix.byID[id]; ok {
			return ins
		}
	}
	if id, err := uuid.Parse(c.DuplicateOf); err == nil {
		if ins, ok := ix.byID[id]; ok {
			return ins
		}
	}
	if n := normalize(c.Content); n != "" {
		if id, ok := ix.byContent[textKey(thread, n)]; ok {
			return ix.byID[id]
		}
	}
	if n := normalize(c.Summary); n != "" {
		if id, ok := ix.bySummary[textKey(thread, n)]; ok {
			return ix.byID[id]
		}
	}
	return nil
}

func textKey(threadID *uuid.UUID, normalized string) string {
	return threadKey(threadID) + "|" + normalized
}
