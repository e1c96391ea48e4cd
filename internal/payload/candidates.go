package payload

import (
	"encoding/json"
	"strconv"
)

// Candidate is one insight-shaped value recovered from agent output. Fields
// are zero-valued when the agent did not supply them; Authors distinguishes
// "not supplied" (nil) from "explicitly empty" ([]).
type Candidate struct {
	ID                  string            `json:"id"`
	Content             string            `json:"content"`
	Summary             string            `json:"summary"`
	Type                string            `json:"type"`
	Category            string            `json:"category"`
	Status              string            `json:"status"`
	Priority            string            `json:"priority"`
	Action              string            `json:"action"`
	DuplicateOf         string            `json:"duplicate_of"`
	MergeTarget         string            `json:"merge_target"`
	ThreadID            string            `json:"thread_id"`
	ChallengeID         string            `json:"challenge_id"`
	RelatedChallengeIDs []string          `json:"related_challenge_ids"`
	SourceMessageID     string            `json:"source_message_id"`
	PlanStepID          string            `json:"plan_step_id"`
	KPIs                []KPICandidate    `json:"kpis"`
	Authors             []AuthorCandidate `json:"authors"`
}

type KPICandidate struct {
	Label       string     `json:"label"`
	Value       FlexString `json:"value"`
	Description string     `json:"description"`
}

type AuthorCandidate struct {
	ProfileID   string `json:"profile_id"`
	DisplayName string `json:"display_name"`
}

// FlexString absorbs string, number and bool JSON values. Agents routinely
// emit KPI values as bare numbers.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*f = FlexString(n.String())
		return nil
	}
	var v bool
	if err := json.Unmarshal(b, &v); err == nil {
		*f = FlexString(strconv.FormatBool(v))
		return nil
	}
	*f = ""
	return nil
}

// decodeCandidates converts a recovered JSON list into typed candidates.
// Elements that are not objects, or that fail to decode, are dropped.
func decodeCandidates(list []any) []Candidate {
	out := make([]Candidate, 0, len(list))
	for _, el := range list {
		if _, ok := el.(map[string]any); !ok {
			continue
		}
		raw, err := json.Marshal(el)
		if err != nil {
			continue
		}
		var c Candidate
		if err := json.Unmarshal(raw, &c); err != nil {
			continue
		}
		out = append(out, c)
	}
	return out
}
