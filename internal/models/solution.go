// internal/models/solution.go
package models

type Reversibility string

const (
	ReversibilityLow    Reversibility = "low"
	ReversibilityMedium Reversibility = "medium"
	ReversibilityHigh   Reversibility = "high"
)

type PersonaPerspective struct {
	PersonaID        string   `json:"persona_id"`
	ArgumentsFor     []string `json:"arguments_for,omitempty"`
	ArgumentsAgainst []string `json:"arguments_against,omitempty"`
}

// SolutionOption is one remediation candidate produced by the debate.
// Cost, Impact and Risk are normalized to [0,1]; Score is computed during
// synthesis and drives the ranking.
type SolutionOption struct {
	ID                     string               `json:"id"`
	Title                  string               `json:"title"`
	Description            string               `json:"description"`
	Cost                   float64              `json:"cost"`
	Impact                 float64              `json:"impact"`
	Risk                   float64              `json:"risk"`
	TimeToValue            string               `json:"time_to_value,omitempty"`
	Reversibility          Reversibility        `json:"reversibility,omitempty"`
	Perspectives           []PersonaPerspective `json:"perspectives,omitempty"`
	Prerequisites          []string             `json:"prerequisites,omitempty"`
	ImplementationTriggers []string             `json:"implementation_triggers,omitempty"`
	Score                  float64              `json:"score"`
}

type DebateStage string

const (
	DebateHypothesis  DebateStage = "hypothesis"
	DebateCrossReview DebateStage = "cross_review"
	DebateSynthesis   DebateStage = "synthesis"
)

type TranscriptEntry struct {
	Stage     DebateStage `json:"stage"`
	PersonaID string      `json:"persona_id"`
	Text      string      `json:"text"`
}

// DebateTranscript is the append-only record shared across debate
// sub-stages. Entries are never rewritten; later sub-stages only add.
type DebateTranscript struct {
	Entries []TranscriptEntry `json:"entries"`
}

func (t *DebateTranscript) Append(stage DebateStage, personaID, text string) {
	t.Entries = append(t.Entries, TranscriptEntry{Stage: stage, PersonaID: personaID, Text: text})
}

func (t *DebateTranscript) ByStage(stage DebateStage) []TranscriptEntry {
	var out []TranscriptEntry
	for _, e := range t.Entries {
		if e.Stage == stage {
			out = append(out, e)
		}
	}
	return out
}
