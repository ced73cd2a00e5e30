// internal/engine/debate/prompts.go
package debate

import (
	"fmt"
	"strings"

	"insight-workflows/internal/models"
	"insight-workflows/pkg/personas"
)

func personaSystemPrompt(p personas.Persona) string {
	return fmt.Sprintf(
		"You are %s, a %s voice in a structured business debate. Your framing: %s Your focus areas: %s. Respond with JSON only.",
		p.Name, p.Style, p.Framing, strings.Join(p.Focus, ", "),
	)
}

func hypothesisPrompt(req Request) string {
	var b strings.Builder
	b.WriteString("Problem under debate:\n")
	b.WriteString(req.ProblemStatement)
	if req.AnalysisContext != "" {
		b.WriteString("\n\nRoot-cause findings:\n")
		b.WriteString(req.AnalysisContext)
	}
	b.WriteString("\n\nPropose your hypotheses about the underlying cause and sketch candidate solutions.\n")
	b.WriteString(`Respond with a JSON object: {"hypotheses": ["..."], "sketches": [{"title": "...", "description": "...", "cost": 0.0, "impact": 0.0, "risk": 0.0}]}. Cost, impact and risk are in [0,1].`)
	return b.String()
}

func crossReviewPrompt(reviewer personas.Persona, panel []personas.Persona, transcript *models.DebateTranscript) string {
	var others []string
	for _, p := range panel {
		if p.ID != reviewer.ID {
			others = append(others, p.ID)
		}
	}

	var b strings.Builder
	b.WriteString("Debate transcript so far:\n")
	b.WriteString(renderTranscript(transcript, models.DebateHypothesis))
	fmt.Fprintf(&b, "\n\nCritique the positions of the other panelists (%s). Only reference those persona ids.\n", strings.Join(others, ", "))
	b.WriteString(`Respond with a JSON object: {"reviews": [{"target_persona_id": "...", "critique": "...", "arguments_for": ["..."], "arguments_against": ["..."]}]}`)
	return b.String()
}

func synthesisPrompt(req Request, transcript *models.DebateTranscript) string {
	var b strings.Builder
	b.WriteString("You are the neutral moderator of a concluded business debate.\n\nProblem:\n")
	b.WriteString(req.ProblemStatement)
	b.WriteString("\n\nFull transcript:\n")
	b.WriteString(renderTranscript(transcript, ""))
	b.WriteString("\n\nConsolidate the debate into concrete solution options. Merge duplicate proposals, keep each persona's strongest arguments as perspectives, and surface what the panel missed or could not resolve.\n")
	b.WriteString(`Respond with a JSON object: {"options": [{"id": "...", "title": "...", "description": "...", "cost": 0.0, "impact": 0.0, "risk": 0.0, "time_to_value": "...", "reversibility": "low|medium|high", "perspectives": [{"persona_id": "...", "arguments_for": ["..."], "arguments_against": ["..."]}], "prerequisites": ["..."], "implementation_triggers": ["..."]}], "blind_spots": ["..."], "unresolved_tensions": ["..."]}. Cost, impact and risk are in [0,1].`)
	return b.String()
}

// renderTranscript flattens entries into prompt text. An empty stage renders
// everything.
func renderTranscript(transcript *models.DebateTranscript, stage models.DebateStage) string {
	var b strings.Builder
	for _, entry := range transcript.Entries {
		if stage != "" && entry.Stage != stage {
			continue
		}
		fmt.Fprintf(&b, "[%s] %s:\n%s\n\n", entry.Stage, entry.PersonaID, entry.Text)
	}
	return strings.TrimSpace(b.String())
}
