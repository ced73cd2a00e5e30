// Package solutionfinding turns a principal's problem plus prior analysis
// findings into ranked remediation options through the debate engine.
package solutionfinding

import (
	"encoding/json"

	"insight-workflows/internal/engine/debate"
)

// Input is the solution-finding request payload. Analysis carries the
// upstream deep-analysis result verbatim; it is context for the debate, not
// something this stage re-validates.
type Input struct {
	PrincipalID      string          `json:"principal_id"`
	ProblemStatement string          `json:"problem_statement"`
	Analysis         json.RawMessage `json:"analysis,omitempty"`
	PersonaIDs       []string        `json:"persona_ids,omitempty"`
}

// Output is the solution-finding result payload.
type Output = debate.Result
