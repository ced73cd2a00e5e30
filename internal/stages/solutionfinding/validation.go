// internal/stages/solutionfinding/validation.go
package solutionfinding

import (
	"encoding/json"
	"strings"

	stderrors "insight-workflows/internal/common/errors"
	"insight-workflows/internal/common/validation"
)

var inputSchema = validation.JSONSchema{
	Type: "object",
	Properties: map[string]validation.Property{
		"principal_id":      {Type: "string", MinLength: intPtr(1)},
		"problem_statement": {Type: "string", MinLength: intPtr(1)},
		"analysis":          {Type: "object"},
		"persona_ids": {
			Type:  "array",
			Items: &validation.Property{Type: "string", MinLength: intPtr(1)},
		},
	},
	Required: []string{"principal_id", "problem_statement"},
}

func Validate(raw json.RawMessage) *stderrors.StandardError {
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return stderrors.NewInvalidStageInputError("payload is not a JSON object")
	}

	result := validation.ValidateInput(payload, inputSchema)
	if !result.Valid {
		return stderrors.NewInvalidStageInputError(strings.Join(result.GetErrorMessages(), "; "))
	}
	return nil
}

func intPtr(v int) *int { return &v }
