// internal/stages/deepanalysis/validation.go
package deepanalysis

import (
	"encoding/json"
	"strings"

	stderrors "insight-workflows/internal/common/errors"
	"insight-workflows/internal/common/validation"
)

var inputSchema = validation.JSONSchema{
	Type: "object",
	Properties: map[string]validation.Property{
		"kpi_name": {Type: "string", MinLength: intPtr(1)},
		"window": {
			Type:     "object",
			Required: []string{"start", "end", "granularity"},
			Properties: map[string]validation.Property{
				"start":       {Type: "string"},
				"end":         {Type: "string"},
				"granularity": {Type: "string", Enum: []string{"day", "week", "month", "quarter"}},
			},
		},
		"direction": {Type: "string", Enum: []string{"drop", "spike"}},
	},
	Required: []string{"kpi_name", "window"},
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

	var input Input
	if err := json.Unmarshal(raw, &input); err != nil {
		return stderrors.NewInvalidStageInputError(err.Error())
	}
	if !input.Window.End.After(input.Window.Start) {
		return stderrors.NewInvalidStageInputError("window.end must be after window.start")
	}
	return nil
}

func intPtr(v int) *int { return &v }
