// internal/stages/solutionfinding/handler.go
package solutionfinding

import (
	"context"
	"encoding/json"

	stderrors "insight-workflows/internal/common/errors"
	"insight-workflows/internal/common/logger"
	"insight-workflows/internal/common/registry"
	"insight-workflows/internal/engine/debate"
	"insight-workflows/internal/models"
)

type Handler struct {
	registry registry.Client
	engine   *debate.Engine
	logger   logger.Logger
}

func NewHandler(reg registry.Client, engine *debate.Engine, log logger.Logger) *Handler {
	return &Handler{
		registry: reg,
		engine:   engine,
		logger:   log.WithFields(map[string]interface{}{"stage": string(models.StageSolutionFinding)}),
	}
}

// Run implements the executor's stage contract.
func (h *Handler) Run(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	if stdErr := Validate(raw); stdErr != nil {
		return nil, stdErr
	}

	var input Input
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, stderrors.NewInvalidStageInputError(err.Error())
	}

	output, err := h.Execute(ctx, input)
	if err != nil {
		return nil, err
	}
	return json.Marshal(output)
}

func (h *Handler) Execute(ctx context.Context, input Input) (*Output, error) {
	principal, err := h.registry.GetPrincipal(ctx, input.PrincipalID)
	if err != nil {
		return nil, stderrors.NewRegistryLookupFailedError("principal/"+input.PrincipalID, err)
	}

	result, err := h.engine.Run(ctx, debate.Request{
		Principal:        *principal,
		PersonaIDs:       input.PersonaIDs,
		ProblemStatement: input.ProblemStatement,
		AnalysisContext:  string(input.Analysis),
	})
	if err != nil {
		return nil, err
	}

	h.logger.Info("debate finished", map[string]interface{}{
		"principalId": input.PrincipalID,
		"options":     len(result.OptionsRanked),
	})
	return result, nil
}
