// internal/stages/deepanalysis/handler.go
package deepanalysis

import (
	"context"
	"encoding/json"

	stderrors "insight-workflows/internal/common/errors"
	"insight-workflows/internal/common/logger"
	"insight-workflows/internal/common/registry"
	"insight-workflows/internal/dataquery"
	"insight-workflows/internal/engine/kt"
	"insight-workflows/internal/models"
)

type Handler struct {
	registry registry.Client
	querier  dataquery.Querier
	engine   *kt.Engine
	logger   logger.Logger
}

func NewHandler(reg registry.Client, querier dataquery.Querier, engine *kt.Engine, log logger.Logger) *Handler {
	return &Handler{
		registry: reg,
		querier:  querier,
		engine:   engine,
		logger:   log.WithFields(map[string]interface{}{"stage": string(models.StageDeepAnalysis)}),
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
	kpi, err := h.registry.GetKPI(ctx, input.KPIName)
	if err != nil {
		return nil, stderrors.NewRegistryLookupFailedError("kpi/"+input.KPIName, err)
	}
	product, err := h.registry.GetDataProduct(ctx, kpi.DataProduct)
	if err != nil {
		return nil, stderrors.NewRegistryLookupFailedError("data-product/"+kpi.DataProduct, err)
	}

	current, err := h.querier.Total(ctx, product.Table, kpi.Column, input.Window)
	if err != nil {
		return nil, err
	}
	previous, err := h.querier.Total(ctx, product.Table, kpi.Column, input.Window.Previous())
	if err != nil {
		return nil, err
	}

	direction := input.Direction
	if direction == "" {
		direction = deriveDirection(current, previous)
	}

	result, err := h.engine.Analyze(ctx, kt.Request{
		Table:      product.Table,
		Metric:     kpi.Column,
		Dimensions: product.Dimensions,
		Window:     input.Window,
		Direction:  direction,
	})
	if err != nil {
		return nil, err
	}

	h.logger.Info("analysis finished", map[string]interface{}{
		"kpiName":      input.KPIName,
		"direction":    string(direction),
		"changePoints": len(result.ChangePoints),
	})

	return &Output{
		KPIName:       input.KPIName,
		Direction:     direction,
		CurrentTotal:  current,
		PreviousTotal: previous,
		ChangePoints:  result.ChangePoints,
		IsIsNot:       result.IsIsNot,
	}, nil
}

// deriveDirection infers the anomaly direction from the overall totals when
// the caller did not pin one.
func deriveDirection(current, previous float64) models.AnomalyDirection {
	if current < previous {
		return models.DirectionDrop
	}
	return models.DirectionSpike
}
