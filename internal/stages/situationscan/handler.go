// internal/stages/situationscan/handler.go
package situationscan

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	stderrors "insight-workflows/internal/common/errors"
	"insight-workflows/internal/common/logger"
	"insight-workflows/internal/common/registry"
	"insight-workflows/internal/dataquery"
	"insight-workflows/internal/models"
	"insight-workflows/internal/situations"
)

// Handler runs one situation scan: every KPI the principal monitors is
// compared against its prior period and adverse moves become situations.
type Handler struct {
	registry   registry.Client
	querier    dataquery.Querier
	store      *situations.Store
	thresholds Thresholds
	logger     logger.Logger
}

func NewHandler(reg registry.Client, querier dataquery.Querier, store *situations.Store, thresholds Thresholds, log logger.Logger) *Handler {
	if thresholds == (Thresholds{}) {
		thresholds = DefaultThresholds
	}
	return &Handler{
		registry:   reg,
		querier:    querier,
		store:      store,
		thresholds: thresholds,
		logger:     log.WithFields(map[string]interface{}{"stage": string(models.StageSituationScan)}),
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

	output := &Output{
		PrincipalID: input.PrincipalID,
		Situations:  []models.Situation{},
	}

	for _, kpiName := range principal.MonitoredKPIs {
		situation, err := h.scanKPI(ctx, kpiName, input.Window)
		if err != nil {
			return nil, err
		}
		output.EvaluatedKPIs++
		if situation != nil {
			output.Situations = append(output.Situations, *situation)
		}
	}

	if h.store != nil {
		h.store.Register(output.Situations)
	}

	h.logger.Info("scan finished", map[string]interface{}{
		"principalId":   input.PrincipalID,
		"evaluatedKpis": output.EvaluatedKPIs,
		"situations":    len(output.Situations),
	})
	return output, nil
}

// scanKPI compares one KPI's totals across windows. A nil situation means
// the KPI moved within tolerance (or in its good direction).
func (h *Handler) scanKPI(ctx context.Context, kpiName string, window models.TimeWindow) (*models.Situation, error) {
	kpi, err := h.registry.GetKPI(ctx, kpiName)
	if err != nil {
		return nil, stderrors.NewRegistryLookupFailedError("kpi/"+kpiName, err)
	}
	product, err := h.registry.GetDataProduct(ctx, kpi.DataProduct)
	if err != nil {
		return nil, stderrors.NewRegistryLookupFailedError("data-product/"+kpi.DataProduct, err)
	}

	current, err := h.querier.Total(ctx, product.Table, kpi.Column, window)
	if err != nil {
		return nil, err
	}
	previous, err := h.querier.Total(ctx, product.Table, kpi.Column, window.Previous())
	if err != nil {
		return nil, err
	}

	delta := current - previous

	// No baseline: a vanished or brand-new metric is worth a look, but
	// percent change is undefined.
	if previous == 0 {
		if current == 0 {
			return nil, nil
		}
		return h.newSituation(kpi, current, models.SeverityHigh,
			fmt.Sprintf("%s has no prior-period baseline (current: %.2f)", kpi.Name, current)), nil
	}

	if !isAdverse(kpi.Direction, delta) {
		return nil, nil
	}

	pct := delta / previous * 100
	severity, significant := h.thresholds.classify(math.Abs(pct))
	if !significant {
		return nil, nil
	}

	return h.newSituation(kpi, current, severity,
		fmt.Sprintf("%s moved %.1f%% vs prior %s (%.2f → %.2f)",
			kpi.Name, pct, window.Granularity, previous, current)), nil
}

func (h *Handler) newSituation(kpi *models.KPI, current float64, severity models.Severity, description string) *models.Situation {
	now := time.Now().UTC()
	return &models.Situation{
		SituationID:      uuid.New().String(),
		KPIName:          kpi.Name,
		Severity:         severity,
		Description:      description,
		KPIValue:         &models.KPIValue{Value: current, Unit: kpi.Unit},
		SuggestedActions: suggestedActions[severity],
		Status:           models.SituationOpen,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// isAdverse reports whether the delta moves against the KPI's good
// direction.
func isAdverse(direction models.MetricDirection, delta float64) bool {
	switch direction {
	case models.DownIsGood:
		return delta > 0
	default:
		return delta < 0
	}
}
