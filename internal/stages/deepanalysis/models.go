// Package deepanalysis runs the root-cause decomposition for one KPI: it
// resolves the KPI's data product through the registry, determines the
// anomaly direction, and hands the dimensional breakdown to the analysis
// engine.
package deepanalysis

import (
	"insight-workflows/internal/models"
)

// Input is the deep-analysis request payload. Direction is optional; when
// absent it is derived from the window totals and the KPI's good direction.
type Input struct {
	KPIName   string                  `json:"kpi_name"`
	Window    models.TimeWindow       `json:"window"`
	Direction models.AnomalyDirection `json:"direction,omitempty"`
}

// Output is the deep-analysis result payload.
type Output struct {
	KPIName       string                  `json:"kpi_name"`
	Direction     models.AnomalyDirection `json:"direction"`
	CurrentTotal  float64                 `json:"current_total"`
	PreviousTotal float64                 `json:"previous_total"`
	ChangePoints  []models.ChangePoint    `json:"change_points"`
	IsIsNot       models.KTIsIsNotSet     `json:"is_is_not"`
}
