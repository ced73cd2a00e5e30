// Package situationscan detects anomalous KPIs for a principal by comparing
// the current window against the prior period and classifying the magnitude
// of any adverse move.
package situationscan

import (
	"insight-workflows/internal/models"
)

// Input is the situation-scan request payload.
type Input struct {
	PrincipalID string            `json:"principal_id"`
	Window      models.TimeWindow `json:"window"`
}

// Output is the situation-scan result payload.
type Output struct {
	PrincipalID   string             `json:"principal_id"`
	Situations    []models.Situation `json:"situations"`
	EvaluatedKPIs int                `json:"evaluated_kpis"`
}

// Thresholds are the absolute percent-change boundaries for severity
// classification.
type Thresholds struct {
	CriticalPct float64
	HighPct     float64
	MediumPct   float64
}

var DefaultThresholds = Thresholds{CriticalPct: 25, HighPct: 15, MediumPct: 8}

// suggestedActions is the per-severity action catalog surfaced to the
// caller alongside each situation.
var suggestedActions = map[models.Severity][]string{
	models.SeverityCritical: {"escalate", "notify", "deep-analysis"},
	models.SeverityHigh:     {"assign", "notify", "deep-analysis"},
	models.SeverityMedium:   {"assign", "deep-analysis"},
}

// classify maps an absolute percent change to a severity. Moves below the
// medium threshold are not situations at all.
func (t Thresholds) classify(absPct float64) (models.Severity, bool) {
	switch {
	case absPct >= t.CriticalPct:
		return models.SeverityCritical, true
	case absPct >= t.HighPct:
		return models.SeverityHigh, true
	case absPct >= t.MediumPct:
		return models.SeverityMedium, true
	default:
		return models.SeverityLow, false
	}
}
