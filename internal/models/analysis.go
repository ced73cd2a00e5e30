// internal/models/analysis.go
package models

import "time"

type Granularity string

const (
	GranularityDay     Granularity = "day"
	GranularityWeek    Granularity = "week"
	GranularityMonth   Granularity = "month"
	GranularityQuarter Granularity = "quarter"
)

type TimeWindow struct {
	Start       time.Time   `json:"start"`
	End         time.Time   `json:"end"`
	Granularity Granularity `json:"granularity"`
}

// Previous returns the comparison window: the same span shifted back one
// period, so a quarter compares against the prior quarter and so on.
func (w TimeWindow) Previous() TimeWindow {
	span := w.End.Sub(w.Start)
	return TimeWindow{
		Start:       w.Start.Add(-span),
		End:         w.Start,
		Granularity: w.Granularity,
	}
}

// AnomalyDirection is the overall movement of the metric under analysis.
type AnomalyDirection string

const (
	DirectionDrop  AnomalyDirection = "drop"
	DirectionSpike AnomalyDirection = "spike"
)

// ChangePoint is one dimension bucket's contribution to a metric shift.
// GrowthPct is presentational only and omitted when Previous is zero.
type ChangePoint struct {
	Dimension string   `json:"dimension"`
	Key       string   `json:"key"`
	Current   float64  `json:"current"`
	Previous  float64  `json:"previous"`
	Delta     float64  `json:"delta"`
	GrowthPct *float64 `json:"growth_pct,omitempty"`
}

// KTIsIsNotSet partitions change points by whether they move with the
// anomaly. A (dimension, key) pair appears in at most one list.
type KTIsIsNotSet struct {
	WhereIs    []ChangePoint `json:"where_is"`
	WhereIsNot []ChangePoint `json:"where_is_not"`
}
