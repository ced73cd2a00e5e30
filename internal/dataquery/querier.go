// Package dataquery reads grouped metric aggregates from the configured
// analytical backend. The engines only ever see GroupTotal slices; which
// store produced them is a deployment decision.
package dataquery

import (
	"context"

	"insight-workflows/internal/models"
)

// GroupTotal is one dimension bucket's aggregate over a time window.
type GroupTotal struct {
	Key   string  `json:"key"`
	Total float64 `json:"total"`
}

// Querier is the read contract against the metric store.
type Querier interface {
	// GroupedTotals sums the metric column per distinct value of the
	// dimension column over the window.
	GroupedTotals(ctx context.Context, table, dimension, metric string, window models.TimeWindow) ([]GroupTotal, error)

	// Total sums the metric column over the window without grouping.
	Total(ctx context.Context, table, metric string, window models.TimeWindow) (float64, error)
}
