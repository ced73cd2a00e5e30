// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StageJobsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stage_jobs_submitted_total",
			Help: "Total number of stage runs submitted",
		},
		[]string{"stage_type"},
	)

	StageJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stage_jobs_completed_total",
			Help: "Total number of stage runs completed",
		},
		[]string{"stage_type"},
	)

	StageJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stage_jobs_failed_total",
			Help: "Total number of stage runs failed",
		},
		[]string{"stage_type", "error_category"},
	)

	StageJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "stage_job_duration_seconds",
			Help: "Duration of stage run execution in seconds",
		},
		[]string{"stage_type"},
	)

	StageJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stage_jobs_active",
			Help: "Number of stage runs currently executing",
		},
		[]string{"stage_type"},
	)

	DebateSubStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "debate_substage_duration_seconds",
			Help: "Duration of debate sub-stage execution in seconds",
		},
		[]string{"sub_stage"},
	)

	ReasoningCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reasoning_provider_calls_total",
			Help: "Total number of reasoning-provider calls",
		},
		[]string{"provider", "status"},
	)
)
