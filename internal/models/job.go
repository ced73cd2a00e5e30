// internal/models/job.go
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

type StageType string

const (
	StageSituationScan   StageType = "situation-scan"
	StageDeepAnalysis    StageType = "deep-analysis"
	StageSolutionFinding StageType = "solution-finding"
)

func ParseStageType(s string) (StageType, error) {
	switch st := StageType(s); st {
	case StageSituationScan, StageDeepAnalysis, StageSolutionFinding:
		return st, nil
	default:
		return "", fmt.Errorf("unknown stage type %q", s)
	}
}

type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// Terminal reports whether the state is a sink: no transition may leave it.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// WorkflowJob tracks one stage run from submission to its terminal state.
// Input is immutable after creation. In a terminal state exactly one of
// Result (completed) or Error (failed) is set, never both.
type WorkflowJob struct {
	RequestID string          `json:"request_id"`
	StageType StageType       `json:"stage_type"`
	State     JobState        `json:"state"`
	Input     json.RawMessage `json:"input"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Clone returns a deep copy so store callers can never mutate shared state.
func (j *WorkflowJob) Clone() *WorkflowJob {
	cp := *j
	if j.Input != nil {
		cp.Input = append(json.RawMessage(nil), j.Input...)
	}
	if j.Result != nil {
		cp.Result = append(json.RawMessage(nil), j.Result...)
	}
	return &cp
}
