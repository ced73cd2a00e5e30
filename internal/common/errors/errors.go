// Package errors provides standardized error handling for the workflow service.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Synchronous validation: the job is never created.
	ErrCodeInvalidStageInput ErrorCode = "INVALID_STAGE_INPUT"

	// Upstream collaborator failures, surfaced through the job's error field.
	ErrCodeRegistryLookupFailed    ErrorCode = "REGISTRY_LOOKUP_FAILED"
	ErrCodeMetricQueryFailed       ErrorCode = "METRIC_QUERY_FAILED"
	ErrCodeMetricQueryTimeout      ErrorCode = "METRIC_QUERY_TIMEOUT"
	ErrCodeReasoningProviderFailed ErrorCode = "REASONING_PROVIDER_FAILED"
	ErrCodeReasoningTimeout        ErrorCode = "REASONING_PROVIDER_TIMEOUT"

	// Stage lifecycle failures.
	ErrCodeStageTimeout         ErrorCode = "STAGE_TIMEOUT"
	ErrCodeStageExecutionFailed ErrorCode = "STAGE_EXECUTION_FAILED"
	ErrCodeJobCancelled         ErrorCode = "JOB_CANCELLED"

	// Job store results.
	ErrCodeJobConflict ErrorCode = "JOB_CONFLICT"
	ErrCodeJobNotFound ErrorCode = "JOB_NOT_FOUND"

	// Situation domain.
	ErrCodeSituationNotFound      ErrorCode = "SITUATION_NOT_FOUND"
	ErrCodeInvalidAction          ErrorCode = "INVALID_ACTION"
	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Reason is the human-readable failure reason written to a failed job.
func (e *StandardError) Reason() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidStageInputError creates a non-retryable input validation error.
func NewInvalidStageInputError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidStageInput,
		Message:   "Stage input failed validation",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRegistryLookupFailedError creates a retryable registry lookup error.
func NewRegistryLookupFailedError(record string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeRegistryLookupFailed,
		Message:   "Registry lookup failed",
		Details:   fmt.Sprintf("record: %s, error: %s", record, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewMetricQueryFailedError creates a retryable data-query error.
func NewMetricQueryFailedError(metric string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeMetricQueryFailed,
		Message:   "Metric data query failed",
		Details:   fmt.Sprintf("metric: %s, error: %s", metric, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewMetricQueryTimeoutError creates a retryable data-query timeout error.
func NewMetricQueryTimeoutError(metric string) *StandardError {
	return &StandardError{
		Code:      ErrCodeMetricQueryTimeout,
		Message:   "Metric data query timed out",
		Details:   fmt.Sprintf("metric: %s", metric),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewReasoningProviderFailedError creates a retryable reasoning-provider error.
func NewReasoningProviderFailedError(subStage string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeReasoningProviderFailed,
		Message:   "Reasoning provider call failed",
		Details:   fmt.Sprintf("subStage: %s, error: %s", subStage, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewReasoningTimeoutError creates a retryable reasoning-provider timeout error.
func NewReasoningTimeoutError(subStage string) *StandardError {
	return &StandardError{
		Code:      ErrCodeReasoningTimeout,
		Message:   "Reasoning provider call timed out",
		Details:   fmt.Sprintf("subStage: %s", subStage),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewStageTimeoutError creates a stage-level timeout error, distinguishable
// from upstream collaborator timeouts.
func NewStageTimeoutError(stageType string, budget time.Duration) *StandardError {
	return &StandardError{
		Code:      ErrCodeStageTimeout,
		Message:   "Stage exceeded its execution budget",
		Details:   fmt.Sprintf("stageType: %s, budget: %s", stageType, budget),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewStageExecutionFailedError wraps an unexpected failure (including a
// recovered panic) inside stage logic.
func NewStageExecutionFailedError(stageType string, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeStageExecutionFailed,
		Message:   "Stage execution failed",
		Details:   fmt.Sprintf("stageType: %s, error: %s", stageType, details),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewJobCancelledError creates the terminal reason for a cancelled job.
func NewJobCancelledError(requestID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeJobCancelled,
		Message:   "cancelled",
		Details:   fmt.Sprintf("requestId: %s", requestID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewJobConflictError creates a non-retryable terminal-transition conflict.
func NewJobConflictError(requestID string, state string) *StandardError {
	return &StandardError{
		Code:      ErrCodeJobConflict,
		Message:   "Job is already in a terminal state",
		Details:   fmt.Sprintf("requestId: %s, state: %s", requestID, state),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewJobNotFoundError creates a non-retryable unknown-request-id error.
func NewJobNotFoundError(requestID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeJobNotFound,
		Message:   "No job exists for the given request id",
		Details:   fmt.Sprintf("requestId: %s", requestID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSituationNotFoundError creates a non-retryable unknown-situation error.
func NewSituationNotFoundError(situationID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSituationNotFound,
		Message:   "No situation exists for the given id",
		Details:   fmt.Sprintf("situationId: %s", situationID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidActionError creates a non-retryable unknown-action error.
func NewInvalidActionError(action string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidAction,
		Message:   "Unsupported situation action",
		Details:   fmt.Sprintf("action: %s", action),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotificationSendFailedError creates a retryable notification error.
func NewNotificationSendFailedError(channel string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotificationSendFailed,
		Message:   "Notification dispatch failed",
		Details:   fmt.Sprintf("channel: %s, error: %s", channel, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// AsStandardError extracts a *StandardError from err if one is present.
func AsStandardError(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// GetErrorCategory maps an error code to a coarse category used in logs
// and metrics labels.
func GetErrorCategory(code ErrorCode) string {
	switch code {
	case ErrCodeInvalidStageInput, ErrCodeInvalidAction:
		return "validation"
	case ErrCodeRegistryLookupFailed, ErrCodeMetricQueryFailed,
		ErrCodeReasoningProviderFailed, ErrCodeNotificationSendFailed:
		return "upstream"
	case ErrCodeMetricQueryTimeout, ErrCodeReasoningTimeout, ErrCodeStageTimeout:
		return "timeout"
	case ErrCodeJobConflict:
		return "conflict"
	case ErrCodeJobNotFound, ErrCodeSituationNotFound:
		return "not_found"
	case ErrCodeJobCancelled:
		return "cancelled"
	default:
		return "internal"
	}
}
