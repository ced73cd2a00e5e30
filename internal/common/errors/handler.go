// internal/common/errors/handler.go
package errors

import (
	"net/http"
	"time"
)

// Normalize ensures we always have a StandardError to report. Unexpected
// errors are wrapped as stage execution failures so callers never see a raw
// Go error string without a code.
func Normalize(err error, stageType string) *StandardError {
	if stdErr, ok := AsStandardError(err); ok {
		return stdErr
	}
	return &StandardError{
		Code:      ErrCodeStageExecutionFailed,
		Message:   "Stage execution failed",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		Metadata:  map[string]interface{}{"stageType": stageType},
	}
}

// HTTPStatus maps an error code to the status the orchestration facade
// returns for synchronous failures. Asynchronous failures are reported
// through the job envelope and always ride a 200 status.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeInvalidStageInput, ErrCodeInvalidAction:
		return http.StatusBadRequest
	case ErrCodeJobNotFound, ErrCodeSituationNotFound:
		return http.StatusNotFound
	case ErrCodeJobConflict:
		return http.StatusConflict
	case ErrCodeNotificationSendFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
