// Package jobstore tracks workflow jobs through their lifecycle. Transition
// is the only way state changes, and it uses compare-and-set semantics so a
// terminal state can never be overwritten.
package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"insight-workflows/internal/models"
)

var (
	// ErrNotFound means no job exists for the request id. Distinct from a
	// failed job, which is found and reports its error.
	ErrNotFound = errors.New("job not found")

	// ErrConflict means the job was not in the expected prior state.
	// Transitions out of a terminal state always conflict.
	ErrConflict = errors.New("job state conflict")

	// ErrInvalidOutcome means a terminal transition carried the wrong
	// result/error combination.
	ErrInvalidOutcome = errors.New("invalid terminal outcome")
)

// Outcome carries the terminal payload of a transition. Exactly one of
// Result or Error must be set when transitioning to a terminal state.
type Outcome struct {
	Result json.RawMessage
	Error  string
}

// Store is the job table contract shared by the memory and redis backends.
type Store interface {
	Create(ctx context.Context, stageType models.StageType, input json.RawMessage) (*models.WorkflowJob, error)
	Get(ctx context.Context, requestID string) (*models.WorkflowJob, error)
	Transition(ctx context.Context, requestID string, from, to models.JobState, outcome *Outcome) (*models.WorkflowJob, error)
	List(ctx context.Context, stageType models.StageType) ([]*models.WorkflowJob, error)
}

// TerminalAwaiter is implemented by stores that can notify a waiter when a
// job reaches a terminal state, so a status call can await with a bounded
// timeout instead of busy-polling.
type TerminalAwaiter interface {
	AwaitTerminal(ctx context.Context, requestID string) (*models.WorkflowJob, error)
}

// validateTransition enforces the shared state-machine rules. It returns the
// normalized outcome to apply, or an error.
func validateTransition(job *models.WorkflowJob, from, to models.JobState, outcome *Outcome) error {
	if job.State.Terminal() {
		return fmt.Errorf("%w: job %s already %s", ErrConflict, job.RequestID, job.State)
	}
	if job.State != from {
		return fmt.Errorf("%w: job %s is %s, expected %s", ErrConflict, job.RequestID, job.State, from)
	}

	switch to {
	case models.JobRunning:
		if outcome != nil {
			return fmt.Errorf("%w: non-terminal transition must not carry an outcome", ErrInvalidOutcome)
		}
	case models.JobCompleted:
		if outcome == nil || outcome.Result == nil || outcome.Error != "" {
			return fmt.Errorf("%w: completed requires a result and no error", ErrInvalidOutcome)
		}
	case models.JobFailed:
		if outcome == nil || outcome.Error == "" || outcome.Result != nil {
			return fmt.Errorf("%w: failed requires an error and no result", ErrInvalidOutcome)
		}
	default:
		return fmt.Errorf("%w: cannot transition to %s", ErrInvalidOutcome, to)
	}

	return nil
}

func applyTransition(job *models.WorkflowJob, to models.JobState, outcome *Outcome) {
	job.State = to
	if outcome != nil {
		job.Result = outcome.Result
		job.Error = outcome.Error
	}
}
