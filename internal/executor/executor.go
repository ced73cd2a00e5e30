// Package executor drives workflow jobs from queued through running to a
// terminal state. The submit side returns immediately; a goroutine per job
// owns the lifecycle and is the only writer of that job's transitions.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	stderrors "insight-workflows/internal/common/errors"
	"insight-workflows/internal/common/logger"
	"insight-workflows/internal/common/metrics"
	"insight-workflows/internal/common/observability"
	"insight-workflows/internal/jobstore"
	"insight-workflows/internal/models"
)

// StageRunner is the uniform contract every stage type implements.
type StageRunner interface {
	Run(ctx context.Context, input json.RawMessage) (json.RawMessage, error)
}

// Executor owns the asynchronous boundary between the facade and stage
// logic.
type Executor struct {
	store    jobstore.Store
	runners  map[models.StageType]StageRunner
	timeouts map[models.StageType]time.Duration
	tracing  *observability.Tracing
	obs      *observability.Observability
	logger   logger.Logger
}

type Option func(*Executor)

func WithTracing(t *observability.Tracing) Option {
	return func(e *Executor) { e.tracing = t }
}

func WithObservability(o *observability.Observability) Option {
	return func(e *Executor) { e.obs = o }
}

func New(store jobstore.Store, log logger.Logger, opts ...Option) *Executor {
	e := &Executor{
		store:    store,
		runners:  make(map[models.StageType]StageRunner),
		timeouts: make(map[models.StageType]time.Duration),
		logger:   log.WithFields(map[string]interface{}{"component": "executor"}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register binds a stage type to its runner and execution budget.
func (e *Executor) Register(stageType models.StageType, runner StageRunner, timeout time.Duration) {
	e.runners[stageType] = runner
	e.timeouts[stageType] = timeout
}

// Launch creates the job and returns immediately; the run happens on its
// own goroutine, independent of the caller's polling cadence.
func (e *Executor) Launch(ctx context.Context, stageType models.StageType, input json.RawMessage) (*models.WorkflowJob, error) {
	if _, ok := e.runners[stageType]; !ok {
		return nil, fmt.Errorf("no runner registered for stage type %q", stageType)
	}

	job, err := e.store.Create(ctx, stageType, input)
	if err != nil {
		return nil, err
	}

	metrics.StageJobsSubmitted.WithLabelValues(string(stageType)).Inc()
	e.logger.Info("stage run submitted", map[string]interface{}{
		"requestId": job.RequestID,
		"stageType": string(stageType),
	})

	go e.run(job.RequestID, stageType, job.Input)

	return job, nil
}

// Cancel transitions a queued or running job to failed("cancelled").
// Terminal jobs conflict and keep their original state.
func (e *Executor) Cancel(ctx context.Context, requestID string) (*models.WorkflowJob, error) {
	job, err := e.store.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}

	outcome := &jobstore.Outcome{Error: stderrors.NewJobCancelledError(requestID).Reason()}
	cancelled, err := e.store.Transition(ctx, requestID, job.State, models.JobFailed, outcome)
	if err != nil {
		return nil, err
	}

	e.logger.Info("stage run cancelled", map[string]interface{}{
		"requestId": requestID,
		"stageType": string(job.StageType),
	})
	return cancelled, nil
}

// run owns one job's full lifecycle. Whatever happens inside stage logic,
// including a panic or a blown budget, the job ends terminal.
func (e *Executor) run(requestID string, stageType models.StageType, input json.RawMessage) {
	log := e.logger.WithFields(map[string]interface{}{
		"requestId": requestID,
		"stageType": string(stageType),
	})

	if _, err := e.store.Transition(context.Background(), requestID, models.JobQueued, models.JobRunning, nil); err != nil {
		// Cancelled between submit and pickup; nothing to do.
		log.Warn("job not runnable", map[string]interface{}{"error": err.Error()})
		return
	}

	timeout := e.timeouts[stageType]
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ctx, span := e.tracing.StartStageSpan(ctx, string(stageType), requestID)
	defer span.End()

	metrics.StageJobsActive.WithLabelValues(string(stageType)).Inc()
	defer metrics.StageJobsActive.WithLabelValues(string(stageType)).Dec()

	start := time.Now()
	result, err := e.invoke(ctx, stageType, input)
	elapsed := time.Since(start)

	metrics.StageJobDuration.WithLabelValues(string(stageType)).Observe(elapsed.Seconds())

	if err != nil {
		stdErr := e.classify(err, stageType, timeout)
		e.fail(requestID, stageType, stdErr, log)
		if e.obs != nil {
			e.obs.RecordStageProcessed(context.Background(), string(stageType), "failed")
			e.obs.RecordStageDuration(context.Background(), string(stageType), elapsed, "failed")
		}
		return
	}

	if _, terr := e.store.Transition(context.Background(), requestID, models.JobRunning, models.JobCompleted,
		&jobstore.Outcome{Result: result}); terr != nil {
		// Lost the race against a cancel; the terminal state stands.
		log.Warn("completion discarded", map[string]interface{}{"error": terr.Error()})
		return
	}

	metrics.StageJobsCompleted.WithLabelValues(string(stageType)).Inc()
	if e.obs != nil {
		e.obs.RecordStageProcessed(context.Background(), string(stageType), "completed")
		e.obs.RecordStageDuration(context.Background(), string(stageType), elapsed, "completed")
	}
	log.Info("stage run completed", map[string]interface{}{"durationMs": elapsed.Milliseconds()})
}

// invoke calls the stage runner, converting panics to errors and enforcing
// the deadline even against a runner that ignores its context.
func (e *Executor) invoke(ctx context.Context, stageType models.StageType, input json.RawMessage) (json.RawMessage, error) {
	type outcome struct {
		result json.RawMessage
		err    error
	}

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: stderrors.NewStageExecutionFailedError(string(stageType), fmt.Sprintf("panic: %v", r))}
			}
		}()
		result, err := e.runners[stageType].Run(ctx, input)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Executor) classify(err error, stageType models.StageType, timeout time.Duration) *stderrors.StandardError {
	if errors.Is(err, context.DeadlineExceeded) {
		return stderrors.NewStageTimeoutError(string(stageType), timeout)
	}
	return stderrors.Normalize(err, string(stageType))
}

func (e *Executor) fail(requestID string, stageType models.StageType, stdErr *stderrors.StandardError, log logger.Logger) {
	category := stderrors.GetErrorCategory(stdErr.Code)
	metrics.StageJobsFailed.WithLabelValues(string(stageType), category).Inc()

	log.Error("stage run failed", map[string]interface{}{
		"errorCode":     string(stdErr.Code),
		"errorCategory": category,
		"details":       stdErr.Details,
	})

	if _, err := e.store.Transition(context.Background(), requestID, models.JobRunning, models.JobFailed,
		&jobstore.Outcome{Error: stdErr.Reason()}); err != nil {
		log.Warn("failure discarded", map[string]interface{}{"error": err.Error()})
	}
}

// RunSubStage runs one named unit of work under its own timeout slice of the
// parent context, with the same panic and deadline conversion a full stage
// run gets. The debate engine uses it for each of its three sub-stages.
func RunSubStage(ctx context.Context, log logger.Logger, name string, timeout time.Duration, fn func(ctx context.Context) error) error {
	subCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- stderrors.NewStageExecutionFailedError(name, fmt.Sprintf("panic: %v", r))
			}
		}()
		done <- fn(subCtx)
	}()

	var err error
	select {
	case err = <-done:
	case <-subCtx.Done():
		err = subCtx.Err()
	}

	metrics.DebateSubStageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if errors.Is(err, context.DeadlineExceeded) {
		return stderrors.NewStageTimeoutError(name, timeout)
	}
	if err != nil {
		log.Error("sub-stage failed", map[string]interface{}{
			"subStage": name,
			"error":    err.Error(),
		})
	}
	return err
}
