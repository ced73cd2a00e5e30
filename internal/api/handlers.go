// internal/api/handlers.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	stderrors "insight-workflows/internal/common/errors"
	"insight-workflows/internal/jobstore"
	"insight-workflows/internal/models"
	"insight-workflows/internal/situations"
)

// statusEnvelope is the uniform polling payload for every stage type.
type statusEnvelope struct {
	RequestID string          `json:"request_id"`
	StageType models.StageType `json:"stage_type"`
	Status    models.JobState `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func envelope(job *models.WorkflowJob) statusEnvelope {
	return statusEnvelope{
		RequestID: job.RequestID,
		StageType: job.StageType,
		Status:    job.State,
		Result:    job.Result,
		Error:     job.Error,
	}
}

func (s *Server) writeError(c echo.Context, err error) error {
	if errors.Is(err, jobstore.ErrNotFound) {
		return c.JSON(http.StatusNotFound, errorResponse{
			Code:    string(stderrors.ErrCodeJobNotFound),
			Message: "no job exists for the given request id",
		})
	}
	if errors.Is(err, jobstore.ErrConflict) {
		return c.JSON(http.StatusConflict, errorResponse{
			Code:    string(stderrors.ErrCodeJobConflict),
			Message: "job is already in a terminal state",
		})
	}
	if stdErr, ok := stderrors.AsStandardError(err); ok {
		return c.JSON(stderrors.HTTPStatus(stdErr.Code), errorResponse{
			Code:    string(stdErr.Code),
			Message: stdErr.Message,
			Details: stdErr.Details,
		})
	}
	s.logger.Error("request failed", map[string]interface{}{"error": err.Error()})
	return c.JSON(http.StatusInternalServerError, errorResponse{
		Code:    "INTERNAL",
		Message: "internal error",
	})
}

// handleRun validates the payload synchronously and launches the job. The
// response never waits for execution.
func (s *Server) handleRun(c echo.Context) error {
	stage, err := models.ParseStageType(c.Param("stage"))
	if err != nil {
		return c.JSON(http.StatusNotFound, errorResponse{Code: "UNKNOWN_STAGE", Message: err.Error()})
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return s.writeError(c, stderrors.NewInvalidStageInputError("unreadable request body"))
	}
	if len(body) == 0 {
		body = []byte(`{}`)
	}

	if validate, ok := s.validators[stage]; ok {
		if stdErr := validate(body); stdErr != nil {
			return s.writeError(c, stdErr)
		}
	}

	job, err := s.exec.Launch(c.Request().Context(), stage, body)
	if err != nil {
		return s.writeError(c, err)
	}

	return c.JSON(http.StatusAccepted, map[string]string{"request_id": job.RequestID})
}

// handleStatus is a pure idempotent read. An optional ?wait_ms= bounds an
// await on the job's terminal transition when the store supports it.
func (s *Server) handleStatus(c echo.Context) error {
	if _, err := models.ParseStageType(c.Param("stage")); err != nil {
		return c.JSON(http.StatusNotFound, errorResponse{Code: "UNKNOWN_STAGE", Message: err.Error()})
	}
	requestID := c.Param("request_id")

	if waitMs := c.QueryParam("wait_ms"); waitMs != "" {
		if job, err, handled := s.awaitStatus(c, requestID, waitMs); handled {
			if err != nil {
				return s.writeError(c, err)
			}
			return c.JSON(http.StatusOK, envelope(job))
		}
	}

	job, err := s.store.Get(c.Request().Context(), requestID)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, envelope(job))
}

// awaitStatus performs the bounded wait. handled=false means the store has
// no terminal notification and the caller falls back to a plain read.
func (s *Server) awaitStatus(c echo.Context, requestID, waitMs string) (*models.WorkflowJob, error, bool) {
	awaiter, ok := s.store.(jobstore.TerminalAwaiter)
	if !ok {
		return nil, nil, false
	}

	ms, err := strconv.Atoi(waitMs)
	if err != nil || ms < 0 {
		return nil, stderrors.NewInvalidStageInputError("wait_ms must be a non-negative integer"), true
	}

	wait := time.Duration(ms) * time.Millisecond
	if wait > s.maxStatusWait {
		wait = s.maxStatusWait
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), wait)
	defer cancel()

	job, err := awaiter.AwaitTerminal(ctx, requestID)
	return job, err, true
}

func (s *Server) handleCancel(c echo.Context) error {
	if _, err := models.ParseStageType(c.Param("stage")); err != nil {
		return c.JSON(http.StatusNotFound, errorResponse{Code: "UNKNOWN_STAGE", Message: err.Error()})
	}

	job, err := s.exec.Cancel(c.Request().Context(), c.Param("request_id"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, envelope(job))
}

func (s *Server) handleListJobs(c echo.Context) error {
	stage, err := models.ParseStageType(c.Param("stage"))
	if err != nil {
		return c.JSON(http.StatusNotFound, errorResponse{Code: "UNKNOWN_STAGE", Message: err.Error()})
	}

	jobs, err := s.store.List(c.Request().Context(), stage)
	if err != nil {
		return s.writeError(c, err)
	}

	out := make([]statusEnvelope, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, envelope(job))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"jobs": out})
}

type annotateRequest struct {
	Author string `json:"author"`
	Text   string `json:"text"`
}

func (s *Server) handleAnnotate(c echo.Context) error {
	var req annotateRequest
	if err := c.Bind(&req); err != nil || req.Author == "" || req.Text == "" {
		return s.writeError(c, stderrors.NewInvalidStageInputError("author and text are required"))
	}

	requestID := c.Param("id")
	if _, err := s.store.Get(c.Request().Context(), requestID); err != nil {
		return s.writeError(c, err)
	}

	annotation := s.situations.Annotate(requestID, req.Author, req.Text)
	return c.JSON(http.StatusCreated, annotation)
}

func (s *Server) handleListAnnotations(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"annotations": s.situations.Annotations(c.Param("id")),
	})
}

func (s *Server) handleSituationAction(c echo.Context) error {
	action, err := models.ParseActionType(c.Param("action_type"))
	if err != nil {
		return s.writeError(c, stderrors.NewInvalidActionError(c.Param("action_type")))
	}

	var params situations.ActionParams
	if err := c.Bind(&params); err != nil {
		return s.writeError(c, stderrors.NewInvalidStageInputError("malformed action payload"))
	}

	situation, err := s.actions.Apply(c.Request().Context(), c.Param("id"), action, params)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, situation)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady runs every registered dependency probe; any failure flips the
// response to 503 with per-check detail.
func (s *Server) handleReady(c echo.Context) error {
	checks := make(map[string]string, len(s.readiness))
	healthy := true

	for name, check := range s.readiness {
		if err := check(c.Request().Context()); err != nil {
			checks[name] = err.Error()
			healthy = false
			continue
		}
		checks[name] = "ok"
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, map[string]interface{}{"ready": healthy, "checks": checks})
}
