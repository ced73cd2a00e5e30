// Package api is the orchestration façade: the submit/poll HTTP contract
// over stage runs, plus the synchronous situation-action and annotation
// endpoints.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	stderrors "insight-workflows/internal/common/errors"
	"insight-workflows/internal/common/logger"
	"insight-workflows/internal/executor"
	"insight-workflows/internal/jobstore"
	"insight-workflows/internal/models"
	"insight-workflows/internal/situations"
)

// Validator checks one stage type's raw input synchronously, before any job
// is created.
type Validator func(raw json.RawMessage) *stderrors.StandardError

// ReadinessCheck reports whether a downstream dependency is reachable.
type ReadinessCheck func(ctx context.Context) error

type Server struct {
	echo          *echo.Echo
	exec          *executor.Executor
	store         jobstore.Store
	situations    *situations.Store
	actions       *situations.Actions
	validators    map[models.StageType]Validator
	readiness     map[string]ReadinessCheck
	maxStatusWait time.Duration
	logger        logger.Logger
}

type Option func(*Server)

// WithReadinessCheck registers a named dependency probe for /ready.
func WithReadinessCheck(name string, check ReadinessCheck) Option {
	return func(s *Server) { s.readiness[name] = check }
}

// WithMaxStatusWait caps the ?wait_ms= bounded await on status reads.
func WithMaxStatusWait(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.maxStatusWait = d
		}
	}
}

func NewServer(
	exec *executor.Executor,
	store jobstore.Store,
	situationStore *situations.Store,
	actions *situations.Actions,
	validators map[models.StageType]Validator,
	log logger.Logger,
	opts ...Option,
) *Server {
	s := &Server{
		exec:          exec,
		store:         store,
		situations:    situationStore,
		actions:       actions,
		validators:    validators,
		readiness:     make(map[string]ReadinessCheck),
		maxStatusWait: 30 * time.Second,
		logger:        log.WithFields(map[string]interface{}{"component": "api"}),
	}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	s.echo = e
	s.routes()
	return s
}

func (s *Server) routes() {
	v1 := s.echo.Group("/api/v1")

	v1.POST("/workflows/:stage/run", s.handleRun)
	v1.GET("/workflows/:stage/jobs", s.handleListJobs)
	v1.GET("/workflows/:stage/:request_id/status", s.handleStatus)
	v1.POST("/workflows/:stage/:request_id/cancel", s.handleCancel)

	v1.POST("/workflows/situations/:id/annotations", s.handleAnnotate)
	v1.GET("/workflows/situations/:id/annotations", s.handleListAnnotations)
	v1.POST("/workflows/situations/:id/actions/:action_type", s.handleSituationAction)

	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/ready", s.handleReady)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
