package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stderrors "insight-workflows/internal/common/errors"
	"insight-workflows/internal/common/logger"
	"insight-workflows/internal/executor"
	"insight-workflows/internal/jobstore"
	"insight-workflows/internal/models"
	"insight-workflows/internal/situations"
)

type scriptedRunner struct {
	result json.RawMessage
	err    error
	block  chan struct{} // when set, Run waits until closed
}

func (r *scriptedRunner) Run(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return r.result, r.err
}

type testServer struct {
	server *Server
	store  *jobstore.MemoryStore
	sits   *situations.Store
}

func newTestServer(t *testing.T, runner executor.StageRunner) *testServer {
	t.Helper()

	store := jobstore.NewMemoryStore()
	exec := executor.New(store, logger.NewNoOpLogger())
	if runner != nil {
		exec.Register(models.StageSituationScan, runner, time.Second)
		exec.Register(models.StageDeepAnalysis, runner, time.Second)
		exec.Register(models.StageSolutionFinding, runner, time.Second)
	}

	sits := situations.NewStore()
	actions := situations.NewActions(sits, nil, time.Hour, logger.NewNoOpLogger())

	validators := map[models.StageType]Validator{
		models.StageSituationScan: func(raw json.RawMessage) *stderrors.StandardError {
			var payload map[string]interface{}
			if err := json.Unmarshal(raw, &payload); err != nil {
				return stderrors.NewInvalidStageInputError("not an object")
			}
			if _, ok := payload["principal_id"]; !ok {
				return stderrors.NewInvalidStageInputError("principal_id: required field missing")
			}
			return nil
		},
	}

	server := NewServer(exec, store, sits, actions, validators, logger.NewNoOpLogger(),
		WithMaxStatusWait(200*time.Millisecond))

	return &testServer{server: server, store: store, sits: sits}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echoContentType, "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	return rec
}

const echoContentType = "Content-Type"

func submitAndAwait(t *testing.T, ts *testServer, stage, body string) (string, statusEnvelope) {
	t.Helper()

	rec := ts.do(t, http.MethodPost, "/api/v1/workflows/"+stage+"/run", body)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var accepted map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	requestID := accepted["request_id"]
	require.NotEmpty(t, requestID)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := ts.store.AwaitTerminal(ctx, requestID)
	require.NoError(t, err)

	status := ts.do(t, http.MethodGet, "/api/v1/workflows/"+stage+"/"+requestID+"/status", "")
	require.Equal(t, http.StatusOK, status.Code)

	var env statusEnvelope
	require.NoError(t, json.Unmarshal(status.Body.Bytes(), &env))
	return requestID, env
}

func TestRun_AcceptsAndCompletes(t *testing.T) {
	ts := newTestServer(t, &scriptedRunner{result: json.RawMessage(`{"situations": []}`)})

	_, env := submitAndAwait(t, ts, "situation-scan", `{"principal_id": "p-1"}`)
	assert.Equal(t, models.JobCompleted, env.Status)
	assert.JSONEq(t, `{"situations": []}`, string(env.Result))
	assert.Empty(t, env.Error)
}

func TestRun_FailedJobCarriesError(t *testing.T) {
	ts := newTestServer(t, &scriptedRunner{
		err: stderrors.NewRegistryLookupFailedError("principal/p-1", assertableErr("registry down")),
	})

	_, env := submitAndAwait(t, ts, "situation-scan", `{"principal_id": "p-1"}`)
	assert.Equal(t, models.JobFailed, env.Status)
	assert.Nil(t, env.Result)
	assert.Contains(t, env.Error, string(stderrors.ErrCodeRegistryLookupFailed))
}

type assertableErr string

func (e assertableErr) Error() string { return string(e) }

func TestRun_MalformedInputNeverCreatesJob(t *testing.T) {
	ts := newTestServer(t, &scriptedRunner{result: json.RawMessage(`{}`)})

	rec := ts.do(t, http.MethodPost, "/api/v1/workflows/situation-scan/run", `{"wrong": true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(stderrors.ErrCodeInvalidStageInput), resp.Code)

	jobs, err := ts.store.List(context.Background(), models.StageSituationScan)
	require.NoError(t, err)
	assert.Empty(t, jobs, "validation failures must not create jobs")
}

func TestRun_UnknownStage(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/v1/workflows/mystery-stage/run", `{}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatus_UnknownRequestID(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/api/v1/workflows/deep-analysis/nope/status", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(stderrors.ErrCodeJobNotFound), resp.Code)
}

func TestStatus_RepeatedPollsAreIdentical(t *testing.T) {
	ts := newTestServer(t, &scriptedRunner{result: json.RawMessage(`{"change_points": []}`)})

	requestID, first := submitAndAwait(t, ts, "deep-analysis", `{"kpi_name": "quarterly_revenue"}`)

	for i := 0; i < 100; i++ {
		rec := ts.do(t, http.MethodGet, "/api/v1/workflows/deep-analysis/"+requestID+"/status", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var env statusEnvelope
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
		assert.Equal(t, first.Status, env.Status)
		assert.Equal(t, string(first.Result), string(env.Result))
	}
}

func TestStatus_BoundedWaitReturnsTerminal(t *testing.T) {
	block := make(chan struct{})
	ts := newTestServer(t, &scriptedRunner{result: json.RawMessage(`{}`), block: block})

	rec := ts.do(t, http.MethodPost, "/api/v1/workflows/situation-scan/run", `{"principal_id": "p-1"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var accepted map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(block)
	}()

	status := ts.do(t, http.MethodGet,
		"/api/v1/workflows/situation-scan/"+accepted["request_id"]+"/status?wait_ms=150", "")
	require.Equal(t, http.StatusOK, status.Code)

	var env statusEnvelope
	require.NoError(t, json.Unmarshal(status.Body.Bytes(), &env))
	assert.Equal(t, models.JobCompleted, env.Status)
}

func TestStatus_BoundedWaitTimesOutWithSnapshot(t *testing.T) {
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	ts := newTestServer(t, &scriptedRunner{result: json.RawMessage(`{}`), block: block})

	rec := ts.do(t, http.MethodPost, "/api/v1/workflows/situation-scan/run", `{"principal_id": "p-1"}`)
	var accepted map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))

	// wait_ms asks for far more than the server cap; the response still
	// arrives promptly with a non-terminal snapshot.
	start := time.Now()
	status := ts.do(t, http.MethodGet,
		"/api/v1/workflows/situation-scan/"+accepted["request_id"]+"/status?wait_ms=60000", "")
	require.Equal(t, http.StatusOK, status.Code)
	assert.Less(t, time.Since(start), 2*time.Second)

	var env statusEnvelope
	require.NoError(t, json.Unmarshal(status.Body.Bytes(), &env))
	assert.False(t, env.Status.Terminal())
}

func TestCancel_TerminalJobConflicts(t *testing.T) {
	ts := newTestServer(t, &scriptedRunner{result: json.RawMessage(`{}`)})

	requestID, _ := submitAndAwait(t, ts, "situation-scan", `{"principal_id": "p-1"}`)

	rec := ts.do(t, http.MethodPost, "/api/v1/workflows/situation-scan/"+requestID+"/cancel", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	// State is untouched.
	status := ts.do(t, http.MethodGet, "/api/v1/workflows/situation-scan/"+requestID+"/status", "")
	var env statusEnvelope
	require.NoError(t, json.Unmarshal(status.Body.Bytes(), &env))
	assert.Equal(t, models.JobCompleted, env.Status)
}

func TestListJobs(t *testing.T) {
	ts := newTestServer(t, &scriptedRunner{result: json.RawMessage(`{}`)})

	submitAndAwait(t, ts, "situation-scan", `{"principal_id": "p-1"}`)
	submitAndAwait(t, ts, "situation-scan", `{"principal_id": "p-2"}`)

	rec := ts.do(t, http.MethodGet, "/api/v1/workflows/situation-scan/jobs", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Jobs []statusEnvelope `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Jobs, 2)
}

func TestAnnotations_RoundTrip(t *testing.T) {
	ts := newTestServer(t, &scriptedRunner{result: json.RawMessage(`{}`)})

	requestID, _ := submitAndAwait(t, ts, "situation-scan", `{"principal_id": "p-1"}`)

	rec := ts.do(t, http.MethodPost, "/api/v1/workflows/situations/"+requestID+"/annotations",
		`{"author": "alice", "text": "Confirmed with the EMEA team."}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var annotation models.Annotation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &annotation))
	assert.NotEmpty(t, annotation.AnnotationID)
	assert.Equal(t, requestID, annotation.RequestID)

	list := ts.do(t, http.MethodGet, "/api/v1/workflows/situations/"+requestID+"/annotations", "")
	require.Equal(t, http.StatusOK, list.Code)
	assert.Contains(t, list.Body.String(), "alice")
}

func TestAnnotations_UnknownJob(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/v1/workflows/situations/ghost/annotations",
		`{"author": "alice", "text": "note"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSituationActions_AssignThroughAPI(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.sits.Register([]models.Situation{{SituationID: "sit-1", Severity: models.SeverityHigh}})

	rec := ts.do(t, http.MethodPost, "/api/v1/workflows/situations/sit-1/actions/assign",
		`{"target": "alice"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var sit models.Situation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sit))
	assert.Equal(t, "alice", sit.AssignedTo)
	assert.Equal(t, models.SituationAssigned, sit.Status)
}

func TestSituationActions_UnknownAction(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.sits.Register([]models.Situation{{SituationID: "sit-1"}})

	rec := ts.do(t, http.MethodPost, "/api/v1/workflows/situations/sit-1/actions/archive", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSituationActions_UnknownSituation(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/v1/workflows/situations/ghost/actions/escalate", `{}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndReady(t *testing.T) {
	ts := newTestServer(t, nil)

	health := ts.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, health.Code)

	ready := ts.do(t, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, ready.Code)
}

func TestReady_FailingCheck(t *testing.T) {
	store := jobstore.NewMemoryStore()
	exec := executor.New(store, logger.NewNoOpLogger())
	sits := situations.NewStore()
	actions := situations.NewActions(sits, nil, time.Hour, logger.NewNoOpLogger())

	server := NewServer(exec, store, sits, actions, nil, logger.NewNoOpLogger(),
		WithReadinessCheck("postgres", func(ctx context.Context) error {
			return assertableErr("connection refused")
		}))

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
