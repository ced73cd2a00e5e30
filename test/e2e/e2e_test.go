// test/e2e/e2e_test.go
//
// Full-pipeline test against real backing services. Requires a reachable
// PostgreSQL (and optionally Redis) instance; the registry and reasoning
// collaborators are served by local stubs. Gated behind E2E_TESTS=1.
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insight-workflows/internal/api"
	"insight-workflows/internal/common/config"
	"insight-workflows/internal/common/database"
	"insight-workflows/internal/common/logger"
	"insight-workflows/internal/common/reasoning"
	"insight-workflows/internal/common/registry"
	"insight-workflows/internal/dataquery"
	"insight-workflows/internal/engine/debate"
	"insight-workflows/internal/engine/kt"
	"insight-workflows/internal/executor"
	"insight-workflows/internal/jobstore"
	"insight-workflows/internal/models"
	"insight-workflows/internal/situations"
	"insight-workflows/internal/stages/deepanalysis"
	"insight-workflows/internal/stages/situationscan"
	"insight-workflows/internal/stages/solutionfinding"
	"insight-workflows/pkg/personas"
)

func TestFullE2E(t *testing.T) {
	if os.Getenv("E2E_TESTS") != "1" {
		t.Skip("set E2E_TESTS=1 to run against real services")
	}

	t.Log("🚀 Starting full pipeline test with real services...")

	log := logger.NewZapAdapter(logger.New("info", "console"))

	// --- PostgreSQL ---
	pgCfg := config.PostgresConfig{
		Host:     envOr("E2E_PG_HOST", "localhost"),
		Port:     5432,
		Database: envOr("E2E_PG_DATABASE", "insight_metrics"),
		User:     envOr("E2E_PG_USER", "postgres"),
		Password: envOr("E2E_PG_PASSWORD", "postgres"),
		SSLMode:  "disable",
	}
	pg, err := database.NewPostgres(pgCfg)
	require.NoError(t, err, "❌ PostgreSQL connection failed")
	defer pg.Close()
	require.NoError(t, pg.Ping(context.Background()), "❌ PostgreSQL ping failed")
	t.Log("✅ PostgreSQL connected")

	window := seedWarehouse(t, pg)

	// --- Job store: Redis when reachable, in-memory otherwise ---
	var store jobstore.Store = jobstore.NewMemoryStore()
	rdb, err := database.NewRedis(config.RedisConfig{Address: envOr("E2E_REDIS_ADDRESS", "localhost:6379")})
	if err == nil && rdb.Ping(context.Background()) == nil {
		store = jobstore.NewRedisStore(rdb.GetClient(), time.Hour)
		t.Log("✅ Redis connected, using redis job store")
	} else {
		t.Log("⚠️ Redis unreachable, using in-memory job store")
	}

	// --- Collaborator stubs ---
	registryStub := newRegistryStub(t)
	defer registryStub.Close()
	reasoningStub := newReasoningStub(t)
	defer reasoningStub.Close()

	reg := registry.NewHTTPClient(registryStub.URL, "", 10*time.Second)
	provider := reasoning.NewHTTPProvider(reasoning.HTTPConfig{BaseURL: reasoningStub.URL}, log)

	// --- Assemble the stack ---
	querier := dataquery.NewPostgresQuerier(pg.DB, "event_time", 15*time.Second)
	ktEngine := kt.New(querier, log)
	debateEngine := debate.New(provider, personas.DefaultRoster(), log)

	situationStore := situations.NewStore()
	actions := situations.NewActions(situationStore, situations.NoopNotifier{}, 4*time.Hour, log)

	exec := executor.New(store, log)
	exec.Register(models.StageSituationScan,
		situationscan.NewHandler(reg, querier, situationStore, situationscan.DefaultThresholds, log), 30*time.Second)
	exec.Register(models.StageDeepAnalysis,
		deepanalysis.NewHandler(reg, querier, ktEngine, log), 60*time.Second)
	exec.Register(models.StageSolutionFinding,
		solutionfinding.NewHandler(reg, debateEngine, log), 60*time.Second)

	validators := map[models.StageType]api.Validator{
		models.StageSituationScan:   situationscan.Validate,
		models.StageDeepAnalysis:    deepanalysis.Validate,
		models.StageSolutionFinding: solutionfinding.Validate,
	}

	server := api.NewServer(exec, store, situationStore, actions, validators, log)
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	// --- 1. Situation scan finds the revenue decline ---
	scanOutput, scanRequestID := runSituationScan(t, ts.URL, window)
	require.Len(t, scanOutput.Situations, 1, "exactly one KPI should trip a situation")
	situation := scanOutput.Situations[0]
	assert.Equal(t, "revenue", situation.KPIName)
	assert.Equal(t, models.SeverityHigh, situation.Severity)
	t.Logf("✅ Situation scan: %s (%s)", situation.Description, situation.Severity)

	// --- 2. Deep analysis attributes it to EMEA ---
	analysisRaw := runDeepAnalysis(t, ts.URL, window)
	var analysis deepanalysis.Output
	require.NoError(t, json.Unmarshal(analysisRaw, &analysis))
	assert.Equal(t, models.DirectionDrop, analysis.Direction)
	require.NotEmpty(t, analysis.IsIsNot.WhereIs)
	top := analysis.IsIsNot.WhereIs[0]
	assert.Equal(t, "region", top.Dimension)
	assert.Equal(t, "EMEA", top.Key)
	assert.InDelta(t, -20000, top.Delta, 1)
	t.Logf("✅ Deep analysis: top change point %s/%s delta %.0f", top.Dimension, top.Key, top.Delta)

	// --- 3. Solution finding debates and ranks options ---
	solution := runSolutionFinding(t, ts.URL, analysisRaw)
	require.NotEmpty(t, solution.OptionsRanked)
	require.NotNil(t, solution.Recommendation)
	assert.NotEmpty(t, solution.Transcript.Entries)
	t.Logf("✅ Solution finding: %d options, recommending %q",
		len(solution.OptionsRanked), solution.Recommendation.Title)

	// --- 4. Situation actions and annotations ---
	applySituationAction(t, ts.URL, situation.SituationID)
	annotateJob(t, ts.URL, scanRequestID)

	t.Log("✅ ALL STEPS PASSED — full pipeline verified")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// seedWarehouse creates the metrics fact table and loads two weekly periods:
// revenue drops 20% period-over-period, all of it in EMEA.
func seedWarehouse(t *testing.T, pg *database.PostgresClient) models.TimeWindow {
	t.Helper()
	ctx := context.Background()
	db := pg.DB

	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS sales_facts (
		id SERIAL PRIMARY KEY,
		region VARCHAR(50) NOT NULL,
		channel VARCHAR(50) NOT NULL,
		amount NUMERIC NOT NULL,
		event_time TIMESTAMPTZ NOT NULL
	)`)
	require.NoError(t, err, "❌ failed to create sales_facts")

	_, err = db.ExecContext(ctx, `DELETE FROM sales_facts`)
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Hour)
	window := models.TimeWindow{
		Start:       now.Add(-7 * 24 * time.Hour),
		End:         now,
		Granularity: models.GranularityWeek,
	}
	previousTS := now.Add(-10 * 24 * time.Hour)
	currentTS := now.Add(-3 * 24 * time.Hour)

	rows := []struct {
		region, channel string
		amount          float64
		ts              time.Time
	}{
		{"EMEA", "web", 30000, previousTS},
		{"EMEA", "retail", 20000, previousTS},
		{"AMER", "web", 30000, previousTS},
		{"APAC", "retail", 20000, previousTS},

		{"EMEA", "web", 15000, currentTS},
		{"EMEA", "retail", 15000, currentTS},
		{"AMER", "web", 30000, currentTS},
		{"APAC", "retail", 20000, currentTS},
	}
	for _, r := range rows {
		_, err := db.ExecContext(ctx,
			`INSERT INTO sales_facts (region, channel, amount, event_time) VALUES ($1, $2, $3, $4)`,
			r.region, r.channel, r.amount, r.ts)
		require.NoError(t, err, "❌ failed to seed sales_facts")
	}

	t.Log("✅ Warehouse seeded: 100k previous period, 80k current, EMEA down 20k")
	return window
}

// newRegistryStub serves the principal, KPI and data product records the
// stages look up.
func newRegistryStub(t *testing.T) *httptest.Server {
	t.Helper()

	principal := models.Principal{
		ID:            "p-1",
		Name:          "VP Sales",
		Role:          "vp_sales",
		MonitoredKPIs: []string{"revenue"},
		DecisionStyle: models.StyleCollaborative,
	}
	kpi := models.KPI{
		Name:        "revenue",
		DataProduct: "dp-sales",
		Column:      "amount",
		Unit:        "usd",
		Direction:   models.UpIsGood,
	}
	product := models.DataProduct{
		ID:         "dp-sales",
		Name:       "Sales Facts",
		Table:      "sales_facts",
		Dimensions: []string{"region", "channel"},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/registry/principals/p-1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(principal)
	})
	mux.HandleFunc("/api/registry/principals/p-1/kpis", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"data": []models.KPI{kpi}})
	})
	mux.HandleFunc("/api/registry/kpis/revenue", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(kpi)
	})
	mux.HandleFunc("/api/registry/data-products/dp-sales", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(product)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	return httptest.NewServer(mux)
}

// newReasoningStub answers each debate sub-stage with fixed, parseable JSON.
func newReasoningStub(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/ai/generate", func(w http.ResponseWriter, r *http.Request) {
		var req reasoning.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var text string
		switch {
		case strings.Contains(req.Prompt, "Propose your hypotheses"):
			text = `{"hypotheses": ["The EMEA pricing change suppressed conversion"],
				"sketches": [{"title": "Roll back EMEA pricing", "description": "Revert to the prior price book", "cost": 0.2, "impact": 0.8, "risk": 0.3}]}`
		case strings.Contains(req.Prompt, "Critique the positions"):
			text = `{"reviews": []}`
		default:
			text = `{"options": [
				{"id": "opt-rollback", "title": "Roll back EMEA pricing", "description": "Revert to the prior price book", "cost": 0.2, "impact": 0.8, "risk": 0.3},
				{"id": "opt-discount", "title": "Targeted EMEA discounts", "description": "Time-boxed discount campaign", "cost": 0.4, "impact": 0.6, "risk": 0.4}
			], "blind_spots": ["No churn data reviewed"], "unresolved_tensions": []}`
		}

		json.NewEncoder(w).Encode(reasoning.Response{Text: text, Confidence: 0.9})
	})
	return httptest.NewServer(mux)
}

func runSituationScan(t *testing.T, base string, window models.TimeWindow) (*situationscan.Output, string) {
	t.Helper()
	input := map[string]interface{}{"principal_id": "p-1", "window": window}
	requestID := submitJob(t, base, "situation-scan", input)
	result := awaitCompleted(t, base, "situation-scan", requestID)

	var output situationscan.Output
	require.NoError(t, json.Unmarshal(result, &output))
	return &output, requestID
}

func runDeepAnalysis(t *testing.T, base string, window models.TimeWindow) json.RawMessage {
	t.Helper()
	input := map[string]interface{}{"kpi_name": "revenue", "window": window}
	requestID := submitJob(t, base, "deep-analysis", input)
	return awaitCompleted(t, base, "deep-analysis", requestID)
}

func runSolutionFinding(t *testing.T, base string, analysis json.RawMessage) *solutionfinding.Output {
	t.Helper()
	input := map[string]interface{}{
		"principal_id":      "p-1",
		"problem_statement": "Weekly revenue fell 20% period-over-period, concentrated in EMEA",
		"analysis":          analysis,
	}
	requestID := submitJob(t, base, "solution-finding", input)
	result := awaitCompleted(t, base, "solution-finding", requestID)

	var output solutionfinding.Output
	require.NoError(t, json.Unmarshal(result, &output))
	return &output
}

func applySituationAction(t *testing.T, base, situationID string) {
	t.Helper()
	body := postJSON(t, fmt.Sprintf("%s/api/v1/workflows/situations/%s/actions/assign", base, situationID),
		map[string]string{"target": "emea-revenue-team"}, http.StatusOK)

	var updated models.Situation
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, "emea-revenue-team", updated.AssignedTo)
	assert.Equal(t, models.SituationAssigned, updated.Status)
	t.Log("✅ Situation assigned")
}

func annotateJob(t *testing.T, base, requestID string) {
	t.Helper()
	postJSON(t, fmt.Sprintf("%s/api/v1/workflows/situations/%s/annotations", base, requestID),
		map[string]string{"author": "analyst", "text": "Confirmed against the finance dashboard"},
		http.StatusCreated)

	resp, err := http.Get(fmt.Sprintf("%s/api/v1/workflows/situations/%s/annotations", base, requestID))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var listing struct {
		Annotations []models.Annotation `json:"annotations"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listing))
	require.Len(t, listing.Annotations, 1)
	assert.Equal(t, "analyst", listing.Annotations[0].Author)
	t.Log("✅ Annotation round-trip")
}

func submitJob(t *testing.T, base, stage string, input interface{}) string {
	t.Helper()
	body := postJSON(t, fmt.Sprintf("%s/api/v1/workflows/%s/run", base, stage), input, http.StatusAccepted)

	var accepted struct {
		RequestID string `json:"request_id"`
	}
	require.NoError(t, json.Unmarshal(body, &accepted))
	require.NotEmpty(t, accepted.RequestID)
	return accepted.RequestID
}

func awaitCompleted(t *testing.T, base, stage, requestID string) json.RawMessage {
	t.Helper()
	url := fmt.Sprintf("%s/api/v1/workflows/%s/%s/status?wait_ms=25000", base, stage, requestID)

	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode, "status read failed: %s", body)

		var status struct {
			Status models.JobState `json:"status"`
			Result json.RawMessage `json:"result"`
			Error  string          `json:"error"`
		}
		require.NoError(t, json.Unmarshal(body, &status))

		switch status.Status {
		case models.JobCompleted:
			return status.Result
		case models.JobFailed:
			t.Fatalf("❌ %s job failed: %s", stage, status.Error)
		}
		time.Sleep(time.Second)
	}
	t.Fatalf("❌ %s job %s did not finish in time", stage, requestID)
	return nil
}

func postJSON(t *testing.T, url string, payload interface{}, wantStatus int) []byte {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, wantStatus, resp.StatusCode, "unexpected response: %s", body)
	return body
}
