package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cuongbtq/docking-be/internal/api/handler"
	"github.com/cuongbtq/docking-be/internal/api/router"
	"github.com/cuongbtq/docking-be/internal/docking/domain"
	"github.com/cuongbtq/docking-be/internal/engine"
	"github.com/cuongbtq/docking-be/internal/metadata"
	"github.com/cuongbtq/docking-be/internal/scheduler"
	"github.com/cuongbtq/docking-be/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedExecutor finishes immediately: SMILES containing "FAIL" are rejected
type scriptedExecutor struct{}

func (scriptedExecutor) Execute(_ context.Context, job *domain.Job) ([]domain.Pose, error) {
	if strings.Contains(job.SMILES, "FAIL") {
		return nil, engine.InputError("invalid SMILES")
	}
	return []domain.Pose{
		{PoseNumber: 1, BindingAffinity: -8.5},
		{PoseNumber: 2, BindingAffinity: -9.2},
		{PoseNumber: 3, BindingAffinity: -6.0, RMSDLowerBound: 1.1, RMSDUpperBound: 2.4},
	}, nil
}

// pingFailStore is a memory store whose backend is unreachable
type pingFailStore struct {
	*storage.MemoryStore
}

func (pingFailStore) Ping(context.Context) error {
	return errors.New("connection refused")
}

type staticResolver map[string]string

func (r staticResolver) CandidateName(_ context.Context, id string) (string, error) {
	return r[id], nil
}

func (r staticResolver) TargetName(_ context.Context, id string) (string, error) {
	return r[id], nil
}

type testServer struct {
	engine *gin.Engine
	sched  *scheduler.Scheduler
}

func newTestServer(t *testing.T, store storage.Store) *testServer {
	t.Helper()
	return newTestServerWithBroker(t, store, nil)
}

func newTestServerWithBroker(t *testing.T, store storage.Store, broker handler.BrokerStatus) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if store == nil {
		store = storage.NewMemoryStore()
	}
	sched, err := scheduler.New(scheduler.Config{
		Logger:             logger,
		Store:              store,
		Executor:           scriptedExecutor{},
		Concurrency:        2,
		AverageJobDuration: 5 * time.Minute,
	})
	require.NoError(t, err)

	resolver := staticResolver{"CAND-1": "Lead compound A", "P00533": "EGFR"}
	r := router.SetupRouter(&handler.Dependencies{
		Logger:      logger,
		Service:     sched,
		Enricher:    metadata.NewEnricher(resolver, logger),
		Broker:      broker,
		ServiceName: "docking-service",
	})
	return &testServer{engine: r, sched: sched}
}

// startDispatch runs the dispatch loop until the test ends
func (s *testServer) startDispatch(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.sched.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = s.sched.Wait(context.Background())
	})
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func submitBody(candidate, smiles string) map[string]any {
	return map[string]any{
		"candidate_id":      candidate,
		"target_uniprot_id": "P00533",
		"disease_name":      "non-small cell lung cancer",
		"smiles":            smiles,
		"grid_params": map[string]any{
			"center_x": 10.5, "center_y": -3.2, "center_z": 7.0,
			"size_x": 20, "size_y": 20, "size_z": 20,
		},
	}
}

func (s *testServer) submit(t *testing.T, candidate, smiles string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/docking/submit", submitBody(candidate, smiles))
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	return decode(t, w)["job_id"].(string)
}

func (s *testServer) waitStatus(t *testing.T, id, status string) map[string]any {
	t.Helper()
	var body map[string]any
	require.Eventually(t, func() bool {
		w := s.do(t, http.MethodGet, "/api/docking/status/"+id, nil)
		if w.Code != http.StatusOK {
			return false
		}
		body = nil
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			return false
		}
		return body["status"] == status
	}, 2*time.Second, 5*time.Millisecond)
	return body
}

func TestSubmit(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/docking/submit", submitBody("CAND-1", "CCO"))
	require.Equal(t, http.StatusAccepted, w.Code)

	body := decode(t, w)
	assert.NotEmpty(t, body["job_id"])
	assert.Equal(t, "queued", body["status"])
	assert.Equal(t, float64(0), body["queue_position"])
	assert.Equal(t, float64(300), body["estimated_time_seconds"])
	assert.NotEmpty(t, w.Header().Get(router.RequestIDHeader))
}

func TestSubmit_Validation(t *testing.T) {
	tests := []struct {
		name     string
		body     any
		contains []string
	}{
		{
			name:     "missing required fields",
			body:     map[string]any{"disease_name": "x"},
			contains: []string{"candidate_id is required", "target_uniprot_id is required", "smiles is required"},
		},
		{
			name:     "blank smiles",
			body:     submitBody("CAND-1", "   "),
			contains: []string{"smiles is required"},
		},
		{
			name: "bad grid size",
			body: map[string]any{
				"candidate_id": "CAND-1", "target_uniprot_id": "P00533", "smiles": "CCO",
				"grid_params": map[string]any{"size_x": 0, "size_y": 20, "size_z": 20},
			},
			contains: []string{"grid_params sizes must be greater than 0"},
		},
		{
			name: "negative docking params",
			body: map[string]any{
				"candidate_id": "CAND-1", "target_uniprot_id": "P00533", "smiles": "CCO",
				"docking_params": map[string]any{"exhaustiveness": -1, "num_modes": -2},
			},
			contains: []string{"exhaustiveness must not be negative", "num_modes must not be negative"},
		},
		{
			name:     "malformed json",
			body:     `{"candidate_id": `,
			contains: []string{"malformed request"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, nil)
			w := s.do(t, http.MethodPost, "/api/docking/submit", tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code)

			body := decode(t, w)
			assert.Equal(t, "VALIDATION_ERROR", body["error_code"])
			for _, want := range tt.contains {
				assert.Contains(t, body["message"], want)
			}
			assert.Equal(t, 0, s.sched.Stats().Queued)
		})
	}
}

func TestStatus(t *testing.T) {
	s := newTestServer(t, nil)
	first := s.submit(t, "CAND-1", "CCO")
	s.submit(t, "CAND-2", "CCO")
	third := s.submit(t, "CAND-3", "CCO")

	w := s.do(t, http.MethodGet, "/api/docking/status/"+third, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "queued", body["status"])
	assert.Equal(t, float64(2), body["queue_position"])
	assert.Equal(t, float64(0), body["progress_percent"])
	assert.Equal(t, float64(600), body["estimated_time_remaining_seconds"])
	assert.Equal(t, "Waiting in queue", body["current_step"])
	assert.NotContains(t, body, "started_at")

	w = s.do(t, http.MethodGet, "/api/docking/status/"+first, nil)
	assert.Equal(t, float64(0), decode(t, w)["queue_position"])
}

func TestStatus_UnknownJob(t *testing.T) {
	s := newTestServer(t, nil)

	for _, id := range []string{"3f2b6c1e-8d4a-4c5e-9b7a-2e1f0d9c8b7a", "not-a-uuid"} {
		w := s.do(t, http.MethodGet, "/api/docking/status/"+id, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "NOT_FOUND", decode(t, w)["error_code"])
	}
}

func TestCompletedJob_ResultsAndScore(t *testing.T) {
	s := newTestServer(t, nil)
	s.startDispatch(t)
	id := s.submit(t, "CAND-1", "CCO")

	status := s.waitStatus(t, id, "completed")
	assert.Equal(t, float64(100), status["progress_percent"])
	assert.NotEmpty(t, status["started_at"])
	assert.NotEmpty(t, status["completed_at"])

	w := s.do(t, http.MethodGet, "/api/docking/jobs/"+id+"/results", nil)
	require.Equal(t, http.StatusOK, w.Code)
	results := decode(t, w)
	assert.Equal(t, -9.2, results["best_affinity"])
	assert.Equal(t, float64(3), results["num_poses"])
	assert.Len(t, results["poses"], 3)

	analysis := results["analysis"].(map[string]any)
	assert.Equal(t, float64(2), analysis["best_pose_number"])
	assert.Equal(t, "Excellent", analysis["quality"])
	stats := analysis["statistics"].(map[string]any)
	assert.InDelta(t, -7.9, stats["mean"], 1e-9)
	assert.InDelta(t, 3.2, stats["range"], 1e-9)

	params := results["docking_params"].(map[string]any)
	assert.Equal(t, float64(8), params["exhaustiveness"])

	w = s.do(t, http.MethodGet, "/api/docking/jobs/"+id+"/score?original_score=7.0&predicted_affinity=-8.0", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	score := decode(t, w)
	assert.Equal(t, 7.2, score["updated_score"])
	assert.Equal(t, 0.3, score["docking_weight"])
	improvement := score["improvement"].(map[string]any)
	assert.Equal(t, "better", improvement["direction"])
	assert.InDelta(t, 1.2, improvement["magnitude"], 1e-9)

	w = s.do(t, http.MethodGet, "/api/docking/jobs/"+id+"/score?original_score=6.4&docking_weight=0", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 6.4, decode(t, w)["updated_score"])
	assert.NotContains(t, decode(t, w), "improvement")
}

func TestScore_Errors(t *testing.T) {
	s := newTestServer(t, nil)
	id := s.submit(t, "CAND-1", "CCO")

	w := s.do(t, http.MethodGet, "/api/docking/jobs/"+id+"/score?original_score=7", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "INVALID_STATE", decode(t, w)["error_code"])

	w = s.do(t, http.MethodGet, "/api/docking/jobs/"+id+"/score", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["message"], "original_score is required")

	w = s.do(t, http.MethodGet, "/api/docking/jobs/"+id+"/score?original_score=7&docking_weight=1.5", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFailedJob_Rerun(t *testing.T) {
	s := newTestServer(t, nil)
	s.startDispatch(t)
	id := s.submit(t, "CAND-1", "FAIL")

	status := s.waitStatus(t, id, "failed")
	assert.Equal(t, "ENGINE_INPUT_ERROR", status["error_code"])
	assert.Contains(t, status["error_message"], "invalid SMILES")

	w := s.do(t, http.MethodGet, "/api/docking/jobs/"+id+"/results", nil)
	require.Equal(t, http.StatusOK, w.Code)
	results := decode(t, w)
	assert.Equal(t, []any{}, results["poses"])
	assert.NotContains(t, results, "analysis")

	w = s.do(t, http.MethodPost, "/api/docking/jobs/"+id+"/rerun", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	rerun := decode(t, w)
	assert.Equal(t, id, rerun["original_job_id"])
	assert.NotEqual(t, id, rerun["job_id"])
	assert.Equal(t, "queued", rerun["status"])

	newStatus := s.waitStatus(t, rerun["job_id"].(string), "failed")
	assert.Equal(t, id, newStatus["rerun_of"])

	// original untouched
	w = s.do(t, http.MethodGet, "/api/docking/status/"+id, nil)
	assert.Equal(t, "failed", decode(t, w)["status"])
}

func TestCancel(t *testing.T) {
	s := newTestServer(t, nil)
	id := s.submit(t, "CAND-1", "CCO")

	w := s.do(t, http.MethodDelete, "/api/docking/jobs/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "cancelled", body["status"])

	w = s.do(t, http.MethodDelete, "/api/docking/jobs/"+id, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "INVALID_STATE", decode(t, w)["error_code"])

	w = s.do(t, http.MethodPost, "/api/docking/jobs/"+id+"/rerun", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodGet, "/api/docking/status/"+id, nil)
	status := decode(t, w)
	assert.Equal(t, "cancelled", status["status"])
	assert.NotEmpty(t, status["completed_at"])
}

func TestRerun_QueuedJobConflicts(t *testing.T) {
	s := newTestServer(t, nil)
	id := s.submit(t, "CAND-1", "CCO")

	w := s.do(t, http.MethodPost, "/api/docking/jobs/"+id+"/rerun", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestListJobs_Pagination(t *testing.T) {
	s := newTestServer(t, nil)
	for i := 0; i < 25; i++ {
		s.submit(t, fmt.Sprintf("CAND-%d", i), "CCO")
	}

	w := s.do(t, http.MethodGet, "/api/docking/jobs?page=3&page_size=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(25), body["total"])
	assert.Equal(t, float64(3), body["total_pages"])
	assert.Equal(t, float64(3), body["page"])
	assert.Len(t, body["jobs"], 5)

	w = s.do(t, http.MethodGet, "/api/docking/jobs?page=4&page_size=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"jobs":[]`)

	w = s.do(t, http.MethodGet, "/api/docking/jobs", nil)
	body = decode(t, w)
	assert.Equal(t, float64(20), body["page_size"])
	assert.Equal(t, float64(2), body["total_pages"])
}

func TestListJobs_FiltersAndNames(t *testing.T) {
	s := newTestServer(t, nil)
	first := s.submit(t, "CAND-1", "CCO")
	s.submit(t, "CAND-2", "CCO")

	_, err := s.sched.Cancel(context.Background(), first)
	require.NoError(t, err)

	w := s.do(t, http.MethodGet, "/api/docking/jobs?status=cancelled", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	jobs := body["jobs"].([]any)
	require.Len(t, jobs, 1)
	row := jobs[0].(map[string]any)
	assert.Equal(t, first, row["job_id"])
	assert.Equal(t, "Lead compound A", row["candidate_name"])
	assert.Equal(t, "EGFR", row["target_name"])

	w = s.do(t, http.MethodGet, "/api/docking/jobs?candidate_id=CAND-2", nil)
	row = decode(t, w)["jobs"].([]any)[0].(map[string]any)
	assert.NotContains(t, row, "candidate_name", "unknown names are omitted")

	today := time.Now().UTC().Format("2006-01-02")
	w = s.do(t, http.MethodGet, "/api/docking/jobs?start_date="+today+"&end_date="+today, nil)
	assert.Equal(t, float64(2), decode(t, w)["total"])

	w = s.do(t, http.MethodGet, "/api/docking/jobs?end_date=2000-01-01", nil)
	assert.Equal(t, float64(0), decode(t, w)["total"])
}

func TestListJobs_BadQuery(t *testing.T) {
	s := newTestServer(t, nil)

	for _, query := range []string{
		"status=done",
		"start_date=yesterday",
		"start_date=2026-03-02&end_date=2026-03-01",
		"page=-1",
	} {
		w := s.do(t, http.MethodGet, "/api/docking/jobs?"+query, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, query)
		assert.Equal(t, "VALIDATION_ERROR", decode(t, w)["error_code"], query)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	w := s.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "docking-service", body["service"])

	down := newTestServer(t, pingFailStore{storage.NewMemoryStore()})
	w = down.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "unreachable", decode(t, w)["store"])
}

type brokerState bool

func (b brokerState) IsConnected() bool { return bool(b) }

func TestHealth_Broker(t *testing.T) {
	tests := []struct {
		name       string
		broker     handler.BrokerStatus
		wantStatus string
		wantBroker any
	}{
		{name: "events disabled", broker: nil, wantStatus: "healthy", wantBroker: nil},
		{name: "connected", broker: brokerState(true), wantStatus: "healthy", wantBroker: "connected"},
		{name: "disconnected", broker: brokerState(false), wantStatus: "degraded", wantBroker: "disconnected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServerWithBroker(t, nil, tt.broker)
			w := s.do(t, http.MethodGet, "/health", nil)
			require.Equal(t, http.StatusOK, w.Code)

			body := decode(t, w)
			assert.Equal(t, tt.wantStatus, body["status"])
			assert.Equal(t, tt.wantBroker, body["broker"])
		})
	}
}

func TestMiddleware(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(router.RequestIDHeader, "req-123")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Header().Get(router.RequestIDHeader))

	req = httptest.NewRequest(http.MethodOptions, "/api/docking/submit", nil)
	w = httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
