package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flowpilot-io/durable"
	"github.com/flowpilot-io/durable/pkg/metrics"
)

// echo completes immediately, returning its input unchanged.
func echo(wc *durable.WorkflowContext, input []byte) ([]byte, error) {
	return input, nil
}

func newTestServer(t *testing.T) (*Server, *durable.LocalRunner) {
	t.Helper()

	reg := prometheus.NewRegistry()
	runner := durable.NewLocalRunnerWithObserver(metrics.NewObserver(reg))
	if err := runner.Engine.RegisterWorkflow("echo", echo); err != nil {
		t.Fatalf("RegisterWorkflow: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := runner.StartWorkers(ctx, 1); err != nil {
		t.Fatalf("StartWorkers: %v", err)
	}
	t.Cleanup(runner.Stop)

	return New(runner.Engine, nil, reg), runner
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func startEchoRun(t *testing.T, srv *Server, runner *durable.LocalRunner) string {
	t.Helper()
	rec := do(t, srv, http.MethodPost, "/api/runs", `{"workflow":"echo","input":{"n":1}}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("POST /api/runs = %d: %s", rec.Code, rec.Body)
	}
	var resp struct {
		RunID string `json:"run_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.RunID == "" {
		t.Fatal("empty run_id")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := runner.WaitForRun(ctx, resp.RunID); err != nil {
		t.Fatalf("WaitForRun: %v", err)
	}
	return resp.RunID
}

func TestStartAndGetRun(t *testing.T) {
	srv, runner := newTestServer(t)
	runID := startEchoRun(t, srv, runner)

	rec := do(t, srv, http.MethodGet, "/api/runs/"+runID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET run = %d: %s", rec.Code, rec.Body)
	}
	var view struct {
		ID       string          `json:"id"`
		Workflow string          `json:"workflow"`
		Status   string          `json:"status"`
		Output   json.RawMessage `json:"output"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	if view.ID != runID || view.Workflow != "echo" {
		t.Errorf("view = %+v", view)
	}
	if view.Status != string(durable.StatusCompleted) {
		t.Errorf("status = %s, want COMPLETED", view.Status)
	}
	if string(view.Output) != `{"n":1}` {
		t.Errorf("output = %s, want {\"n\":1}", view.Output)
	}
}

func TestStartRunUnknownWorkflow(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv, http.MethodPost, "/api/runs", `{"workflow":"nope"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body)
	}
}

func TestStartRunMissingWorkflow(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv, http.MethodPost, "/api/runs", `{"input":{}}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetRunNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv, http.MethodGet, "/api/runs/does-not-exist", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestListRunsFilters(t *testing.T) {
	srv, runner := newTestServer(t)
	startEchoRun(t, srv, runner)
	startEchoRun(t, srv, runner)

	rec := do(t, srv, http.MethodGet, "/api/runs?workflow=echo&status=COMPLETED", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET runs = %d: %s", rec.Code, rec.Body)
	}
	var views []json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &views); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("got %d runs, want 2", len(views))
	}

	rec = do(t, srv, http.MethodGet, "/api/runs?status=FAILED", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &views); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(views) != 0 {
		t.Fatalf("got %d failed runs, want 0", len(views))
	}
}

func TestHistoryEndpoint(t *testing.T) {
	srv, runner := newTestServer(t)
	runID := startEchoRun(t, srv, runner)

	rec := do(t, srv, http.MethodGet, "/api/runs/"+runID+"/history", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET history = %d: %s", rec.Code, rec.Body)
	}
	var events []struct {
		Seq  int    `json:"seq"`
		Type string `json:"type"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &events); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2: %s", len(events), rec.Body)
	}
	if events[0].Type != string(durable.EventWorkflowStarted) || events[0].Seq != 0 {
		t.Errorf("events[0] = %+v", events[0])
	}
	if events[1].Type != string(durable.EventWorkflowCompleted) || events[1].Seq != 1 {
		t.Errorf("events[1] = %+v", events[1])
	}
}

func TestTerminateCompletedRunConflicts(t *testing.T) {
	srv, runner := newTestServer(t)
	runID := startEchoRun(t, srv, runner)

	rec := do(t, srv, http.MethodPost, "/api/runs/"+runID+"/terminate", `{"reason":"operator"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409: %s", rec.Code, rec.Body)
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz = %d %q", rec.Code, rec.Body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, runner := newTestServer(t)
	startEchoRun(t, srv, runner)

	rec := do(t, srv, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "durable_runs_started_total") {
		t.Error("metrics output missing durable_runs_started_total")
	}
}
