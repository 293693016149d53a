// Package server exposes the workflow engine over HTTP.
//
// # Endpoints
//
//   - POST /api/runs - start a workflow run
//   - GET /api/runs - list runs, optionally filtered by workflow and status
//   - GET /api/runs/{id} - run status and result
//   - GET /api/runs/{id}/history - the run's event history
//   - POST /api/runs/{id}/terminate - terminate a running workflow
//   - GET /healthz - health check
//   - GET /metrics - Prometheus metrics
//
// The server never touches workflow semantics: it translates HTTP requests
// into engine calls and engine results into JSON.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flowpilot-io/durable"
)

// Server routes HTTP traffic to a workflow engine.
type Server struct {
	engine durable.Engine
	logger *slog.Logger
	mux    *http.ServeMux
}

// New creates a Server. The Prometheus gatherer backs /metrics; pass nil to
// serve the default registry.
func New(eng durable.Engine, logger *slog.Logger, gatherer prometheus.Gatherer) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		engine: eng,
		logger: logger,
		mux:    http.NewServeMux(),
	}
	s.mux.HandleFunc("POST /api/runs", s.handleStartRun)
	s.mux.HandleFunc("GET /api/runs", s.handleListRuns)
	s.mux.HandleFunc("GET /api/runs/{id}", s.handleGetRun)
	s.mux.HandleFunc("GET /api/runs/{id}/history", s.handleHistory)
	s.mux.HandleFunc("POST /api/runs/{id}/terminate", s.handleTerminate)
	s.mux.HandleFunc("GET /healthz", handleHealth)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// startRunRequest is the body of POST /api/runs.
type startRunRequest struct {
	Workflow string          `json:"workflow"`
	Input    json.RawMessage `json:"input"`
}

// startRunResponse is the body of a successful POST /api/runs.
type startRunResponse struct {
	RunID string `json:"run_id"`
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Workflow == "" {
		writeError(w, http.StatusBadRequest, errors.New("workflow is required"))
		return
	}
	input := []byte(req.Input)
	if len(input) == 0 {
		input = []byte("{}")
	}

	runID, err := s.engine.StartWorkflow(r.Context(), req.Workflow, input)
	if err != nil {
		if errors.Is(err, durable.ErrUnknownWorkflow) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		s.logger.Error("start workflow failed", "workflow", req.Workflow, "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.logger.Info("run started", "workflow", req.Workflow, "run_id", runID)
	writeJSON(w, http.StatusAccepted, startRunResponse{RunID: runID})
}

// runView is the JSON rendering of a run. Output stays raw JSON so clients
// see the workflow's own result shape.
type runView struct {
	ID           string          `json:"id"`
	WorkflowType string          `json:"workflow"`
	Status       string          `json:"status"`
	Output       json.RawMessage `json:"output,omitempty"`
	Failure      string          `json:"failure,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func toRunView(run *durable.Run) runView {
	return runView{
		ID:           run.ID,
		WorkflowType: run.WorkflowType,
		Status:       string(run.Status),
		Output:       json.RawMessage(run.Output),
		Failure:      run.Failure,
		CreatedAt:    run.CreatedAt,
		UpdatedAt:    run.UpdatedAt,
	}
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	filter := durable.RunFilter{
		WorkflowType: r.URL.Query().Get("workflow"),
		Status:       durable.Status(r.URL.Query().Get("status")),
	}
	runs, err := s.engine.ListRuns(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	views := make([]runView, 0, len(runs))
	for _, run := range runs {
		views = append(views, toRunView(run))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.engine.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, durable.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, toRunView(run))
}

// eventView is the JSON rendering of a history event.
type eventView struct {
	Seq      int       `json:"seq"`
	Type     string    `json:"type"`
	At       time.Time `json:"at"`
	Activity string    `json:"activity,omitempty"`
	Attempt  int       `json:"attempt,omitempty"`
	Error    string    `json:"error,omitempty"`
	Final    bool      `json:"final,omitempty"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	events, err := s.engine.History(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, durable.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	views := make([]eventView, 0, len(events))
	for _, ev := range events {
		views = append(views, eventView{
			Seq:      ev.Seq,
			Type:     string(ev.Type),
			At:       ev.At,
			Activity: ev.ActivityName,
			Attempt:  ev.Attempt,
			Error:    ev.Error,
			Final:    ev.Final,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

// terminateRequest is the body of POST /api/runs/{id}/terminate.
type terminateRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleTerminate(w http.ResponseWriter, r *http.Request) {
	var req terminateRequest
	// An empty body means no reason; anything else must parse.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	id := r.PathValue("id")
	if err := s.engine.Terminate(r.Context(), id, req.Reason); err != nil {
		switch {
		case errors.Is(err, durable.ErrRunNotFound):
			writeError(w, http.StatusNotFound, err)
		case errors.Is(err, durable.ErrRunClosed), errors.Is(err, durable.ErrConcurrentAppend):
			writeError(w, http.StatusConflict, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	s.logger.Info("run terminated", "run_id", id, "reason", req.Reason)
	writeJSON(w, http.StatusOK, map[string]string{"status": "terminated"})
}
