// Package http exposes a workflow/engine.Engine over HTTP using
// go-chi/chi for routing. The pack carries no full chi router example to
// adapt from (go-chi/chi only appears incidentally, wrapping a route
// context in a metrics middleware), so the route table and handler shape
// here follow chi's own idiomatic usage directly rather than a specific
// pack file — recorded in DESIGN.md.
package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/flowkernel/engine/workflow/engine"
	"github.com/flowkernel/engine/workflow/loader"
	"github.com/flowkernel/engine/workflow/queue"
)

// Server adapts an engine.Engine to the step-queue protocol's HTTP surface.
type Server struct {
	engine *engine.Engine
	router chi.Router
}

// NewServer builds a Server and mounts its routes on a fresh chi router.
func NewServer(eng *engine.Engine) *Server {
	s := &Server{engine: eng}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/workflows", s.handleListWorkflows)
	r.Post("/workflows/{name}/start", s.handleStartByName)
	r.Post("/runs/{runID}/next", s.handleGetNextStep)
	r.Post("/runs/{runID}/steps/{stepID}/complete", s.handleStepComplete)

	s.router = r
	return s
}

// ServeHTTP implements http.Handler, delegating to the mounted chi router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	includeGlobal := r.URL.Query().Get("global") == "true"

	infos, err := s.engine.ListWorkflows(includeGlobal)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

type startRequest struct {
	Inputs map[string]any `json:"inputs"`
}

type startResponse struct {
	RunID    string `json:"run_id"`
	Workflow string `json:"workflow"`
}

func (s *Server) handleStartByName(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req startRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	runID, def, err := s.engine.StartByName(r.Context(), name, req.Inputs)
	if err != nil {
		status := http.StatusInternalServerError
		if isNotFound(err) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}

	writeJSON(w, http.StatusCreated, startResponse{RunID: runID, Workflow: def.Name})
}

type nextStepResponse struct {
	Steps                []queue.ClientStep          `json:"steps"`
	ServerCompletedSteps []queue.ServerCompletedStep `json:"server_completed_steps"`
	Done                 bool                        `json:"done"`
}

func (s *Server) handleGetNextStep(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	batch, completed, done, err := s.engine.GetNextStep(r.Context(), runID)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, nextStepResponse{Steps: batch, ServerCompletedSteps: completed, Done: done})
}

func (s *Server) handleStepComplete(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	stepID := chi.URLParam(r, "stepID")

	var result queue.StepResult
	if err := json.NewDecoder(r.Body).Decode(&result); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	result.StepID = stepID

	if err := s.engine.StepComplete(r.Context(), runID, stepID, result); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func isNotFound(err error) bool {
	switch err.(type) {
	case *loader.NotFoundError:
		return true
	default:
		return false
	}
}
