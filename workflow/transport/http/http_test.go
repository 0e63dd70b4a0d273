package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/flowkernel/engine/workflow/config"
	"github.com/flowkernel/engine/workflow/engine"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, ".aromcp", "workflows")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	yamlDoc := "name: greet\nsteps:\n  - type: user_message\n    message: hi\n"
	if err := os.WriteFile(filepath.Join(dir, "greet.yaml"), []byte(yamlDoc), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	eng, err := engine.New(config.DefaultEngineConfig("test"), root, nil, nil)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return NewServer(eng)
}

func TestHandleListWorkflowsReturnsDiscoveredFile(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/workflows", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, body %s", rec.Code, rec.Body.String())
	}
	var infos []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &infos); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(infos) != 1 || infos[0]["Name"] != "greet" {
		t.Fatalf("got %v, want one workflow named greet", infos)
	}
}

func TestStartThenDriveRunToCompletion(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/workflows/greet/start", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("start: got status %d, body %s", rec.Code, rec.Body.String())
	}

	var started startResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &started); err != nil {
		t.Fatalf("decoding start response: %v", err)
	}

	req = httptest.NewRequest(http.MethodPost, "/runs/"+started.RunID+"/next", nil)
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("next: got status %d, body %s", rec.Code, rec.Body.String())
	}

	var next nextStepResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &next); err != nil {
		t.Fatalf("decoding next response: %v", err)
	}
	if next.Done || len(next.Steps) != 1 {
		t.Fatalf("expected one pending step, got %+v", next)
	}

	stepID := next.Steps[0].StepID
	req = httptest.NewRequest(http.MethodPost, "/runs/"+started.RunID+"/steps/"+stepID+"/complete", bytes.NewReader([]byte(`{}`)))
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("complete: got status %d, body %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/runs/"+started.RunID+"/next", nil)
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if err := json.Unmarshal(rec.Body.Bytes(), &next); err != nil {
		t.Fatalf("decoding final next response: %v", err)
	}
	if !next.Done {
		t.Fatalf("expected workflow finished, got %+v", next)
	}
}

func TestStartByNameUnknownWorkflowReturns404(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/workflows/nope/start", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("got status %d, want 404", rec.Code)
	}
}
