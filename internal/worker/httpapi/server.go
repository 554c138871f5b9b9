// Package httpapi implements the Worker's HTTP surface: POST /exec,
// POST /reset, GET /health, GET /variables, GET /. It mirrors
// worker/main.py's FastAPI routes route-for-route, and frames SSE the way
// the teacher daemon's internal/api/exec_handlers.go does — one flush per
// chunk, so a slow consumer sees output as it is produced rather than
// buffered until the stream closes.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/arndt-labs/codesandbox/internal/worker/executor"
	"github.com/arndt-labs/codesandbox/protocol"
)

// Server is the Worker's HTTP handler set. One Server wraps one Executor
// for the container's whole lifetime.
type Server struct {
	exec   *executor.Executor
	logger *slog.Logger
	mux    *http.ServeMux
}

// New builds a Server and registers its routes.
func New(exec *executor.Executor, logger *slog.Logger) *Server {
	s := &Server{exec: exec, logger: logger, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /exec", s.handleExec)
	s.mux.HandleFunc("POST /reset", s.handleReset)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /variables", s.handleVariables)
	s.mux.HandleFunc("GET /{$}", s.handleRoot)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.exec.Reset()
	s.writeJSON(w, http.StatusOK, protocol.ResetResponse{
		Success: true,
		Message: "executor state reset successfully",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, protocol.HealthResponse{
		Status:         "healthy",
		ExecutorReady:  true,
		ExecutionCount: s.exec.ExecutionCount(),
		VariablesCount: len(s.exec.ListVariables()),
	})
}

func (s *Server) handleVariables(w http.ResponseWriter, r *http.Request) {
	vars := s.exec.ListVariables()
	s.writeJSON(w, http.StatusOK, protocol.VariablesResponse{
		Count:     len(vars),
		Variables: vars,
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, protocol.RootResponse{
		Service: "codesandbox-worker",
		Version: "1.0.0",
		Endpoints: map[string]string{
			"execute":   "POST /exec",
			"reset":     "POST /reset",
			"health":    "GET /health",
			"variables": "GET /variables",
		},
	})
}
