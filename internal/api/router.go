// Package api implements the Controller's public HTTP surface: session
// lifecycle routes, the code-execution relay, and the ambient /healthz
// and /metrics endpoints. It mirrors the shape of the teacher daemon's
// internal/api package, trimmed to this spec's session/exec/release
// contract — no filesystem, workspace, or dashboard routes, since this
// system has no equivalent concepts.
package api

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arndt-labs/codesandbox/internal/config"
)

// Server is the Controller's HTTP handler set.
type Server struct {
	cfg     *config.Config
	manager SandboxService
	logger  *slog.Logger
	mux     *http.ServeMux
}

// NewServer builds a Server and registers its routes. reg is the
// prometheus registry /metrics serves from.
func NewServer(cfg *config.Config, mgr SandboxService, reg *prometheus.Registry, logger *slog.Logger) *Server {
	s := &Server{cfg: cfg, manager: mgr, logger: logger, mux: http.NewServeMux()}
	s.routes(reg)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.requestIDMiddleware(s.debugLogMiddleware(s.mux))
}

func (s *Server) routes(reg *prometheus.Registry) {
	s.mux.HandleFunc("POST /v1/sessions", s.handleCreateSession)
	s.mux.HandleFunc("GET /v1/sessions", s.handleListSessions)
	s.mux.HandleFunc("GET /v1/sessions/{id}", s.handleGetSession)
	s.mux.HandleFunc("POST /v1/sessions/{id}/exec", s.handleExec)
	s.mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleReleaseSession)

	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if s.cfg.MetricsEnabled {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
}
