package api

import (
	"net/http"

	"github.com/arndt-labs/codesandbox/internal/containerdriver"
	"github.com/arndt-labs/codesandbox/internal/controller"
	"github.com/arndt-labs/codesandbox/internal/registry"
)

// volumeSpec is the wire shape of one entry in createSessionRequest.Volumes,
// matching spec.md's CreateSession(volumes?: map<hostPath,{bind,mode}>).
type volumeSpec struct {
	Bind string `json:"bind"`
	Mode string `json:"mode"` // "ro" or "rw", defaults to "rw"
}

// createSessionRequest is the optional JSON body for POST /v1/sessions.
// An empty or absent body creates a session with no extra mounts or env.
type createSessionRequest struct {
	Volumes map[string]volumeSpec `json:"volumes"`
	Env     map[string]string     `json:"env"`
}

func toMounts(volumes map[string]volumeSpec) map[string]containerdriver.Mount {
	if len(volumes) == 0 {
		return nil
	}
	out := make(map[string]containerdriver.Mount, len(volumes))
	for hostPath, v := range volumes {
		out[hostPath] = containerdriver.Mount{Target: v.Bind, ReadOnly: v.Mode == "ro"}
	}
	return out
}

// sessionResponse is the JSON shape for one session, matching spec.md
// §6's GetSessionInfo return shape field-for-field.
type sessionResponse struct {
	SessionID    string `json:"session_id"`
	ContainerID  string `json:"container_id"`
	ContainerIP  string `json:"container_ip"`
	State        string `json:"state"`
	CreatedAt    string `json:"created_at"`
	LastUsedAt   string `json:"last_used_at"`
	ErrorMessage string `json:"error_message,omitempty"`
}

func toSessionResponse(r registry.Record) sessionResponse {
	return sessionResponse{
		SessionID:    r.SessionID,
		ContainerID:  r.ContainerID,
		ContainerIP:  r.ContainerIP,
		State:        string(r.State),
		CreatedAt:    r.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		LastUsedAt:   r.LastUsedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		ErrorMessage: r.ErrorMessage,
	}
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.ContentLength != 0 {
		if err := decodeJSONBody(w, r, &req); err != nil {
			writeValidationError(w, "invalid json: "+err.Error())
			return
		}
	}

	rec, err := s.manager.CreateSession(r.Context(), toMounts(req.Volumes), req.Env)
	if err != nil {
		s.logger.Error("create session", "error", err)
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionResponse(rec))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := ValidateSessionID(id); err != nil {
		writeValidationError(w, err.Error())
		return
	}

	rec, ok := s.manager.GetSessionInfo(id)
	if !ok {
		writeAPIError(w, controller.ErrSessionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(rec))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	records := s.manager.ListSessions()
	out := make([]sessionResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toSessionResponse(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleReleaseSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := ValidateSessionID(id); err != nil {
		writeValidationError(w, err.Error())
		return
	}

	released, err := s.manager.ReleaseSession(r.Context(), id)
	if err != nil {
		s.logger.Error("release session", "session_id", id, "error", err)
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": released})
}
