package api

import (
	"net/http"
)

type execRequest struct {
	Code      string `json:"code"`
	ResultVar string `json:"result_var"`
}

// handleExec relays code to the session's Worker and streams the SSE
// response back to the caller chunk-for-chunk, the same flush-per-chunk
// shape the Worker's own /exec handler uses.
func (s *Server) handleExec(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := ValidateSessionID(id); err != nil {
		writeValidationError(w, err.Error())
		return
	}

	var req execRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeValidationError(w, "invalid json: "+err.Error())
		return
	}
	if err := validateExecRequest(req); err != nil {
		writeValidationError(w, err.Error())
		return
	}

	chunks, err := s.manager.Execute(r.Context(), id, req.Code, req.ResultVar)
	if err != nil {
		s.logger.Error("exec", "session_id", id, "error", err)
		writeAPIError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	s.logger.Debug("exec", "session_id", id)

	for chunk := range chunks {
		w.Write([]byte("data: " + chunk.ToSSE() + "\n\n"))
		flusher.Flush()
	}
}
