package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/arndt-labs/codesandbox/internal/worker/outputcapture"
	"github.com/arndt-labs/codesandbox/protocol"
)

// handleExec runs request.Code against the Worker's interpreter and
// streams the result as SSE — one "data: <tag>...</tag>" line per chunk,
// with the terminal <result> chunk always last. Matches
// worker/main.py's execute_code/generate_sse, including the behavior of
// turning a cancelled/aborted stream into a final <err> chunk rather than
// failing the HTTP response outright.
func (s *Server) handleExec(w http.ResponseWriter, r *http.Request) {
	var req protocol.ExecRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
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

	cap := outputcapture.New(s.logger)

	done := make(chan struct{})
	go func() {
		s.exec.Run(cap, req.Code, req.ResultVar)
		cap.Close()
		close(done)
	}()

	ctx := r.Context()
	for {
		select {
		case chunk, ok := <-cap.Chunks():
			if !ok {
				return
			}
			writeSSE(w, flusher, chunk)
		case <-ctx.Done():
			writeSSE(w, flusher, protocol.OutputChunk{
				Kind:    protocol.OutputError,
				Content: "Execution cancelled",
			})
			return
		}
	}
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, chunk protocol.OutputChunk) {
	w.Write([]byte("data: " + chunk.ToSSE() + "\n\n"))
	flusher.Flush()
}
