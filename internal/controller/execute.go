package controller

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/arndt-labs/codesandbox/internal/registry"
	"github.com/arndt-labs/codesandbox/protocol"
)

// Execute relays code to the session's Worker and streams its SSE output
// back on the returned channel, which is always closed after exactly one
// terminal Result chunk. The session transitions Ready -> Executing for
// the call's duration and always returns to Ready afterward, success or
// failure — mirroring the teacher's per-session lock-then-finally shape
// in internal/session/manager.go's Exec.
func (m *Manager) Execute(ctx context.Context, sessionID, code, resultVar string) (<-chan protocol.OutputChunk, error) {
	rec, ok := m.reg.Get(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	if !rec.IsAvailable() {
		return nil, ErrSessionBusy
	}

	mu := m.sessionLock(sessionID)
	mu.Lock()

	if !m.reg.UpdateState(sessionID, registry.StateExecuting, "") {
		mu.Unlock()
		return nil, ErrSessionNotFound
	}

	out := make(chan protocol.OutputChunk)
	m.metrics.Executions.Inc()
	start := time.Now()

	go func() {
		defer mu.Unlock()
		defer close(out)
		defer m.reg.UpdateState(sessionID, registry.StateReady, "")
		defer func() { m.metrics.ExecuteDuration.Observe(time.Since(start).Seconds()) }()

		m.relay(ctx, rec, code, resultVar, out)
	}()

	return out, nil
}

func (m *Manager) relay(ctx context.Context, rec registry.Record, code, resultVar string, out chan<- protocol.OutputChunk) {
	execCtx, cancel := context.WithTimeout(ctx, m.executionTimeout())
	defer cancel()

	url := "http://" + net.JoinHostPort(rec.ContainerIP, strconv.Itoa(m.cfg.WorkerPort)) + "/exec"
	body, err := json.Marshal(protocol.ExecRequest{Code: code, ResultVar: resultVar})
	if err != nil {
		m.emitErr(out, fmt.Sprintf("encoding request: %s", err))
		return
	}

	req, err := http.NewRequestWithContext(execCtx, http.MethodPost, url, strings.NewReader(string(body)))
	if err != nil {
		m.emitErr(out, fmt.Sprintf("building request: %s", err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		if execCtx.Err() != nil {
			m.emitTimeout(out)
			return
		}
		m.emitErr(out, fmt.Sprintf("worker request failed: %s", err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		m.emitErr(out, fmt.Sprintf("worker returned status %d", resp.StatusCode))
		return
	}

	sawResult := m.streamChunks(execCtx, resp, out)
	if !sawResult {
		if execCtx.Err() != nil {
			m.emitTimeout(out)
		} else {
			m.emitErr(out, "worker stream ended without a result chunk")
		}
	}
}

// streamChunks parses "data: <tag>...</tag>" SSE lines off resp.Body and
// forwards each as an OutputChunk. Returns true once a Result chunk has
// been relayed.
func (m *Manager) streamChunks(ctx context.Context, resp *http.Response, out chan<- protocol.OutputChunk) bool {
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), protocol.MaxOutputBytes)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		chunk, ok := parseSSETag(strings.TrimPrefix(line, "data: "))
		if !ok {
			continue
		}

		select {
		case out <- chunk:
		case <-ctx.Done():
			return false
		}

		if chunk.Kind == protocol.OutputResult {
			if chunk.Content != "" {
				m.observeResultStatus(chunk.Content)
			}
			return true
		}
	}
	return false
}

func (m *Manager) observeResultStatus(resultJSON string) {
	var res protocol.ExecutionResult
	if err := json.Unmarshal([]byte(resultJSON), &res); err == nil && !res.Success {
		m.metrics.ExecutionErrors.Inc()
	}
}

// parseSSETag parses a "<kind>content</kind>" wire tag back into an
// OutputChunk, the inverse of protocol.OutputChunk.ToSSE.
func parseSSETag(raw string) (protocol.OutputChunk, bool) {
	if !strings.HasPrefix(raw, "<") {
		return protocol.OutputChunk{}, false
	}
	end := strings.Index(raw, ">")
	if end < 0 {
		return protocol.OutputChunk{}, false
	}
	kind := protocol.OutputKind(raw[1:end])
	closeTag := "</" + string(kind) + ">"
	if !strings.HasSuffix(raw, closeTag) {
		return protocol.OutputChunk{}, false
	}
	content := raw[end+1 : len(raw)-len(closeTag)]
	return protocol.OutputChunk{Kind: kind, Content: content}, true
}

func (m *Manager) emitErr(out chan<- protocol.OutputChunk, msg string) {
	out <- protocol.OutputChunk{Kind: protocol.OutputError, Content: msg}
	out <- protocol.OutputChunk{Kind: protocol.OutputResult, Content: protocol.ExecutionResult{
		Success:      false,
		Status:       protocol.StatusError,
		ErrorType:    "relay_error",
		ErrorMessage: msg,
	}.ToJSON()}
}

func (m *Manager) emitTimeout(out chan<- protocol.OutputChunk) {
	msg := "execution exceeded the configured timeout"
	out <- protocol.OutputChunk{Kind: protocol.OutputError, Content: msg}
	out <- protocol.OutputChunk{Kind: protocol.OutputResult, Content: protocol.ExecutionResult{
		Success:      false,
		Status:       protocol.StatusTimeout,
		ErrorType:    "timeout",
		ErrorMessage: msg,
	}.ToJSON()}
	m.metrics.ExecutionErrors.Inc()
}
