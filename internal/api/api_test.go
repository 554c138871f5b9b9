package api

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arndt-labs/codesandbox/internal/config"
	"github.com/arndt-labs/codesandbox/internal/containerdriver"
	"github.com/arndt-labs/codesandbox/internal/registry"
	"github.com/arndt-labs/codesandbox/protocol"
)

type fakeManager struct {
	records     map[string]registry.Record
	execErr     error
	chunks      []protocol.OutputChunk
	lastVolumes map[string]containerdriver.Mount
	lastEnv     map[string]string
}

func newFakeManager() *fakeManager {
	return &fakeManager{records: make(map[string]registry.Record)}
}

func (f *fakeManager) CreateSession(ctx context.Context, volumes map[string]containerdriver.Mount, env map[string]string) (registry.Record, error) {
	f.lastVolumes = volumes
	f.lastEnv = env
	rec := registry.Record{SessionID: "sess-1", ContainerID: "container-1", ContainerIP: "10.0.0.2", State: registry.StateReady, CreatedAt: time.Now(), LastUsedAt: time.Now()}
	f.records[rec.SessionID] = rec
	return rec, nil
}

func (f *fakeManager) Execute(ctx context.Context, sessionID, code, resultVar string) (<-chan protocol.OutputChunk, error) {
	if f.execErr != nil {
		return nil, f.execErr
	}
	out := make(chan protocol.OutputChunk, len(f.chunks))
	for _, c := range f.chunks {
		out <- c
	}
	close(out)
	return out, nil
}

func (f *fakeManager) ReleaseSession(ctx context.Context, sessionID string) (bool, error) {
	if _, ok := f.records[sessionID]; !ok {
		return false, nil
	}
	delete(f.records, sessionID)
	return true, nil
}

func (f *fakeManager) GetSessionInfo(sessionID string) (registry.Record, bool) {
	rec, ok := f.records[sessionID]
	return rec, ok
}

func (f *fakeManager) ListSessions() []registry.Record {
	out := make([]registry.Record, 0, len(f.records))
	for _, r := range f.records {
		out = append(out, r)
	}
	return out
}

var _ SandboxService = (*fakeManager)(nil)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, mgr *fakeManager) *Server {
	t.Helper()
	cfg := &config.Config{MetricsEnabled: true}
	return NewServer(cfg, mgr, prometheus.NewRegistry(), discardLogger())
}

func TestHandleCreateSession(t *testing.T) {
	mgr := newFakeManager()
	s := newTestServer(t, mgr)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	var resp sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "sess-1", resp.SessionID)
}

func TestHandleCreateSessionWithVolumesAndEnv(t *testing.T) {
	mgr := newFakeManager()
	s := newTestServer(t, mgr)

	body := strings.NewReader(`{"volumes":{"/host/data":{"bind":"/data","mode":"ro"}},"env":{"FOO":"bar"}}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", body)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, mgr.lastVolumes, "/host/data")
	assert.Equal(t, containerdriver.Mount{Target: "/data", ReadOnly: true}, mgr.lastVolumes["/host/data"])
	assert.Equal(t, "bar", mgr.lastEnv["FOO"])
}

func TestHandleReleaseSessionNotFoundIsIdempotent(t *testing.T) {
	mgr := newFakeManager()
	s := newTestServer(t, mgr)

	req := httptest.NewRequest(http.MethodDelete, "/v1/sessions/missing", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp["ok"])
}

func TestHandleGetSessionNotFound(t *testing.T) {
	mgr := newFakeManager()
	s := newTestServer(t, mgr)

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/missing", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var resp APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, ErrCodeSessionNotFound, resp.Code)
}

func TestHandleGetSessionFound(t *testing.T) {
	mgr := newFakeManager()
	s := newTestServer(t, mgr)
	mgr.records["sess-1"] = registry.Record{SessionID: "sess-1", State: registry.StateReady}

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/sess-1", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleListSessions(t *testing.T) {
	mgr := newFakeManager()
	mgr.records["a"] = registry.Record{SessionID: "a"}
	mgr.records["b"] = registry.Record{SessionID: "b"}
	s := newTestServer(t, mgr)

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var resp []sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp, 2)
}

func TestHandleReleaseSession(t *testing.T) {
	mgr := newFakeManager()
	mgr.records["sess-1"] = registry.Record{SessionID: "sess-1"}
	s := newTestServer(t, mgr)

	req := httptest.NewRequest(http.MethodDelete, "/v1/sessions/sess-1", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	_, ok := mgr.records["sess-1"]
	assert.False(t, ok)
}

func TestHandleExecStreamsChunks(t *testing.T) {
	mgr := newFakeManager()
	mgr.chunks = []protocol.OutputChunk{
		{Kind: protocol.OutputText, Content: "hi"},
		{Kind: protocol.OutputResult, Content: `{"success":true}`},
	}
	s := newTestServer(t, mgr)

	body := strings.NewReader(`{"code":"print('hi')"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/sess-1/exec", body)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	var lines []string
	scanner := bufio.NewScanner(rec.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			lines = append(lines, line)
		}
	}
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "<txt>hi")
	assert.Contains(t, lines[1], "<result>")
}

func TestHandleExecMissingCode(t *testing.T) {
	mgr := newFakeManager()
	s := newTestServer(t, mgr)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/sess-1/exec", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthzAndMetrics(t *testing.T) {
	mgr := newFakeManager()
	s := newTestServer(t, mgr)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
