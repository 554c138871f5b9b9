package controller

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arndt-labs/codesandbox/internal/config"
	"github.com/arndt-labs/codesandbox/internal/containerdriver"
	"github.com/arndt-labs/codesandbox/internal/metrics"
	"github.com/arndt-labs/codesandbox/internal/registry"

	"github.com/prometheus/client_golang/prometheus"
)

// fakeDriver is an in-memory containerdriver.Driver stand-in for testing
// the Manager's orchestration logic without a real Docker daemon.
type fakeDriver struct {
	mu        sync.Mutex
	next      int
	running   map[string]bool
	labels    map[string]map[string]string
	ip        string
	startErr  error
	waitErr   error
	createErr error
	lastOpts  containerdriver.CreateOpts
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		running: make(map[string]bool),
		labels:  make(map[string]map[string]string),
		ip:      "127.0.0.1",
	}
}

func (f *fakeDriver) EnsureNetwork(ctx context.Context) (string, error) { return "net0", nil }

func (f *fakeDriver) Create(ctx context.Context, opts containerdriver.CreateOpts) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	id := fmt.Sprintf("container-%d", f.next)
	f.labels[id] = opts.Labels
	f.lastOpts = opts
	return id, nil
}

func (f *fakeDriver) Start(ctx context.Context, containerID string) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running[containerID] = true
	return nil
}

func (f *fakeDriver) IP(ctx context.Context, containerID string) (string, error) {
	return f.ip, nil
}

func (f *fakeDriver) WaitHealthy(ctx context.Context, containerID string, port int, interval, timeout time.Duration) error {
	return f.waitErr
}

func (f *fakeDriver) Stop(ctx context.Context, containerID string, grace time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running[containerID] = false
	return nil
}

func (f *fakeDriver) Remove(ctx context.Context, containerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.running, containerID)
	delete(f.labels, containerID)
	return nil
}

func (f *fakeDriver) Get(ctx context.Context, containerID string) (containerdriver.Info, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	running, ok := f.running[containerID]
	if !ok {
		return containerdriver.Info{}, containerdriver.ErrNotFound
	}
	return containerdriver.Info{ContainerID: containerID, Running: running, Labels: f.labels[containerID]}, nil
}

func (f *fakeDriver) ListByPrefix(ctx context.Context, prefix string) ([]containerdriver.Info, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]containerdriver.Info, 0, len(f.running))
	for id, running := range f.running {
		out = append(out, containerdriver.Info{ContainerID: id, Running: running, Labels: f.labels[id]})
	}
	return out, nil
}

func (f *fakeDriver) Ping(ctx context.Context) error { return nil }

var _ containerdriver.Driver = (*fakeDriver)(nil)

func testConfig() *config.Config {
	return &config.Config{
		WorkerImage:         "codesandbox/worker:test",
		WorkerPort:          9000,
		MemoryLimit:         "512m",
		CPULimit:            1.0,
		NetworkName:         "codesandbox-network",
		ContainerPrefix:     "codesandbox-worker",
		HealthCheckTimeout:  1,
		HealthCheckInterval: 0.01,
		ExecutionTimeout:    2,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(t *testing.T, driver *fakeDriver) *Manager {
	t.Helper()
	cfg := testConfig()
	reg := registry.New()
	m := metrics.New(prometheus.NewRegistry())
	return New(cfg, driver, reg, m, discardLogger())
}

func TestCreateSessionSuccess(t *testing.T) {
	driver := newFakeDriver()
	m := newTestManager(t, driver)

	rec, err := m.CreateSession(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, registry.StateReady, rec.State)
	assert.Equal(t, "127.0.0.1", rec.ContainerIP)
	assert.NotEmpty(t, rec.ContainerID)

	_, ok := m.reg.Get(rec.SessionID)
	assert.True(t, ok)
}

func TestCreateSessionHealthTimeoutCleansUp(t *testing.T) {
	driver := newFakeDriver()
	driver.waitErr = containerdriver.ErrHealthTimeout
	m := newTestManager(t, driver)

	_, err := m.CreateSession(context.Background(), nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCreateFailed)
	assert.Equal(t, 0, m.reg.Count(), "failed session must not remain registered")
}

func TestCreateSessionStartFailureCleansUp(t *testing.T) {
	driver := newFakeDriver()
	driver.startErr = containerdriver.ErrStartFailed
	m := newTestManager(t, driver)

	_, err := m.CreateSession(context.Background(), nil, nil)
	require.Error(t, err)
	assert.Equal(t, 0, m.reg.Count())
}

func sseServer(t *testing.T, lines []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		for _, line := range lines {
			io.WriteString(w, "data: "+line+"\n\n")
			flusher.Flush()
		}
	}))
}

func workerPort(t *testing.T, srv *httptest.Server) int {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	_, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return port
}

func TestExecuteRelaysChunksInOrderResultLast(t *testing.T) {
	srv := sseServer(t, []string{
		"<txt>hello</txt>",
		`<result>{"success":true,"status":"success","execution_time":0.01}</result>`,
	})
	defer srv.Close()

	driver := newFakeDriver()
	m := newTestManager(t, driver)
	m.cfg.WorkerPort = workerPort(t, srv)

	rec, err := m.reg.Create("sess-1", "container-1")
	require.NoError(t, err)
	m.reg.SetContainerIP(rec.SessionID, "127.0.0.1")
	m.reg.UpdateState(rec.SessionID, registry.StateReady, "")

	chunks, err := m.Execute(context.Background(), "sess-1", "print('hello')", "")
	require.NoError(t, err)

	var got []string
	for c := range chunks {
		got = append(got, string(c.Kind))
	}
	require.Len(t, got, 2)
	assert.Equal(t, "txt", got[0])
	assert.Equal(t, "result", got[1])

	final, ok := m.reg.Get("sess-1")
	require.True(t, ok)
	assert.Equal(t, registry.StateReady, final.State, "session must return to Ready after Execute")
}

func TestExecuteSessionNotFound(t *testing.T) {
	m := newTestManager(t, newFakeDriver())
	_, err := m.Execute(context.Background(), "missing", "code", "")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestExecuteSessionNotReady(t *testing.T) {
	m := newTestManager(t, newFakeDriver())
	_, err := m.reg.Create("sess-busy", "container-1")
	require.NoError(t, err)
	m.reg.UpdateState("sess-busy", registry.StateReady, "")
	m.reg.UpdateState("sess-busy", registry.StateExecuting, "")

	_, err = m.Execute(context.Background(), "sess-busy", "code", "")
	assert.ErrorIs(t, err, ErrSessionBusy)
}

func TestExecuteMissingResultChunkTreatedAsError(t *testing.T) {
	srv := sseServer(t, []string{"<txt>partial</txt>"})
	defer srv.Close()

	driver := newFakeDriver()
	m := newTestManager(t, driver)
	m.cfg.WorkerPort = workerPort(t, srv)

	_, err := m.reg.Create("sess-2", "container-2")
	require.NoError(t, err)
	m.reg.SetContainerIP("sess-2", "127.0.0.1")
	m.reg.UpdateState("sess-2", registry.StateReady, "")

	chunks, err := m.Execute(context.Background(), "sess-2", "code", "")
	require.NoError(t, err)

	var got []string
	for c := range chunks {
		got = append(got, string(c.Kind))
	}
	require.NotEmpty(t, got)
	assert.Equal(t, "result", got[len(got)-1])
}

func TestReleaseSession(t *testing.T) {
	driver := newFakeDriver()
	m := newTestManager(t, driver)

	rec, err := m.CreateSession(context.Background(), nil, nil)
	require.NoError(t, err)

	released, err := m.ReleaseSession(context.Background(), rec.SessionID)
	require.NoError(t, err)
	assert.True(t, released)

	_, ok := m.reg.Get(rec.SessionID)
	assert.False(t, ok)

	info, err := driver.Get(context.Background(), rec.ContainerID)
	assert.ErrorIs(t, err, containerdriver.ErrNotFound)
	assert.Empty(t, info.ContainerID)
}

func TestReleaseSessionNotFound(t *testing.T) {
	m := newTestManager(t, newFakeDriver())
	released, err := m.ReleaseSession(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, released)
}

func TestReleaseSessionIdempotentOnSecondCall(t *testing.T) {
	driver := newFakeDriver()
	m := newTestManager(t, driver)

	rec, err := m.CreateSession(context.Background(), nil, nil)
	require.NoError(t, err)

	released, err := m.ReleaseSession(context.Background(), rec.SessionID)
	require.NoError(t, err)
	assert.True(t, released)

	released, err = m.ReleaseSession(context.Background(), rec.SessionID)
	require.NoError(t, err)
	assert.False(t, released)
}

func TestCreateSessionWiresVolumesEnvAndDataMount(t *testing.T) {
	driver := newFakeDriver()
	m := newTestManager(t, driver)
	m.cfg.DataMountPath = "/var/sandbox/data"

	volumes := map[string]containerdriver.Mount{
		"/host/dataset": {Target: "/input", ReadOnly: true},
	}
	env := map[string]string{"SANDBOX_MODE": "test"}

	_, err := m.CreateSession(context.Background(), volumes, env)
	require.NoError(t, err)

	assert.Equal(t, env, driver.lastOpts.Env)
	require.Contains(t, driver.lastOpts.Mounts, "/host/dataset")
	assert.Equal(t, containerdriver.Mount{Target: "/input", ReadOnly: true}, driver.lastOpts.Mounts["/host/dataset"])
	require.Contains(t, driver.lastOpts.Mounts, "/var/sandbox/data")
	assert.Equal(t, containerdriver.Mount{Target: "/data"}, driver.lastOpts.Mounts["/var/sandbox/data"])
}

func TestCreateSessionDataMountDoesNotOverrideCallerMount(t *testing.T) {
	driver := newFakeDriver()
	m := newTestManager(t, driver)
	m.cfg.DataMountPath = "/var/sandbox/data"

	volumes := map[string]containerdriver.Mount{
		"/var/sandbox/data": {Target: "/custom", ReadOnly: true},
	}

	_, err := m.CreateSession(context.Background(), volumes, nil)
	require.NoError(t, err)

	assert.Equal(t, containerdriver.Mount{Target: "/custom", ReadOnly: true}, driver.lastOpts.Mounts["/var/sandbox/data"])
}

func TestInitializeReapsUntrackedContainers(t *testing.T) {
	driver := newFakeDriver()
	driver.running["orphan-1"] = true
	driver.labels["orphan-1"] = map[string]string{labelSessionID: "gone"}

	m := newTestManager(t, driver)
	require.NoError(t, m.Initialize(context.Background()))

	_, err := driver.Get(context.Background(), "orphan-1")
	assert.ErrorIs(t, err, containerdriver.ErrNotFound)
}

func TestInitializeLeavesTrackedContainers(t *testing.T) {
	driver := newFakeDriver()
	driver.running["container-1"] = true

	m := newTestManager(t, driver)
	_, err := m.reg.Create("sess-1", "container-1")
	require.NoError(t, err)

	require.NoError(t, m.Initialize(context.Background()))

	info, err := driver.Get(context.Background(), "container-1")
	require.NoError(t, err)
	assert.True(t, info.Running)
}

func TestGetSessionInfoAndListSessions(t *testing.T) {
	m := newTestManager(t, newFakeDriver())
	_, err := m.reg.Create("sess-1", "container-1")
	require.NoError(t, err)

	rec, ok := m.GetSessionInfo("sess-1")
	require.True(t, ok)
	assert.Equal(t, "sess-1", rec.SessionID)

	all := m.ListSessions()
	assert.Len(t, all, 1)
}

func TestShutdownReleasesAllSessions(t *testing.T) {
	driver := newFakeDriver()
	m := newTestManager(t, driver)

	rec1, err := m.CreateSession(context.Background(), nil, nil)
	require.NoError(t, err)
	rec2, err := m.CreateSession(context.Background(), nil, nil)
	require.NoError(t, err)

	m.Shutdown(context.Background())

	_, ok := m.reg.Get(rec1.SessionID)
	assert.False(t, ok)
	_, ok = m.reg.Get(rec2.SessionID)
	assert.False(t, ok)
}
