// Package controller implements the SandboxManager: the single
// coordination point between the SessionRegistry, the ContainerDriver,
// and the Worker HTTP protocol. It owns each session's container and its
// per-session execution lock for the session's whole lifetime.
package controller

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/arndt-labs/codesandbox/internal/config"
	"github.com/arndt-labs/codesandbox/internal/containerdriver"
	"github.com/arndt-labs/codesandbox/internal/metrics"
	"github.com/arndt-labs/codesandbox/internal/registry"
)

// Manager is the SandboxManager. One Manager serves the whole daemon.
type Manager struct {
	cfg     *config.Config
	driver  containerdriver.Driver
	reg     *registry.Registry
	metrics *metrics.Metrics
	logger  *slog.Logger
	client  *http.Client

	// Per-session mutexes serialize Execute calls against a single
	// session, lazily created on first use and discarded on release —
	// the same sessionLock/removeSessionLock pattern the teacher daemon
	// uses in internal/session/manager.go.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New builds a Manager with a plain *http.Client for Worker calls; the
// only deadline on an exec request is ExecutionTimeout, applied through
// the request context.
func New(cfg *config.Config, driver containerdriver.Driver, reg *registry.Registry, m *metrics.Metrics, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:     cfg,
		driver:  driver,
		reg:     reg,
		metrics: m,
		logger:  logger,
		client:  &http.Client{},
		locks:   make(map[string]*sync.Mutex),
	}
}

func (m *Manager) sessionLock(id string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	mu, ok := m.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		m.locks[id] = mu
	}
	return mu
}

func (m *Manager) removeSessionLock(id string) {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	delete(m.locks, id)
}

func (m *Manager) healthCheckTimeout() time.Duration {
	return time.Duration(m.cfg.HealthCheckTimeout) * time.Second
}

func (m *Manager) healthCheckInterval() time.Duration {
	return time.Duration(m.cfg.HealthCheckInterval * float64(time.Second))
}

func (m *Manager) executionTimeout() time.Duration {
	return time.Duration(m.cfg.ExecutionTimeout) * time.Second
}

// Shutdown releases every session the registry still tracks. Intended
// for a clean process exit — individual release failures are logged, not
// propagated, so one stuck container can't block the rest from tearing
// down.
func (m *Manager) Shutdown(ctx context.Context) {
	for _, rec := range m.reg.All() {
		if _, err := m.ReleaseSession(ctx, rec.SessionID); err != nil {
			m.logger.Warn("shutdown: release session", "session_id", rec.SessionID, "error", err)
		}
	}
}
