package controller

import (
	"context"

	"github.com/arndt-labs/codesandbox/internal/registry"
)

// ReleaseSession tears down a session's container and drops its
// bookkeeping. It is idempotent: releasing an id that is already gone
// from the registry — including a second call for the same session —
// returns (false, nil) rather than an error.
func (m *Manager) ReleaseSession(ctx context.Context, sessionID string) (bool, error) {
	rec, ok := m.reg.Get(sessionID)
	if !ok {
		return false, nil
	}

	m.reg.UpdateState(sessionID, registry.StateDestroying, "")

	if err := m.driver.Stop(ctx, rec.ContainerID, 0); err != nil {
		m.logger.Warn("release: stop container", "session_id", sessionID, "error", err)
	}
	if err := m.driver.Remove(ctx, rec.ContainerID); err != nil {
		m.logger.Warn("release: remove container", "session_id", sessionID, "error", err)
	}

	m.reg.Release(sessionID)
	m.removeSessionLock(sessionID)

	m.metrics.SessionsReleased.Inc()
	m.metrics.ActiveSessions.Set(float64(m.reg.CountActive()))

	return true, nil
}
