package controller

import "github.com/arndt-labs/codesandbox/internal/registry"

// GetSessionInfo returns the current record for sessionID.
func (m *Manager) GetSessionInfo(sessionID string) (registry.Record, bool) {
	return m.reg.Get(sessionID)
}

// ListSessions returns every session currently tracked, regardless of
// state.
func (m *Manager) ListSessions() []registry.Record {
	return m.reg.All()
}
