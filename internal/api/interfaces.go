package api

import (
	"context"

	"github.com/arndt-labs/codesandbox/internal/containerdriver"
	"github.com/arndt-labs/codesandbox/internal/registry"
	"github.com/arndt-labs/codesandbox/protocol"
)

// SandboxService abstracts the controller operations the HTTP handlers
// need, the same seam the teacher daemon's SessionService interface cuts
// between api and session so handlers can be tested against a fake.
type SandboxService interface {
	CreateSession(ctx context.Context, volumes map[string]containerdriver.Mount, env map[string]string) (registry.Record, error)
	Execute(ctx context.Context, sessionID, code, resultVar string) (<-chan protocol.OutputChunk, error)
	ReleaseSession(ctx context.Context, sessionID string) (bool, error)
	GetSessionInfo(sessionID string) (registry.Record, bool)
	ListSessions() []registry.Record
}
