// Package containerdriver defines the ContainerDriver abstraction the
// controller uses to provision and tear down Worker containers, plus a
// Docker Engine API implementation of it.
package containerdriver

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by a Driver implementation. Callers match
// these with errors.Is after a wrapping %w.
var (
	ErrNotFound          = errors.New("container not found")
	ErrEngineUnavailable = errors.New("container engine unavailable")
	ErrStartFailed       = errors.New("container start failed")
	ErrHealthTimeout     = errors.New("container health check timed out")
)

// Mount describes one bind mount from a host path into the container,
// the {bind, mode} shape spec.md's CreateSession volumes parameter takes.
type Mount struct {
	Target   string // path inside the container
	ReadOnly bool
}

// CreateOpts parameterizes container creation.
type CreateOpts struct {
	Name        string
	Image       string
	MemoryBytes int64
	NanoCPUs    int64
	PidsLimit   int64
	NetworkName string
	Labels      map[string]string
	Mounts      map[string]Mount  // host path -> Mount, read-write unless ReadOnly
	Env         map[string]string // merged into the container's environment
}

// Info describes a container the driver knows about.
type Info struct {
	ContainerID string
	Name        string
	Labels      map[string]string
	Running     bool
}

// Driver is the ContainerDriver contract from the design: a thin,
// engine-agnostic surface for the whole container lifecycle a session
// needs. Every method is safe to call concurrently for different
// containers; Stop and Remove are idempotent and absorb a not-found
// condition instead of erroring.
type Driver interface {
	// EnsureNetwork creates the shared sandbox network if it does not
	// already exist, returning its id.
	EnsureNetwork(ctx context.Context) (string, error)

	// Create creates (but does not start) a container per opts.
	Create(ctx context.Context, opts CreateOpts) (containerID string, err error)

	// Start starts a previously created container.
	Start(ctx context.Context, containerID string) error

	// IP returns the container's address on the sandbox network.
	IP(ctx context.Context, containerID string) (string, error)

	// WaitHealthy polls the container's Worker /health endpoint until it
	// answers 200 or timeout elapses, returning ErrHealthTimeout on the
	// latter.
	WaitHealthy(ctx context.Context, containerID string, port int, interval, timeout time.Duration) error

	// Stop stops a running container, absorbing ErrNotFound.
	Stop(ctx context.Context, containerID string, grace time.Duration) error

	// Remove force-removes a container and any anonymous volumes,
	// absorbing ErrNotFound.
	Remove(ctx context.Context, containerID string) error

	// Get returns info about one container, or ErrNotFound.
	Get(ctx context.Context, containerID string) (Info, error)

	// ListByPrefix lists every container that carries the managed label
	// and whose name matches prefix, running or not.
	ListByPrefix(ctx context.Context, prefix string) ([]Info, error)

	// Ping verifies the underlying engine is reachable.
	Ping(ctx context.Context) error
}
