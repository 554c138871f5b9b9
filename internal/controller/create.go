package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/arndt-labs/codesandbox/internal/containerdriver"
	"github.com/arndt-labs/codesandbox/internal/registry"
)

const labelSessionID = "codesandbox.session_id"

// CreateSession provisions a new Worker container and registers a session
// for it. volumes follows spec.md's CreateSession(volumes?) contract: host
// path -> container Mount, passed through as provided by the caller and
// merged with the configured DataMountPath default mount. env is merged
// verbatim into the container's environment. On any failure after the
// registry record is allocated, the partially-created container and
// record are torn down before returning an error — a session never
// lingers in Creating or Error state.
func (m *Manager) CreateSession(ctx context.Context, volumes map[string]containerdriver.Mount, env map[string]string) (registry.Record, error) {
	start := time.Now()
	sessionID := uuid.New().String()

	name := m.cfg.ContainerPrefix + "-" + sessionID[:8]
	memBytes, err := m.cfg.MemoryLimitBytes()
	if err != nil {
		return registry.Record{}, fmt.Errorf("%w: %s", ErrCreateFailed, err)
	}

	containerID, err := m.driver.Create(ctx, containerdriver.CreateOpts{
		Name:        name,
		Image:       m.cfg.WorkerImage,
		MemoryBytes: memBytes,
		NanoCPUs:    m.cfg.NanoCPUs(),
		PidsLimit:   100,
		NetworkName: m.cfg.NetworkName,
		Labels:      map[string]string{labelSessionID: sessionID},
		Mounts:      m.mergeDataMount(volumes),
		Env:         env,
	})
	if err != nil {
		return registry.Record{}, fmt.Errorf("%w: %s", ErrCreateFailed, err)
	}

	if _, err := m.reg.Create(sessionID, containerID); err != nil {
		m.driver.Remove(ctx, containerID)
		return registry.Record{}, fmt.Errorf("%w: %s", ErrCreateFailed, err)
	}

	if err := m.createBody(ctx, sessionID, containerID); err != nil {
		m.driver.Stop(ctx, containerID, 0)
		m.driver.Remove(ctx, containerID)
		m.reg.Release(sessionID)
		m.metrics.SessionsErrored.Inc()
		return registry.Record{}, err
	}

	m.metrics.SessionsCreated.Inc()
	m.metrics.ActiveSessions.Set(float64(m.reg.CountActive()))
	m.metrics.CreateDuration.Observe(time.Since(start).Seconds())

	updated, _ := m.reg.Get(sessionID)
	return updated, nil
}

// mergeDataMount layers the configured DataMountPath onto the caller's
// volumes, the same default-workspace-plus-caller-overrides shape
// original_source/src/sandbox/docker_client.py's create_container builds
// before handing volumes to docker.containers.create. A caller-supplied
// mount at the same host path always wins.
func (m *Manager) mergeDataMount(volumes map[string]containerdriver.Mount) map[string]containerdriver.Mount {
	if m.cfg.DataMountPath == "" && len(volumes) == 0 {
		return nil
	}

	merged := make(map[string]containerdriver.Mount, len(volumes)+1)
	for hostPath, mnt := range volumes {
		merged[hostPath] = mnt
	}
	if m.cfg.DataMountPath != "" {
		if _, exists := merged[m.cfg.DataMountPath]; !exists {
			merged[m.cfg.DataMountPath] = containerdriver.Mount{Target: "/data"}
		}
	}
	return merged
}

// createBody runs the part of the create protocol that can fail after
// the registry record exists: start the container, discover its address,
// and wait for the Worker to answer healthy before marking Ready.
func (m *Manager) createBody(ctx context.Context, sessionID, containerID string) error {
	if err := m.driver.Start(ctx, containerID); err != nil {
		return fmt.Errorf("%w: %s", ErrCreateFailed, err)
	}

	ip, err := m.driver.IP(ctx, containerID)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrCreateFailed, err)
	}
	m.reg.SetContainerIP(sessionID, ip)

	if err := m.driver.WaitHealthy(ctx, containerID, m.cfg.WorkerPort, m.healthCheckInterval(), m.healthCheckTimeout()); err != nil {
		return fmt.Errorf("%w: %s", ErrCreateFailed, err)
	}

	m.reg.UpdateState(sessionID, registry.StateReady, "")
	return nil
}
