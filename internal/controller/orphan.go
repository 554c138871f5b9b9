package controller

import (
	"context"
	"fmt"
)

// Initialize verifies the container engine is reachable, ensures the
// shared sandbox network exists, and reaps any orphaned Worker containers
// left over from a previous controller run that the registry (in-memory,
// so always empty at startup) no longer references — the same
// reconciliation cleanup_orphan_containers performs in
// original_source/src/sandbox/manager.py, simplified to "registry is
// always empty on a fresh process" since this registry carries no
// persistence.
func (m *Manager) Initialize(ctx context.Context) error {
	if err := m.driver.Ping(ctx); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	if _, err := m.driver.EnsureNetwork(ctx); err != nil {
		return fmt.Errorf("initialize: ensure network: %w", err)
	}

	return m.reapOrphans(ctx)
}

func (m *Manager) reapOrphans(ctx context.Context) error {
	containers, err := m.driver.ListByPrefix(ctx, m.cfg.ContainerPrefix)
	if err != nil {
		return fmt.Errorf("initialize: list containers: %w", err)
	}

	reaped := 0
	for _, c := range containers {
		if _, tracked := m.reg.ByContainer(c.ContainerID); tracked {
			continue
		}

		m.logger.Warn("reaping orphan container", "container_id", c.ContainerID, "name", c.Name)
		if err := m.driver.Stop(ctx, c.ContainerID, 0); err != nil {
			m.logger.Warn("reap: stop orphan", "container_id", c.ContainerID, "error", err)
		}
		if err := m.driver.Remove(ctx, c.ContainerID); err != nil {
			m.logger.Warn("reap: remove orphan", "container_id", c.ContainerID, "error", err)
			continue
		}
		reaped++
	}

	if reaped > 0 {
		m.metrics.OrphansReaped.Add(float64(reaped))
		m.logger.Info("reaped orphan containers", "count", reaped)
	}
	return nil
}
