package controller

import (
	"context"
	"time"
)

// RunMetricsLoop periodically refreshes gauges that are cheaper to
// recompute on a timer than to update on every registry mutation. It
// blocks until ctx is cancelled.
func (m *Manager) RunMetricsLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.metrics.ActiveSessions.Set(float64(m.reg.CountActive()))
		}
	}
}
