// Package metrics registers the prometheus collectors the controller
// exposes on /metrics, the same client library cuemby-warren wires into
// its own node daemon.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups every collector the controller updates over a session's
// lifetime.
type Metrics struct {
	ActiveSessions   prometheus.Gauge
	SessionsCreated  prometheus.Counter
	SessionsReleased prometheus.Counter
	SessionsErrored  prometheus.Counter
	Executions       prometheus.Counter
	ExecutionErrors  prometheus.Counter
	CreateDuration   prometheus.Histogram
	ExecuteDuration  prometheus.Histogram
	OrphansReaped    prometheus.Counter
}

// New constructs and registers every collector against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "codesandbox",
			Name:      "active_sessions",
			Help:      "Number of sessions currently Ready or Executing.",
		}),
		SessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "codesandbox",
			Name:      "sessions_created_total",
			Help:      "Total sessions successfully created.",
		}),
		SessionsReleased: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "codesandbox",
			Name:      "sessions_released_total",
			Help:      "Total sessions released by the caller.",
		}),
		SessionsErrored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "codesandbox",
			Name:      "sessions_errored_total",
			Help:      "Total sessions whose creation failed and was rolled back.",
		}),
		Executions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "codesandbox",
			Name:      "executions_total",
			Help:      "Total Execute calls started.",
		}),
		ExecutionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "codesandbox",
			Name:      "execution_errors_total",
			Help:      "Total Execute calls whose result chunk reported an error.",
		}),
		CreateDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "codesandbox",
			Name:      "session_create_seconds",
			Help:      "Time from CreateSession call to the session becoming Ready.",
			Buckets:   prometheus.DefBuckets,
		}),
		ExecuteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "codesandbox",
			Name:      "execute_seconds",
			Help:      "Time from Execute call to the terminal result chunk.",
			Buckets:   prometheus.DefBuckets,
		}),
		OrphansReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "codesandbox",
			Name:      "orphans_reaped_total",
			Help:      "Total orphan containers removed during reconciliation.",
		}),
	}

	reg.MustRegister(
		m.ActiveSessions,
		m.SessionsCreated,
		m.SessionsReleased,
		m.SessionsErrored,
		m.Executions,
		m.ExecutionErrors,
		m.CreateDuration,
		m.ExecuteDuration,
		m.OrphansReaped,
	)

	return m
}
