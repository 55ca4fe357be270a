// Package metrics registers Prometheus instrumentation for the
// session and storage layers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all collectors for the client.
type Metrics struct {
	RefreshAttempts  *prometheus.CounterVec
	RequestRetries   prometheus.Counter
	StorageSelfHeals prometheus.Counter
	DroppedWrites    prometheus.Counter
	Hydrations       *prometheus.CounterVec
	ThrottledLogs    prometheus.Counter
}

// New creates and registers all collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RefreshAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "maintboard_session_refresh_attempts_total",
			Help: "Session refresh calls by result (success, failure, not_found).",
		}, []string{"result"}),
		RequestRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "maintboard_request_retries_total",
			Help: "Requests replayed after a successful session refresh.",
		}),
		StorageSelfHeals: factory.NewCounter(prometheus.CounterOpts{
			Name: "maintboard_storage_selfheal_total",
			Help: "Persisted entries deleted because they failed schema validation.",
		}),
		DroppedWrites: factory.NewCounter(prometheus.CounterOpts{
			Name: "maintboard_storage_dropped_writes_total",
			Help: "Writes rejected because the value failed schema validation.",
		}),
		Hydrations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "maintboard_session_hydrations_total",
			Help: "Session hydration attempts by result (success, unauthenticated, error).",
		}, []string{"result"}),
		ThrottledLogs: factory.NewCounter(prometheus.CounterOpts{
			Name: "maintboard_throttled_logs_total",
			Help: "Diagnostic log lines suppressed by the repeat-error cool-down.",
		}),
	}
}

// NewNop returns metrics registered on a private registry, for
// callers that do not export metrics.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
