package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every metric the host exports
type Registry struct {
	// Identity metrics
	HostReady                   prometheus.Gauge
	ClusterIDPublishAttempts    *prometheus.CounterVec
	ClusterIDPublishDuration    prometheus.Histogram
	ClusterIDChangesTotal       *prometheus.CounterVec
	ClusterIDSubscriptionErrors prometheus.Counter
	ReadyCallbacksTotal         prometheus.Counter

	// Reconciliation metrics (leader only)
	ReconcileRunsTotal   *prometheus.CounterVec
	ReconcileRunDuration *prometheus.HistogramVec

	// Host role
	HostRole *prometheus.GaugeVec

	registry *prometheus.Registry
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the global metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a registry with all metrics initialized. Tests create
// their own so counters do not bleed between cases.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
	}

	r.initIdentityMetrics()
	r.initReconcileMetrics()
	r.initRuntimeMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
