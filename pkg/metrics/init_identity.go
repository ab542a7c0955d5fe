package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initIdentityMetrics() {
	r.HostReady = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "cluso_host_ready",
			Help: "Whether this host has an agreed cluster id (1=ready, 0=pending)",
		},
	)

	r.ClusterIDPublishAttempts = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "cluso_host_cluster_id_publish_attempts_total",
			Help: "Attempts to write the cluster id to the distributed store",
		},
		[]string{"result"}, // success, failure
	)

	r.ClusterIDPublishDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cluso_host_cluster_id_publish_duration_seconds",
			Help:    "Time from the first publish attempt to success or exhaustion",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
		},
	)

	r.ClusterIDChangesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "cluso_host_cluster_id_changes_total",
			Help: "Times the local cluster id was set",
		},
		[]string{"source"}, // publish, read, subscription
	)

	r.ClusterIDSubscriptionErrors = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "cluso_host_cluster_id_subscription_errors_total",
			Help: "Errors received on the cluster id subscription, including suppressed ones",
		},
	)

	r.ReadyCallbacksTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "cluso_host_ready_callbacks_total",
			Help: "Ready callbacks invoked",
		},
	)

	r.HostRole = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cluso_host_role",
			Help: "Operating mode of this host (1 for current mode, 0 otherwise)",
		},
		[]string{"mode"}, // leader, follower
	)
}
