package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initReconcileMetrics() {
	r.ReconcileRunsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "cluso_host_reconcile_runs_total",
			Help: "Periodic reconciliation calls issued by the leader",
		},
		[]string{"task", "result"}, // task: constraints, liveliness
	)

	r.ReconcileRunDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cluso_host_reconcile_run_duration_seconds",
			Help:    "Duration of periodic reconciliation calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"task"},
	)
}

func (r *Registry) initRuntimeMetrics() {
	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}
