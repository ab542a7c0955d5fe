package metrics

import "time"

// RecordPublishAttempt counts one write of the cluster id
func (r *Registry) RecordPublishAttempt(success bool) {
	if success {
		r.ClusterIDPublishAttempts.WithLabelValues("success").Inc()
		return
	}
	r.ClusterIDPublishAttempts.WithLabelValues("failure").Inc()
}

// RecordClusterIDChange counts a local id update from the given source
func (r *Registry) RecordClusterIDChange(source string) {
	r.ClusterIDChangesTotal.WithLabelValues(source).Inc()
}

// RecordReconcileRun records one periodic reconciliation call
func (r *Registry) RecordReconcileRun(task string, err error, duration time.Duration) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	r.ReconcileRunsTotal.WithLabelValues(task, result).Inc()
	r.ReconcileRunDuration.WithLabelValues(task).Observe(duration.Seconds())
}

// SetReady flips the readiness gauge
func (r *Registry) SetReady(ready bool) {
	if ready {
		r.HostReady.Set(1)
		return
	}
	r.HostReady.Set(0)
}

// SetHostRole sets the current operating mode
func (r *Registry) SetHostRole(mode string) {
	r.HostRole.WithLabelValues("leader").Set(0)
	r.HostRole.WithLabelValues("follower").Set(0)
	r.HostRole.WithLabelValues(mode).Set(1)
}
