package health

import (
	"context"
	"time"
)

// SimpleCheck creates a check that always reports healthy
func SimpleCheck(name string) CheckFunc {
	return func() Check {
		return Check{
			Name:   name,
			Status: StatusHealthy,
		}
	}
}

// ReadyGateCheck reports unhealthy until the host has an agreed cluster id
func ReadyGateCheck(isReady func() bool) CheckFunc {
	return func() Check {
		check := Check{Name: "ready_gate"}
		if isReady() {
			check.Status = StatusHealthy
			check.Message = "Cluster id known"
		} else {
			check.Status = StatusUnhealthy
			check.Message = "Waiting for cluster id"
		}
		return check
	}
}

// ClusterIDCheck reports the negotiation state. A settled negotiation
// that failed (publish retries exhausted) is degraded: the process keeps
// running but will not become ready on its own.
func ClusterIDCheck(state func() (settled bool, clusterID string, err error)) CheckFunc {
	return func() Check {
		check := Check{
			Name:    "cluster_id",
			Details: make(map[string]any),
		}

		settled, id, err := state()
		check.Details["settled"] = settled
		if id != "" {
			check.Details["cluster_id"] = id
		}

		switch {
		case !settled:
			check.Status = StatusHealthy
			check.Message = "Negotiation in progress"
		case err != nil:
			check.Status = StatusDegraded
			check.Message = err.Error()
		case id == "":
			check.Status = StatusHealthy
			check.Message = "Waiting for cluster id record"
		default:
			check.Status = StatusHealthy
			check.Message = "Cluster id agreed"
		}
		return check
	}
}

// StoreCheck pings the distributed store with a bounded timeout
func StoreCheck(ping func(ctx context.Context) error, timeout time.Duration) CheckFunc {
	return func() Check {
		check := Check{Name: "store"}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := ping(ctx); err != nil {
			check.Status = StatusDegraded
			check.Message = err.Error()
		} else {
			check.Status = StatusHealthy
			check.Message = "Connected"
		}
		return check
	}
}

// ReconcilerCheck reports whether a leader's reconciliation loops run.
// Followers are always healthy.
func ReconcilerCheck(leader bool, running func() bool) CheckFunc {
	return func() Check {
		check := Check{
			Name:    "reconciler",
			Details: map[string]any{"leader": leader},
		}

		switch {
		case !leader:
			check.Status = StatusHealthy
			check.Message = "Not a leader"
		case running():
			check.Status = StatusHealthy
			check.Message = "Reconciliation running"
		default:
			check.Status = StatusDegraded
			check.Message = "Reconciliation stopped"
		}
		return check
	}
}
