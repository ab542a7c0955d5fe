// Package orchestration holds the contract for the orchestrator API the
// host hands to the rest of the agent, and an HTTP implementation.
package orchestration

import "context"

// API is the orchestrator handle. Both calls are idempotent and may be
// issued concurrently.
type API interface {
	// EnforceAllConstraints reconciles declared placement and resource
	// constraints against current cluster state.
	EnforceAllConstraints(ctx context.Context) error
	// EnforceNodeLiveliness evaluates every known node and evicts or flags
	// unresponsive ones.
	EnforceNodeLiveliness(ctx context.Context) error
}
