package cluster

import (
	"fmt"
	"time"

	"github.com/dd0wney/cluso-host/pkg/backoff"
)

// ClusterIDKey is the well-known key holding the cluster id record
const ClusterIDKey = "cluster_id"

// Mode is the operating mode handed to the host by leader election
type Mode int

const (
	// ModeFollower discovers the cluster id from the store
	ModeFollower Mode = iota
	// ModeLeader publishes the cluster id and runs reconciliation
	ModeLeader
)

// String returns the string representation of a Mode
func (m Mode) String() string {
	switch m {
	case ModeFollower:
		return "follower"
	case ModeLeader:
		return "leader"
	default:
		return "unknown"
	}
}

// ParseMode converts "leader" or "follower" to a Mode
func ParseMode(s string) (Mode, error) {
	switch s {
	case "leader":
		return ModeLeader, nil
	case "follower":
		return ModeFollower, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// CoordinatorConfig defines how a node negotiates the cluster id
type CoordinatorConfig struct {
	Mode      Mode
	ClusterID string // Authoritative id for a leader; generated when empty
	Key       string // Store key (default: ClusterIDKey)

	// Publish retry
	Retry          backoff.Policy // default: 8 attempts from 250ms
	AttemptTimeout time.Duration  // bound on a single Set call (default: 10s)
}

// DefaultCoordinatorConfig returns the default configuration for mode
func DefaultCoordinatorConfig(mode Mode) CoordinatorConfig {
	return CoordinatorConfig{
		Mode:           mode,
		Key:            ClusterIDKey,
		Retry:          backoff.Default(),
		AttemptTimeout: 10 * time.Second,
	}
}

// Validate checks if configuration is valid
func (c *CoordinatorConfig) Validate() error {
	if c.Mode != ModeLeader && c.Mode != ModeFollower {
		return fmt.Errorf("%w: %d", ErrInvalidMode, c.Mode)
	}
	if c.Key == "" {
		return ErrEmptyKey
	}
	if c.Retry.MaxAttempts < 1 {
		return ErrInvalidRetryPolicy
	}
	if c.Retry.Initial <= 0 {
		return ErrInvalidRetryPolicy
	}
	if c.AttemptTimeout < 0 {
		return ErrInvalidAttemptTimeout
	}
	return nil
}
