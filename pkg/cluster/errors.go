package cluster

import "errors"

// Configuration errors
var (
	ErrInvalidMode           = errors.New("mode must be leader or follower")
	ErrEmptyKey              = errors.New("cluster id key cannot be empty")
	ErrInvalidRetryPolicy    = errors.New("retry policy needs at least one attempt and a positive initial delay")
	ErrInvalidAttemptTimeout = errors.New("attempt timeout cannot be negative")
	ErrNilStore              = errors.New("distributed store is required")
	ErrNilGate               = errors.New("ready gate is required")
)

// Lifecycle errors
var (
	ErrAlreadyStarted = errors.New("coordinator already started")
)

// Negotiation errors
var (
	ErrPublishExhausted = errors.New("failed to publish cluster id")
	ErrEmptyClusterID   = errors.New("received empty cluster id")
)
