// Package kvstore defines the distributed key-value contract the cluster
// id coordinator depends on, plus an in-process implementation.
//
// Backends live in sub-packages: redisstore (GET/SET with PUBLISH and
// SUBSCRIBE) and pgstore (a table with LISTEN/NOTIFY).
package kvstore

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Get when the key has no value
	ErrNotFound = errors.New("kvstore: key not found")
	// ErrClosed is returned by operations on a closed store
	ErrClosed = errors.New("kvstore: store closed")
)

// Event is one item on a subscription: either a new value or a transport
// error. Exactly one of the fields is meaningful.
type Event struct {
	Value string
	Err   error
}

// Store is a distributed register keyed by string.
//
// Set is last-writer-wins. Subscribe delivers every value written after
// the subscription is established, in the order the backend delivers
// them. The returned channel is closed when ctx is cancelled or the store
// is closed.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Subscribe(ctx context.Context, key string) (<-chan Event, error)
	Close() error
}
