// Package redisstore implements kvstore.Store on Redis. Values are plain
// string keys; every Set also PUBLISHes the value on a per-key channel in
// the same MULTI block so subscribers see writes in commit order.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dd0wney/cluso-host/pkg/kvstore"
	"github.com/dd0wney/cluso-host/pkg/logging"
)

const (
	defaultChannelPrefix = "cluso:kv:"
	defaultErrorPause    = time.Second
)

var _ kvstore.Store = (*Store)(nil)

// Option configures the Store
type Option func(*Store)

// WithLogger sets a custom logger
func WithLogger(l logging.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithChannelPrefix changes the pub/sub channel namespace
func WithChannelPrefix(prefix string) Option {
	return func(s *Store) { s.channelPrefix = prefix }
}

// WithErrorPause sets how long a subscription waits after a receive
// error before reading again
func WithErrorPause(d time.Duration) Option {
	return func(s *Store) { s.errorPause = d }
}

// Store is a Redis-backed kvstore.Store. The caller owns the client.
type Store struct {
	client        redis.UniversalClient
	logger        logging.Logger
	channelPrefix string
	errorPause    time.Duration
}

// New creates a Redis-backed store
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client:        client,
		logger:        logging.NewNopLogger(),
		channelPrefix: defaultChannelPrefix,
		errorPause:    defaultErrorPause,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Ping verifies the Redis connection is alive
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Get reads key
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", kvstore.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redisstore: get %s: %w", key, err)
	}
	return v, nil
}

// Set writes key and announces the new value to subscribers
func (s *Store) Set(ctx context.Context, key, value string) error {
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, key, value, 0)
	pipe.Publish(ctx, s.channel(key), value)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisstore: set %s: %w", key, err)
	}
	return nil
}

// Subscribe streams values published for key. Receive errors are
// forwarded as events; go-redis reconnects on the next read.
func (s *Store) Subscribe(ctx context.Context, key string) (<-chan kvstore.Event, error) {
	ps := s.client.Subscribe(ctx, s.channel(key))

	// Wait for the subscription confirmation so writes after this call are seen
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("redisstore: subscribe %s: %w", key, err)
	}

	out := make(chan kvstore.Event)
	go s.receiveLoop(ctx, ps, out)
	return out, nil
}

func (s *Store) receiveLoop(ctx context.Context, ps *redis.PubSub, out chan<- kvstore.Event) {
	defer close(out)
	defer ps.Close()

	for {
		msg, err := ps.ReceiveMessage(ctx)
		if ctx.Err() != nil {
			return
		}

		ev := kvstore.Event{}
		if err != nil {
			ev.Err = fmt.Errorf("redisstore: receive: %w", err)
		} else {
			ev.Value = msg.Payload
		}

		select {
		case out <- ev:
		case <-ctx.Done():
			return
		}

		if err != nil {
			s.logger.Debug("redis subscription receive failed", logging.Error(err))
			select {
			case <-time.After(s.errorPause):
			case <-ctx.Done():
				return
			}
		}
	}
}

// Close is a no-op; the caller owns the Redis client lifecycle
func (s *Store) Close() error { return nil }

func (s *Store) channel(key string) string {
	return s.channelPrefix + key
}
