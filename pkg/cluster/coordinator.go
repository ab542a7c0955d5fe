package cluster

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/dd0wney/cluso-host/pkg/backoff"
	"github.com/dd0wney/cluso-host/pkg/kvstore"
	"github.com/dd0wney/cluso-host/pkg/logging"
	"github.com/dd0wney/cluso-host/pkg/metrics"
	"github.com/dd0wney/cluso-host/pkg/readygate"
)

// Sources reported when the local cluster id changes
const (
	SourcePublish      = "publish"
	SourceRead         = "read"
	SourceSubscription = "subscription"
)

// Coordinator agrees on a single cluster id with the rest of the cluster
// and keeps the local copy current.
//
// Leaders publish their id with bounded retry; followers read the record
// and subscribe to changes. Either path opens the ready gate on the first
// known id. After a successful publish a leader also subscribes, so a
// concurrent external write wins on every node (last writer wins).
//
// Concurrent Safety:
// 1. The protocol runs on one goroutine; subscription events are handled in delivery order
// 2. clusterID is written only by that goroutine and read under mu
// 3. Start/Stop are guarded by sync.Once
type Coordinator struct {
	config CoordinatorConfig
	store  kvstore.Store
	gate   *readygate.Gate
	logger logging.Logger
	sleep  backoff.SleepFunc
	newID  func() string
	onSet  func(id string)

	mu        sync.RWMutex
	clusterID string
	publish   string // id a leader publishes, fixed at construction
	err       error  // terminal negotiation error
	started   bool

	// Subscription error streak, touched only by the protocol goroutine
	inErrorStreak bool
	lastSubErr    string

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	stopped   chan struct{}
	settled   chan struct{}

	metricsRegistry *metrics.Registry
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithLogger sets the logger
func WithLogger(l logging.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithMetrics sets the metrics registry
func WithMetrics(r *metrics.Registry) Option {
	return func(c *Coordinator) { c.metricsRegistry = r }
}

// WithSleepFunc replaces the timer used between publish attempts
func WithSleepFunc(fn backoff.SleepFunc) Option {
	return func(c *Coordinator) { c.sleep = fn }
}

// WithIDGenerator replaces the generator used by a leader without an id
func WithIDGenerator(fn func() string) Option {
	return func(c *Coordinator) { c.newID = fn }
}

// WithChangeHook is called with every new local cluster id
func WithChangeHook(fn func(id string)) Option {
	return func(c *Coordinator) { c.onSet = fn }
}

// NewCoordinator creates a coordinator. A leader configured without a
// cluster id gets a freshly generated one here, before anything is
// published.
func NewCoordinator(config CoordinatorConfig, store kvstore.Store, gate *readygate.Gate, opts ...Option) (*Coordinator, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if gate == nil {
		return nil, ErrNilGate
	}
	if config.Key == "" {
		config.Key = ClusterIDKey
	}
	if config.Retry == (backoff.Policy{}) {
		config.Retry = backoff.Default()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	c := &Coordinator{
		config:          config,
		store:           store,
		gate:            gate,
		logger:          logging.NewNopLogger(),
		sleep:           backoff.Sleep,
		newID:           uuid.NewString,
		stopped:         make(chan struct{}),
		settled:         make(chan struct{}),
		metricsRegistry: metrics.DefaultRegistry(),
	}
	for _, o := range opts {
		o(c)
	}
	c.logger = c.logger.With(logging.Component("cluster-id"), logging.Mode(config.Mode.String()))

	if config.Mode == ModeLeader {
		c.publish = config.ClusterID
		if c.publish == "" {
			c.publish = c.newID()
			c.logger.Info("no cluster id supplied to leader, generated one", logging.ClusterID(c.publish))
		}
	}

	return c, nil
}

// Start launches the negotiation in the background
func (c *Coordinator) Start(ctx context.Context) error {
	err := ErrAlreadyStarted
	c.startOnce.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		c.mu.Lock()
		c.cancel = cancel
		c.started = true
		c.mu.Unlock()

		go func() {
			defer close(c.stopped)
			c.run(runCtx)
		}()
		err = nil
	})
	return err
}

// Stop cancels the negotiation and subscription and waits for them to exit
func (c *Coordinator) Stop() {
	c.mu.RLock()
	cancel, started := c.cancel, c.started
	c.mu.RUnlock()
	if !started {
		return
	}

	c.stopOnce.Do(func() {
		cancel()
		<-c.stopped
	})
}

// run performs the protocol for the configured mode. A leader publishes and
// then watches; a follower subscribes before its point read, so a write
// landing between the two is still delivered.
func (c *Coordinator) run(ctx context.Context) {
	switch c.config.Mode {
	case ModeLeader:
		if err := c.publishClusterID(ctx); err != nil {
			c.settle(err)
			return
		}
		c.settle(nil)
		c.watch(ctx, c.subscribe(ctx))
	default:
		events := c.subscribe(ctx)
		c.discover(ctx)
		c.settle(nil)
		c.watch(ctx, events)
	}
}

func (c *Coordinator) settle(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	close(c.settled)
}

// adopt replaces the local cluster id and opens the gate
func (c *Coordinator) adopt(id, source string) {
	c.mu.Lock()
	prev := c.clusterID
	c.clusterID = id
	c.mu.Unlock()

	c.metricsRegistry.RecordClusterIDChange(source)
	if prev != id {
		c.logger.Info("cluster id set",
			logging.ClusterID(id),
			logging.String("previous", prev),
			logging.String("source", source))
		if c.onSet != nil {
			c.onSet(id)
		}
	}

	if c.gate.MarkReady() {
		c.metricsRegistry.SetReady(true)
		c.logger.Info("host ready", logging.ClusterID(id))
	}
}

// ClusterID returns the local copy of the agreed id
func (c *Coordinator) ClusterID() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.clusterID, c.clusterID != ""
}

// PublishID returns the id a leader publishes; empty for followers
func (c *Coordinator) PublishID() string {
	return c.publish
}

// Mode returns the operating mode
func (c *Coordinator) Mode() Mode {
	return c.config.Mode
}

// Key returns the store key of the cluster id record
func (c *Coordinator) Key() string {
	return c.config.Key
}

// Settled is closed once the initial publish or discovery has finished,
// successfully or not
func (c *Coordinator) Settled() <-chan struct{} {
	return c.settled
}

// Err returns the terminal negotiation error, if any. Only meaningful
// after Settled is closed.
func (c *Coordinator) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// WaitSettled blocks until Settled or ctx is done
func (c *Coordinator) WaitSettled(ctx context.Context) error {
	select {
	case <-c.settled:
		return c.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.config.AttemptTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.config.AttemptTimeout)
}
