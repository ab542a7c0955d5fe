// Package scheduler runs the leader-only reconciliation loops: constraint
// enforcement and node liveliness, each on its own fixed interval.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/dd0wney/cluso-host/pkg/cluster"
	"github.com/dd0wney/cluso-host/pkg/logging"
	"github.com/dd0wney/cluso-host/pkg/metrics"
	"github.com/dd0wney/cluso-host/pkg/orchestration"
)

// DefaultInterval is the period of both reconciliation tasks
const DefaultInterval = 60 * time.Second

// Task names, used in logs and metric labels
const (
	TaskConstraints = "constraints"
	TaskLiveliness  = "liveliness"
)

type task struct {
	name string
	run  func(ctx context.Context) error
}

// Scheduler owns the periodic reconciliation loops of a leader host.
//
// Each tick starts the call in its own goroutine, so a slow call never
// delays the next tick and calls may overlap; the orchestrator's
// reconciliation is idempotent. Stop cancels the loops and the in-flight
// calls' context and waits for both.
type Scheduler struct {
	api      orchestration.API
	mode     cluster.Mode
	interval time.Duration
	logger   logging.Logger
	tasks    []task

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	loops    sync.WaitGroup
	inflight sync.WaitGroup

	metricsRegistry *metrics.Registry
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithInterval overrides DefaultInterval
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.interval = d }
}

// WithLogger sets the logger
func WithLogger(l logging.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithMetrics sets the metrics registry
func WithMetrics(r *metrics.Registry) Option {
	return func(s *Scheduler) { s.metricsRegistry = r }
}

// New creates a scheduler for a host in the given mode
func New(api orchestration.API, mode cluster.Mode, opts ...Option) *Scheduler {
	s := &Scheduler{
		api:             api,
		mode:            mode,
		interval:        DefaultInterval,
		logger:          logging.NewNopLogger(),
		metricsRegistry: metrics.DefaultRegistry(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.interval <= 0 {
		s.interval = DefaultInterval
	}
	s.logger = s.logger.With(logging.Component("reconciler"))
	s.tasks = []task{
		{name: TaskConstraints, run: api.EnforceAllConstraints},
		{name: TaskLiveliness, run: api.EnforceNodeLiveliness},
	}
	return s
}

// Start launches both loops. It returns false, and does nothing, unless
// the host is a leader or the loops are already running.
func (s *Scheduler) Start(ctx context.Context) bool {
	if s.mode != cluster.ModeLeader {
		s.logger.Debug("not a leader, reconciliation disabled", logging.Mode(s.mode.String()))
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	for _, t := range s.tasks {
		s.loops.Add(1)
		go s.loop(runCtx, t)
	}

	s.logger.Info("reconciliation scheduler started", logging.Duration("interval", s.interval))
	return true
}

// Stop cancels the loops and waits for them and any in-flight call
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.loops.Wait()
	s.inflight.Wait()
	s.logger.Info("reconciliation scheduler stopped")
}

// Running reports whether the loops are active
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Interval returns the tick period
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

func (s *Scheduler) loop(ctx context.Context, t task) {
	defer s.loops.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.inflight.Add(1)
			go s.invoke(ctx, t)
		}
	}
}

func (s *Scheduler) invoke(ctx context.Context, t task) {
	defer s.inflight.Done()

	start := time.Now()
	err := t.run(ctx)
	elapsed := time.Since(start)
	s.metricsRegistry.RecordReconcileRun(t.name, err, elapsed)

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("reconciliation call failed", logging.Task(t.name), logging.Error(err), logging.Latency(elapsed))
		return
	}
	s.logger.Debug("reconciliation call finished", logging.Task(t.name), logging.Latency(elapsed))
}
