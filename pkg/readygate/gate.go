// Package readygate defers callers until the host has an agreed cluster id.
//
// A Gate starts pending. Callbacks registered while pending are queued in
// registration order. The first MarkReady drains the queue exactly once and
// every later registration runs immediately. A Gate never returns to
// pending.
package readygate

import (
	"context"
	"sync"

	"github.com/dd0wney/cluso-host/pkg/logging"
)

// Event names a host lifecycle event. Only EventReady exists.
type Event string

// EventReady fires once the cluster id is known
const EventReady Event = "ready"

// Gate queues callbacks until readiness is reached.
type Gate struct {
	mu       sync.Mutex
	ready    bool
	draining bool
	queue    []func()
	done     chan struct{}

	logger  logging.Logger
	onFired func()
}

// Option configures a Gate
type Option func(*Gate)

// WithLogger sets the logger used for unsupported-event warnings
func WithLogger(l logging.Logger) Option {
	return func(g *Gate) { g.logger = l }
}

// WithCallbackHook is called after every ready callback returns
func WithCallbackHook(fn func()) Option {
	return func(g *Gate) { g.onFired = fn }
}

// New creates a pending Gate
func New(opts ...Option) *Gate {
	g := &Gate{
		done:   make(chan struct{}),
		logger: logging.NewNopLogger(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// OnReady runs cb now if the gate is open, otherwise queues it.
func (g *Gate) OnReady(cb func()) {
	if cb == nil {
		return
	}

	g.mu.Lock()
	// While draining, appending keeps FIFO order: the drain loop picks it up
	if !g.ready || g.draining {
		g.queue = append(g.queue, cb)
		g.mu.Unlock()
		return
	}
	g.mu.Unlock()

	g.invoke(cb)
}

// Once registers cb for the named event. Unknown events are logged and
// ignored so callers probing several event names keep working.
func (g *Gate) Once(event Event, cb func()) {
	if event != EventReady {
		g.logger.Warn("unsupported event type, ignoring registration",
			logging.String("event", string(event)),
			logging.String("supported", string(EventReady)))
		return
	}
	g.OnReady(cb)
}

// MarkReady opens the gate. It reports whether this call did the
// transition; later calls are no-ops.
func (g *Gate) MarkReady() bool {
	g.mu.Lock()
	if g.ready {
		g.mu.Unlock()
		return false
	}
	g.ready = true
	g.draining = true
	close(g.done)

	for {
		if len(g.queue) == 0 {
			g.draining = false
			g.mu.Unlock()
			return true
		}
		cb := g.queue[0]
		g.queue[0] = nil
		g.queue = g.queue[1:]
		g.mu.Unlock()

		g.invoke(cb)

		g.mu.Lock()
	}
}

func (g *Gate) invoke(cb func()) {
	cb()
	if g.onFired != nil {
		g.onFired()
	}
}

// IsReady reports whether MarkReady has been called
func (g *Gate) IsReady() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ready
}

// Pending returns the number of queued callbacks
func (g *Gate) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.queue)
}

// Done is closed when the gate opens
func (g *Gate) Done() <-chan struct{} {
	return g.done
}

// Wait blocks until the gate opens or ctx is done
func (g *Gate) Wait(ctx context.Context) error {
	select {
	case <-g.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
