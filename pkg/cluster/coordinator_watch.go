package cluster

import (
	"context"
	"errors"

	"github.com/dd0wney/cluso-host/pkg/kvstore"
	"github.com/dd0wney/cluso-host/pkg/logging"
)

// discover reads the current record once. Failures are logged and not
// retried; the subscription covers later writes.
func (c *Coordinator) discover(ctx context.Context) {
	id, err := c.store.Get(ctx, c.config.Key)
	switch {
	case errors.Is(err, kvstore.ErrNotFound):
		c.logger.Info("no cluster id published yet, waiting for updates", logging.Key(c.config.Key))
	case err != nil:
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("failed to read distributed cluster id", logging.Key(c.config.Key), logging.Error(err))
	case id == "":
		c.logger.Warn("distributed cluster id is empty, ignoring", logging.Key(c.config.Key))
	default:
		c.adopt(id, SourceRead)
	}
}

// subscribe opens the change stream. A nil channel means it could not be
// opened; the coordinator then waits for Stop.
func (c *Coordinator) subscribe(ctx context.Context) <-chan kvstore.Event {
	events, err := c.store.Subscribe(ctx, c.config.Key)
	if err != nil {
		if ctx.Err() == nil {
			c.subscriptionError(err)
		}
		return nil
	}
	return events
}

// watch applies subscription events one at a time until ctx is done
func (c *Coordinator) watch(ctx context.Context, events <-chan kvstore.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() == nil {
					c.logger.Warn("cluster id subscription closed", logging.Key(c.config.Key))
				}
				return
			}
			c.handleEvent(ev)
		}
	}
}

func (c *Coordinator) handleEvent(ev kvstore.Event) {
	if ev.Err != nil {
		c.subscriptionError(ev.Err)
		return
	}

	c.inErrorStreak = false
	c.lastSubErr = ""

	if ev.Value == "" {
		c.logger.Warn("ignoring update", logging.Key(c.config.Key), logging.Error(ErrEmptyClusterID))
		return
	}
	c.adopt(ev.Value, SourceSubscription)
}

// subscriptionError logs once per streak of identical errors. Readiness
// is never touched.
func (c *Coordinator) subscriptionError(err error) {
	defer c.metricsRegistry.ClusterIDSubscriptionErrors.Inc()

	msg := err.Error()
	if c.inErrorStreak && msg == c.lastSubErr {
		return
	}
	c.inErrorStreak = true
	c.lastSubErr = msg

	c.logger.Error("cluster id subscription error", logging.Key(c.config.Key), logging.Error(err))
}
