package cluster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dd0wney/cluso-host/pkg/backoff"
	"github.com/dd0wney/cluso-host/pkg/logging"
)

// publishClusterID writes the leader's id to the store with bounded
// exponential backoff. On exhaustion the local id stays unset and the
// gate stays closed; the host keeps running degraded.
func (c *Coordinator) publishClusterID(ctx context.Context) error {
	id := c.publish
	policy := c.config.Retry
	start := time.Now()

	err := backoff.Retry(ctx, policy, c.sleep,
		func(ctx context.Context, attempt int) error {
			attemptCtx, cancel := c.attemptContext(ctx)
			defer cancel()

			err := c.store.Set(attemptCtx, c.config.Key, id)
			c.metricsRegistry.RecordPublishAttempt(err == nil)
			return err
		},
		func(attempt int, err error, next time.Duration) {
			fields := []logging.Field{
				logging.Key(c.config.Key),
				logging.ClusterID(id),
				logging.Attempt(attempt+1, policy.MaxAttempts),
				logging.Error(err),
			}
			if next > 0 {
				fields = append(fields, logging.Duration("retry_in", next))
			}
			c.logger.Warn("failed to set distributed cluster id", fields...)
		},
	)
	c.metricsRegistry.ClusterIDPublishDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			c.logger.Info("cluster id publish cancelled", logging.ClusterID(id))
			return err
		}
		c.logger.Error("retries exhausted, cluster id not set; host stays not ready",
			logging.Key(c.config.Key),
			logging.ClusterID(id),
			logging.Int("attempts", policy.MaxAttempts),
			logging.Error(err))
		return fmt.Errorf("%w %q: %w", ErrPublishExhausted, id, err)
	}

	c.logger.Info("set distributed cluster id", logging.ClusterID(id), logging.Latency(time.Since(start)))
	c.adopt(id, SourcePublish)
	return nil
}
