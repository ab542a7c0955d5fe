package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-host/pkg/cluster"
	"github.com/dd0wney/cluso-host/pkg/logging"
	"github.com/dd0wney/cluso-host/pkg/metrics"
)

type fakeAPI struct {
	constraints atomic.Int64
	liveliness  atomic.Int64
	block       chan struct{}
	err         error
}

func (f *fakeAPI) EnforceAllConstraints(ctx context.Context) error {
	f.constraints.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.err
}

func (f *fakeAPI) EnforceNodeLiveliness(ctx context.Context) error {
	f.liveliness.Add(1)
	return f.err
}

func TestScheduler_LeaderRunsBothTasks(t *testing.T) {
	api := &fakeAPI{}
	reg := metrics.NewRegistry()
	s := New(api, cluster.ModeLeader, WithInterval(10*time.Millisecond), WithMetrics(reg))

	require.True(t, s.Start(context.Background()))
	defer s.Stop()
	assert.True(t, s.Running())

	assert.Eventually(t, func() bool {
		return api.constraints.Load() >= 3 && api.liveliness.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond)

	assert.Greater(t, testutil.ToFloat64(reg.ReconcileRunsTotal.WithLabelValues(TaskConstraints, "success")), float64(0))
}

func TestScheduler_FollowerNeverRuns(t *testing.T) {
	api := &fakeAPI{}
	s := New(api, cluster.ModeFollower, WithInterval(time.Millisecond), WithMetrics(metrics.NewRegistry()))

	assert.False(t, s.Start(context.Background()))
	assert.False(t, s.Running())

	time.Sleep(30 * time.Millisecond)
	s.Stop()

	assert.Zero(t, api.constraints.Load())
	assert.Zero(t, api.liveliness.Load())
}

func TestScheduler_StopHaltsCalls(t *testing.T) {
	api := &fakeAPI{}
	s := New(api, cluster.ModeLeader, WithInterval(5*time.Millisecond), WithMetrics(metrics.NewRegistry()))
	s.Start(context.Background())

	require.Eventually(t, func() bool { return api.constraints.Load() > 0 }, time.Second, time.Millisecond)
	s.Stop()
	s.Stop()

	after := api.constraints.Load() + api.liveliness.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, api.constraints.Load()+api.liveliness.Load(), "no calls after Stop")
	assert.False(t, s.Running())
}

func TestScheduler_OverlappingCallsAllowed(t *testing.T) {
	api := &fakeAPI{block: make(chan struct{})}
	s := New(api, cluster.ModeLeader, WithInterval(5*time.Millisecond), WithMetrics(metrics.NewRegistry()))
	s.Start(context.Background())

	// The first constraints call never returns; ticks keep firing
	assert.Eventually(t, func() bool { return api.constraints.Load() >= 3 }, 2*time.Second, time.Millisecond)
	assert.Eventually(t, func() bool { return api.liveliness.Load() >= 3 }, 2*time.Second, time.Millisecond)

	// Stop cancels the blocked calls' context and waits for them
	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return while calls were blocked")
	}
}

func TestScheduler_FailuresAreLoggedAndLoopContinues(t *testing.T) {
	api := &fakeAPI{err: errors.New("orchestrator down")}
	rec := logging.NewRecorder()
	reg := metrics.NewRegistry()
	s := New(api, cluster.ModeLeader, WithInterval(5*time.Millisecond), WithLogger(rec), WithMetrics(reg))
	s.Start(context.Background())
	defer s.Stop()

	assert.Eventually(t, func() bool { return api.constraints.Load() >= 3 }, 2*time.Second, time.Millisecond)
	assert.Eventually(t, func() bool { return rec.Count(logging.WarnLevel) >= 3 }, 2*time.Second, time.Millisecond)
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(reg.ReconcileRunsTotal.WithLabelValues(TaskLiveliness, "failure")) > 0
	}, 2*time.Second, time.Millisecond)
}

func TestScheduler_DoubleStartAndRestart(t *testing.T) {
	api := &fakeAPI{}
	s := New(api, cluster.ModeLeader, WithInterval(5*time.Millisecond), WithMetrics(metrics.NewRegistry()))

	require.True(t, s.Start(context.Background()))
	assert.False(t, s.Start(context.Background()), "already running")
	s.Stop()

	require.True(t, s.Start(context.Background()))
	defer s.Stop()
	before := api.liveliness.Load()
	assert.Eventually(t, func() bool { return api.liveliness.Load() > before }, time.Second, time.Millisecond)
}

func TestScheduler_ParentContextCancels(t *testing.T) {
	api := &fakeAPI{}
	ctx, cancel := context.WithCancel(context.Background())
	s := New(api, cluster.ModeLeader, WithInterval(5*time.Millisecond), WithMetrics(metrics.NewRegistry()))
	s.Start(ctx)

	require.Eventually(t, func() bool { return api.constraints.Load() > 0 }, time.Second, time.Millisecond)
	cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Stop()
	}()
	wg.Wait()
}

func TestNew_Defaults(t *testing.T) {
	s := New(&fakeAPI{}, cluster.ModeLeader, WithInterval(0))
	assert.Equal(t, DefaultInterval, s.Interval())
}
