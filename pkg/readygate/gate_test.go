package readygate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dd0wney/cluso-host/pkg/logging"
)

func TestGate_QueuesUntilReady(t *testing.T) {
	g := New()

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		g.OnReady(func() { order = append(order, i) })
	}

	if len(order) != 0 {
		t.Fatalf("callbacks fired before ready: %v", order)
	}
	if g.Pending() != 5 {
		t.Errorf("Pending() = %d, want 5", g.Pending())
	}

	if !g.MarkReady() {
		t.Fatal("first MarkReady should report the transition")
	}

	want := []int{0, 1, 2, 3, 4}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
	if g.Pending() != 0 {
		t.Errorf("queue not cleared: %d", g.Pending())
	}
}

func TestGate_ImmediateAfterReady(t *testing.T) {
	g := New()
	g.MarkReady()

	called := 0
	g.OnReady(func() { called++ })

	if called != 1 {
		t.Errorf("callback called %d times, want 1", called)
	}
	if g.Pending() != 0 {
		t.Error("callback registered after ready must not be queued")
	}
}

func TestGate_MarkReadyIdempotent(t *testing.T) {
	g := New()

	called := 0
	g.OnReady(func() { called++ })

	g.MarkReady()
	if g.MarkReady() {
		t.Error("second MarkReady should be a no-op")
	}
	g.MarkReady()

	if called != 1 {
		t.Errorf("callback called %d times, want 1", called)
	}
	if !g.IsReady() {
		t.Error("gate should stay ready")
	}
}

func TestGate_ReentrantRegistrationDuringDrain(t *testing.T) {
	g := New()

	var order []string
	g.OnReady(func() {
		order = append(order, "first")
		g.OnReady(func() { order = append(order, "nested") })
	})
	g.OnReady(func() { order = append(order, "second") })

	g.MarkReady()

	want := []string{"first", "second", "nested"}
	if len(order) != 3 || order[0] != want[0] || order[1] != want[1] || order[2] != want[2] {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestGate_OnceUnsupportedEvent(t *testing.T) {
	rec := logging.NewRecorder()
	g := New(WithLogger(rec))

	called := false
	g.Once(Event("shutdown"), func() { called = true })
	g.MarkReady()

	if called {
		t.Error("callback for unsupported event must never run")
	}
	if rec.Count(logging.WarnLevel) != 1 {
		t.Errorf("expected one warning, got %d", rec.Count(logging.WarnLevel))
	}
}

func TestGate_OnceReady(t *testing.T) {
	g := New()

	called := false
	g.Once(EventReady, func() { called = true })
	g.MarkReady()

	if !called {
		t.Error("ready callback did not run")
	}
}

func TestGate_WaitAndDone(t *testing.T) {
	g := New()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := g.Wait(ctx); err == nil {
		t.Fatal("Wait should time out while pending")
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		g.MarkReady()
	}()

	select {
	case <-g.Done():
	case <-time.After(time.Second):
		t.Fatal("Done() not closed after MarkReady")
	}
	if err := g.Wait(context.Background()); err != nil {
		t.Errorf("Wait after ready = %v", err)
	}
}

func TestGate_CallbackHook(t *testing.T) {
	fired := 0
	g := New(WithCallbackHook(func() { fired++ }))

	g.OnReady(func() {})
	g.MarkReady()
	g.OnReady(func() {})

	if fired != 2 {
		t.Errorf("hook fired %d times, want 2", fired)
	}
}

// TestGate_ConcurrentRegistration checks that no callback is lost or
// doubled when registrations race with MarkReady.
func TestGate_ConcurrentRegistration(t *testing.T) {
	g := New()

	const n = 200
	var mu sync.Mutex
	counts := make(map[int]int)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			g.OnReady(func() {
				mu.Lock()
				counts[i]++
				mu.Unlock()
			})
		}(i)
		if i == n/2 {
			go g.MarkReady()
		}
	}
	wg.Wait()
	g.MarkReady()

	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		done := len(counts) == n
		mu.Unlock()
		if done || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(counts) != n {
		t.Fatalf("%d callbacks fired, want %d", len(counts), n)
	}
	for i, c := range counts {
		if c != 1 {
			t.Errorf("callback %d fired %d times", i, c)
		}
	}
}
