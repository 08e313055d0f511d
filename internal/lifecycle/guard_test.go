package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Iron-Ham/opcoord/internal/debounce"
	"github.com/Iron-Ham/opcoord/internal/errors"
	"github.com/Iron-Ham/opcoord/internal/event"
	"github.com/Iron-Ham/opcoord/internal/operation"
	"github.com/Iron-Ham/opcoord/internal/testutil"
)

func fakeScheduler(clock *testutil.FakeClock) debounce.Scheduler {
	return func(d time.Duration, fn func()) debounce.Timer { return clock.Schedule(d, fn) }
}

func newTestEnvironment(opts ...EnvironmentOption) (*Environment, *testutil.FakeClock) {
	clock := testutil.NewFakeClock()
	opts = append([]EnvironmentOption{WithScheduler(fakeScheduler(clock))}, opts...)
	return NewEnvironment(opts...), clock
}

// startGuarded submits op with a guard attached and leaves it executing.
func startGuarded(t *testing.T, env *Environment, opts ...GuardOption) (*Guard, *operation.Operation) {
	t.Helper()

	var running *operation.Operation
	op := operation.New("upload", func(ctx context.Context, op *operation.Operation) {
		running = op
	})
	guard := NewGuard(env, opts...)
	if err := guard.AttachTo(op); err != nil {
		t.Fatalf("AttachTo failed: %v", err)
	}
	if err := op.Bind(operation.Binding{ID: "op-1"}); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	op.Advance(operation.StateEvaluating)
	op.Advance(operation.StateReady)
	if err := op.Execute(context.Background()); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if running == nil {
		t.Fatal("body did not run")
	}
	return guard, running
}

func TestGuard_BackgroundForegroundBackground(t *testing.T) {
	env, _ := newTestEnvironment()
	bus := event.NewBus()
	rec := &testutil.Recorder{}
	bus.Subscribe(event.TypeGrantBegun, func(e event.Event) { rec.Add("begun") })
	bus.Subscribe(event.TypeGrantEnded, func(e event.Event) {
		rec.Add("ended:" + e.(event.GrantEndedEvent).Reason)
	})

	guard, op := startGuarded(t, env, WithGuardBus(bus))

	env.EnterBackground()
	if !guard.Guarded() || env.Outstanding() != 1 {
		t.Fatalf("after background: Guarded()=%v Outstanding()=%d", guard.Guarded(), env.Outstanding())
	}

	env.EnterBackground() // duplicate notification
	if got := guard.Stats().Begun; got != 1 {
		t.Errorf("duplicate background began %d grants, want 1", got)
	}

	env.EnterForeground()
	if guard.Guarded() || env.Outstanding() != 0 {
		t.Fatalf("after foreground: Guarded()=%v Outstanding()=%d", guard.Guarded(), env.Outstanding())
	}

	env.EnterBackground()
	if !guard.Guarded() {
		t.Fatal("second background should begin a new grant")
	}

	if err := op.Finish(); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}

	stats := guard.Stats()
	if stats.Begun != 2 || stats.Ended != 2 {
		t.Errorf("Stats() = %+v, want 2 begun and 2 ended", stats)
	}
	if env.Outstanding() != 0 {
		t.Errorf("Outstanding() = %d after finish, want 0", env.Outstanding())
	}
	envStats := env.Stats()
	if envStats.Begun != envStats.Ended {
		t.Errorf("environment begun=%d ended=%d, want equal", envStats.Begun, envStats.Ended)
	}

	want := []string{"begun", "ended:foreground", "begun", "ended:finished"}
	got := rec.Entries()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestGuard_Expiration(t *testing.T) {
	env, clock := newTestEnvironment(WithGrantBudget(30 * time.Second))
	guard, op := startGuarded(t, env)

	env.EnterBackground()
	clock.Advance(29 * time.Second)
	if !guard.Guarded() {
		t.Fatal("grant expired early")
	}

	clock.Advance(time.Second)
	if guard.Guarded() {
		t.Fatal("grant should be released on expiration")
	}
	if env.Outstanding() != 0 {
		t.Errorf("Outstanding() = %d after expiration, want 0", env.Outstanding())
	}

	// Foreground and finish find nothing outstanding.
	env.EnterForeground()
	_ = op.Finish()

	stats := guard.Stats()
	if stats.Begun != 1 || stats.Ended != 1 || stats.Expired != 1 {
		t.Errorf("Stats() = %+v, want 1 begun, 1 ended, 1 expired", stats)
	}
	if env.Stats().Expired != 1 {
		t.Errorf("environment Expired = %d, want 1", env.Stats().Expired)
	}
}

func TestGuard_AlreadyInBackground(t *testing.T) {
	env, _ := newTestEnvironment()
	env.EnterBackground()

	guard := NewGuard(env)
	if !guard.Guarded() {
		t.Fatal("guard created in background should begin a grant immediately")
	}

	guard.OnFinish(nil, nil)
	if guard.Guarded() || env.Outstanding() != 0 {
		t.Error("OnFinish should release the grant")
	}
}

func TestGuard_IgnoresTransitionsAfterFinish(t *testing.T) {
	env, _ := newTestEnvironment()
	guard, op := startGuarded(t, env)

	if err := op.Finish(); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	env.EnterBackground()

	if guard.Guarded() || guard.Stats().Begun != 0 {
		t.Error("finished guard should not begin grants")
	}
}

func TestGuard_CancelledOperationReleases(t *testing.T) {
	env, _ := newTestEnvironment()
	env.EnterBackground()

	op := operation.New("queued", nil)
	guard := NewGuard(env)
	if err := guard.AttachTo(op); err != nil {
		t.Fatalf("AttachTo failed: %v", err)
	}
	if err := op.Bind(operation.Binding{ID: "q"}); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	if !op.Cancel() {
		t.Fatal("Cancel() = false")
	}

	if env.Outstanding() != 0 {
		t.Errorf("Outstanding() = %d after cancellation, want 0", env.Outstanding())
	}
	if s := guard.Stats(); s.Begun != s.Ended {
		t.Errorf("Stats() = %+v, want balanced", s)
	}
}

func TestGuard_ReleaseRace(t *testing.T) {
	for i := 0; i < 100; i++ {
		env, clock := newTestEnvironment(WithGrantBudget(time.Millisecond))
		guard, op := startGuarded(t, env)
		env.EnterBackground()

		var wg sync.WaitGroup
		wg.Add(3)
		go func() { defer wg.Done(); _ = op.Finish() }()
		go func() { defer wg.Done(); env.EnterForeground() }()
		go func() { defer wg.Done(); clock.Advance(time.Millisecond) }()
		wg.Wait()

		stats := guard.Stats()
		if stats.Begun != 1 || stats.Ended != 1 {
			t.Fatalf("iteration %d: Stats() = %+v, want exactly one begin and one end", i, stats)
		}
		if env.Outstanding() != 0 {
			t.Fatalf("iteration %d: Outstanding() = %d", i, env.Outstanding())
		}
	}
}

type refusingHost struct {
	*Environment
}

func (refusingHost) BeginGrant(string, func()) (GrantID, error) {
	return 0, errors.ErrGrantUnavailable
}

func TestGuard_GrantRefused(t *testing.T) {
	env, _ := newTestEnvironment()
	guard := NewGuard(refusingHost{env})

	env.EnterBackground()
	if guard.Guarded() {
		t.Error("guard should not be guarded when the host refuses")
	}
	guard.OnFinish(nil, nil)
	if s := guard.Stats(); s.Begun != 0 || s.Ended != 0 {
		t.Errorf("Stats() = %+v, want zero", s)
	}
}

func TestGuard_SubscriberReadsGuardOnBegin(t *testing.T) {
	env, _ := newTestEnvironment()
	bus := event.NewBus()

	var guard *Guard
	var guardedAtBegin atomic.Bool
	bus.Subscribe(event.TypeGrantBegun, func(event.Event) {
		guardedAtBegin.Store(guard.Guarded())
	})
	guard, _ = startGuarded(t, env, WithGuardBus(bus))

	done := make(chan struct{})
	go func() {
		defer close(done)
		env.EnterBackground()
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("EnterBackground blocked while a grant.begun subscriber read the guard")
	}
	if !guardedAtBegin.Load() {
		t.Error("Guarded() = false inside grant.begun handler, want true")
	}
}
