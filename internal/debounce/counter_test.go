package debounce

import (
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/opcoord/internal/errors"
	"github.com/Iron-Ham/opcoord/internal/testutil"
)

// effects counts show and hide calls.
type effects struct {
	mu    sync.Mutex
	shows int
	hides int
	order []string
}

func (e *effects) show() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.shows++
	e.order = append(e.order, "show")
}

func (e *effects) hide() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hides++
	e.order = append(e.order, "hide")
}

func (e *effects) counts() (int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.shows, e.hides
}

func fakeScheduler(clock *testutil.FakeClock) Scheduler {
	return func(d time.Duration, fn func()) Timer { return clock.Schedule(d, fn) }
}

func newTestCounter(opts ...Option) (*Counter, *effects, *testutil.FakeClock) {
	fx := &effects{}
	clock := testutil.NewFakeClock()
	opts = append([]Option{WithScheduler(fakeScheduler(clock))}, opts...)
	return New(fx.show, fx.hide, opts...), fx, clock
}

func TestCounter_ShowIsSynchronous(t *testing.T) {
	c, fx, _ := newTestCounter()

	c.Increment()
	if shows, _ := fx.counts(); shows != 1 {
		t.Fatalf("show fired %d times after first Increment, want 1", shows)
	}
	if !c.Visible() || c.Count() != 1 {
		t.Errorf("Visible()=%v Count()=%d, want true/1", c.Visible(), c.Count())
	}

	c.Increment()
	if shows, _ := fx.counts(); shows != 1 {
		t.Errorf("show fired %d times after second Increment, want 1", shows)
	}
}

func TestCounter_HideIsDelayed(t *testing.T) {
	c, fx, clock := newTestCounter()

	c.Increment()
	c.Increment()
	if err := c.Decrement(); err != nil {
		t.Fatalf("Decrement failed: %v", err)
	}
	if err := c.Decrement(); err != nil {
		t.Fatalf("Decrement failed: %v", err)
	}

	if _, hides := fx.counts(); hides != 0 {
		t.Fatal("hide fired before the delay elapsed")
	}
	if !c.Pending() {
		t.Error("a hide should be pending")
	}

	clock.Advance(999 * time.Millisecond)
	if _, hides := fx.counts(); hides != 0 {
		t.Fatal("hide fired before one second")
	}

	clock.Advance(time.Millisecond)
	shows, hides := fx.counts()
	if shows != 1 || hides != 1 {
		t.Errorf("shows=%d hides=%d, want 1/1", shows, hides)
	}
	if c.Visible() || c.Pending() {
		t.Error("counter should be hidden with no pending timer")
	}

	clock.Advance(10 * time.Second)
	if _, hides := fx.counts(); hides != 1 {
		t.Errorf("hide fired %d times, want exactly 1", hides)
	}
}

func TestCounter_IncrementDuringWindowSuppressesHide(t *testing.T) {
	c, fx, clock := newTestCounter()

	c.Increment()
	if err := c.Decrement(); err != nil {
		t.Fatalf("Decrement failed: %v", err)
	}
	clock.Advance(500 * time.Millisecond)
	c.Increment()
	clock.Advance(5 * time.Second)

	shows, hides := fx.counts()
	if shows != 1 {
		t.Errorf("show fired %d times, want 1", shows)
	}
	if hides != 0 {
		t.Errorf("hide fired %d times, want 0", hides)
	}
	if c.Count() != 1 {
		t.Errorf("Count() = %d, want 1", c.Count())
	}
	if !c.Visible() {
		t.Error("counter should remain visible")
	}
}

func TestCounter_StaleTimerIgnored(t *testing.T) {
	var fire func()
	sched := func(d time.Duration, fn func()) Timer {
		fire = fn
		return stopNoop{}
	}
	fx := &effects{}
	c := New(fx.show, fx.hide, WithScheduler(sched))

	c.Increment()
	_ = c.Decrement()
	stale := fire

	// The timer was already dispatched when Increment tried to stop it.
	c.Increment()
	stale()

	if _, hides := fx.counts(); hides != 0 {
		t.Errorf("stale timer fired hide %d times", hides)
	}
	if !c.Visible() {
		t.Error("counter should still be visible")
	}
}

type stopNoop struct{}

func (stopNoop) Stop() bool { return false }

func TestCounter_Underflow(t *testing.T) {
	c, fx, _ := newTestCounter()

	err := c.Decrement()
	if !errors.Is(err, errors.ErrCounterUnderflow) {
		t.Errorf("Decrement at zero = %v, want ErrCounterUnderflow", err)
	}
	if !errors.IsContractViolation(err) {
		t.Error("underflow should be a contract violation")
	}
	if c.Count() != 0 {
		t.Errorf("Count() = %d, want 0", c.Count())
	}
	if shows, hides := fx.counts(); shows != 0 || hides != 0 {
		t.Errorf("effects fired on underflow: shows=%d hides=%d", shows, hides)
	}
}

func TestCounter_UnderflowPanicsInStrictMode(t *testing.T) {
	c, _, _ := newTestCounter(WithStrict(true))

	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic on underflow in strict mode")
		}
	}()
	_ = c.Decrement()
}

func TestCounter_Close(t *testing.T) {
	c, fx, clock := newTestCounter()

	c.Increment()
	_ = c.Decrement()
	c.Close()
	clock.Advance(2 * time.Second)

	if _, hides := fx.counts(); hides != 0 {
		t.Error("hide fired after Close")
	}
	if c.Pending() {
		t.Error("Close should clear the pending timer")
	}
}

func TestCounter_BalancedSequences(t *testing.T) {
	tests := []struct {
		name      string
		steps     string // '+' increment, '-' decrement, 'w' wait past delay
		wantShows int
		wantHides int
	}{
		{name: "single pair", steps: "+-w", wantShows: 1, wantHides: 1},
		{name: "nested", steps: "++--w", wantShows: 1, wantHides: 1},
		{name: "two bursts", steps: "+-w+-w", wantShows: 2, wantHides: 2},
		{name: "flicker coalesced", steps: "+-+-+-w", wantShows: 1, wantHides: 1},
		{name: "still busy", steps: "++-w", wantShows: 1, wantHides: 0},
		{name: "no wait", steps: "+-", wantShows: 1, wantHides: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, fx, clock := newTestCounter()
			for _, s := range tt.steps {
				switch s {
				case '+':
					c.Increment()
				case '-':
					if err := c.Decrement(); err != nil {
						t.Fatalf("Decrement failed: %v", err)
					}
				case 'w':
					clock.Advance(DefaultDelay)
				}
			}
			shows, hides := fx.counts()
			if shows != tt.wantShows || hides != tt.wantHides {
				t.Errorf("shows=%d hides=%d, want %d/%d", shows, hides, tt.wantShows, tt.wantHides)
			}
		})
	}
}

func TestCounter_ConcurrentUse(t *testing.T) {
	fx := &effects{}
	c := New(fx.show, fx.hide, WithDelay(20*time.Millisecond))
	defer c.Close()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Increment()
				if err := c.Decrement(); err != nil {
					t.Errorf("Decrement failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if c.Count() != 0 {
		t.Fatalf("Count() = %d, want 0", c.Count())
	}

	deadline := time.Now().Add(2 * time.Second)
	for c.Visible() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if c.Visible() {
		t.Fatal("counter never hid")
	}

	fx.mu.Lock()
	defer fx.mu.Unlock()
	if fx.shows != fx.hides {
		t.Errorf("shows=%d hides=%d, want equal", fx.shows, fx.hides)
	}
	for i, e := range fx.order {
		want := "show"
		if i%2 == 1 {
			want = "hide"
		}
		if e != want {
			t.Fatalf("effect %d = %s, want alternating show/hide: %v", i, e, fx.order)
		}
	}
}
