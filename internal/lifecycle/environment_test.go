package lifecycle

import (
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/opcoord/internal/errors"
	"github.com/Iron-Ham/opcoord/internal/event"
)

func TestEnvironment_Transitions(t *testing.T) {
	bus := event.NewBus()
	var changes []bool
	bus.Subscribe(event.TypeEnvironmentChanged, func(e event.Event) {
		changes = append(changes, e.(event.EnvironmentChangedEvent).Background)
	})
	env, _ := newTestEnvironment(WithBus(bus))

	var seen []Transition
	unsubscribe := env.Subscribe(func(tr Transition) { seen = append(seen, tr) })

	env.EnterForeground() // already foreground
	env.EnterBackground()
	env.EnterBackground()
	env.Apply(EnteredForeground)

	unsubscribe()
	env.EnterBackground()

	if len(seen) != 2 || seen[0] != EnteredBackground || seen[1] != EnteredForeground {
		t.Errorf("subscriber saw %v, want [background foreground]", seen)
	}
	if len(changes) != 3 {
		t.Errorf("environment.changed published %d times, want 3", len(changes))
	}
	if !env.InBackground() {
		t.Error("InBackground() = false after final EnterBackground")
	}
}

func TestEnvironment_GrantBudget(t *testing.T) {
	env, clock := newTestEnvironment(WithGrantBudget(time.Second))

	expired := 0
	id, err := env.BeginGrant("sync", func() { expired++ })
	if err != nil {
		t.Fatalf("BeginGrant failed: %v", err)
	}
	if id == 0 {
		t.Fatal("BeginGrant returned the zero id")
	}

	clock.Advance(time.Second)
	if expired != 1 {
		t.Fatalf("onExpire called %d times, want 1", expired)
	}
	if env.Outstanding() != 1 {
		t.Error("expired grant stays outstanding until ended")
	}

	if err := env.EndGrant(id); err != nil {
		t.Errorf("EndGrant after expiry failed: %v", err)
	}
	clock.Advance(time.Hour)
	if expired != 1 {
		t.Errorf("onExpire called %d times, want 1", expired)
	}
}

func TestEnvironment_EndUnknownGrant(t *testing.T) {
	env, _ := newTestEnvironment()

	id, err := env.BeginGrant("sync", nil)
	if err != nil {
		t.Fatalf("BeginGrant failed: %v", err)
	}
	if err := env.EndGrant(id); err != nil {
		t.Fatalf("EndGrant failed: %v", err)
	}

	err = env.EndGrant(id)
	if !errors.Is(err, errors.ErrNoGrant) {
		t.Errorf("second EndGrant = %v, want ErrNoGrant", err)
	}
	if !errors.IsContractViolation(err) {
		t.Error("ending a grant twice should be a contract violation")
	}
	if err := env.EndGrant(GrantID(999)); !errors.Is(err, errors.ErrNoGrant) {
		t.Errorf("EndGrant(unknown) = %v, want ErrNoGrant", err)
	}
}

func TestEnvironment_Close(t *testing.T) {
	env, clock := newTestEnvironment()

	expired := false
	if _, err := env.BeginGrant("sync", func() { expired = true }); err != nil {
		t.Fatalf("BeginGrant failed: %v", err)
	}
	env.Close()
	clock.Advance(time.Hour)

	if expired {
		t.Error("budget timer fired after Close")
	}
	if _, err := env.BeginGrant("late", nil); !errors.Is(err, errors.ErrGrantUnavailable) {
		t.Errorf("BeginGrant after Close = %v, want ErrGrantUnavailable", err)
	}
}

func TestParseTransition(t *testing.T) {
	tests := []struct {
		in     string
		want   Transition
		wantOK bool
	}{
		{"background", EnteredBackground, true},
		{"bg", EnteredBackground, true},
		{"foreground", EnteredForeground, true},
		{"fg", EnteredForeground, true},
		{"sleeping", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseTransition(tt.in)
			if ok != tt.wantOK || (ok && got != tt.want) {
				t.Errorf("ParseTransition(%q) = %v, %v", tt.in, got, ok)
			}
		})
	}
}

func TestEnvironment_ConcurrentTransitionsDeliveredInOrder(t *testing.T) {
	env, _ := newTestEnvironment()

	var mu sync.Mutex
	var seen []Transition
	env.Subscribe(func(tr Transition) {
		mu.Lock()
		seen = append(seen, tr)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for _, enter := range []func(){env.EnterBackground, env.EnterForeground} {
		wg.Add(1)
		go func(enter func()) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				enter()
			}
		}(enter)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) == 0 {
		t.Fatal("no transitions delivered")
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] == seen[i-1] {
			t.Fatalf("transition %d repeats %s, deliveries out of order", i, seen[i])
		}
	}
	last := seen[len(seen)-1]
	if (last == EnteredBackground) != env.InBackground() {
		t.Errorf("last delivered %s but InBackground() = %v", last, env.InBackground())
	}
}
