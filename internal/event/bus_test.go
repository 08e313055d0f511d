package event

import (
	"errors"
	"sync"
	"testing"
)

func TestBus_Subscribe(t *testing.T) {
	bus := NewBus()

	called := false
	id := bus.Subscribe("test.event", func(e Event) {
		called = true
	})

	if id == "" {
		t.Error("Subscribe should return a non-empty ID")
	}
	if bus.SubscriptionCount() != 1 {
		t.Errorf("Expected 1 subscription, got %d", bus.SubscriptionCount())
	}
	if called {
		t.Error("Handler should not be called until an event is published")
	}
}

func TestBus_Publish(t *testing.T) {
	bus := NewBus()

	var received Event
	bus.Subscribe(TypeOperationStarted, func(e Event) {
		received = e
	})

	bus.Publish(NewOperationStartedEvent("op-1", "sync"))

	if received == nil {
		t.Fatal("Handler should have received the event")
	}
	started, ok := received.(OperationStartedEvent)
	if !ok {
		t.Fatalf("received %T, want OperationStartedEvent", received)
	}
	if started.OperationID != "op-1" || started.Name != "sync" {
		t.Errorf("unexpected payload: %+v", started)
	}
}

func TestBus_OrderSpecificThenWildcard(t *testing.T) {
	bus := NewBus()

	var order []string
	bus.SubscribeAll(func(e Event) { order = append(order, "wild") })
	bus.Subscribe("test.event", func(e Event) { order = append(order, "first") })
	bus.Subscribe("test.event", func(e Event) { order = append(order, "second") })
	bus.Subscribe("other.event", func(e Event) { order = append(order, "other") })

	bus.Publish(newBaseEvent("test.event"))

	want := []string{"first", "second", "wild"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()

	count := 0
	id := bus.Subscribe("test.event", func(e Event) { count++ })
	keep := bus.Subscribe("test.event", func(e Event) { count += 10 })

	if !bus.Unsubscribe(id) {
		t.Fatal("Unsubscribe should return true for an existing subscription")
	}
	if bus.Unsubscribe(id) {
		t.Error("second Unsubscribe should return false")
	}
	if bus.Unsubscribe("missing") {
		t.Error("Unsubscribe of unknown ID should return false")
	}

	bus.Publish(newBaseEvent("test.event"))
	if count != 10 {
		t.Errorf("count = %d, want 10 (only %s should fire)", count, keep)
	}
}

func TestBus_Clear(t *testing.T) {
	bus := NewBus()
	bus.Subscribe("a", func(Event) {})
	bus.SubscribeAll(func(Event) {})

	bus.Clear()

	if bus.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d after Clear", bus.SubscriptionCount())
	}
}

func TestBus_HandlerPanicRecovery(t *testing.T) {
	bus := NewBus()

	secondCalled := false
	bus.Subscribe("test.event", func(e Event) { panic("boom") })
	bus.Subscribe("test.event", func(e Event) { secondCalled = true })

	bus.Publish(newBaseEvent("test.event"))

	if !secondCalled {
		t.Error("a panicking handler must not block later handlers")
	}
}

func TestBus_ConcurrentPublish(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	count := 0
	bus.Subscribe("test.event", func(e Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(newBaseEvent("test.event"))
		}()
	}
	wg.Wait()

	if count != 50 {
		t.Errorf("count = %d, want 50", count)
	}
}

func TestBus_UniqueIDs(t *testing.T) {
	bus := NewBus()
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := bus.Subscribe("x", func(Event) {})
		if seen[id] {
			t.Fatalf("duplicate subscription ID %q", id)
		}
		seen[id] = true
	}
}

func TestOperationFinishedEvent(t *testing.T) {
	ok := NewOperationFinishedEvent("op-1", "sync", false, nil, 0)
	if !ok.Succeeded() {
		t.Error("no errors and not cancelled should be a success")
	}

	failed := NewOperationFinishedEvent("op-2", "sync", false, []error{errors.New("boom"), nil}, 0)
	if failed.Succeeded() {
		t.Error("operation with errors should not succeed")
	}
	if len(failed.Errors) != 1 || failed.Errors[0] != "boom" {
		t.Errorf("Errors = %v, want [boom]", failed.Errors)
	}

	cancelled := NewOperationFinishedEvent("op-3", "sync", true, nil, 0)
	if cancelled.Succeeded() {
		t.Error("cancelled operation should not succeed")
	}
}

func TestIndicatorEvent_Visible(t *testing.T) {
	if !NewIndicatorShownEvent("network").Visible() {
		t.Error("shown event should be visible")
	}
	if NewIndicatorHiddenEvent("network").Visible() {
		t.Error("hidden event should not be visible")
	}
}
