// Package event provides a pub-sub event bus that lets coordination
// components report what they do without knowing who listens.
//
// The executor publishes operation lifecycle events, the activity
// indicator publishes shown/hidden transitions, and the lifecycle guard
// publishes grant begin/end pairs. The metrics recorder and the terminal
// view subscribe to them.
//
// # Thread Safety
//
// [Bus] is safe for concurrent use. Handlers run synchronously on the
// publisher's goroutine and are protected against panics: a panicking
// handler is logged and the remaining handlers still run.
//
// # Basic Usage
//
//	bus := event.NewBus()
//
//	bus.Subscribe(event.TypeOperationFinished, func(e event.Event) {
//	    finished := e.(event.OperationFinishedEvent)
//	    log.Printf("%s finished, ok=%v", finished.Name, finished.Succeeded())
//	})
//
//	bus.SubscribeAll(func(e event.Event) {
//	    log.Printf("event: %s at %v", e.EventType(), e.Timestamp())
//	})
//
// # Event Type Naming Convention
//
// Event types follow "category.action":
//   - operation.submitted, operation.started, operation.produced, operation.finished
//   - exclusion.queued
//   - indicator.shown, indicator.hidden
//   - grant.begun, grant.ended
//   - environment.changed
package event
