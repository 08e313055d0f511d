// Package event defines event types for decoupling coordination components.
package event

import (
	"time"

	"github.com/Iron-Ham/opcoord/internal/errors"
)

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "operation.started", "grant.ended")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent provides common fields for all events.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// Event type identifiers.
const (
	TypeOperationSubmitted = "operation.submitted"
	TypeOperationStarted   = "operation.started"
	TypeOperationProduced  = "operation.produced"
	TypeOperationFinished  = "operation.finished"
	TypeExclusionQueued    = "exclusion.queued"
	TypeIndicatorShown     = "indicator.shown"
	TypeIndicatorHidden    = "indicator.hidden"
	TypeGrantBegun         = "grant.begun"
	TypeGrantEnded         = "grant.ended"
	TypeEnvironmentChanged = "environment.changed"
)

// -----------------------------------------------------------------------------
// Operation Lifecycle Events
// -----------------------------------------------------------------------------

// OperationSubmittedEvent is emitted when an executor accepts an operation.
type OperationSubmittedEvent struct {
	baseEvent
	OperationID string
	Name        string
	DependsOn   []string // operation IDs inserted as dependencies
}

// NewOperationSubmittedEvent creates an OperationSubmittedEvent.
func NewOperationSubmittedEvent(id, name string, dependsOn []string) OperationSubmittedEvent {
	return OperationSubmittedEvent{
		baseEvent:   newBaseEvent(TypeOperationSubmitted),
		OperationID: id,
		Name:        name,
		DependsOn:   dependsOn,
	}
}

// OperationStartedEvent is emitted when an operation begins executing.
type OperationStartedEvent struct {
	baseEvent
	OperationID string
	Name        string
}

// NewOperationStartedEvent creates an OperationStartedEvent.
func NewOperationStartedEvent(id, name string) OperationStartedEvent {
	return OperationStartedEvent{
		baseEvent:   newBaseEvent(TypeOperationStarted),
		OperationID: id,
		Name:        name,
	}
}

// OperationProducedEvent is emitted when an executing operation produces a child.
type OperationProducedEvent struct {
	baseEvent
	OperationID string
	ChildID     string
	ChildName   string
}

// NewOperationProducedEvent creates an OperationProducedEvent.
func NewOperationProducedEvent(id, childID, childName string) OperationProducedEvent {
	return OperationProducedEvent{
		baseEvent:   newBaseEvent(TypeOperationProduced),
		OperationID: id,
		ChildID:     childID,
		ChildName:   childName,
	}
}

// OperationFinishedEvent is emitted exactly once per operation, after its
// observers received OnFinish.
type OperationFinishedEvent struct {
	baseEvent
	OperationID string
	Name        string
	Cancelled   bool          // finished without executing
	Errors      []string      // empty on success
	Outcome     string        // errors.Classify of the most severe error, "" on success
	Duration    time.Duration // submit to finish
}

// NewOperationFinishedEvent creates an OperationFinishedEvent.
func NewOperationFinishedEvent(id, name string, cancelled bool, errs []error, d time.Duration) OperationFinishedEvent {
	msgs := make([]string, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			msgs = append(msgs, err.Error())
		}
	}
	return OperationFinishedEvent{
		baseEvent:   newBaseEvent(TypeOperationFinished),
		OperationID: id,
		Name:        name,
		Cancelled:   cancelled,
		Errors:      msgs,
		Outcome:     errors.Outcome(errs),
		Duration:    d,
	}
}

// Succeeded reports whether the operation executed and finished without errors.
func (e OperationFinishedEvent) Succeeded() bool {
	return !e.Cancelled && len(e.Errors) == 0
}

// ExclusionQueuedEvent is emitted when an operation is made to wait behind an
// earlier operation sharing a mutual-exclusion key.
type ExclusionQueuedEvent struct {
	baseEvent
	OperationID string
	Key         string
	WaitingOn   string
}

// NewExclusionQueuedEvent creates an ExclusionQueuedEvent.
func NewExclusionQueuedEvent(id, key, waitingOn string) ExclusionQueuedEvent {
	return ExclusionQueuedEvent{
		baseEvent:   newBaseEvent(TypeExclusionQueued),
		OperationID: id,
		Key:         key,
		WaitingOn:   waitingOn,
	}
}

// -----------------------------------------------------------------------------
// Indicator Events
// -----------------------------------------------------------------------------

// IndicatorEvent is emitted when the activity indicator becomes visible
// (indicator.shown) or hidden after its debounce delay (indicator.hidden).
type IndicatorEvent struct {
	baseEvent
	Name string
}

// NewIndicatorShownEvent creates an indicator.shown event.
func NewIndicatorShownEvent(name string) IndicatorEvent {
	return IndicatorEvent{baseEvent: newBaseEvent(TypeIndicatorShown), Name: name}
}

// NewIndicatorHiddenEvent creates an indicator.hidden event.
func NewIndicatorHiddenEvent(name string) IndicatorEvent {
	return IndicatorEvent{baseEvent: newBaseEvent(TypeIndicatorHidden), Name: name}
}

// Visible reports whether this event turned the indicator on.
func (e IndicatorEvent) Visible() bool {
	return e.eventType == TypeIndicatorShown
}

// -----------------------------------------------------------------------------
// Grant and Environment Events
// -----------------------------------------------------------------------------

// Grant end reasons.
const (
	GrantEndFinished   = "finished"
	GrantEndForeground = "foreground"
	GrantEndExpired    = "expired"
)

// GrantBegunEvent is emitted when a guard obtains an execution grant.
type GrantBegunEvent struct {
	baseEvent
	GrantID uint64
	Name    string
}

// NewGrantBegunEvent creates a GrantBegunEvent.
func NewGrantBegunEvent(id uint64, name string) GrantBegunEvent {
	return GrantBegunEvent{
		baseEvent: newBaseEvent(TypeGrantBegun),
		GrantID:   id,
		Name:      name,
	}
}

// GrantEndedEvent is emitted exactly once for every GrantBegunEvent.
type GrantEndedEvent struct {
	baseEvent
	GrantID uint64
	Name    string
	Reason  string // GrantEndFinished, GrantEndForeground or GrantEndExpired
}

// NewGrantEndedEvent creates a GrantEndedEvent.
func NewGrantEndedEvent(id uint64, name, reason string) GrantEndedEvent {
	return GrantEndedEvent{
		baseEvent: newBaseEvent(TypeGrantEnded),
		GrantID:   id,
		Name:      name,
		Reason:    reason,
	}
}

// EnvironmentChangedEvent is emitted when the host enters the background or
// returns to the foreground.
type EnvironmentChangedEvent struct {
	baseEvent
	Background bool
}

// NewEnvironmentChangedEvent creates an EnvironmentChangedEvent.
func NewEnvironmentChangedEvent(background bool) EnvironmentChangedEvent {
	return EnvironmentChangedEvent{
		baseEvent:  newBaseEvent(TypeEnvironmentChanged),
		Background: background,
	}
}
