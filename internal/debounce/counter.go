// Package debounce provides a reference-counted boolean toggle whose "off"
// transition is delayed to coalesce bursts of start/stop signals.
package debounce

import (
	"sync"
	"time"

	"github.com/Iron-Ham/opcoord/internal/errors"
	"github.com/Iron-Ham/opcoord/internal/logging"
)

// DefaultDelay is how long the counter waits at zero before hiding.
const DefaultDelay = time.Second

// Timer is a cancellable one-shot timer handle.
type Timer interface {
	Stop() bool
}

// Scheduler arms a one-shot timer that calls fn after d.
type Scheduler func(d time.Duration, fn func()) Timer

func realScheduler(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// Counter counts concurrent users of a shared visible resource.
//
// The first Increment fires show synchronously. The Decrement that brings
// the count to zero arms a delayed hide; an Increment before the delay
// elapses cancels it, so show fires once for the whole burst. All state
// changes and effects are serialized by one mutex, so show and hide never
// overlap and effects must not call back into the Counter.
type Counter struct {
	mu         sync.Mutex
	count      int
	visible    bool
	pending    Timer
	generation uint64
	closed     bool

	show      func()
	hide      func()
	delay     time.Duration
	scheduler Scheduler
	strict    bool
	logger    *logging.Logger
}

// Option configures a Counter.
type Option func(*Counter)

// WithDelay sets the hide delay. Non-positive values keep the default.
func WithDelay(d time.Duration) Option {
	return func(c *Counter) {
		if d > 0 {
			c.delay = d
		}
	}
}

// WithScheduler replaces time.AfterFunc, mainly for tests.
func WithScheduler(s Scheduler) Option {
	return func(c *Counter) {
		if s != nil {
			c.scheduler = s
		}
	}
}

// WithStrict makes misuse (decrementing below zero) panic.
func WithStrict(strict bool) Option {
	return func(c *Counter) {
		c.strict = strict
	}
}

// WithLogger sets the logger for misuse reports.
func WithLogger(l *logging.Logger) Option {
	return func(c *Counter) {
		if l != nil {
			c.logger = l.WithComponent("debounce")
		}
	}
}

// New creates a Counter at zero. Nil effects are no-ops.
func New(show, hide func(), opts ...Option) *Counter {
	if show == nil {
		show = func() {}
	}
	if hide == nil {
		hide = func() {}
	}
	c := &Counter{
		show:      show,
		hide:      hide,
		delay:     DefaultDelay,
		scheduler: realScheduler,
		logger:    logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Increment registers a user. It cancels a pending hide and, if the
// resource is not visible, fires show before returning.
func (c *Counter) Increment() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelPendingLocked()
	if c.count == 0 && !c.visible && !c.closed {
		c.visible = true
		c.show()
	}
	c.count++
}

// Decrement unregisters a user. Reaching zero arms the delayed hide.
// Decrementing below zero is a contract violation: the count is left
// unchanged and ErrCounterUnderflow is returned, or raised in strict mode.
func (c *Counter) Decrement() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.count == 0 {
		err := errors.NewContractError("decrement without matching increment", errors.ErrCounterUnderflow).
			WithComponent("debounce")
		c.logger.Error("debounce counter underflow", "error", err.Error())
		if c.strict {
			panic(err)
		}
		return err
	}

	c.count--
	if c.count == 0 && c.visible && !c.closed {
		c.armLocked()
	}
	return nil
}

// Count returns the current number of users.
func (c *Counter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Visible reports whether show fired without a later hide.
func (c *Counter) Visible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visible
}

// Pending reports whether a hide is armed.
func (c *Counter) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != nil
}

// Close cancels any pending hide. No effect fires after Close returns.
func (c *Counter) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelPendingLocked()
	c.closed = true
}

func (c *Counter) armLocked() {
	c.generation++
	gen := c.generation
	c.pending = c.scheduler(c.delay, func() { c.fire(gen) })
}

// fire runs on the timer goroutine. A timer that was stopped too late to
// prevent dispatch finds its generation superseded and does nothing.
func (c *Counter) fire(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation || c.closed {
		return
	}
	c.pending = nil
	if c.count != 0 || !c.visible {
		return
	}
	c.visible = false
	c.hide()
}

func (c *Counter) cancelPendingLocked() {
	c.generation++
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
}
