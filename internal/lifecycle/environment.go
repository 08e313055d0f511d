package lifecycle

import (
	"sync"
	"time"

	"github.com/Iron-Ham/opcoord/internal/debounce"
	"github.com/Iron-Ham/opcoord/internal/errors"
	"github.com/Iron-Ham/opcoord/internal/event"
	"github.com/Iron-Ham/opcoord/internal/logging"
)

// DefaultGrantBudget is how long a grant lasts before the Environment
// forces it to expire.
const DefaultGrantBudget = 30 * time.Second

// EnvironmentStats counts grants issued by an Environment.
type EnvironmentStats struct {
	Begun   int
	Ended   int
	Expired int
}

type grant struct {
	name     string
	onExpire func()
	timer    debounce.Timer
	expired  bool
}

// Environment is an in-process Host. Callers drive it with EnterBackground
// and EnterForeground; grants that outlive the budget are expired.
type Environment struct {
	// dispatchMu serializes transitions so subscribers see them in the
	// order they were applied. Subscribers must not trigger a transition.
	dispatchMu sync.Mutex

	mu          sync.Mutex
	background  bool
	subscribers map[uint64]func(Transition)
	nextSub     uint64
	nextGrant   GrantID
	grants      map[GrantID]*grant
	stats       EnvironmentStats
	closed      bool

	budget    time.Duration
	scheduler debounce.Scheduler
	bus       *event.Bus
	logger    *logging.Logger
}

// EnvironmentOption configures an Environment.
type EnvironmentOption func(*Environment)

// WithGrantBudget sets how long a grant may stay outstanding.
func WithGrantBudget(d time.Duration) EnvironmentOption {
	return func(e *Environment) {
		if d > 0 {
			e.budget = d
		}
	}
}

// WithScheduler replaces time.AfterFunc for grant budgets.
func WithScheduler(s debounce.Scheduler) EnvironmentOption {
	return func(e *Environment) {
		if s != nil {
			e.scheduler = s
		}
	}
}

// WithBus publishes environment.changed events.
func WithBus(b *event.Bus) EnvironmentOption {
	return func(e *Environment) { e.bus = b }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) EnvironmentOption {
	return func(e *Environment) {
		if l != nil {
			e.logger = l.WithComponent("environment")
		}
	}
}

// NewEnvironment creates an Environment in the foreground.
func NewEnvironment(opts ...EnvironmentOption) *Environment {
	e := &Environment{
		subscribers: make(map[uint64]func(Transition)),
		grants:      make(map[GrantID]*grant),
		budget:      DefaultGrantBudget,
		scheduler: func(d time.Duration, fn func()) debounce.Timer {
			return time.AfterFunc(d, fn)
		},
		logger: logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Subscribe implements Host.
func (e *Environment) Subscribe(fn func(Transition)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextSub++
	id := e.nextSub
	e.subscribers[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.subscribers, id)
	}
}

// InBackground implements Host.
func (e *Environment) InBackground() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.background
}

// EnterBackground moves to the background and notifies subscribers. It is
// a no-op if already in the background.
func (e *Environment) EnterBackground() {
	e.transition(true)
}

// EnterForeground moves to the foreground and notifies subscribers. It is
// a no-op if already in the foreground.
func (e *Environment) EnterForeground() {
	e.transition(false)
}

// Apply dispatches t to EnterBackground or EnterForeground.
func (e *Environment) Apply(t Transition) {
	e.transition(t == EnteredBackground)
}

func (e *Environment) transition(background bool) {
	e.dispatchMu.Lock()
	defer e.dispatchMu.Unlock()

	e.mu.Lock()
	if e.closed || e.background == background {
		e.mu.Unlock()
		return
	}
	e.background = background
	subs := make([]func(Transition), 0, len(e.subscribers))
	for _, fn := range e.subscribers {
		subs = append(subs, fn)
	}
	e.mu.Unlock()

	t := EnteredForeground
	if background {
		t = EnteredBackground
	}
	e.logger.Info("environment changed", "state", t.String(), "subscribers", len(subs))
	if e.bus != nil {
		e.bus.Publish(event.NewEnvironmentChangedEvent(background))
	}
	for _, fn := range subs {
		fn(t)
	}
}

// BeginGrant implements Host. The grant expires after the budget unless
// it is ended first.
func (e *Environment) BeginGrant(name string, onExpire func()) (GrantID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return 0, errors.ErrGrantUnavailable
	}
	e.nextGrant++
	id := e.nextGrant
	g := &grant{name: name, onExpire: onExpire}
	g.timer = e.scheduler(e.budget, func() { e.expire(id) })
	e.grants[id] = g
	e.stats.Begun++
	return id, nil
}

// EndGrant implements Host. Ending an unknown or already ended grant
// returns an error wrapping ErrNoGrant.
func (e *Environment) EndGrant(id GrantID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	g, ok := e.grants[id]
	if !ok {
		return errors.NewContractError("end of unknown grant", errors.ErrNoGrant).
			WithComponent("environment")
	}
	g.timer.Stop()
	delete(e.grants, id)
	e.stats.Ended++
	return nil
}

func (e *Environment) expire(id GrantID) {
	e.mu.Lock()
	g, ok := e.grants[id]
	if !ok || g.expired {
		e.mu.Unlock()
		return
	}
	g.expired = true
	e.stats.Expired++
	onExpire := g.onExpire
	e.mu.Unlock()

	e.logger.Warn("grant budget exhausted", "grant_id", uint64(id), "name", g.name)
	if onExpire != nil {
		onExpire()
	}
}

// Outstanding returns the number of grants not yet ended.
func (e *Environment) Outstanding() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.grants)
}

// Stats returns grant counters.
func (e *Environment) Stats() EnvironmentStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Close stops budget timers and refuses further grants and transitions.
func (e *Environment) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	for _, g := range e.grants {
		g.timer.Stop()
	}
}

var _ Host = (*Environment)(nil)
