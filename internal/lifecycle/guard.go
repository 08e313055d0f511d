package lifecycle

import (
	"sync"

	"github.com/Iron-Ham/opcoord/internal/event"
	"github.com/Iron-Ham/opcoord/internal/logging"
	"github.com/Iron-Ham/opcoord/internal/operation"
)

// GuardStats counts grants over a guard's lifetime.
type GuardStats struct {
	Begun   int
	Ended   int
	Expired int
}

// Guard holds an execution grant for one operation while the host is in
// the background. It implements operation.Observer.
//
// State machine: idle → guarded → idle. The outstanding grant is checked
// and cleared under the guard mutex, so the finish, foreground and expiry
// triggers release it exactly once between them.
type Guard struct {
	host   Host
	name   string
	bus    *event.Bus
	logger *logging.Logger

	mu           sync.Mutex
	grant        GrantID
	inBackground bool
	finished     bool
	unsubscribe  func()
	stats        GuardStats
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithGuardName sets the grant name passed to the host.
func WithGuardName(name string) GuardOption {
	return func(g *Guard) {
		if name != "" {
			g.name = name
		}
	}
}

// WithGuardBus publishes grant.begun and grant.ended events.
func WithGuardBus(b *event.Bus) GuardOption {
	return func(g *Guard) { g.bus = b }
}

// WithGuardLogger sets the logger.
func WithGuardLogger(l *logging.Logger) GuardOption {
	return func(g *Guard) {
		if l != nil {
			g.logger = l.WithComponent("lifecycle")
		}
	}
}

// NewGuard creates a Guard subscribed to host transitions. If the host is
// already in the background a grant begins immediately.
func NewGuard(host Host, opts ...GuardOption) *Guard {
	g := &Guard{
		host:   host,
		name:   "LifecycleGuard",
		logger: logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}

	unsubscribe := host.Subscribe(g.handleTransition)

	g.mu.Lock()
	g.unsubscribe = unsubscribe
	g.mu.Unlock()

	if host.InBackground() {
		g.enterBackground()
	}
	return g
}

// AttachTo registers the guard as an observer of op. It must be called
// before op is submitted.
func (g *Guard) AttachTo(op *operation.Operation) error {
	return op.AddObserver(g)
}

// Guarded reports whether a grant is outstanding.
func (g *Guard) Guarded() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.grant != 0
}

// Stats returns grant counters.
func (g *Guard) Stats() GuardStats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stats
}

// OnStart implements operation.Observer.
func (g *Guard) OnStart(*operation.Operation) {}

// OnProduce implements operation.Observer.
func (g *Guard) OnProduce(*operation.Operation, *operation.Operation) {}

// OnFinish releases any outstanding grant and stops following the host.
func (g *Guard) OnFinish(op *operation.Operation, _ []error) {
	g.mu.Lock()
	if g.finished {
		g.mu.Unlock()
		return
	}
	g.finished = true
	unsubscribe := g.unsubscribe
	g.unsubscribe = nil
	id := g.takeGrantLocked()
	g.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	g.endGrant(id, event.GrantEndFinished)
}

func (g *Guard) handleTransition(t Transition) {
	switch t {
	case EnteredBackground:
		g.enterBackground()
	case EnteredForeground:
		g.enterForeground()
	}
}

func (g *Guard) enterBackground() {
	g.mu.Lock()
	if g.finished || g.inBackground {
		g.mu.Unlock()
		return
	}
	g.inBackground = true
	if g.grant != 0 {
		g.mu.Unlock()
		return
	}

	// The host never calls onExpire from inside BeginGrant, so the callback
	// reads id under the lock only after it is assigned below.
	var id GrantID
	id, err := g.host.BeginGrant(g.name, func() { g.expire(&id) })
	if err != nil {
		g.mu.Unlock()
		g.logger.Warn("execution grant unavailable", "name", g.name, "error", err.Error())
		return
	}
	g.grant = id
	g.stats.Begun++
	g.mu.Unlock()

	g.logger.Info("execution grant begun", "name", g.name, "grant_id", uint64(id))
	if g.bus != nil {
		g.bus.Publish(event.NewGrantBegunEvent(uint64(id), g.name))
	}
}

func (g *Guard) enterForeground() {
	g.mu.Lock()
	if g.finished || !g.inBackground {
		g.mu.Unlock()
		return
	}
	g.inBackground = false
	id := g.takeGrantLocked()
	g.mu.Unlock()

	g.endGrant(id, event.GrantEndForeground)
}

// expire handles a forced revocation. It is not an error.
func (g *Guard) expire(ref *GrantID) {
	g.mu.Lock()
	id := *ref
	if id == 0 || g.grant != id {
		g.mu.Unlock()
		return
	}
	g.grant = 0
	g.stats.Expired++
	g.mu.Unlock()

	g.logger.Warn("execution grant expired", "name", g.name, "grant_id", uint64(id))
	g.endGrant(id, event.GrantEndExpired)
}

// takeGrantLocked clears and returns the outstanding grant, or 0.
func (g *Guard) takeGrantLocked() GrantID {
	id := g.grant
	g.grant = 0
	return id
}

func (g *Guard) endGrant(id GrantID, reason string) {
	if id == 0 {
		return
	}
	if err := g.host.EndGrant(id); err != nil {
		g.logger.Error("failed to end execution grant", "grant_id", uint64(id), "reason", reason, "error", err.Error())
	}

	g.mu.Lock()
	g.stats.Ended++
	g.mu.Unlock()

	g.logger.Info("execution grant ended", "name", g.name, "grant_id", uint64(id), "reason", reason)
	if g.bus != nil {
		g.bus.Publish(event.NewGrantEndedEvent(uint64(id), g.name, reason))
	}
}

var _ operation.Observer = (*Guard)(nil)
