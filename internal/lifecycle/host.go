package lifecycle

// Transition is a host environment change.
type Transition int

const (
	// EnteredBackground means the host is about to suspend the process.
	EnteredBackground Transition = iota
	// EnteredForeground means the host resumed normal execution.
	EnteredForeground
)

// String returns the string representation of the transition.
func (t Transition) String() string {
	switch t {
	case EnteredBackground:
		return "background"
	case EnteredForeground:
		return "foreground"
	default:
		return "unknown"
	}
}

// ParseTransition maps "background" and "foreground" to a Transition.
func ParseTransition(s string) (Transition, bool) {
	switch s {
	case "background", "bg":
		return EnteredBackground, true
	case "foreground", "fg":
		return EnteredForeground, true
	default:
		return 0, false
	}
}

// GrantID identifies an execution grant. Zero means no grant.
type GrantID uint64

// Host is the environment a Guard negotiates execution grants with.
//
// Subscribe callbacks and onExpire may run on any goroutine. A Host must
// not hold its own locks while invoking them.
type Host interface {
	// Subscribe registers fn for foreground/background transitions.
	Subscribe(fn func(Transition)) (unsubscribe func())

	// InBackground reports the current environment state.
	InBackground() bool

	// BeginGrant requests a time-limited execution grant. onExpire is
	// called if the host revokes the grant before EndGrant. It must not be
	// called from within BeginGrant itself.
	BeginGrant(name string, onExpire func()) (GrantID, error)

	// EndGrant releases a grant.
	EndGrant(id GrantID) error
}
