// Package lifecycle keeps operations running across host environment
// transitions.
//
// A Guard observes one operation. While the operation is in flight and the
// host is in the background, the guard holds a time-limited execution
// grant. The grant ends exactly once: when the operation finishes, when the
// host returns to the foreground, or when the host forces it to expire.
// Whichever of these wins the race releases the grant; the others find
// nothing outstanding.
//
// Environment is an in-process Host. Its state can be driven from a state
// file (WatchStateFile) or from SIGUSR1/SIGUSR2 (NotifySignals).
package lifecycle
