//go:build windows

package lifecycle

import "context"

// NotifySignals is a no-op on Windows, which has no SIGUSR1/SIGUSR2. Use
// WatchStateFile instead.
func NotifySignals(ctx context.Context, env *Environment) {
	env.logger.Warn("signal-driven environment transitions are not supported on windows")
}
