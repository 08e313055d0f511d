//go:build unix

package lifecycle

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// NotifySignals drives env from process signals until ctx is done:
// SIGUSR1 enters the background and SIGUSR2 returns to the foreground.
func NotifySignals(ctx context.Context, env *Environment) {
	ch := make(chan os.Signal, 4)
	signal.Notify(ch, syscall.SIGUSR1, syscall.SIGUSR2)

	go func() {
		defer signal.Stop(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-ch:
				switch sig {
				case syscall.SIGUSR1:
					env.EnterBackground()
				case syscall.SIGUSR2:
					env.EnterForeground()
				}
			}
		}
	}()
}
