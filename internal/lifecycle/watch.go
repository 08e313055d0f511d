package lifecycle

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Iron-Ham/opcoord/internal/errors"
)

// stateFileDebounce collapses the burst of events editors emit per save.
const stateFileDebounce = 50 * time.Millisecond

// ReadStateFile returns the transition named in the file at path. The
// file holds "background" or "foreground"; surrounding whitespace is
// ignored.
func ReadStateFile(path string) (Transition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	value := strings.ToLower(strings.TrimSpace(string(data)))
	t, ok := ParseTransition(value)
	if !ok {
		return 0, errors.NewValidationError("state file must contain background or foreground").
			WithField(path).
			WithValue(value)
	}
	return t, nil
}

// WatchStateFile drives env from the file at path until ctx is done. The
// current content is applied first if the file exists. The parent
// directory is watched so that atomic replace-by-rename is seen.
func WatchStateFile(ctx context.Context, env *Environment, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create state file watcher")
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return errors.Wrapf(err, "watch %s", dir)
	}

	if t, err := ReadStateFile(path); err == nil {
		env.Apply(t)
	}

	go watchLoop(ctx, watcher, env, path)
	return nil
}

func watchLoop(ctx context.Context, watcher *fsnotify.Watcher, env *Environment, path string) {
	defer func() { _ = watcher.Close() }()

	debounceTimer := time.NewTimer(0)
	<-debounceTimer.C // drain initial timer

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			debounceTimer.Stop()
			return

		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			debounceTimer.Reset(stateFileDebounce)

		case <-debounceTimer.C:
			t, err := ReadStateFile(path)
			if err != nil {
				env.logger.Warn("ignoring state file", "path", path, "error", err.Error())
				continue
			}
			env.Apply(t)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			env.logger.Warn("state file watcher error", "path", path, "error", err.Error())
		}
	}
}
