package replay

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/killallgit/scout/pkg/logger"
)

// Watch calls fn with the transcript at path now and again every time the
// file is rewritten, until ctx ends. Parse failures are logged and skipped.
func Watch(ctx context.Context, path string, debounce time.Duration, fn func(*Transcript)) error {
	log := logger.WithComponent("replay_watch")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// editors replace files, so watch the directory
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	reload := func() {
		t, err := Load(path)
		if err != nil {
			log.Warn("Failed to reload transcript", "path", path, "error", err)
			return
		}
		fn(t)
	}
	reload()

	target := filepath.Clean(path)
	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				pending = time.After(debounce)
			}
		case <-pending:
			pending = nil
			log.Debug("Transcript changed", "path", path)
			reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("Watcher error", "error", err)
		}
	}
}
