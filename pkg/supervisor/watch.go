package supervisor

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchFiles calls onChange when the content of one of paths changes. The
// parent directories are watched so files replaced by rename are noticed.
// It returns when ctx is cancelled.
func WatchFiles(ctx context.Context, paths []string, onChange func(path string), logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "watch")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	contents := make(map[string][]byte)
	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", p, err)
		}
		contents[abs], _ = os.ReadFile(abs)

		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		dirs[dir] = true
	}
	logger.Info("watching", "files", paths)

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			name := filepath.Clean(evt.Name)
			old, watched := contents[name]
			if !watched || !evt.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) {
				continue
			}

			// Truncate-then-write shows up as two events; only react to
			// a real, non-empty content change.
			data, err := os.ReadFile(name)
			if err != nil || len(data) == 0 || bytes.Equal(old, data) {
				continue
			}
			contents[name] = data
			logger.Info("file changed", "file", name, "op", evt.Op.String())
			onChange(name)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", "err", err)
		}
	}
}
