package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"wikimap/pkg/debounce"
)

// reloadDelay coalesces the burst of events editors produce on save.
const reloadDelay = 200 * time.Millisecond

// Watch reloads the config file whenever it changes and passes the new
// configuration to onChange. Invalid files are logged and ignored.
// It blocks until ctx is cancelled.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer w.Close()

	// Watch the directory: editors often replace the file instead of writing it.
	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	target := filepath.Clean(path)
	d := debounce.New()
	defer d.Cancel()

	reload := func() {
		cfg, err := Load(path)
		if err != nil {
			slog.Warn("Config reload failed, keeping previous", "path", path, "error", err)
			return
		}
		slog.Info("Config reloaded", "path", path)
		onChange(cfg)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				d.Schedule(reloadDelay, reload)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Config watcher error", "error", err)
		}
	}
}
