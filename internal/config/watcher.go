package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadFunc receives the freshly loaded configuration after a change to
// the config file. Only runtime-safe keys (detection thresholds, drift and
// publish intervals) should be applied; structural keys need a restart.
type ReloadFunc func(*Config)

// Watcher reloads the configuration when the file changes on disk.
// Editors replace files rather than writing in place, so the parent
// directory is watched and events are debounced.
type Watcher struct {
	path     string
	debounce time.Duration
	onReload ReloadFunc
	log      *slog.Logger
}

// NewWatcher creates a config file watcher.
func NewWatcher(path string, onReload ReloadFunc, log *slog.Logger) *Watcher {
	if path == "" {
		path = ConfigPath()
	}
	return &Watcher{
		path:     path,
		debounce: 500 * time.Millisecond,
		onReload: onReload,
		log:      log,
	}
}

// Run watches until ctx ends. Reload failures are logged and the previous
// configuration stays in force.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	var timer *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("config watcher error", "error", err)
		case <-fire:
			cfg, err := Load(w.path)
			if err != nil {
				w.log.Warn("config reload rejected", "path", w.path, "error", err)
				continue
			}
			w.log.Info("config reloaded", "path", w.path)
			w.onReload(cfg)
		}
	}
}
