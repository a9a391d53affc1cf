package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher re-reads config.yaml on change and applies the mutable subset
// of fields to a live Config in place, logging and ignoring any change
// to an immutable field.
type Watcher struct {
	homeDir string
	logger  *slog.Logger

	mu  sync.RWMutex
	cfg Config
}

// NewWatcher wraps an already-loaded Config for hot-reload.
func NewWatcher(cfg Config, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{homeDir: cfg.HomeDir, logger: logger, cfg: cfg}
}

// Current returns a snapshot of the live configuration.
func (w *Watcher) Current() Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cfg
}

// Start watches the home directory for changes to config.yaml until ctx
// is cancelled, applying mutable-field updates as they land. Watching
// the directory rather than the file means a not-yet-created
// config.yaml (first run) is still picked up once it appears. It
// returns once the watch is armed; the reload loop runs in a background
// goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(w.homeDir); err != nil {
		fsw.Close()
		return err
	}
	target := ConfigPath(w.homeDir)

	go func() {
		defer fsw.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				w.reload()
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				w.logger.Error("config watcher error", "error", err)
			}
		}
	}()
	return nil
}

func (w *Watcher) reload() {
	current := w.Current()
	next, err := Load(current.WorkingDirectory)
	if err != nil {
		w.logger.Error("config reload failed, keeping previous values", "error", err)
		return
	}

	if changed := ImmutableChanged(current, next); len(changed) > 0 {
		w.logger.Warn("ignoring change to immutable config fields, restart required", "fields", changed)
	}

	w.mu.Lock()
	applyMutable(&w.cfg, next)
	updated := w.cfg
	w.mu.Unlock()

	w.logger.Info("config reloaded",
		"heartbeat_timeout", updated.HeartbeatTimeout,
		"default_task_wait", updated.DefaultTaskWait,
		"default_polling_interval", updated.DefaultPollingInterval,
		"event_bus_capacity", updated.EventBus.Capacity,
		"event_bus_full_mode", updated.EventBus.FullMode,
	)
}
