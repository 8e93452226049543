package config

import (
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Watcher holds the most recently loaded Config and swaps it in place
// whenever the backing file changes, so callers that read through
// Current never observe a half-applied reload.
type Watcher struct {
	path    string
	current atomic.Pointer[Config]
	watcher *fsnotify.Watcher
	logger  *slog.Logger
}

// WatchFile loads path once, then starts watching its parent directory
// (editors typically replace a file rather than write in place, which
// fsnotify sees as a rename+create on the directory, not a write on the
// file itself) for changes and reloads on every write or create event
// naming this file.
func WatchFile(path string, logger *slog.Logger) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	w := &Watcher{path: path, logger: logger}
	w.current.Store(cfg)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		_ = fw.Close()
		return nil, err
	}
	w.watcher = fw

	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	target := filepath.Clean(w.path)
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				w.logger.Error("config reload failed, keeping previous configuration", "path", w.path, "error", err)
				continue
			}
			w.current.Store(cfg)
			w.logger.Info("configuration reloaded", "path", w.path)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", "error", err)
		}
	}
}

// Current returns the most recently successfully loaded Config.
func (w *Watcher) Current() *Config {
	return w.current.Load()
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
