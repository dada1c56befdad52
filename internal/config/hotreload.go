package config

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeHandler receives the newly loaded config.
type ChangeHandler func(cfg *Config)

// Watcher reloads the config file when it changes. Bursts of events are
// debounced (300ms). A file that fails to load or validate is logged and the
// previous config stays in effect.
//
// The parent directory is watched rather than the file, so editors that
// save by rename are still seen.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	debounce time.Duration

	mu       sync.Mutex
	handlers []ChangeHandler
	stopChan chan struct{}
	timer    *time.Timer
}

// NewWatcher creates a config file watcher.
func NewWatcher(configPath string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		path:     filepath.Clean(configPath),
		watcher:  w,
		debounce: 300 * time.Millisecond,
	}, nil
}

// OnChange registers a handler to be called after a successful reload.
func (cw *Watcher) OnChange(handler ChangeHandler) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.handlers = append(cw.handlers, handler)
}

// Start begins watching.
func (cw *Watcher) Start() error {
	if err := cw.watcher.Add(filepath.Dir(cw.path)); err != nil {
		return err
	}
	cw.mu.Lock()
	cw.stopChan = make(chan struct{})
	stop := cw.stopChan
	cw.mu.Unlock()

	go cw.watchLoop(stop)
	slog.Info("config watcher started", "path", cw.path)
	return nil
}

// Stop halts the watcher. It is safe to call more than once.
func (cw *Watcher) Stop() {
	cw.mu.Lock()
	if cw.stopChan != nil {
		close(cw.stopChan)
		cw.stopChan = nil
	}
	if cw.timer != nil {
		cw.timer.Stop()
	}
	cw.mu.Unlock()
	cw.watcher.Close()
	slog.Info("config watcher stopped")
}

func (cw *Watcher) watchLoop(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != cw.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			cw.mu.Lock()
			if cw.timer != nil {
				cw.timer.Stop()
			}
			cw.timer = time.AfterFunc(cw.debounce, cw.reload)
			cw.mu.Unlock()

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("config.watch_error", "error", err)
		}
	}
}

func (cw *Watcher) reload() {
	cfg, err := Load(cw.path)
	if err != nil {
		slog.Error("config.reload_failed", "path", cw.path, "error", err)
		return
	}

	cw.mu.Lock()
	handlers := make([]ChangeHandler, len(cw.handlers))
	copy(handlers, cw.handlers)
	cw.mu.Unlock()

	for _, h := range handlers {
		h(cfg)
	}
	slog.Info("config.reloaded", "path", cw.path)
}
