package daemon

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"dstatus/internal/logging"
)

// watchDebounce collapses the burst of events editors emit for one save.
const watchDebounce = 250 * time.Millisecond

// configWatcher calls notify when the configuration file changes. It watches
// the parent directory so that editors which replace the file by rename are
// still seen.
type configWatcher struct {
	path   string
	logger *slog.Logger
	notify func()

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	quit    chan struct{}
	done    chan struct{}
	running bool
}

func newConfigWatcher(path string, logger *slog.Logger, notify func()) *configWatcher {
	return &configWatcher{
		path:   filepath.Clean(path),
		logger: logging.NewComponentLogger(logger, "config-watcher"),
		notify: notify,
	}
}

// Start begins watching. Calling Start on a running watcher is a no-op.
func (w *configWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}

	w.watcher = watcher
	w.quit = make(chan struct{})
	w.done = make(chan struct{})
	w.running = true

	go w.loop(watcher, w.quit, w.done)

	w.logger.Info("config watcher started",
		logging.String(logging.FieldEventType, "config_watch_started"),
		logging.String("path", w.path))
	return nil
}

// Stop ends the watch loop and waits for it to exit.
func (w *configWatcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	close(w.quit)
	_ = w.watcher.Close()
	done := w.done
	w.watcher = nil
	w.quit = nil
	w.running = false
	w.mu.Unlock()

	<-done
	w.logger.Debug("config watcher stopped")
}

func (w *configWatcher) loop(watcher *fsnotify.Watcher, quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-quit:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.logger.Debug("config file changed", logging.String("op", event.Op.String()))
			if timer == nil {
				timer = time.AfterFunc(watchDebounce, w.notify)
			} else {
				timer.Reset(watchDebounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logging.WarnWithContext(w.logger, "config watcher error", "config_watch_error",
				logging.Error(err),
				logging.String(logging.FieldImpact, "some edits may be missed"),
				logging.String(logging.FieldErrorHint, "Run dstatus reload after editing the configuration"))
		}
	}
}
