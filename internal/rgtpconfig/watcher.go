package rgtpconfig

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/stlalpha/rgtpd/internal/rgtplog"
)

// Watcher hot-reloads config.json, debouncing rapid successive writes
// the way an editor's save-then-rewrite dance tends to produce. It is
// the direct generalization of the teacher's cmd/vision3 ConfigWatcher,
// narrowed to a single file instead of a directory of heterogeneous
// config/theme files.
type Watcher struct {
	mu      sync.RWMutex
	current Config
	dir     string
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher loads the initial configuration from dir and starts
// watching config.json for changes.
func NewWatcher(dir string) (*Watcher, error) {
	cfg, err := Load(dir)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("rgtpconfig: creating file watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("rgtpconfig: watching %s: %w", dir, err)
	}

	w := &Watcher{current: cfg, dir: dir, watcher: fw, done: make(chan struct{})}
	rgtplog.Infof("watching %s for config changes", dir)
	go w.loop(fw)
	return w, nil
}

// Current returns the most recently loaded configuration.
func (w *Watcher) Current() Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Stop stops watching and releases the underlying inotify handle.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher == nil {
		return
	}
	select {
	case <-w.done:
	default:
		close(w.done)
	}
	w.watcher.Close()
	w.watcher = nil
	rgtplog.Infof("config watcher stopped")
}

func (w *Watcher) loop(fw *fsnotify.Watcher) {
	const debounce = 500 * time.Millisecond
	var timer *time.Timer

	for {
		select {
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != "config.json" {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, w.reload)

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			rgtplog.Warnf("config watcher error: %v", err)

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.dir)
	if err != nil {
		rgtplog.Errorf("reloading config from %s: %v", w.dir, err)
		return
	}
	w.mu.Lock()
	w.current = cfg
	w.mu.Unlock()
	rgtplog.Infof("reloaded configuration from %s", w.dir)
}
