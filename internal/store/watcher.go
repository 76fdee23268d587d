package store

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/golang/glog"
)

// Watcher reloads a Catalog when its definitions directory changes.
type Watcher struct {
	catalog  *Catalog
	watcher  *fsnotify.Watcher
	debounce time.Duration
	onReload func(gen uint64, err error)

	mu    sync.Mutex
	timer *time.Timer
}

type WatcherOption func(*Watcher)

// WithDebounce sets how long the directory must be quiet before a reload.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// WithReloadHook is called after every reload attempt.
func WithReloadHook(fn func(gen uint64, err error)) WatcherOption {
	return func(w *Watcher) { w.onReload = fn }
}

func NewWatcher(c *Catalog, opts ...WatcherOption) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	w := &Watcher{catalog: c, watcher: fw, debounce: 200 * time.Millisecond}
	for _, o := range opts {
		o(w)
	}
	return w, nil
}

// Run watches until ctx is done, then closes the underlying watcher.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.watcher.Add(w.catalog.Dir()); err != nil {
		_ = w.watcher.Close()
		return fmt.Errorf("watch definitions dir: %w", err)
	}
	defer func() {
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
		_ = w.watcher.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if !isDefinitionFile(event.Name) {
				continue
			}
			w.schedule()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			glog.Warningf("definitions watcher: %v", err)
		}
	}
}

// schedule restarts the quiet-period timer; editors write files in bursts.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	err := w.catalog.Reload()
	if err != nil {
		glog.Warningf("reload tree definitions from %s: %v (keeping previous set)", w.catalog.Dir(), err)
	}
	if w.onReload != nil {
		w.onReload(w.catalog.Generation(), err)
	}
}

func isDefinitionFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
