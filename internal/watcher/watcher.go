// Package watcher triggers index rebuilds when watched images change, using fsnotify with debouncing.
package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

const relevantOps = fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename

// Watcher watches directory arguments and the parents of file arguments,
// non-recursively, and calls onChange once per burst of relevant events.
type Watcher struct {
	paths      []string
	extensions []string
	onChange   func()
	debounce   time.Duration
	ignore     map[string]struct{}
	logger     *zap.Logger

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	dirs     map[string]struct{} // directory arguments
	files    map[string]struct{} // file arguments
	timer    *time.Timer
	done     chan struct{}
	started  bool
	stopOnce sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets a logger for debug output (events, rebuild triggers).
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithDebounce sets how long the watcher waits for events to settle.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithIgnore excludes paths (such as the index file itself) from triggering rebuilds.
// Temporary siblings written while replacing an ignored file (".<name>*") and
// sidecars named "<name>-*" are excluded too.
func WithIgnore(paths ...string) WatcherOption {
	return func(w *Watcher) {
		for _, p := range paths {
			if p != "" {
				w.ignore[cleanAbs(p)] = struct{}{}
			}
		}
	}
}

// NewWatcher creates a watcher over paths. extensions filter which directory
// entries matter (empty = all); explicit file arguments always matter.
func NewWatcher(paths []string, extensions []string, onChange func(), opts ...WatcherOption) *Watcher {
	w := &Watcher{
		paths:      paths,
		extensions: extensions,
		onChange:   onChange,
		debounce:   defaultDebounce,
		ignore:     make(map[string]struct{}),
		logger:     zap.NewNop(),
		dirs:       make(map[string]struct{}),
		files:      make(map[string]struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start starts the watcher. It runs until ctx is cancelled or Stop is called.
// Paths that do not exist are skipped; if none can be watched an error is returned.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	watched := make(map[string]struct{})
	for _, p := range w.paths {
		abs := cleanAbs(p)
		info, err := os.Stat(abs)
		if err != nil {
			w.logger.Warn("watcher skipping path", zap.String("path", p), zap.Error(err))
			continue
		}
		dir := abs
		if info.IsDir() {
			w.dirs[abs] = struct{}{}
		} else {
			w.files[abs] = struct{}{}
			dir = filepath.Dir(abs)
		}
		if _, ok := watched[dir]; ok {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			w.mu.Unlock()
			return err
		}
		watched[dir] = struct{}{}
	}
	if len(watched) == 0 {
		_ = watcher.Close()
		w.mu.Unlock()
		return errors.New("watcher: no existing paths to watch")
	}
	w.watcher = watcher
	w.started = true
	w.logger.Debug("watcher starting", zap.Int("directories", len(watched)), zap.Strings("extensions", w.extensions))
	w.mu.Unlock()
	go w.run(ctx, watcher)
	return nil
}

func (w *Watcher) run(ctx context.Context, watcher *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Debug("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if ev.Op&relevantOps == 0 {
		return
	}
	if !w.relevant(ev.Name) {
		return
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", ev.Name))
	w.schedule()
}

// relevant reports whether a change to path affects the index contents.
func (w *Watcher) relevant(path string) bool {
	abs := cleanAbs(path)
	if w.ignored(abs) {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.files[abs]; ok {
		return true
	}
	if _, ok := w.dirs[filepath.Dir(abs)]; !ok {
		return false
	}
	return matchExtension(abs, w.extensions)
}

func (w *Watcher) ignored(abs string) bool {
	if _, ok := w.ignore[abs]; ok {
		return true
	}
	dir, name := filepath.Split(abs)
	for p := range w.ignore {
		pdir, base := filepath.Split(p)
		if pdir != dir {
			continue
		}
		if strings.HasPrefix(name, "."+base) || strings.HasPrefix(name, base+"-") {
			return true
		}
	}
	return false
}

// schedule (re)arms the single debounce timer.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		w.timer = nil
		started := w.started
		w.mu.Unlock()
		if !started {
			return
		}
		w.logger.Debug("watcher triggering rebuild (debounced)")
		if w.onChange != nil {
			w.onChange()
		}
	})
}

func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	extNorm := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == extNorm {
			return true
		}
	}
	return false
}

func cleanAbs(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// Stop stops the watcher and releases resources. A pending rebuild is cancelled.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started || w.watcher == nil {
		w.mu.Unlock()
		return
	}
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
