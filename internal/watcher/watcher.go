// Package watcher keeps the library index in sync with filesystem changes.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// Watcher watches a single library root recursively and invokes callbacks
// for file changes. Writes are debounced per path so editors that save in
// several bursts trigger one re-index.
type Watcher struct {
	root       string
	extensions []string
	onIndex    func(path string)
	onRemove   func(path string)
	debounce   time.Duration

	mu       sync.Mutex
	fsw      *fsnotify.Watcher
	pending  map[string]*time.Timer
	started  bool
	done     chan struct{}
	stopOnce sync.Once
	logger   *zap.Logger
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce overrides the per-path debounce interval.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// New creates a watcher over root. extensions filter which files trigger
// callbacks (empty = all). onIndex fires for created or modified files,
// onRemove for deleted ones.
func New(root string, extensions []string, onIndex, onRemove func(path string), opts ...Option) *Watcher {
	w := &Watcher{
		root:       filepath.Clean(root),
		extensions: extensions,
		onIndex:    onIndex,
		onRemove:   onRemove,
		debounce:   defaultDebounce,
		pending:    make(map[string]*time.Timer),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Root returns the watched library root.
func (w *Watcher) Root() string {
	return w.root
}

// Start begins watching. The root is created if missing. The watcher runs
// until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	if err := os.MkdirAll(w.root, 0755); err != nil {
		w.mu.Unlock()
		return err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.fsw = fsw
	if err := w.addTreeLocked(w.root); err != nil {
		_ = fsw.Close()
		w.fsw = nil
		w.mu.Unlock()
		return err
	}
	w.started = true
	w.mu.Unlock()

	if w.logger != nil {
		w.logger.Debug("watcher started",
			zap.String("root", w.root), zap.Strings("extensions", w.extensions))
	}
	go w.run(ctx, fsw)
	return nil
}

// run owns its own reference to the fsnotify watcher: Stop nils w.fsw, so the
// field must never be read from here. Close terminates the loop by closing
// the Events and Errors channels.
func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			if err != nil && w.logger != nil {
				w.logger.Debug("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := ev.Name
	if !w.underRoot(path) {
		return
	}
	if w.logger != nil {
		w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))
	}
	switch ev.Op {
	case fsnotify.Create, fsnotify.Write:
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			w.handleNewDirectory(path)
			return
		}
		if w.matchExtension(path) {
			w.scheduleIndex(path)
		}
	case fsnotify.Remove, fsnotify.Rename:
		w.cancelPending(path)
		if w.matchExtension(path) && w.onRemove != nil {
			w.onRemove(path)
		}
	}
}

// handleNewDirectory registers a freshly created directory tree and indexes
// any matching files already inside it. Files copied in along with the
// directory often never produce their own Create events.
func (w *Watcher) handleNewDirectory(dir string) {
	w.mu.Lock()
	if w.fsw == nil {
		w.mu.Unlock()
		return
	}
	if err := w.addTreeLocked(dir); err != nil && w.logger != nil {
		w.logger.Debug("watcher failed to add directory", zap.String("path", dir), zap.Error(err))
	}
	w.mu.Unlock()

	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if w.matchExtension(path) {
			w.scheduleIndex(path)
		}
		return nil
	})
}

func (w *Watcher) addTreeLocked(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && path != dir {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) underRoot(path string) bool {
	rel, err := filepath.Rel(w.root, filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (w *Watcher) matchExtension(path string) bool {
	if len(w.extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range w.extensions {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

func (w *Watcher) scheduleIndex(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		logger := w.logger
		w.mu.Unlock()
		if logger != nil {
			logger.Debug("watcher indexing file", zap.String("path", path))
		}
		if w.onIndex != nil {
			w.onIndex(path)
		}
	})
}

func (w *Watcher) cancelPending(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
}

// Stop stops the watcher and releases resources.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started || w.fsw == nil {
		w.mu.Unlock()
		return
	}
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	_ = w.fsw.Close()
	w.fsw = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
