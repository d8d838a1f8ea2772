package confloader

import (
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports changes to watched configuration files. Bursts of
// events on one file, as produced by editors saving, are coalesced into a
// single callback.
type Watcher struct {
	fw     *fsnotify.Watcher
	logger *slog.Logger
	quiet  time.Duration

	mu        sync.Mutex
	files     map[string]struct{}
	callbacks []func(string)

	stop     chan struct{}
	stopOnce sync.Once
	stopErr  error
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatcherLogger sets the watcher's logger.
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = logger }
}

// WithWatcherQuiet sets how long a file must stay unchanged before its
// callbacks run.
func WithWatcherQuiet(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.quiet = d }
}

// NewWatcher creates a watcher with nothing watched yet.
func NewWatcher(opts ...WatcherOption) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fw:     fw,
		logger: slog.Default(),
		quiet:  100 * time.Millisecond,
		files:  make(map[string]struct{}),
		stop:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Watch adds path. Its directory is watched so replacement by rename is
// noticed as well as in-place writes.
func (w *Watcher) Watch(path string) error {
	path = filepath.Clean(path)
	if err := w.fw.Add(filepath.Dir(path)); err != nil {
		w.logger.Error("cannot watch config directory", "path", path, "error", err)
		return err
	}
	w.mu.Lock()
	w.files[path] = struct{}{}
	w.mu.Unlock()
	w.logger.Debug("watching config file", "path", path)
	return nil
}

// OnChange registers fn, called with the cleaned path of a changed file.
func (w *Watcher) OnChange(fn func(string)) {
	w.mu.Lock()
	w.callbacks = append(w.callbacks, fn)
	w.mu.Unlock()
}

func (w *Watcher) relevant(ev fsnotify.Event) (string, bool) {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return "", false
	}
	name := filepath.Clean(ev.Name)
	w.mu.Lock()
	_, ok := w.files[name]
	w.mu.Unlock()
	return name, ok
}

func (w *Watcher) fire(paths []string) {
	w.mu.Lock()
	cbs := slices.Clone(w.callbacks)
	w.mu.Unlock()
	for _, p := range paths {
		w.logger.Debug("config file changed", "path", p)
		for _, cb := range cbs {
			cb(p)
		}
	}
}

// Start processes events until Stop is called.
func (w *Watcher) Start() {
	pending := make(map[string]struct{})
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if name, ok := w.relevant(ev); ok {
				pending[name] = struct{}{}
				timer.Reset(w.quiet)
			}
		case <-timer.C:
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			clear(pending)
			slices.Sort(paths)
			w.fire(paths)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watch error", "error", err)
		case <-w.stop:
			return
		}
	}
}

// StartAsync runs Start in its own goroutine.
func (w *Watcher) StartAsync() {
	go w.Start()
}

// Stop ends Start and releases the underlying watcher. Extra calls return
// the first result.
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.stop)
		w.stopErr = w.fw.Close()
	})
	return w.stopErr
}
