package tlsroots

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher serves a certificate key pair and reloads it after either file
// changes on disk. A failed reload keeps the previous pair.
type Watcher struct {
	certFile string
	keyFile  string
	logger   *slog.Logger
	settle   time.Duration

	cert atomic.Pointer[tls.Certificate]

	// loadMu serialises reloads so a slow one never overwrites a newer pair.
	loadMu sync.Mutex

	stop     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets the watcher's logger.
func WithLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = logger }
}

// WithDebounce sets how long the files must stay quiet before a reload.
// Certificate rotation usually rewrites both files in quick succession.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.settle = d }
}

// NewWatcher loads the key pair once and returns a watcher serving it.
func NewWatcher(certFile, keyFile string, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		certFile: certFile,
		keyFile:  keyFile,
		logger:   slog.Default(),
		settle:   250 * time.Millisecond,
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if err := w.Reload(); err != nil {
		return nil, fmt.Errorf("tlsroots: initial load: %w", err)
	}
	return w, nil
}

// GetCertificate is suitable for tls.Config.GetCertificate.
func (w *Watcher) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return w.cert.Load(), nil
}

// Reload reads the key pair from disk now.
func (w *Watcher) Reload() error {
	w.loadMu.Lock()
	defer w.loadMu.Unlock()

	pair, err := tls.LoadX509KeyPair(w.certFile, w.keyFile)
	if err != nil {
		return fmt.Errorf("load key pair: %w", err)
	}
	w.cert.Store(&pair)
	w.logger.Info("certificate loaded", "cert_file", w.certFile)
	return nil
}

// Start blocks watching the key pair's directories until Stop is called.
// Directories are watched rather than files so atomic renames are seen.
func (w *Watcher) Start() error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("tlsroots: create watcher: %w", err)
	}
	defer fw.Close()

	names := map[string]struct{}{
		filepath.Clean(w.certFile): {},
		filepath.Clean(w.keyFile):  {},
	}
	for _, dir := range []string{filepath.Dir(w.certFile), filepath.Dir(w.keyFile)} {
		if err := fw.Add(dir); err != nil {
			return fmt.Errorf("tlsroots: watch %s: %w", dir, err)
		}
	}
	w.logger.Info("watching certificate", "cert_file", w.certFile, "key_file", w.keyFile)

	// The timer fires once the files have been quiet for w.settle.
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if _, ours := names[filepath.Clean(ev.Name)]; !ours {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				timer.Reset(w.settle)
			}
		case <-timer.C:
			if err := w.Reload(); err != nil {
				w.logger.Error("certificate reload failed, keeping previous pair", "cert_file", w.certFile, "error", err)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("certificate watch error", "error", err)
		case <-w.stop:
			return nil
		}
	}
}

// StartAsync runs Start in its own goroutine.
func (w *Watcher) StartAsync() {
	go func() {
		if err := w.Start(); err != nil {
			w.logger.Error("certificate watcher exited", "error", err)
		}
	}()
}

// Stop ends Start. Extra calls are no-ops.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}
