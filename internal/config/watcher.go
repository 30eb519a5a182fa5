package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vyrodovalexey/qkrun/internal/observability"
	"github.com/vyrodovalexey/qkrun/internal/rules"
)

// StarterCallback is called with the new text after a successful reload.
type StarterCallback func(text string)

// ErrorCallback is called when a reload fails.
type ErrorCallback func(error)

// StarterWatcher holds the starter configuration text and reloads it when
// the backing file changes. Text that does not parse is rejected and the
// previous text is kept.
type StarterWatcher struct {
	path          string
	watcher       *fsnotify.Watcher
	callback      StarterCallback
	errorCallback ErrorCallback
	logger        observability.Logger
	debounceDelay time.Duration

	mu      sync.RWMutex
	text    string
	running bool

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// WatcherOption configures a StarterWatcher.
type WatcherOption func(*StarterWatcher)

// WithDebounceDelay sets the debounce delay for file changes.
func WithDebounceDelay(delay time.Duration) WatcherOption {
	return func(w *StarterWatcher) {
		w.debounceDelay = delay
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) WatcherOption {
	return func(w *StarterWatcher) {
		w.logger = logger
	}
}

// WithCallback sets the callback run after each successful reload.
func WithCallback(callback StarterCallback) WatcherOption {
	return func(w *StarterWatcher) {
		w.callback = callback
	}
}

// WithErrorCallback sets the callback run when a reload is rejected.
func WithErrorCallback(callback ErrorCallback) WatcherOption {
	return func(w *StarterWatcher) {
		w.errorCallback = callback
	}
}

// NewStarterWatcher creates a watcher for the starter file at path.
func NewStarterWatcher(path string, opts ...WatcherOption) (*StarterWatcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &StarterWatcher{
		path:          absPath,
		watcher:       fsWatcher,
		debounceDelay: 100 * time.Millisecond,
		logger:        observability.NopLogger(),
		stopCh:        make(chan struct{}),
		stoppedCh:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// Start loads the file and begins watching it. The initial load must
// succeed.
func (w *StarterWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	text, err := w.load()
	if err != nil {
		return err
	}

	// Watch the directory so editors that replace the file are seen.
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	w.mu.Lock()
	w.text = text
	w.running = true
	w.mu.Unlock()

	w.logger.Info("started watching starter file",
		observability.String("path", w.path),
	)

	go w.watch(ctx)

	return nil
}

// Stop stops watching. It is safe to call more than once.
func (w *StarterWatcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.watcher.Close()
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.stoppedCh

	return w.watcher.Close()
}

// Text returns the last valid starter text.
func (w *StarterWatcher) Text() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.text
}

func (w *StarterWatcher) watch(ctx context.Context) {
	defer close(w.stoppedCh)

	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("starter watcher stopped due to context cancellation")
			return

		case <-w.stopCh:
			w.logger.Info("starter watcher stopped")
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			debounceTimer, debounceCh = w.handleFileEvent(event, debounceTimer, debounceCh)

		case <-debounceCh:
			debounceCh = nil
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("starter watcher error", observability.Error(err))
			if w.errorCallback != nil {
				w.errorCallback(err)
			}
		}
	}
}

func (w *StarterWatcher) handleFileEvent(
	event fsnotify.Event,
	debounceTimer *time.Timer,
	debounceCh <-chan time.Time,
) (timer *time.Timer, ch <-chan time.Time) {
	if filepath.Clean(event.Name) != w.path {
		return debounceTimer, debounceCh
	}
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return debounceTimer, debounceCh
	}

	w.logger.Debug("starter file changed",
		observability.String("path", event.Name),
		observability.String("op", event.Op.String()),
	)

	if debounceTimer != nil {
		debounceTimer.Stop()
	}
	debounceTimer = time.NewTimer(w.debounceDelay)
	return debounceTimer, debounceTimer.C
}

func (w *StarterWatcher) reload() {
	text, err := w.load()
	if err != nil {
		w.logger.Warn("starter file rejected, keeping previous text",
			observability.String("path", w.path),
			observability.Error(err),
		)
		if w.errorCallback != nil {
			w.errorCallback(err)
		}
		return
	}

	w.mu.Lock()
	w.text = text
	w.mu.Unlock()

	w.logger.Info("starter file reloaded",
		observability.String("path", w.path),
		observability.Int("bytes", len(text)),
	)

	if w.callback != nil {
		w.callback(text)
	}
}

func (w *StarterWatcher) load() (string, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return "", fmt.Errorf("failed to read starter file %s: %w", w.path, err)
	}
	text := string(data)
	if _, err := rules.Parse(text); err != nil {
		return "", fmt.Errorf("invalid starter file %s: %w", w.path, err)
	}
	return text, nil
}
