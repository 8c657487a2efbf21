package multitenantengine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period before a directory reload
const DefaultDebounce = 250 * time.Millisecond

// Watcher reloads a tenant directory into a manager when its files change.
// Bursts of events are collapsed into one reload after a quiet period.
type Watcher struct {
	manager  *MultiTenantEngineManager
	dir      string
	watcher  *fsnotify.Watcher
	debounce *Debouncer
	logger   *slog.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
	// reloaded receives the outcome of every reload, if set
	reloaded func(ids []string, err error)
}

// NewWatcher creates a watcher for dir. Call Start to begin watching.
func NewWatcher(manager *MultiTenantEngineManager, dir string, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	return &Watcher{
		manager:  manager,
		dir:      dir,
		watcher:  fw,
		debounce: NewDebouncer(debounce),
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start runs the event loop in a goroutine until ctx is done or Stop is called.
// Only the first call has an effect, and none after Stop.
func (w *Watcher) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		w.logger.Info("Tenant watcher started", "dir", w.dir)
		go w.loop(ctx)
	})
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Chmod == fsnotify.Chmod || !isBundleFile(event.Name) {
				continue
			}
			w.logger.Debug("Tenant file event", "path", event.Name, "op", event.Op.String())
			w.debounce.Trigger(func() { w.reload(ctx) })

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Tenant watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	ids, err := w.manager.LoadDirectory(ctx, w.dir)
	if err != nil {
		// The previous tenants stay active.
		w.logger.Error("Tenant reload failed", "dir", w.dir, "error", err)
	} else {
		w.logger.Info("Tenants reloaded", "dir", w.dir, "tenants", ids)
	}
	if w.reloaded != nil {
		w.reloaded(ids, err)
	}
}

// Stop ends the event loop, cancels a pending reload and closes the watcher.
// It is safe to call more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		// A watcher that never started has no loop to close doneCh.
		w.startOnce.Do(func() { close(w.doneCh) })
		close(w.stopCh)
		err = w.watcher.Close()
		<-w.doneCh
		w.debounce.Stop()
	})
	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

// Debouncer runs the most recent callback once no trigger has arrived for interval
type Debouncer struct {
	interval time.Duration
	timer    *time.Timer
	mu       sync.Mutex
	callback func()
	stopped  bool
}

func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{interval: interval}
}

// Trigger replaces the pending callback and restarts the quiet period
func (d *Debouncer) Trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.callback = callback

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, d.fire)
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	cb := d.callback
	d.callback = nil
	stopped := d.stopped
	d.mu.Unlock()

	if cb != nil && !stopped {
		cb()
	}
}

// Stop cancels any pending callback. Later triggers are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.callback = nil
}
