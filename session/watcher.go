package session

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/ComputerAnything/cpta-blog-sub000/storage"
)

const defaultPollInterval = 2 * time.Second

// Watcher observes the shared expiry record and reports when another
// process ends the session: the record disappearing or regressing to an
// earlier value fires the callback. A fresh or extended expiry never
// fires: the watcher propagates endings only, so one process's new
// login is never misread as another process's stale state.
type Watcher struct {
	store   storage.Store
	onEnded func()
	log     *slog.Logger

	interval time.Duration
	lastSeen int64

	stopCh   chan struct{}
	stopOnce sync.Once
	started  bool
	mu       sync.Mutex
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatcherLogger sets the structured logger.
func WithWatcherLogger(log *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.log = log }
}

// WithPollInterval overrides the poll interval.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.interval = d }
}

// NewWatcher creates a Watcher that invokes onEnded when the shared
// session record is ended by another process. The callback must be
// idempotent: the local expiry clock may race with it.
func NewWatcher(store storage.Store, onEnded func(), opts ...WatcherOption) *Watcher {
	w := &Watcher{
		store:    store,
		onEnded:  onEnded,
		interval: defaultPollInterval,
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.log == nil {
		w.log = slog.Default()
	}
	return w
}

// Start begins polling. The current record value, if any, is taken as the
// baseline so that a session already in progress does not fire.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.lastSeen = w.readExpiry()
	w.mu.Unlock()
	go w.loop()
}

// Stop halts polling. Idempotent; must be called on teardown so the
// callback never fires against a torn-down consumer.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

func (w *Watcher) loop() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			select {
			case <-w.stopCh:
				return
			default:
			}
			w.poll()
		}
	}
}

func (w *Watcher) poll() {
	current := w.readExpiry()

	w.mu.Lock()
	prev := w.lastSeen
	ended := prev != 0 && (current == 0 || current < prev)
	if ended {
		w.lastSeen = 0
	} else {
		w.lastSeen = current
	}
	w.mu.Unlock()

	if ended {
		w.log.Info("session ended externally", "observed_expiry", current)
		w.onEnded()
	}
}

// readExpiry returns the persisted expiry, or 0 when absent or invalid.
// An unparseable record counts as absent: it cannot authenticate anyone.
func (w *Watcher) readExpiry() int64 {
	ctx, cancel := context.WithTimeout(context.Background(), w.interval)
	defer cancel()

	raw, err := w.store.Get(ctx, KeyExpiresAt)
	if errors.Is(err, storage.ErrNotFound) {
		return 0
	}
	if err != nil {
		w.log.Warn("reading shared session record", "err", err)
		// Transient store errors must not masquerade as a logout.
		w.mu.Lock()
		prev := w.lastSeen
		w.mu.Unlock()
		return prev
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return 0
	}
	return v
}
