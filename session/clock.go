package session

import (
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultWarningLead is how long before hard expiry the warning fires.
	DefaultWarningLead = 5 * time.Minute
	// defaultCheckInterval is how often the drift re-check runs. One-shot
	// timers do not fire while the host sleeps; the re-check notices an
	// expiry that was slept through.
	defaultCheckInterval = time.Minute
	// defaultTickInterval drives the countdown during the warning window.
	defaultTickInterval = time.Second
)

// ClockCallbacks are the scheduled behaviors a Clock produces from an
// absolute expiry timestamp. Warning fires once when the warning window
// opens, Tick fires repeatedly during the window, Expire fires once at
// hard expiry. All callbacks are optional.
type ClockCallbacks struct {
	Warning func(remaining time.Duration)
	Tick    func(remaining time.Duration)
	Expire  func()
}

// Clock converts a session expiry timestamp into a warning callback, a
// countdown tick, and a hard-expiry callback, without any server push.
// A Clock is re-armable: Arm disarms any previous schedule first.
type Clock struct {
	mu  sync.Mutex
	cb  ClockCallbacks
	log *slog.Logger

	warnLead      time.Duration
	checkInterval time.Duration
	tickInterval  time.Duration

	expiresAt   time.Time
	warnTimer   *time.Timer
	expireTimer *time.Timer
	stopCh      chan struct{}
	armed       bool
	expired     bool
}

// ClockOption configures a Clock.
type ClockOption func(*Clock)

// WithClockLogger sets the structured logger.
func WithClockLogger(log *slog.Logger) ClockOption {
	return func(c *Clock) { c.log = log }
}

// WithWarningLead overrides the warning lead time. Intended for tests;
// the production lead is DefaultWarningLead.
func WithWarningLead(d time.Duration) ClockOption {
	return func(c *Clock) { c.warnLead = d }
}

// WithCheckInterval overrides the drift re-check interval.
func WithCheckInterval(d time.Duration) ClockOption {
	return func(c *Clock) { c.checkInterval = d }
}

// WithTickInterval overrides the countdown tick interval.
func WithTickInterval(d time.Duration) ClockOption {
	return func(c *Clock) { c.tickInterval = d }
}

// NewClock creates a disarmed Clock.
func NewClock(cb ClockCallbacks, opts ...ClockOption) *Clock {
	c := &Clock{
		cb:            cb,
		warnLead:      DefaultWarningLead,
		checkInterval: defaultCheckInterval,
		tickInterval:  defaultTickInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	return c
}

// Arm schedules the warning and hard-expiry callbacks for the given
// absolute expiry. An already-past expiry fires Expire synchronously
// before Arm returns. An expiry inside the warning window fires Warning
// synchronously and starts the countdown. Re-arming never stacks timers.
func (c *Clock) Arm(expiresAt time.Time) {
	c.mu.Lock()
	c.disarmLocked()

	remaining := time.Until(expiresAt)
	if remaining <= 0 {
		c.expired = true
		c.mu.Unlock()
		c.log.Debug("session already expired on arm")
		if c.cb.Expire != nil {
			c.cb.Expire()
		}
		return
	}

	c.armed = true
	c.expired = false
	c.expiresAt = expiresAt
	c.stopCh = make(chan struct{})
	stop := c.stopCh

	inWarning := remaining <= c.warnLead
	if !inWarning {
		c.warnTimer = time.AfterFunc(remaining-c.warnLead, c.fireWarning)
	} else {
		go c.countdown(stop)
	}
	c.expireTimer = time.AfterFunc(remaining, c.fireExpire)
	go c.driftCheck(stop)
	c.mu.Unlock()

	c.log.Debug("session clock armed",
		"expires_in", remaining.Round(time.Second),
		"warning_now", inWarning)
	if inWarning && c.cb.Warning != nil {
		c.cb.Warning(remaining)
	}
}

// Disarm cancels all pending timers and background checks. It must be
// called on logout and on teardown so no callback fires against a
// cleared session. Disarm is idempotent.
func (c *Clock) Disarm() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disarmLocked()
}

func (c *Clock) disarmLocked() {
	if c.warnTimer != nil {
		c.warnTimer.Stop()
		c.warnTimer = nil
	}
	if c.expireTimer != nil {
		c.expireTimer.Stop()
		c.expireTimer = nil
	}
	if c.stopCh != nil {
		close(c.stopCh)
		c.stopCh = nil
	}
	c.armed = false
}

func (c *Clock) fireWarning() {
	c.mu.Lock()
	if !c.armed || c.expired {
		c.mu.Unlock()
		return
	}
	remaining := time.Until(c.expiresAt)
	go c.countdown(c.stopCh)
	c.mu.Unlock()

	if remaining <= 0 {
		return
	}
	c.log.Debug("session expiry warning", "remaining", remaining.Round(time.Second))
	if c.cb.Warning != nil {
		c.cb.Warning(remaining)
	}
}

func (c *Clock) fireExpire() {
	c.mu.Lock()
	if !c.armed || c.expired {
		c.mu.Unlock()
		return
	}
	c.expired = true
	c.disarmLocked()
	c.mu.Unlock()

	c.log.Debug("session expired")
	if c.cb.Expire != nil {
		c.cb.Expire()
	}
}

// countdown emits Tick callbacks while the warning window is open.
func (c *Clock) countdown(stop chan struct{}) {
	ticker := time.NewTicker(c.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			expiresAt := c.expiresAt
			armed := c.armed
			c.mu.Unlock()
			if !armed {
				return
			}
			remaining := time.Until(expiresAt)
			if remaining <= 0 {
				return
			}
			if c.cb.Tick != nil {
				c.cb.Tick(remaining)
			}
		}
	}
}

// driftCheck re-validates wall-clock time against the expiry on a slow
// interval. If actual elapsed time has overtaken the expiry (host slept
// past it), the hard-expiry fires immediately instead of waiting for a
// one-shot timer that should already have fired.
func (c *Clock) driftCheck(stop chan struct{}) {
	ticker := time.NewTicker(c.checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			overdue := c.armed && !c.expired && !time.Now().Before(c.expiresAt)
			c.mu.Unlock()
			if overdue {
				c.fireExpire()
				return
			}
		}
	}
}
