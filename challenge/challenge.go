// Package challenge adapts a third-party bot-verification widget into a
// single-use token source. The widget itself (Cloudflare Turnstile in the
// blog's deployment) is an opaque challenge/response provider; this
// package only tracks the token it yields and the token's lifecycle.
package challenge

import (
	"log/slog"
	"sync"
	"time"
)

// Callbacks are the signals a Widget delivers as the challenge runs.
type Callbacks struct {
	// Success delivers a freshly issued token.
	Success func(token string)
	// Error signals the widget failed to produce a token.
	Error func()
	// Expire signals the current token timed out inside the widget.
	Expire func()
}

// Widget is the external bot-verification provider. Render presents a
// fresh challenge and reports through the callbacks; Reset discards any
// outstanding challenge so the next Render starts clean.
type Widget interface {
	Render(cb Callbacks) error
	Reset()
}

// Adapter wraps a Widget and exposes the last issued token. Tokens are
// single-use: Consume hands the token out exactly once, and Reset (which
// must follow every failed sensitive request) discards whatever the
// widget still holds and forces a fresh challenge.
type Adapter struct {
	mu       sync.Mutex
	widget   Widget
	log      *slog.Logger
	token    string
	issuedAt time.Time
	consumed bool

	// OnStateChange, when set, is invoked (without the adapter lock)
	// after every token issue, error, or expiry, so a UI can enable or
	// disable its submit affordance.
	OnStateChange func()
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(a *Adapter) { a.log = log }
}

// NewAdapter creates an Adapter around the given widget.
func NewAdapter(widget Widget, opts ...Option) *Adapter {
	a := &Adapter{widget: widget}
	for _, opt := range opts {
		opt(a)
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	return a
}

// Start renders the widget and begins listening for its signals.
func (a *Adapter) Start() error {
	return a.widget.Render(Callbacks{
		Success: a.onSuccess,
		Error:   a.onError,
		Expire:  a.onExpire,
	})
}

func (a *Adapter) onSuccess(token string) {
	a.mu.Lock()
	a.token = token
	a.issuedAt = time.Now()
	a.consumed = false
	a.mu.Unlock()
	a.log.Debug("challenge token issued")
	a.notify()
}

func (a *Adapter) onError() {
	a.mu.Lock()
	a.token = ""
	a.consumed = false
	a.mu.Unlock()
	a.log.Warn("challenge widget error")
	a.notify()
}

func (a *Adapter) onExpire() {
	a.mu.Lock()
	a.token = ""
	a.consumed = false
	a.mu.Unlock()
	a.log.Debug("challenge token expired in widget")
	a.notify()
}

func (a *Adapter) notify() {
	if a.OnStateChange != nil {
		a.OnStateChange()
	}
}

// Token returns the current unconsumed token, if any. It does not mark
// the token used; callers attaching it to a request use Consume.
func (a *Adapter) Token() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.token == "" || a.consumed {
		return "", false
	}
	return a.token, true
}

// IssuedAt returns when the current token was issued.
func (a *Adapter) IssuedAt() (time.Time, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.token == "" || a.consumed {
		return time.Time{}, false
	}
	return a.issuedAt, true
}

// Consume returns the current token and marks it used. A consumed token
// is never handed out again; the caller must Reset and wait for a fresh
// Success signal before the next attempt.
func (a *Adapter) Consume() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.token == "" || a.consumed {
		return "", false
	}
	a.consumed = true
	return a.token, true
}

// Reset discards the current token and forces a fresh challenge. Called
// after every failed sensitive request: a token that rode a failed
// request is spent regardless of what the widget believes.
func (a *Adapter) Reset() {
	a.mu.Lock()
	a.token = ""
	a.consumed = false
	a.mu.Unlock()
	a.widget.Reset()
	a.notify()
}
