// Package ratelimit translates server-reported retry delays into
// persisted, countdown-exposing locks, independent per operation. The
// lock is a wall-clock "locked until" timestamp in the shared store, so
// a process restart mid-lockout reconstructs the exact remaining time
// instead of resetting it.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/ComputerAnything/cpta-blog-sub000/storage"
)

// Operation keys. A lockout on one operation never blocks another.
const (
	OpLogin     = "login"
	OpRegister  = "register"
	OpVerify2FA = "verify2fa"
	OpRecover   = "recover"
)

const keyPrefix = "ratelimit:"

// Default cool-downs applied when the server reports a rate limit
// without an explicit Retry-After. These are fallbacks, not contract:
// a server-supplied delay always wins.
var defaultDelays = map[string]time.Duration{
	OpLogin:     60 * time.Second,
	OpRegister:  60 * time.Second,
	OpVerify2FA: 300 * time.Second,
	OpRecover:   300 * time.Second,
}

const fallbackDelay = 60 * time.Second

// Limiter persists per-operation lockouts in a storage.Store.
type Limiter struct {
	store storage.Store
	log   *slog.Logger
	now   func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(l *Limiter) { l.log = log }
}

// WithNowFunc overrides the wall clock, for tests.
func WithNowFunc(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a Limiter backed by the given store.
func New(store storage.Store, opts ...Option) *Limiter {
	l := &Limiter{store: store, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	if l.log == nil {
		l.log = slog.Default()
	}
	return l
}

func key(op string) string { return keyPrefix + op }

// Lock records a cool-down for op. A non-positive retryAfter applies the
// operation's default delay. The write completes before Lock returns, so
// a countdown read that follows can never observe the old unlocked state.
func (l *Limiter) Lock(ctx context.Context, op string, retryAfter time.Duration) error {
	if retryAfter <= 0 {
		d, ok := defaultDelays[op]
		if !ok {
			d = fallbackDelay
		}
		retryAfter = d
	}
	lockedUntil := l.now().Add(retryAfter).Unix()
	if err := l.store.Put(ctx, key(op), strconv.FormatInt(lockedUntil, 10)); err != nil {
		return fmt.Errorf("persisting %s lockout: %w", op, err)
	}
	l.log.Info("operation locked", "op", op, "retry_after", retryAfter.Round(time.Second))
	return nil
}

// Remaining returns the time left on op's lockout, never negative. Zero
// means unlocked. The countdown is derived from the persisted wall-clock
// timestamp on every call; once it reaches zero the record is cleared.
func (l *Limiter) Remaining(ctx context.Context, op string) (time.Duration, error) {
	raw, err := l.store.Get(ctx, key(op))
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	lockedUntil, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		// A corrupt record cannot gate anything; drop it.
		_ = l.store.Delete(ctx, key(op))
		return 0, nil
	}
	remaining := time.Unix(lockedUntil, 0).Sub(l.now())
	if remaining <= 0 {
		if err := l.store.Delete(ctx, key(op)); err != nil {
			return 0, err
		}
		return 0, nil
	}
	return remaining, nil
}

// Clear removes op's lock record regardless of its remaining time.
func (l *Limiter) Clear(ctx context.Context, op string) error {
	return l.store.Delete(ctx, key(op))
}
