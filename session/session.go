// Package session models the authenticated grant held by a client
// installation and the machinery that ends it: the expiry clock and the
// cross-process watcher. The persisted record layout is shared with the
// ratelimit package; all writes go through this package or ratelimit so
// that invariants stay centralized.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ComputerAnything/cpta-blog-sub000/storage"
)

// Store keys. All values are plain scalars or small JSON documents so any
// process sharing the store can read them.
const (
	KeyExpiresAt = "session:expires_at"
	KeyUser      = "session:user"
	KeyOrigin    = "session:origin"
	KeyGuest     = "session:guest"
)

// Session is an authenticated principal's active grant. ExpiresAt is the
// absolute expiry supplied by the remote service; it is never computed
// locally from "now + duration". Token is the opaque bearer credential
// and must never be logged or persisted to the shared store.
type Session struct {
	UserID    int
	Username  string
	Token     string
	ExpiresAt int64 // Unix seconds
}

// Remaining returns the time left until expiry, never negative.
func (s Session) Remaining(now time.Time) time.Duration {
	d := time.Unix(s.ExpiresAt, 0).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

type userRecord struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
}

// Save persists the session's shareable fields (expiry, user summary,
// originating process) and clears any guest flag. The bearer token is
// deliberately not written.
func Save(ctx context.Context, store storage.Store, s Session, origin string) error {
	u, err := json.Marshal(userRecord{ID: s.UserID, Username: s.Username})
	if err != nil {
		return fmt.Errorf("encoding user record: %w", err)
	}
	if err := store.Put(ctx, KeyUser, string(u)); err != nil {
		return err
	}
	if err := store.Put(ctx, KeyOrigin, origin); err != nil {
		return err
	}
	if err := store.Delete(ctx, KeyGuest); err != nil {
		return err
	}
	// The expiry key is written last: its presence is what other
	// processes treat as "a session exists".
	return store.Put(ctx, KeyExpiresAt, strconv.FormatInt(s.ExpiresAt, 10))
}

// Load reconstructs a persisted session. Returns storage.ErrNotFound when
// no session is persisted. The Token field is always empty after Load; the
// bearer credential lives in the transport's cookie jar, not the store.
func Load(ctx context.Context, store storage.Store) (Session, error) {
	raw, err := store.Get(ctx, KeyExpiresAt)
	if err != nil {
		return Session{}, err
	}
	expiresAt, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return Session{}, fmt.Errorf("corrupt expiry record %q: %w", raw, err)
	}
	s := Session{ExpiresAt: expiresAt}

	if raw, err := store.Get(ctx, KeyUser); err == nil {
		var u userRecord
		if err := json.Unmarshal([]byte(raw), &u); err == nil {
			s.UserID = u.ID
			s.Username = u.Username
		}
	}
	return s, nil
}

// Clear removes all persisted session records. Clearing when nothing is
// persisted is a no-op.
func Clear(ctx context.Context, store storage.Store) error {
	// Expiry first: once it is gone, other processes treat the session
	// as ended even if the remaining deletes race with their reads.
	var firstErr error
	for _, key := range []string{KeyExpiresAt, KeyUser, KeyOrigin} {
		if err := store.Delete(ctx, key); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SetGuest marks the installation as browsing in guest mode and clears any
// persisted session.
func SetGuest(ctx context.Context, store storage.Store) error {
	if err := Clear(ctx, store); err != nil {
		return err
	}
	return store.Put(ctx, KeyGuest, "true")
}

// IsGuest reports whether the guest flag is set.
func IsGuest(ctx context.Context, store storage.Store) (bool, error) {
	v, err := store.Get(ctx, KeyGuest)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v == "true", nil
}

// UpdateUsername rewrites the persisted user summary after a profile
// rename. The expiry record is left untouched.
func UpdateUsername(ctx context.Context, store storage.Store, userID int, username string) error {
	u, err := json.Marshal(userRecord{ID: userID, Username: username})
	if err != nil {
		return fmt.Errorf("encoding user record: %w", err)
	}
	return store.Put(ctx, KeyUser, string(u))
}
