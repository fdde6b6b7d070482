// Package authflow is the client-side authentication state machine. It
// owns the single source of truth for "who is signed in right now" and
// drives every transition: credential submission, the email second
// factor, guest browsing, rate-limit lockouts, expiry, and logout,
// whether initiated locally or by another process sharing the store.
package authflow

import (
	"time"

	"github.com/ComputerAnything/cpta-blog-sub000/session"
)

// Kind enumerates the authentication states.
type Kind int

const (
	// KindAnonymous is the resting state: no session, no guest flag.
	KindAnonymous Kind = iota
	// KindGuest is explicit read-only browsing without an account.
	KindGuest
	// KindCredentialsPending means a credential exchange is in flight.
	KindCredentialsPending
	// KindTwoFactorPending means credentials were accepted and an emailed
	// code is awaited.
	KindTwoFactorPending
	// KindAuthenticated means an active session exists.
	KindAuthenticated
	// KindLocked means a rate-limit cool-down is draining.
	KindLocked
)

func (k Kind) String() string {
	switch k {
	case KindAnonymous:
		return "anonymous"
	case KindGuest:
		return "guest"
	case KindCredentialsPending:
		return "credentials-pending"
	case KindTwoFactorPending:
		return "two-factor-pending"
	case KindAuthenticated:
		return "authenticated"
	case KindLocked:
		return "locked"
	default:
		return "unknown"
	}
}

// State is a snapshot of the machine. Only the fields relevant to Kind
// are populated: ContactEmail for KindTwoFactorPending, Session for
// KindAuthenticated, LockedOp and RetryRemaining for KindLocked.
type State struct {
	Kind           Kind
	ContactEmail   string
	Session        session.Session
	LockedOp       string
	RetryRemaining time.Duration
}
