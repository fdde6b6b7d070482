package authflow

import (
	"errors"
	"fmt"
	"time"
)

// Guard errors raised locally, before any request leaves the process.
var (
	// ErrInFlight means another attempt on this machine has not finished.
	ErrInFlight = errors.New("another attempt is already in flight")
	// ErrChallengeRequired means no unconsumed bot-verification token is
	// available for an operation that needs one.
	ErrChallengeRequired = errors.New("complete the verification challenge first")
	// ErrCodeFormat rejects verification codes that are not six digits,
	// saving a round trip the service would refuse anyway.
	ErrCodeFormat = errors.New("verification code must be six digits")
	// ErrMissingInput rejects empty required fields before a challenge
	// token or a network round trip is spent on a request the service
	// would refuse anyway.
	ErrMissingInput = errors.New("required fields must not be empty")
	// ErrInvalidTransition means the operation is not legal in the
	// machine's current state.
	ErrInvalidTransition = errors.New("operation not allowed in current state")
	// ErrNotAuthenticated guards operations that need an active session.
	ErrNotAuthenticated = errors.New("no active session")
)

// LockedError reports that an operation is under a rate-limit cool-down.
type LockedError struct {
	Op        string
	Remaining time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("%s locked, retry in %s", e.Op, e.Remaining.Round(time.Second))
}

// AsLocked unwraps err into a LockedError, if it is one.
func AsLocked(err error) (*LockedError, bool) {
	var le *LockedError
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}
