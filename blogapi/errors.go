package blogapi

import (
	"errors"
	"fmt"
	"time"
)

// Failure kinds the auth flow branches on. Everything the service can
// return is translated into one of these before it leaves this package;
// raw transport and decoding errors never reach callers.
var (
	// ErrInvalidCredentials covers unknown accounts and wrong passwords.
	// The two are deliberately not distinguished for callers.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnverifiedAccount means the credentials were right but the email
	// is unverified; callers should offer to resend the verification.
	ErrUnverifiedAccount = errors.New("account email not verified")
	// ErrInvalidOrExpiredCode is the verify-2fa rejection.
	ErrInvalidOrExpiredCode = errors.New("invalid or expired verification code")
	// ErrChallengeRejected means the bot-verification token was missing,
	// stale, or already consumed server-side.
	ErrChallengeRejected = errors.New("verification challenge rejected")
	// ErrService is the catch-all for network failures, 5xx responses,
	// and response shapes that cannot be classified.
	ErrService = errors.New("authentication service unavailable")
)

// RateLimitError reports a 429 with the server's retry delay.
// RetryAfter is zero when the server sent no Retry-After header; the
// caller applies its operation default.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}
	return "rate limited"
}

// InputError carries the server's message for recoverable input
// rejections (duplicate username, weak password, malformed fields).
// The message is safe to surface inline.
type InputError struct {
	Status  int
	Message string
}

func (e *InputError) Error() string {
	return e.Message
}
