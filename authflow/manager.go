package authflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/awnumar/memguard"
	"github.com/google/uuid"

	"github.com/ComputerAnything/cpta-blog-sub000/blogapi"
	"github.com/ComputerAnything/cpta-blog-sub000/challenge"
	"github.com/ComputerAnything/cpta-blog-sub000/internal/util"
	"github.com/ComputerAnything/cpta-blog-sub000/ratelimit"
	"github.com/ComputerAnything/cpta-blog-sub000/session"
	"github.com/ComputerAnything/cpta-blog-sub000/storage"
)

const codeLength = 6

// storeTimeout bounds store writes made from callbacks that have no
// caller context.
const storeTimeout = 5 * time.Second

// Service is the remote authentication surface the machine drives.
// Satisfied by *blogapi.Client.
type Service interface {
	Login(ctx context.Context, identifier, password, challengeToken string) (blogapi.LoginResult, error)
	VerifyTwoFactor(ctx context.Context, email, code string) (blogapi.LoginResult, error)
	Register(ctx context.Context, username, email, password, challengeToken string) error
	VerifyRegistration(ctx context.Context, email, code string) (blogapi.LoginResult, error)
	ResendVerification(ctx context.Context, identifier string) error
	ForgotPassword(ctx context.Context, email, challengeToken string) error
	ResetPassword(ctx context.Context, token, password string) error
	ExtendSession(ctx context.Context) (int64, error)
	Logout(ctx context.Context) error
	UpdateProfile(ctx context.Context, username, email string) error
	ChangePassword(ctx context.Context, current, next string) error
}

var _ Service = (*blogapi.Client)(nil)

// Callbacks are the notifications a Manager emits. All are optional and
// are invoked without the manager lock held; they may call back into the
// Manager.
type Callbacks struct {
	// StateChanged fires after every transition with the new snapshot.
	StateChanged func(State)
	// ExpiryWarning fires once when the session enters its final window.
	ExpiryWarning func(remaining time.Duration)
	// ExpiryTick fires each second during the final window.
	ExpiryTick func(remaining time.Duration)
	// LockTick fires while a rate-limit cool-down drains.
	LockTick func(op string, remaining time.Duration)
	// SessionEnded fires exactly once per session, whatever ended it.
	SessionEnded func(reason string)
}

// Manager is the authentication state machine for one process. Multiple
// processes sharing the same storage.Store observe each other's logouts;
// session starts never propagate between them.
type Manager struct {
	api       Service
	store     storage.Store
	limiter   *ratelimit.Limiter
	challenge *challenge.Adapter
	clock     *session.Clock
	watcher   *session.Watcher
	log       *slog.Logger
	cb        Callbacks
	origin    string

	clockOpts        []session.ClockOption
	watchOpts        []session.WatcherOption
	lockTickInterval time.Duration

	mu           sync.Mutex
	state        State
	inFlight     bool
	lockGen      int
	pendingEmail string
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithChallenge attaches a bot-verification adapter. Without one, no
// challenge token is sent and the service decides whether to reject.
func WithChallenge(a *challenge.Adapter) Option {
	return func(m *Manager) { m.challenge = a }
}

// WithOrigin overrides the generated process identity recorded with each
// persisted session.
func WithOrigin(origin string) Option {
	return func(m *Manager) { m.origin = origin }
}

// WithLimiter overrides the rate limiter, for tests that need a fake
// clock behind it.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(m *Manager) { m.limiter = l }
}

// WithClockOptions passes options through to the expiry clock.
func WithClockOptions(opts ...session.ClockOption) Option {
	return func(m *Manager) { m.clockOpts = opts }
}

// WithWatcherOptions passes options through to the cross-process watcher.
func WithWatcherOptions(opts ...session.WatcherOption) Option {
	return func(m *Manager) { m.watchOpts = opts }
}

// WithLockTickInterval overrides the lockout countdown resolution.
func WithLockTickInterval(d time.Duration) Option {
	return func(m *Manager) { m.lockTickInterval = d }
}

// New creates a Manager in the anonymous state. Call Hydrate to restore
// persisted state, and Close on teardown.
func New(api Service, store storage.Store, cb Callbacks, opts ...Option) *Manager {
	m := &Manager{
		api:              api,
		store:            store,
		cb:               cb,
		state:            State{Kind: KindAnonymous},
		lockTickInterval: time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	if m.origin == "" {
		m.origin = uuid.NewString()
	}
	if m.limiter == nil {
		m.limiter = ratelimit.New(store, ratelimit.WithLogger(m.log))
	}
	m.clock = session.NewClock(session.ClockCallbacks{
		Warning: func(remaining time.Duration) {
			if m.cb.ExpiryWarning != nil {
				m.cb.ExpiryWarning(remaining)
			}
		},
		Tick: func(remaining time.Duration) {
			if m.cb.ExpiryTick != nil {
				m.cb.ExpiryTick(remaining)
			}
		},
		Expire: func() { m.endSession("expired") },
	}, m.clockOpts...)
	m.watcher = session.NewWatcher(store,
		func() { m.endSession("ended in another process") },
		m.watchOpts...)
	return m
}

// Close tears down timers and the watcher. No callback fires after Close.
func (m *Manager) Close() {
	m.watcher.Stop()
	m.clock.Disarm()
	m.mu.Lock()
	m.lockGen++
	m.mu.Unlock()
}

// State returns the current snapshot.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Hydrate restores persisted state on startup: an unexpired session
// resumes as authenticated, a persisted guest flag resumes guest mode, an
// unexpired sign-in lockout resumes its countdown, anything else
// (including a session that expired while the process was down) lands in
// anonymous. Lockouts on other operations are re-checked when their
// operation is next attempted.
func (m *Manager) Hydrate(ctx context.Context) (State, error) {
	if guest, err := session.IsGuest(ctx, m.store); err != nil {
		return m.State(), err
	} else if guest {
		m.setState(State{Kind: KindGuest})
		return m.State(), nil
	}

	s, err := session.Load(ctx, m.store)
	if errors.Is(err, storage.ErrNotFound) {
		if !m.hydrateLock(ctx) {
			m.setState(State{Kind: KindAnonymous})
		}
		return m.State(), nil
	}
	if err != nil {
		return m.State(), err
	}
	if s.Remaining(time.Now()) <= 0 {
		if err := session.Clear(ctx, m.store); err != nil {
			m.log.Warn("clearing stale session", "err", err)
		}
		m.log.Info("persisted session expired while offline")
		if !m.hydrateLock(ctx) {
			m.setState(State{Kind: KindAnonymous})
		}
		return m.State(), nil
	}

	m.setState(State{Kind: KindAuthenticated, Session: s})
	m.clock.Arm(time.Unix(s.ExpiresAt, 0))
	m.watcher.Start()
	m.log.Info("session restored", "user", s.Username,
		"expires_in", s.Remaining(time.Now()).Round(time.Second))
	return m.State(), nil
}

// hydrateLock resumes a persisted sign-in lockout so a restart shows the
// countdown instead of silently refusing the next attempt.
func (m *Manager) hydrateLock(ctx context.Context) bool {
	remaining, err := m.limiter.Remaining(ctx, ratelimit.OpLogin)
	if err != nil || remaining <= 0 {
		return false
	}
	m.enterLocked(ratelimit.OpLogin, remaining, State{Kind: KindAnonymous})
	return true
}

// SubmitCredentials runs the credential exchange. The password slice is
// wiped before SubmitCredentials returns, whatever the outcome; it is
// held in a sealed enclave only while the request is in flight. On a
// two-factor account the machine moves to KindTwoFactorPending and the
// password is not retained for the second step.
func (m *Manager) SubmitCredentials(ctx context.Context, identifier string, password []byte) error {
	if identifier == "" || len(password) == 0 {
		util.WipeBytes(password)
		return ErrMissingInput
	}
	enclave := memguard.NewEnclave(password)

	entry, err := m.beginFrom(KindAnonymous, KindGuest)
	if err != nil {
		return err
	}
	defer m.endAttempt()

	if err := m.checkLock(ctx, ratelimit.OpLogin, entry); err != nil {
		return err
	}
	token, err := m.challengeToken()
	if err != nil {
		return err
	}

	m.setState(State{Kind: KindCredentialsPending})

	buf, err := enclave.Open()
	if err != nil {
		m.setState(entry)
		return fmt.Errorf("opening credential enclave: %w", err)
	}
	res, apiErr := m.api.Login(ctx, identifier, buf.String(), token)
	buf.Destroy()

	if apiErr != nil {
		return m.handleFailure(ctx, ratelimit.OpLogin, entry, apiErr, true)
	}
	if res.Requires2FA {
		m.mu.Lock()
		m.pendingEmail = res.ContactEmail
		m.mu.Unlock()
		m.setState(State{Kind: KindTwoFactorPending, ContactEmail: res.ContactEmail})
		m.log.Info("second factor required", "contact", res.ContactEmail)
		return nil
	}
	return m.establish(ctx, res)
}

// VerifyTwoFactor exchanges the emailed code for a session. Only legal
// from KindTwoFactorPending.
func (m *Manager) VerifyTwoFactor(ctx context.Context, code string) error {
	entry, err := m.beginFrom(KindTwoFactorPending)
	if err != nil {
		return err
	}
	defer m.endAttempt()

	if !validCode(code) {
		return ErrCodeFormat
	}
	if err := m.checkLock(ctx, ratelimit.OpVerify2FA, entry); err != nil {
		return err
	}

	m.mu.Lock()
	email := m.pendingEmail
	m.mu.Unlock()

	res, apiErr := m.api.VerifyTwoFactor(ctx, email, code)
	if apiErr != nil {
		// An invalid code keeps the prompt open for another try.
		if errors.Is(apiErr, blogapi.ErrInvalidOrExpiredCode) {
			return apiErr
		}
		return m.handleFailure(ctx, ratelimit.OpVerify2FA, entry, apiErr, false)
	}
	if err := m.limiter.Clear(ctx, ratelimit.OpVerify2FA); err != nil {
		m.log.Warn("clearing verify lockout", "err", err)
	}
	return m.establish(ctx, res)
}

// CancelTwoFactor abandons a pending second factor and returns to
// anonymous. The credentials are already gone; the service's code simply
// goes unused.
func (m *Manager) CancelTwoFactor() {
	m.mu.Lock()
	if m.state.Kind != KindTwoFactorPending {
		m.mu.Unlock()
		return
	}
	m.pendingEmail = ""
	m.mu.Unlock()
	m.setState(State{Kind: KindAnonymous})
}

// Register creates an account. The machine does not change state: the
// account must verify its email before it can sign in. The password
// slice is wiped before Register returns.
func (m *Manager) Register(ctx context.Context, username, email string, password []byte) error {
	if username == "" || email == "" || len(password) == 0 {
		util.WipeBytes(password)
		return ErrMissingInput
	}
	enclave := memguard.NewEnclave(password)

	entry, err := m.beginFrom(KindAnonymous, KindGuest)
	if err != nil {
		return err
	}
	defer m.endAttempt()

	if err := m.checkLock(ctx, ratelimit.OpRegister, entry); err != nil {
		return err
	}
	token, err := m.challengeToken()
	if err != nil {
		return err
	}

	buf, err := enclave.Open()
	if err != nil {
		return fmt.Errorf("opening credential enclave: %w", err)
	}
	apiErr := m.api.Register(ctx, username, email, buf.String(), token)
	buf.Destroy()

	if apiErr != nil {
		return m.handleFailure(ctx, ratelimit.OpRegister, entry, apiErr, true)
	}
	m.mu.Lock()
	m.pendingEmail = email
	m.mu.Unlock()
	m.log.Info("registration submitted", "email", email)
	return nil
}

// VerifyRegistration completes signup with the emailed code and signs
// the new account in.
func (m *Manager) VerifyRegistration(ctx context.Context, email, code string) error {
	entry, err := m.beginFrom(KindAnonymous, KindGuest)
	if err != nil {
		return err
	}
	defer m.endAttempt()

	if !validCode(code) {
		return ErrCodeFormat
	}
	if email == "" {
		m.mu.Lock()
		email = m.pendingEmail
		m.mu.Unlock()
	}
	res, apiErr := m.api.VerifyRegistration(ctx, email, code)
	if apiErr != nil {
		if errors.Is(apiErr, blogapi.ErrInvalidOrExpiredCode) {
			return apiErr
		}
		return m.handleFailure(ctx, ratelimit.OpRegister, entry, apiErr, false)
	}
	return m.establish(ctx, res)
}

// ResendVerification re-sends the account verification email.
func (m *Manager) ResendVerification(ctx context.Context, identifier string) error {
	return m.api.ResendVerification(ctx, identifier)
}

// ForgotPassword requests a password-reset email.
func (m *Manager) ForgotPassword(ctx context.Context, email string) error {
	if email == "" {
		return ErrMissingInput
	}
	entry, err := m.beginFrom(KindAnonymous, KindGuest)
	if err != nil {
		return err
	}
	defer m.endAttempt()

	if err := m.checkLock(ctx, ratelimit.OpRecover, entry); err != nil {
		return err
	}
	token, err := m.challengeToken()
	if err != nil {
		return err
	}
	if apiErr := m.api.ForgotPassword(ctx, email, token); apiErr != nil {
		return m.handleFailure(ctx, ratelimit.OpRecover, entry, apiErr, true)
	}
	return nil
}

// ResetPassword sets a new password using an emailed reset token. The
// password slice is wiped before ResetPassword returns.
func (m *Manager) ResetPassword(ctx context.Context, token string, password []byte) error {
	if token == "" || len(password) == 0 {
		util.WipeBytes(password)
		return ErrMissingInput
	}
	enclave := memguard.NewEnclave(password)
	buf, err := enclave.Open()
	if err != nil {
		return fmt.Errorf("opening credential enclave: %w", err)
	}
	defer buf.Destroy()
	return m.api.ResetPassword(ctx, token, buf.String())
}

// ContinueAsGuest enters read-only browsing. The choice persists so a
// restart resumes guest mode instead of re-prompting.
func (m *Manager) ContinueAsGuest(ctx context.Context) error {
	m.mu.Lock()
	kind := m.state.Kind
	m.mu.Unlock()
	if kind != KindAnonymous {
		return fmt.Errorf("%w: continue as guest from %s", ErrInvalidTransition, kind)
	}
	if err := session.SetGuest(ctx, m.store); err != nil {
		return err
	}
	m.setState(State{Kind: KindGuest})
	return nil
}

// ExtendSession asks the service for a fresh expiry and re-arms the
// clock. Typically wired to the expiry-warning prompt.
func (m *Manager) ExtendSession(ctx context.Context) error {
	m.mu.Lock()
	if m.state.Kind != KindAuthenticated {
		m.mu.Unlock()
		return ErrNotAuthenticated
	}
	if m.inFlight {
		m.mu.Unlock()
		return ErrInFlight
	}
	m.inFlight = true
	s := m.state.Session
	m.mu.Unlock()
	defer m.endAttempt()

	expiresAt, err := m.api.ExtendSession(ctx)
	if err != nil {
		// A rejected credential means the session is already dead
		// server-side; finish the job locally.
		if errors.Is(err, blogapi.ErrInvalidCredentials) {
			m.endSession("rejected by service")
		}
		return err
	}

	s.ExpiresAt = expiresAt
	if err := session.Save(ctx, m.store, s, m.origin); err != nil {
		return fmt.Errorf("persisting extended session: %w", err)
	}
	m.setState(State{Kind: KindAuthenticated, Session: s})
	m.clock.Arm(time.Unix(expiresAt, 0))
	m.log.Info("session extended", "expires_in", s.Remaining(time.Now()).Round(time.Second))
	return nil
}

// Logout ends the session. Local teardown happens immediately; the
// network goodbye is fired in the background and never blocks or fails
// the logout.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	kind := m.state.Kind
	m.mu.Unlock()

	switch kind {
	case KindGuest:
		if err := m.store.Delete(ctx, session.KeyGuest); err != nil {
			return err
		}
		m.setState(State{Kind: KindAnonymous})
		return nil
	case KindAuthenticated:
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
			defer cancel()
			if err := m.api.Logout(ctx); err != nil {
				m.log.Debug("remote logout failed", "err", err)
			}
		}()
		m.endSession("logout")
		return nil
	default:
		return nil
	}
}

// UpdateUser renames the account and/or changes its email, then rewrites
// the persisted user summary so other processes pick the rename up.
func (m *Manager) UpdateUser(ctx context.Context, username, email string) error {
	m.mu.Lock()
	if m.state.Kind != KindAuthenticated {
		m.mu.Unlock()
		return ErrNotAuthenticated
	}
	s := m.state.Session
	m.mu.Unlock()

	if err := m.api.UpdateProfile(ctx, username, email); err != nil {
		return err
	}
	if username != "" && username != s.Username {
		s.Username = username
		if err := session.UpdateUsername(ctx, m.store, s.UserID, username); err != nil {
			return err
		}
		m.setState(State{Kind: KindAuthenticated, Session: s})
	}
	return nil
}

// ChangePassword rotates the password for the signed-in account. Both
// slices are wiped before ChangePassword returns. The service invalidates
// other devices' tokens; their watchers notice when those sessions end.
func (m *Manager) ChangePassword(ctx context.Context, current, next []byte) error {
	if len(current) == 0 || len(next) == 0 {
		util.WipeBytes(current)
		util.WipeBytes(next)
		return ErrMissingInput
	}
	currentEnc := memguard.NewEnclave(current)
	nextEnc := memguard.NewEnclave(next)

	m.mu.Lock()
	if m.state.Kind != KindAuthenticated {
		m.mu.Unlock()
		return ErrNotAuthenticated
	}
	m.mu.Unlock()

	curBuf, err := currentEnc.Open()
	if err != nil {
		return fmt.Errorf("opening credential enclave: %w", err)
	}
	defer curBuf.Destroy()
	nextBuf, err := nextEnc.Open()
	if err != nil {
		return fmt.Errorf("opening credential enclave: %w", err)
	}
	defer nextBuf.Destroy()

	return m.api.ChangePassword(ctx, curBuf.String(), nextBuf.String())
}

// beginFrom takes the in-flight slot if the machine is in one of the
// allowed states and returns the entry snapshot for reverts.
func (m *Manager) beginFrom(allowed ...Kind) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inFlight {
		return State{}, ErrInFlight
	}
	if m.state.Kind == KindLocked {
		return State{}, &LockedError{Op: m.state.LockedOp, Remaining: m.state.RetryRemaining}
	}
	for _, k := range allowed {
		if m.state.Kind == k {
			m.inFlight = true
			return m.state, nil
		}
	}
	return State{}, fmt.Errorf("%w: from %s", ErrInvalidTransition, m.state.Kind)
}

func (m *Manager) endAttempt() {
	m.mu.Lock()
	m.inFlight = false
	m.mu.Unlock()
}

// checkLock enforces a persisted lockout before any request is sent.
func (m *Manager) checkLock(ctx context.Context, op string, entry State) error {
	remaining, err := m.limiter.Remaining(ctx, op)
	if err != nil {
		return err
	}
	if remaining <= 0 {
		return nil
	}
	m.enterLocked(op, remaining, entry)
	return &LockedError{Op: op, Remaining: remaining}
}

// challengeToken consumes the single-use bot-verification token.
func (m *Manager) challengeToken() (string, error) {
	if m.challenge == nil {
		return "", nil
	}
	token, ok := m.challenge.Consume()
	if !ok {
		return "", ErrChallengeRequired
	}
	return token, nil
}

// handleFailure is the shared tail of every failed sensitive request:
// the challenge token is spent regardless of why the request failed, a
// reported rate limit becomes a persisted lockout, and anything else
// reverts the machine to its entry state with the error surfaced.
func (m *Manager) handleFailure(ctx context.Context, op string, entry State, apiErr error, resetChallenge bool) error {
	if resetChallenge && m.challenge != nil {
		m.challenge.Reset()
	}
	if rl, ok := blogapi.AsRateLimit(apiErr); ok {
		if err := m.limiter.Lock(ctx, op, rl.RetryAfter); err != nil {
			m.log.Warn("persisting lockout", "op", op, "err", err)
		}
		remaining, err := m.limiter.Remaining(ctx, op)
		if err != nil || remaining <= 0 {
			remaining = rl.RetryAfter
		}
		m.enterLocked(op, remaining, entry)
		return &LockedError{Op: op, Remaining: remaining}
	}
	m.setState(entry)
	return apiErr
}

// establish is the single entry into the authenticated state.
func (m *Manager) establish(ctx context.Context, res blogapi.LoginResult) error {
	s := session.Session{
		UserID:    res.User.ID,
		Username:  res.User.Username,
		ExpiresAt: res.SessionExpiresAt,
	}
	if err := session.Save(ctx, m.store, s, m.origin); err != nil {
		return fmt.Errorf("persisting session: %w", err)
	}
	if err := m.limiter.Clear(ctx, ratelimit.OpLogin); err != nil {
		m.log.Warn("clearing login lockout", "err", err)
	}
	m.mu.Lock()
	m.pendingEmail = ""
	m.mu.Unlock()

	// State first, then the clock: an already-past expiry fires the
	// expiry callback synchronously and must find an authenticated
	// machine to tear down.
	m.setState(State{Kind: KindAuthenticated, Session: s})
	m.clock.Arm(time.Unix(s.ExpiresAt, 0))
	m.watcher.Start()
	m.log.Info("session established", "user", s.Username,
		"expires_in", s.Remaining(time.Now()).Round(time.Second))
	return nil
}

// endSession is the single exit from the authenticated state. Every
// ending funnels here: logout, hard expiry, remote rejection, another
// process clearing the store. Idempotent; concurrent callers race for
// one transition and the losers return quietly.
func (m *Manager) endSession(reason string) {
	m.mu.Lock()
	if m.state.Kind != KindAuthenticated {
		m.mu.Unlock()
		return
	}
	m.state = State{Kind: KindAnonymous}
	m.lockGen++
	m.mu.Unlock()

	m.clock.Disarm()
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	if err := session.Clear(ctx, m.store); err != nil {
		m.log.Warn("clearing session records", "err", err)
	}
	cancel()

	m.log.Info("session ended", "reason", reason)
	if m.cb.StateChanged != nil {
		m.cb.StateChanged(State{Kind: KindAnonymous})
	}
	if m.cb.SessionEnded != nil {
		m.cb.SessionEnded(reason)
	}
}

// enterLocked moves the machine into the lockout state and starts the
// countdown that restores the entry state when the lock drains.
func (m *Manager) enterLocked(op string, remaining time.Duration, returnTo State) {
	m.mu.Lock()
	m.lockGen++
	gen := m.lockGen
	m.state = State{Kind: KindLocked, LockedOp: op, RetryRemaining: remaining}
	m.mu.Unlock()

	if m.cb.StateChanged != nil {
		m.cb.StateChanged(State{Kind: KindLocked, LockedOp: op, RetryRemaining: remaining})
	}
	go m.lockCountdown(gen, op, returnTo)
}

func (m *Manager) lockCountdown(gen int, op string, returnTo State) {
	ticker := time.NewTicker(m.lockTickInterval)
	defer ticker.Stop()
	for range ticker.C {
		m.mu.Lock()
		stale := gen != m.lockGen || m.state.Kind != KindLocked
		m.mu.Unlock()
		if stale {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		remaining, err := m.limiter.Remaining(ctx, op)
		cancel()
		if err != nil {
			continue
		}
		if remaining <= 0 {
			m.mu.Lock()
			if gen != m.lockGen || m.state.Kind != KindLocked {
				m.mu.Unlock()
				return
			}
			m.mu.Unlock()
			m.log.Info("lockout drained", "op", op)
			m.setState(returnTo)
			return
		}

		m.mu.Lock()
		if gen == m.lockGen && m.state.Kind == KindLocked {
			m.state.RetryRemaining = remaining
		}
		m.mu.Unlock()
		if m.cb.LockTick != nil {
			m.cb.LockTick(op, remaining)
		}
	}
}

// setState replaces the snapshot and notifies. The lock generation bumps
// so any draining lockout countdown cancels itself.
func (m *Manager) setState(s State) {
	m.mu.Lock()
	if m.state == s {
		m.mu.Unlock()
		return
	}
	m.state = s
	m.lockGen++
	m.mu.Unlock()
	if m.cb.StateChanged != nil {
		m.cb.StateChanged(s)
	}
}

func validCode(code string) bool {
	if len(code) != codeLength {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
