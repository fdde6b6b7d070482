package authflow

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ComputerAnything/cpta-blog-sub000/blogapi"
	"github.com/ComputerAnything/cpta-blog-sub000/challenge"
	"github.com/ComputerAnything/cpta-blog-sub000/ratelimit"
	"github.com/ComputerAnything/cpta-blog-sub000/session"
	"github.com/ComputerAnything/cpta-blog-sub000/storage"
	"github.com/ComputerAnything/cpta-blog-sub000/storage/memory"
)

// fakeService scripts the remote side of each flow and counts calls.
type fakeService struct {
	mu          sync.Mutex
	loginFn     func(identifier, password, token string) (blogapi.LoginResult, error)
	verifyFn    func(email, code string) (blogapi.LoginResult, error)
	extendFn    func() (int64, error)
	registerFn  func(username, email, password, token string) error
	loginCalls  int
	logoutCalls int
}

func (f *fakeService) Login(ctx context.Context, identifier, password, token string) (blogapi.LoginResult, error) {
	f.mu.Lock()
	f.loginCalls++
	fn := f.loginFn
	f.mu.Unlock()
	if fn == nil {
		return blogapi.LoginResult{}, blogapi.ErrService
	}
	return fn(identifier, password, token)
}

func (f *fakeService) VerifyTwoFactor(ctx context.Context, email, code string) (blogapi.LoginResult, error) {
	f.mu.Lock()
	fn := f.verifyFn
	f.mu.Unlock()
	if fn == nil {
		return blogapi.LoginResult{}, blogapi.ErrService
	}
	return fn(email, code)
}

func (f *fakeService) Register(ctx context.Context, username, email, password, token string) error {
	f.mu.Lock()
	fn := f.registerFn
	f.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(username, email, password, token)
}

func (f *fakeService) VerifyRegistration(ctx context.Context, email, code string) (blogapi.LoginResult, error) {
	f.mu.Lock()
	fn := f.verifyFn
	f.mu.Unlock()
	if fn == nil {
		return blogapi.LoginResult{}, blogapi.ErrService
	}
	return fn(email, code)
}

func (f *fakeService) ResendVerification(ctx context.Context, identifier string) error { return nil }

func (f *fakeService) ForgotPassword(ctx context.Context, email, token string) error { return nil }

func (f *fakeService) ResetPassword(ctx context.Context, token, password string) error { return nil }

func (f *fakeService) ExtendSession(ctx context.Context) (int64, error) {
	f.mu.Lock()
	fn := f.extendFn
	f.mu.Unlock()
	if fn == nil {
		return 0, blogapi.ErrService
	}
	return fn()
}

func (f *fakeService) Logout(ctx context.Context) error {
	f.mu.Lock()
	f.logoutCalls++
	f.mu.Unlock()
	return nil
}

func (f *fakeService) UpdateProfile(ctx context.Context, username, email string) error { return nil }

func (f *fakeService) ChangePassword(ctx context.Context, current, next string) error { return nil }

func (f *fakeService) logins() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loginCalls
}

func (f *fakeService) logouts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logoutCalls
}

// recorder collects callback traffic for assertions.
type recorder struct {
	mu     sync.Mutex
	states []State
	ended  []string
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		StateChanged: func(s State) {
			r.mu.Lock()
			r.states = append(r.states, s)
			r.mu.Unlock()
		},
		SessionEnded: func(reason string) {
			r.mu.Lock()
			r.ended = append(r.ended, reason)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) endReasons() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ended...)
}

func okLogin(user blogapi.User, expiresAt int64) func(string, string, string) (blogapi.LoginResult, error) {
	return func(string, string, string) (blogapi.LoginResult, error) {
		return blogapi.LoginResult{User: user, SessionExpiresAt: expiresAt}, nil
	}
}

type widgetStub struct {
	cb     challenge.Callbacks
	resets int
}

func (w *widgetStub) Render(cb challenge.Callbacks) error {
	w.cb = cb
	return nil
}

func (w *widgetStub) Reset() { w.resets++ }

func solvedChallenge(t *testing.T, token string) (*challenge.Adapter, *widgetStub) {
	t.Helper()
	w := &widgetStub{}
	a := challenge.NewAdapter(w)
	require.NoError(t, a.Start())
	w.cb.Success(token)
	return a, w
}

func TestSubmitCredentials_EstablishesSession(t *testing.T) {
	store := memory.New()
	svc := &fakeService{loginFn: okLogin(blogapi.User{ID: 7, Username: "ada"}, time.Now().Add(time.Hour).Unix())}
	adapter, _ := solvedChallenge(t, "tok-1")
	rec := &recorder{}
	m := New(svc, store, rec.callbacks(), WithChallenge(adapter))
	defer m.Close()

	pw := []byte("hunter2")
	require.NoError(t, m.SubmitCredentials(context.Background(), "ada", pw))

	st := m.State()
	assert.Equal(t, KindAuthenticated, st.Kind)
	assert.Equal(t, "ada", st.Session.Username)

	loaded, err := session.Load(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.UserID)

	_, ok := adapter.Token()
	assert.False(t, ok, "the challenge token must be spent by the attempt")
}

func TestSubmitCredentials_WipesPassword(t *testing.T) {
	store := memory.New()
	svc := &fakeService{loginFn: okLogin(blogapi.User{ID: 1, Username: "ada"}, time.Now().Add(time.Hour).Unix())}
	m := New(svc, store, Callbacks{})
	defer m.Close()

	pw := []byte("hunter2")
	require.NoError(t, m.SubmitCredentials(context.Background(), "ada", pw))
	assert.True(t, bytes.Equal(pw, make([]byte, len(pw))), "caller's password slice must be zeroed")
}

func TestSubmitCredentials_EmptyInputsRefusedLocally(t *testing.T) {
	store := memory.New()
	svc := &fakeService{}
	adapter, _ := solvedChallenge(t, "tok-1")
	m := New(svc, store, Callbacks{}, WithChallenge(adapter))
	defer m.Close()

	cases := []struct {
		name       string
		identifier string
		password   []byte
	}{
		{"both empty", "", []byte("")},
		{"empty identifier", "", []byte("pw")},
		{"empty password", "ada", []byte{}},
		{"nil password", "ada", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := m.SubmitCredentials(context.Background(), tc.identifier, tc.password)
			assert.ErrorIs(t, err, ErrMissingInput)
		})
	}

	assert.Zero(t, svc.logins(), "refusal must happen before any request")
	assert.Equal(t, KindAnonymous, m.State().Kind)

	// The single-use token survives a local refusal for the real attempt.
	tok, ok := adapter.Token()
	require.True(t, ok)
	assert.Equal(t, "tok-1", tok)
}

func TestSubmitCredentials_WipesPasswordOnLocalRefusal(t *testing.T) {
	m := New(&fakeService{}, memory.New(), Callbacks{})
	defer m.Close()

	pw := []byte("hunter2")
	require.ErrorIs(t, m.SubmitCredentials(context.Background(), "", pw), ErrMissingInput)
	assert.Equal(t, make([]byte, len(pw)), pw, "password must be zeroed even when refused locally")
}

func TestEmptyInputsRefusedAcrossOperations(t *testing.T) {
	ctx := context.Background()
	m := New(&fakeService{}, memory.New(), Callbacks{})
	defer m.Close()

	assert.ErrorIs(t, m.Register(ctx, "", "a@b.c", []byte("pw")), ErrMissingInput)
	assert.ErrorIs(t, m.Register(ctx, "ada", "", []byte("pw")), ErrMissingInput)
	assert.ErrorIs(t, m.Register(ctx, "ada", "a@b.c", nil), ErrMissingInput)
	assert.ErrorIs(t, m.ForgotPassword(ctx, ""), ErrMissingInput)
	assert.ErrorIs(t, m.ResetPassword(ctx, "", []byte("pw")), ErrMissingInput)
	assert.ErrorIs(t, m.ResetPassword(ctx, "reset-token", nil), ErrMissingInput)
	assert.ErrorIs(t, m.ChangePassword(ctx, nil, []byte("pw")), ErrMissingInput)
	assert.ErrorIs(t, m.ChangePassword(ctx, []byte("pw"), nil), ErrMissingInput)
}

func TestSubmitCredentials_TwoFactorFlow(t *testing.T) {
	store := memory.New()
	svc := &fakeService{
		loginFn: func(string, string, string) (blogapi.LoginResult, error) {
			return blogapi.LoginResult{Requires2FA: true, ContactEmail: "ada@example.com"}, nil
		},
		verifyFn: func(email, code string) (blogapi.LoginResult, error) {
			assert.Equal(t, "ada@example.com", email)
			if code != "123456" {
				return blogapi.LoginResult{}, blogapi.ErrInvalidOrExpiredCode
			}
			return blogapi.LoginResult{
				User:             blogapi.User{ID: 7, Username: "ada"},
				SessionExpiresAt: time.Now().Add(time.Hour).Unix(),
			}, nil
		},
	}
	m := New(svc, store, Callbacks{})
	defer m.Close()

	require.NoError(t, m.SubmitCredentials(context.Background(), "ada", []byte("pw")))
	st := m.State()
	require.Equal(t, KindTwoFactorPending, st.Kind)
	assert.Equal(t, "ada@example.com", st.ContactEmail)

	// A bad code keeps the prompt open.
	err := m.VerifyTwoFactor(context.Background(), "000000")
	assert.ErrorIs(t, err, blogapi.ErrInvalidOrExpiredCode)
	assert.Equal(t, KindTwoFactorPending, m.State().Kind)

	require.NoError(t, m.VerifyTwoFactor(context.Background(), "123456"))
	assert.Equal(t, KindAuthenticated, m.State().Kind)
}

func TestVerifyTwoFactor_CodeFormatGuard(t *testing.T) {
	store := memory.New()
	verifyCalls := 0
	svc := &fakeService{
		loginFn: func(string, string, string) (blogapi.LoginResult, error) {
			return blogapi.LoginResult{Requires2FA: true, ContactEmail: "a@b.c"}, nil
		},
		verifyFn: func(string, string) (blogapi.LoginResult, error) {
			verifyCalls++
			return blogapi.LoginResult{}, blogapi.ErrService
		},
	}
	m := New(svc, store, Callbacks{})
	defer m.Close()
	require.NoError(t, m.SubmitCredentials(context.Background(), "ada", []byte("pw")))

	for _, code := range []string{"", "12345", "1234567", "12a456"} {
		assert.ErrorIs(t, m.VerifyTwoFactor(context.Background(), code), ErrCodeFormat)
	}
	assert.Zero(t, verifyCalls, "malformed codes must not reach the service")
}

func TestCancelTwoFactor(t *testing.T) {
	store := memory.New()
	svc := &fakeService{
		loginFn: func(string, string, string) (blogapi.LoginResult, error) {
			return blogapi.LoginResult{Requires2FA: true, ContactEmail: "a@b.c"}, nil
		},
	}
	m := New(svc, store, Callbacks{})
	defer m.Close()
	require.NoError(t, m.SubmitCredentials(context.Background(), "ada", []byte("pw")))

	m.CancelTwoFactor()
	assert.Equal(t, KindAnonymous, m.State().Kind)
}

func TestSubmitCredentials_RequiresChallenge(t *testing.T) {
	store := memory.New()
	svc := &fakeService{}
	w := &widgetStub{}
	adapter := challenge.NewAdapter(w)
	require.NoError(t, adapter.Start())
	m := New(svc, store, Callbacks{}, WithChallenge(adapter))
	defer m.Close()

	err := m.SubmitCredentials(context.Background(), "ada", []byte("pw"))
	assert.ErrorIs(t, err, ErrChallengeRequired)
	assert.Zero(t, svc.logins(), "no request may leave without a token")
	assert.Equal(t, KindAnonymous, m.State().Kind)
}

func TestSubmitCredentials_FailureSpendsChallenge(t *testing.T) {
	store := memory.New()
	svc := &fakeService{
		loginFn: func(string, string, string) (blogapi.LoginResult, error) {
			return blogapi.LoginResult{}, blogapi.ErrInvalidCredentials
		},
	}
	adapter, w := solvedChallenge(t, "tok-1")
	m := New(svc, store, Callbacks{}, WithChallenge(adapter))
	defer m.Close()

	err := m.SubmitCredentials(context.Background(), "ada", []byte("pw"))
	assert.ErrorIs(t, err, blogapi.ErrInvalidCredentials)
	assert.Equal(t, KindAnonymous, m.State().Kind)
	assert.Equal(t, 1, w.resets, "a token that rode a failed request is spent")

	// The next attempt needs a fresh solve.
	err = m.SubmitCredentials(context.Background(), "ada", []byte("pw"))
	assert.ErrorIs(t, err, ErrChallengeRequired)
}

func TestSubmitCredentials_RateLimitLocksAndDrains(t *testing.T) {
	store := memory.New()
	now := time.Now()
	var clockMu sync.Mutex
	nowFn := func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return now
	}
	limiter := ratelimit.New(store, ratelimit.WithNowFunc(nowFn))

	svc := &fakeService{
		loginFn: func(string, string, string) (blogapi.LoginResult, error) {
			return blogapi.LoginResult{}, &blogapi.RateLimitError{RetryAfter: 90 * time.Second}
		},
	}
	m := New(svc, store, Callbacks{},
		WithLimiter(limiter),
		WithLockTickInterval(5*time.Millisecond))
	defer m.Close()

	err := m.SubmitCredentials(context.Background(), "ada", []byte("pw"))
	locked, ok := AsLocked(err)
	require.True(t, ok)
	assert.Equal(t, ratelimit.OpLogin, locked.Op)
	assert.InDelta(t, 90, locked.Remaining.Seconds(), 1)
	assert.Equal(t, KindLocked, m.State().Kind)

	// A retry during the lockout is refused locally.
	err = m.SubmitCredentials(context.Background(), "ada", []byte("pw"))
	_, ok = AsLocked(err)
	require.True(t, ok)
	assert.Equal(t, 1, svc.logins(), "a locked operation must not reach the service")

	// Advance past the lockout; the countdown restores the entry state.
	clockMu.Lock()
	now = now.Add(2 * time.Minute)
	clockMu.Unlock()
	assert.Eventually(t, func() bool {
		return m.State().Kind == KindAnonymous
	}, time.Second, 5*time.Millisecond)

	svc.mu.Lock()
	svc.loginFn = okLogin(blogapi.User{ID: 1, Username: "ada"}, time.Now().Add(time.Hour).Unix())
	svc.mu.Unlock()
	require.NoError(t, m.SubmitCredentials(context.Background(), "ada", []byte("pw")))
	assert.Equal(t, KindAuthenticated, m.State().Kind)
}

func TestSubmitCredentials_PersistedLockSurvivesRestart(t *testing.T) {
	store := memory.New()
	limiter := ratelimit.New(store)
	require.NoError(t, limiter.Lock(context.Background(), ratelimit.OpLogin, 5*time.Minute))

	// A fresh manager over the same store is a restarted process.
	svc := &fakeService{}
	m := New(svc, store, Callbacks{})
	defer m.Close()

	err := m.SubmitCredentials(context.Background(), "ada", []byte("pw"))
	locked, ok := AsLocked(err)
	require.True(t, ok)
	assert.InDelta(t, 300, locked.Remaining.Seconds(), 2)
	assert.Zero(t, svc.logins())
}

func TestHydrate(t *testing.T) {
	t.Run("empty store", func(t *testing.T) {
		m := New(&fakeService{}, memory.New(), Callbacks{})
		defer m.Close()
		st, err := m.Hydrate(context.Background())
		require.NoError(t, err)
		assert.Equal(t, KindAnonymous, st.Kind)
	})

	t.Run("live session", func(t *testing.T) {
		store := memory.New()
		s := session.Session{UserID: 7, Username: "ada", ExpiresAt: time.Now().Add(time.Hour).Unix()}
		require.NoError(t, session.Save(context.Background(), store, s, "other-process"))

		m := New(&fakeService{}, store, Callbacks{})
		defer m.Close()
		st, err := m.Hydrate(context.Background())
		require.NoError(t, err)
		assert.Equal(t, KindAuthenticated, st.Kind)
		assert.Equal(t, "ada", st.Session.Username)
	})

	t.Run("expired while offline", func(t *testing.T) {
		store := memory.New()
		s := session.Session{UserID: 7, Username: "ada", ExpiresAt: time.Now().Add(-time.Minute).Unix()}
		require.NoError(t, session.Save(context.Background(), store, s, "other-process"))

		m := New(&fakeService{}, store, Callbacks{})
		defer m.Close()
		st, err := m.Hydrate(context.Background())
		require.NoError(t, err)
		assert.Equal(t, KindAnonymous, st.Kind)
		_, err = session.Load(context.Background(), store)
		assert.ErrorIs(t, err, storage.ErrNotFound, "the stale record must be cleared")
	})

	t.Run("sign-in lockout resumes countdown", func(t *testing.T) {
		store := memory.New()
		limiter := ratelimit.New(store)
		require.NoError(t, limiter.Lock(context.Background(), ratelimit.OpLogin, 5*time.Minute))

		m := New(&fakeService{}, store, Callbacks{})
		defer m.Close()
		st, err := m.Hydrate(context.Background())
		require.NoError(t, err)
		assert.Equal(t, KindLocked, st.Kind)
		assert.Equal(t, ratelimit.OpLogin, st.LockedOp)
		assert.InDelta(t, 300, st.RetryRemaining.Seconds(), 2)
	})

	t.Run("guest flag", func(t *testing.T) {
		store := memory.New()
		require.NoError(t, session.SetGuest(context.Background(), store))

		m := New(&fakeService{}, store, Callbacks{})
		defer m.Close()
		st, err := m.Hydrate(context.Background())
		require.NoError(t, err)
		assert.Equal(t, KindGuest, st.Kind)
	})
}

func TestGuestMode(t *testing.T) {
	store := memory.New()
	m := New(&fakeService{}, store, Callbacks{})
	defer m.Close()

	require.NoError(t, m.ContinueAsGuest(context.Background()))
	assert.Equal(t, KindGuest, m.State().Kind)

	guest, err := session.IsGuest(context.Background(), store)
	require.NoError(t, err)
	assert.True(t, guest, "the choice must persist for the next start")

	require.NoError(t, m.Logout(context.Background()))
	assert.Equal(t, KindAnonymous, m.State().Kind)
	guest, err = session.IsGuest(context.Background(), store)
	require.NoError(t, err)
	assert.False(t, guest)
}

func TestLogout_LocalTeardownIsImmediate(t *testing.T) {
	store := memory.New()
	svc := &fakeService{loginFn: okLogin(blogapi.User{ID: 1, Username: "ada"}, time.Now().Add(time.Hour).Unix())}
	rec := &recorder{}
	m := New(svc, store, rec.callbacks())
	defer m.Close()
	require.NoError(t, m.SubmitCredentials(context.Background(), "ada", []byte("pw")))

	require.NoError(t, m.Logout(context.Background()))
	assert.Equal(t, KindAnonymous, m.State().Kind)
	_, err := session.Load(context.Background(), store)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, []string{"logout"}, rec.endReasons())

	// The goodbye still reaches the service, off the caller's path.
	assert.Eventually(t, func() bool { return svc.logouts() == 1 },
		time.Second, 5*time.Millisecond)

	// A second logout is a no-op, not a second ending.
	require.NoError(t, m.Logout(context.Background()))
	assert.Equal(t, []string{"logout"}, rec.endReasons())
}

func TestCrossProcessLogout(t *testing.T) {
	store := memory.New()
	expiresAt := time.Now().Add(time.Hour).Unix()

	svc1 := &fakeService{loginFn: okLogin(blogapi.User{ID: 1, Username: "ada"}, expiresAt)}
	m1 := New(svc1, store, Callbacks{},
		WithWatcherOptions(session.WithPollInterval(10*time.Millisecond)))
	defer m1.Close()
	require.NoError(t, m1.SubmitCredentials(context.Background(), "ada", []byte("pw")))

	rec := &recorder{}
	m2 := New(&fakeService{}, store, rec.callbacks(),
		WithWatcherOptions(session.WithPollInterval(10*time.Millisecond)))
	defer m2.Close()
	st, err := m2.Hydrate(context.Background())
	require.NoError(t, err)
	require.Equal(t, KindAuthenticated, st.Kind)

	require.NoError(t, m1.Logout(context.Background()))

	assert.Eventually(t, func() bool {
		return m2.State().Kind == KindAnonymous
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"ended in another process"}, rec.endReasons())
}

func TestCrossProcess_LoginDoesNotPropagate(t *testing.T) {
	store := memory.New()

	m2 := New(&fakeService{}, store, Callbacks{},
		WithWatcherOptions(session.WithPollInterval(10*time.Millisecond)))
	defer m2.Close()
	_, err := m2.Hydrate(context.Background())
	require.NoError(t, err)

	// Another process signs in. This process stays anonymous until its
	// own Hydrate or login; sessions never start by propagation.
	s := session.Session{UserID: 1, Username: "ada", ExpiresAt: time.Now().Add(time.Hour).Unix()}
	require.NoError(t, session.Save(context.Background(), store, s, "other-process"))

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, KindAnonymous, m2.State().Kind)
}

func TestExtendSession(t *testing.T) {
	store := memory.New()
	first := time.Now().Add(30 * time.Minute).Unix()
	extended := time.Now().Add(90 * time.Minute).Unix()
	svc := &fakeService{
		loginFn:  okLogin(blogapi.User{ID: 1, Username: "ada"}, first),
		extendFn: func() (int64, error) { return extended, nil },
	}
	m := New(svc, store, Callbacks{})
	defer m.Close()
	require.NoError(t, m.SubmitCredentials(context.Background(), "ada", []byte("pw")))

	require.NoError(t, m.ExtendSession(context.Background()))
	assert.Equal(t, extended, m.State().Session.ExpiresAt)

	loaded, err := session.Load(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, extended, loaded.ExpiresAt)
}

func TestExtendSession_RejectionEndsSession(t *testing.T) {
	store := memory.New()
	svc := &fakeService{
		loginFn:  okLogin(blogapi.User{ID: 1, Username: "ada"}, time.Now().Add(time.Hour).Unix()),
		extendFn: func() (int64, error) { return 0, blogapi.ErrInvalidCredentials },
	}
	rec := &recorder{}
	m := New(svc, store, rec.callbacks())
	defer m.Close()
	require.NoError(t, m.SubmitCredentials(context.Background(), "ada", []byte("pw")))

	err := m.ExtendSession(context.Background())
	assert.ErrorIs(t, err, blogapi.ErrInvalidCredentials)
	assert.Equal(t, KindAnonymous, m.State().Kind)
	assert.Equal(t, []string{"rejected by service"}, rec.endReasons())
}

func TestExtendSession_RequiresSession(t *testing.T) {
	m := New(&fakeService{}, memory.New(), Callbacks{})
	defer m.Close()
	assert.ErrorIs(t, m.ExtendSession(context.Background()), ErrNotAuthenticated)
}

func TestInFlightGuard(t *testing.T) {
	store := memory.New()
	release := make(chan struct{})
	svc := &fakeService{
		loginFn: func(string, string, string) (blogapi.LoginResult, error) {
			<-release
			return blogapi.LoginResult{}, blogapi.ErrInvalidCredentials
		},
	}
	m := New(svc, store, Callbacks{})
	defer m.Close()

	done := make(chan error, 1)
	go func() {
		done <- m.SubmitCredentials(context.Background(), "ada", []byte("pw"))
	}()
	require.Eventually(t, func() bool { return svc.logins() == 1 },
		time.Second, time.Millisecond)

	err := m.SubmitCredentials(context.Background(), "ada", []byte("pw"))
	assert.ErrorIs(t, err, ErrInFlight)

	close(release)
	assert.ErrorIs(t, <-done, blogapi.ErrInvalidCredentials)
}

func TestSubmitCredentials_WrongState(t *testing.T) {
	store := memory.New()
	svc := &fakeService{loginFn: okLogin(blogapi.User{ID: 1, Username: "ada"}, time.Now().Add(time.Hour).Unix())}
	m := New(svc, store, Callbacks{})
	defer m.Close()
	require.NoError(t, m.SubmitCredentials(context.Background(), "ada", []byte("pw")))

	err := m.SubmitCredentials(context.Background(), "ada", []byte("pw"))
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestUpdateUser_PropagatesRename(t *testing.T) {
	store := memory.New()
	svc := &fakeService{loginFn: okLogin(blogapi.User{ID: 7, Username: "ada"}, time.Now().Add(time.Hour).Unix())}
	m := New(svc, store, Callbacks{})
	defer m.Close()
	require.NoError(t, m.SubmitCredentials(context.Background(), "ada", []byte("pw")))

	require.NoError(t, m.UpdateUser(context.Background(), "ada2", ""))
	assert.Equal(t, "ada2", m.State().Session.Username)

	loaded, err := session.Load(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, "ada2", loaded.Username)
}

func TestRegister_ThenVerifyEstablishes(t *testing.T) {
	store := memory.New()
	expiresAt := time.Now().Add(time.Hour).Unix()
	svc := &fakeService{
		registerFn: func(username, email, password, token string) error {
			assert.Equal(t, "ada", username)
			return nil
		},
		verifyFn: func(email, code string) (blogapi.LoginResult, error) {
			assert.Equal(t, "ada@example.com", email)
			return blogapi.LoginResult{
				User:             blogapi.User{ID: 9, Username: "ada"},
				SessionExpiresAt: expiresAt,
			}, nil
		},
	}
	m := New(svc, store, Callbacks{})
	defer m.Close()

	require.NoError(t, m.Register(context.Background(), "ada", "ada@example.com", []byte("pw")))
	assert.Equal(t, KindAnonymous, m.State().Kind, "registration alone signs nobody in")

	// The email argument may be omitted; the pending registration's is used.
	require.NoError(t, m.VerifyRegistration(context.Background(), "", "123456"))
	assert.Equal(t, KindAuthenticated, m.State().Kind)
}

func TestRegister_InputErrorDoesNotLock(t *testing.T) {
	store := memory.New()
	svc := &fakeService{
		registerFn: func(string, string, string, string) error {
			return &blogapi.InputError{Status: 409, Message: "Username already taken"}
		},
	}
	m := New(svc, store, Callbacks{})
	defer m.Close()

	err := m.Register(context.Background(), "ada", "a@b.c", []byte("pw"))
	var input *blogapi.InputError
	require.ErrorAs(t, err, &input)
	assert.Equal(t, KindAnonymous, m.State().Kind)
}

func TestExpiry_EndsSessionOnce(t *testing.T) {
	store := memory.New()
	svc := &fakeService{loginFn: okLogin(blogapi.User{ID: 1, Username: "ada"},
		time.Now().Add(300*time.Millisecond).Unix()+1)}
	rec := &recorder{}
	m := New(svc, store, rec.callbacks(),
		WithClockOptions(session.WithWarningLead(time.Millisecond)))
	defer m.Close()

	require.NoError(t, m.SubmitCredentials(context.Background(), "ada", []byte("pw")))
	require.Equal(t, KindAuthenticated, m.State().Kind)

	assert.Eventually(t, func() bool {
		return m.State().Kind == KindAnonymous
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"expired"}, rec.endReasons())

	_, err := session.Load(context.Background(), store)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
