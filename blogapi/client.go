// Package blogapi is the HTTP client for the blog's remote authentication
// service. The bearer credential travels in an httpOnly cookie managed by
// the client's cookie jar; it is never exposed to callers or logged.
package blogapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"strings"
	"time"

	"github.com/ComputerAnything/cpta-blog-sub000/internal/util"
)

const defaultTimeout = 15 * time.Second

// User is the account summary the service returns with a session.
type User struct {
	ID           int    `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	TwoFAEnabled bool   `json:"twofa_enabled"`
}

// LoginResult is the outcome of a successful credential or code exchange.
// Either Requires2FA is set (with the contact the code was sent to), or
// User and SessionExpiresAt describe the established session.
type LoginResult struct {
	Requires2FA      bool
	ContactEmail     string
	User             User
	SessionExpiresAt int64 // Unix seconds, service-supplied
}

// Client calls the remote authentication service.
type Client struct {
	baseURL string
	httpc   *http.Client
	log     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client. A cookie jar is
// attached if the client has none, since the session cookie must
// persist across calls.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) { c.httpc = httpc }
}

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New creates a Client for the service rooted at baseURL (e.g.
// "https://blog.example.com/api").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{baseURL: strings.TrimRight(baseURL, "/")}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpc == nil {
		c.httpc = &http.Client{Timeout: defaultTimeout}
	}
	if c.httpc.Jar == nil {
		jar, _ := cookiejar.New(nil)
		c.httpc.Jar = jar
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	return c
}

// serviceReply is the superset of fields the auth endpoints return.
type serviceReply struct {
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	ErrMsg           string `json:"error"`
	Requires2FA      bool   `json:"requires_2fa"`
	Email            string `json:"email"`
	User             *User  `json:"user"`
	SessionExpiresAt int64  `json:"sessionExpiresAt"`
}

func (r *serviceReply) text() string {
	switch {
	case r.Msg != "":
		return r.Msg
	case r.Message != "":
		return r.Message
	default:
		return r.ErrMsg
	}
}

// Login exchanges credentials plus a challenge token for a session or a
// two-factor continuation.
func (c *Client) Login(ctx context.Context, identifier, password, challengeToken string) (LoginResult, error) {
	payload := map[string]string{
		"identifier":      util.Normalize(identifier),
		"password":        util.Normalize(password),
		"turnstile_token": challengeToken,
	}
	reply, err := c.post(ctx, "/login", payload, classifyLogin)
	if err != nil {
		return LoginResult{}, err
	}
	return loginResultFrom(reply)
}

// VerifyTwoFactor exchanges the emailed 6-digit code for a session.
func (c *Client) VerifyTwoFactor(ctx context.Context, email, code string) (LoginResult, error) {
	payload := map[string]string{"email": email, "code": code}
	reply, err := c.post(ctx, "/verify-2fa", payload, classifyVerify)
	if err != nil {
		return LoginResult{}, err
	}
	return loginResultFrom(reply)
}

// Register creates an account. The service responds 201 and sends a
// verification code by email; no session is established yet.
func (c *Client) Register(ctx context.Context, username, email, password, challengeToken string) error {
	payload := map[string]string{
		"username":        util.Normalize(username),
		"email":           util.Normalize(email),
		"password":        util.Normalize(password),
		"turnstile_token": challengeToken,
	}
	_, err := c.post(ctx, "/register", payload, classifyRegister)
	return err
}

// VerifyRegistration completes signup with the emailed code and
// establishes the first session.
func (c *Client) VerifyRegistration(ctx context.Context, email, code string) (LoginResult, error) {
	payload := map[string]string{"email": email, "code": code}
	reply, err := c.post(ctx, "/verify-registration", payload, classifyVerify)
	if err != nil {
		return LoginResult{}, err
	}
	return loginResultFrom(reply)
}

// ResendVerification re-sends the account verification email.
func (c *Client) ResendVerification(ctx context.Context, identifier string) error {
	payload := map[string]string{"identifier": util.Normalize(identifier)}
	_, err := c.post(ctx, "/resend-verification", payload, classifyGeneric)
	return err
}

// ForgotPassword requests a password-reset email.
func (c *Client) ForgotPassword(ctx context.Context, email, challengeToken string) error {
	payload := map[string]string{
		"email":           util.Normalize(email),
		"turnstile_token": challengeToken,
	}
	_, err := c.post(ctx, "/forgot-password", payload, classifyGeneric)
	return err
}

// ResetPassword sets a new password using an emailed reset token.
func (c *Client) ResetPassword(ctx context.Context, token, password string) error {
	payload := map[string]string{"token": token, "password": util.Normalize(password)}
	_, err := c.post(ctx, "/reset-password", payload, classifyGeneric)
	return err
}

// ExtendSession asks the service to re-issue the session with a fresh
// expiry and returns the new absolute expiry.
func (c *Client) ExtendSession(ctx context.Context) (int64, error) {
	reply, err := c.post(ctx, "/auth/extend-session", nil, classifyGeneric)
	if err != nil {
		return 0, err
	}
	if reply.SessionExpiresAt == 0 {
		return 0, fmt.Errorf("%w: extend-session reply carried no expiry", ErrService)
	}
	return reply.SessionExpiresAt, nil
}

// Logout asks the service to clear the session cookie. Best-effort:
// callers must not let a failure here block a local logout.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.post(ctx, "/logout", nil, classifyGeneric)
	return err
}

// Profile fetches the authenticated account.
func (c *Client) Profile(ctx context.Context) (User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/profile", nil)
	if err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrService, err)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrService, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return User{}, ErrInvalidCredentials
	}
	if resp.StatusCode != http.StatusOK {
		return User{}, fmt.Errorf("%w: profile returned %d", ErrService, resp.StatusCode)
	}
	var u User
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&u); err != nil {
		return User{}, fmt.Errorf("%w: decoding profile: %v", ErrService, err)
	}
	return u, nil
}

// UpdateProfile renames the account and/or changes its email.
func (c *Client) UpdateProfile(ctx context.Context, username, email string) error {
	payload := map[string]string{"username": util.Normalize(username), "email": util.Normalize(email)}
	req, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrService, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/profile", bytes.NewReader(req))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrService, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrService, err)
	}
	defer resp.Body.Close()
	reply, _ := decodeReply(resp)
	return classifyGeneric(resp, reply)
}

// ChangePassword rotates the password for the authenticated account. The
// service invalidates tokens on other devices as a side effect.
func (c *Client) ChangePassword(ctx context.Context, current, next string) error {
	payload := map[string]string{
		"current_password": util.Normalize(current),
		"new_password":     util.Normalize(next),
	}
	_, err := c.post(ctx, "/change-password", payload, classifyGeneric)
	return err
}

// ToggleTwoFactor enables or disables email 2FA for the account.
func (c *Client) ToggleTwoFactor(ctx context.Context, enable bool) error {
	payload := map[string]bool{"enable": enable}
	_, err := c.post(ctx, "/toggle-2fa", payload, classifyGeneric)
	return err
}

// classifier maps a non-2xx response to a taxonomy error for one
// endpoint family. A nil return means the response is acceptable.
type classifier func(resp *http.Response, reply *serviceReply) error

func (c *Client) post(ctx context.Context, path string, payload any, classify classifier) (*serviceReply, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: encoding request: %v", ErrService, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrService, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		// Context cancellation is the caller's doing, not the service's.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.log.Warn("auth service unreachable", "path", path, "err", err)
		return nil, fmt.Errorf("%w: %v", ErrService, err)
	}
	defer resp.Body.Close()

	reply, decodeErr := decodeReply(resp)
	if err := classify(resp, reply); err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: decoding reply: %v", ErrService, decodeErr)
	}
	return reply, nil
}

func decodeReply(resp *http.Response) (*serviceReply, error) {
	var reply serviceReply
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &reply, err
	}
	if len(data) == 0 {
		return &reply, nil
	}
	if err := json.Unmarshal(data, &reply); err != nil {
		return &reply, err
	}
	return &reply, nil
}

func loginResultFrom(reply *serviceReply) (LoginResult, error) {
	if reply.Requires2FA {
		return LoginResult{Requires2FA: true, ContactEmail: reply.Email}, nil
	}
	if reply.User == nil || reply.SessionExpiresAt == 0 {
		return LoginResult{}, fmt.Errorf("%w: reply carried no session", ErrService)
	}
	return LoginResult{User: *reply.User, SessionExpiresAt: reply.SessionExpiresAt}, nil
}

func classifyLogin(resp *http.Response, reply *serviceReply) error {
	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusBadRequest:
		return ErrChallengeRejected
	case http.StatusUnauthorized, http.StatusNotFound:
		return ErrInvalidCredentials
	case http.StatusForbidden:
		return ErrUnverifiedAccount
	case http.StatusTooManyRequests:
		return &RateLimitError{RetryAfter: retryAfter(resp)}
	default:
		return serviceError(resp, reply)
	}
}

func classifyVerify(resp *http.Response, reply *serviceReply) error {
	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusUnprocessableEntity:
		return ErrInvalidOrExpiredCode
	case http.StatusTooManyRequests:
		return &RateLimitError{RetryAfter: retryAfter(resp)}
	default:
		return serviceError(resp, reply)
	}
}

func classifyRegister(resp *http.Response, reply *serviceReply) error {
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return nil
	case http.StatusBadRequest, http.StatusConflict:
		if msg := reply.text(); msg != "" && !strings.Contains(strings.ToLower(msg), "challenge") {
			return &InputError{Status: resp.StatusCode, Message: msg}
		}
		return ErrChallengeRejected
	case http.StatusTooManyRequests:
		return &RateLimitError{RetryAfter: retryAfter(resp)}
	default:
		return serviceError(resp, reply)
	}
}

func classifyGeneric(resp *http.Response, reply *serviceReply) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrInvalidCredentials
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{RetryAfter: retryAfter(resp)}
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		if msg := reply.text(); msg != "" {
			return &InputError{Status: resp.StatusCode, Message: msg}
		}
		return serviceError(resp, reply)
	default:
		return serviceError(resp, reply)
	}
}

func serviceError(resp *http.Response, reply *serviceReply) error {
	if msg := reply.text(); msg != "" {
		return fmt.Errorf("%w: %s (status %d)", ErrService, msg, resp.StatusCode)
	}
	return fmt.Errorf("%w: status %d", ErrService, resp.StatusCode)
}

// retryAfter parses the Retry-After header as delay seconds. Zero when
// absent or unparseable; callers fall back to operation defaults.
func retryAfter(resp *http.Response) time.Duration {
	raw := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if raw == "" {
		return 0
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// AsRateLimit unwraps err into a RateLimitError, if it is one.
func AsRateLimit(err error) (*RateLimitError, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}
