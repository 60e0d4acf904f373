package goAuthClient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goAuthClient/internal/audit"
	"github.com/MrEthical07/goAuthClient/jwt"
	"github.com/MrEthical07/goAuthClient/refresh"
	"github.com/MrEthical07/goAuthClient/session"
	"github.com/MrEthical07/goAuthClient/tokenstore"
	"github.com/MrEthical07/goAuthClient/transport"
	"go.uber.org/zap"
)

// API paths relative to Config.API.BaseURL.
const (
	RegisterPath = "/register/"
	LoginPath    = "/login/"
	LogoutPath   = "/logout/"
	RefreshPath  = "/token/refresh/"
	UserPath     = "/user/"
	ProfilesPath = "/profiles/"
)

const (
	maxResponseBytes     = 1 << 20
	defaultLogoutMessage = "Logout successful"
)

// ErrSessionExpired wraps the refresh failure that ended a session mid-request.
// The stored tokens are already cleared and OnLogout subscribers notified.
var ErrSessionExpired = errors.New("session expired")

// Client talks to the account API and owns the local session. It is safe for
// concurrent use.
type Client struct {
	config  Config
	logger  *zap.Logger
	baseURL string

	store     *tokenstore.Store
	inspector *jwt.Inspector
	oracle    *session.Oracle
	notifier  *session.LogoutNotifier
	agent     *refresh.Agent
	http      *http.Client

	metrics *Metrics
	audit   *audit.Dispatcher
	closed  atomic.Bool
}

// Register creates an account. The form is checked locally first; a rejected
// form never reaches the network.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	if err := ValidateRegister(req); err != nil {
		c.metrics.Inc(MetricValidationRejected)
		return nil, err
	}
	form := normalizeRegister(req)

	var out RegisterResult
	err := c.call(transport.WithSkipAuth(ctx), http.MethodPost, RegisterPath, form, &out)
	if err != nil {
		c.metrics.Inc(MetricRegisterFailure)
		c.emitAudit(ctx, AuditEvent{EventType: AuditEventRegisterFailure, Username: form.Username, Error: errorString(err)})
		return nil, err
	}
	c.metrics.Inc(MetricRegisterSuccess)
	c.emitAudit(ctx, AuditEvent{EventType: AuditEventRegisterSuccess, Username: form.Username, Success: true})
	return &out, nil
}

// Login exchanges credentials for a token pair. identifier may be a username,
// email, or mobile number. Both tokens are stored only when both are present.
func (c *Client) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	// Sent as typed; trimming applies only to the required check.
	form := LoginRequest{Identifier: identifier, Password: password}
	if err := ValidateLogin(form); err != nil {
		c.metrics.Inc(MetricValidationRejected)
		return nil, err
	}

	var out LoginResult
	if err := c.call(transport.WithSkipAuth(ctx), http.MethodPost, LoginPath, form, &out); err != nil {
		c.loginFailed(ctx, form.Identifier, err)
		return nil, err
	}

	if out.Tokens.Access != "" && out.Tokens.Refresh != "" {
		if err := c.store.SetTokens(ctx, out.Tokens.Access, out.Tokens.Refresh); err != nil {
			err = fmt.Errorf("store tokens: %w", err)
			c.loginFailed(ctx, form.Identifier, err)
			return nil, err
		}
	} else {
		c.logger.Warn("login response carried no token pair", zap.String("username", out.Username))
	}

	c.metrics.Inc(MetricLoginSuccess)
	c.emitAudit(ctx, AuditEvent{EventType: AuditEventLoginSuccess, Username: out.Username, Success: true})
	return &out, nil
}

func (c *Client) loginFailed(ctx context.Context, identifier string, err error) {
	c.metrics.Inc(MetricLoginFailure)
	c.emitAudit(ctx, AuditEvent{EventType: AuditEventLoginFailure, Username: identifier, Error: errorString(err)})
}

// Logout asks the server to revoke the refresh token, then clears local tokens.
// Local tokens are cleared whatever the server says; a server or network
// failure is still returned so the caller can show it.
func (c *Client) Logout(ctx context.Context) (*LogoutResult, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	result := &LogoutResult{Message: defaultLogoutMessage}

	var serverErr error
	if refreshToken, ok := c.store.RefreshToken(ctx); ok {
		var out LogoutResult
		body := map[string]string{"refresh": refreshToken}
		if err := c.call(transport.WithSkipAuth(ctx), http.MethodPost, LogoutPath, body, &out); err != nil {
			serverErr = err
		} else {
			if out.Message != "" {
				result.Message = out.Message
			}
			result.RedirectURL = out.RedirectURL
		}
	}

	clearErr := c.store.ClearTokens(ctx)
	if clearErr != nil {
		c.logger.Error("clearing tokens on logout failed", zap.Error(clearErr))
	}

	c.metrics.Inc(MetricLogout)
	err := errors.Join(serverErr, clearErr)
	if serverErr != nil {
		c.metrics.Inc(MetricLogoutServerFailure)
	}
	c.emitAudit(ctx, AuditEvent{EventType: AuditEventLogout, Success: err == nil, Error: errorString(err)})
	if err != nil {
		return nil, fmt.Errorf("logout: %w", err)
	}
	return result, nil
}

// UserInfo returns the authenticated account.
func (c *Client) UserInfo(ctx context.Context) (*User, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	var out User
	if err := c.call(ctx, http.MethodGet, UserPath, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Profile fetches the public profile of username.
func (c *Client) Profile(ctx context.Context, username string) (*Profile, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	username = strings.TrimSpace(username)
	if username == "" {
		verr := &ValidationError{}
		verr.add("username", fieldMessages["username.required"])
		return nil, verr
	}
	var out Profile
	if err := c.call(ctx, http.MethodGet, ProfilesPath+url.PathEscape(username)+"/", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// IsAuthenticated reports whether an unexpired access token is stored. It
// never touches the network.
func (c *Client) IsAuthenticated(ctx context.Context) bool {
	return c.oracle.IsAuthenticated(ctx)
}

// Status describes the stored session.
func (c *Client) Status(ctx context.Context) Status {
	access, hasAccess := c.store.AccessToken(ctx)
	st := Status{
		HasAccessToken:  hasAccess,
		HasRefreshToken: c.store.HasRefreshToken(ctx),
	}
	if hasAccess {
		if exp, ok := c.inspector.ExpiresAt(access); ok {
			st.AccessExpiresAt = exp
		}
		st.Authenticated = !c.inspector.IsExpired(access)
	}
	return st
}

// OnLogout registers fn to run whenever a failed refresh forces a logout.
func (c *Client) OnLogout(fn func()) (unsubscribe func()) {
	return c.notifier.Subscribe(fn)
}

// HTTPClient returns the authenticating client. Requests sent through it get
// the bearer token and the refresh-and-replay-once behaviour.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// URL resolves path against the configured base URL.
func (c *Client) URL(path string) string {
	return c.baseURL + path
}

// Tokens exposes the token store.
func (c *Client) Tokens() *tokenstore.Store {
	return c.store
}

// Oracle exposes the session oracle.
func (c *Client) Oracle() *session.Oracle {
	return c.oracle
}

// Notifier exposes the logout notifier.
func (c *Client) Notifier() *session.LogoutNotifier {
	return c.notifier
}

// RefreshExchanges returns the number of refresh exchanges attempted.
func (c *Client) RefreshExchanges() uint64 {
	return c.agent.Exchanges()
}

// MetricsSnapshot copies the client counters.
func (c *Client) MetricsSnapshot() MetricsSnapshot {
	return c.metrics.Snapshot()
}

// AuditDropped returns the number of audit events dropped before delivery.
func (c *Client) AuditDropped() uint64 {
	return c.audit.Dropped()
}

// Close flushes pending audit events. Later calls return ErrClientClosed.
// Stored tokens are left in place.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.audit.Close()
	return nil
}

func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	start := time.Now()
	defer func() {
		c.metrics.Observe(MetricRequestLatency, time.Since(start))
	}()

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.API.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.API.UserAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, ErrSessionExpired) || errors.Is(err, context.Canceled) {
			return err
		}
		return transport.NetworkError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return transport.NetworkError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode == http.StatusBadRequest {
			if verr := decodeFieldErrors(raw); verr != nil {
				return verr
			}
		}
		return transport.NewStatusError(resp.StatusCode, raw)
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return nil
}

// decodeFieldErrors reads a {field: [messages]} or {field: message} body.
func decodeFieldErrors(raw []byte) *ValidationError {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil
	}
	verr := &ValidationError{}
	for field, v := range payload {
		switch msgs := v.(type) {
		case string:
			verr.add(field, msgs)
		case []any:
			for _, m := range msgs {
				if s, ok := m.(string); ok {
					verr.add(field, s)
				}
			}
		}
	}
	if verr.empty() {
		return nil
	}
	return verr
}

// clientRefresher records refresh outcomes and marks failures as the end of
// the session. A caller that gave up mid-refresh gets its context error back
// unmarked; the session is still intact.
type clientRefresher struct {
	c *Client
}

func (r clientRefresher) Refresh(ctx context.Context) (string, error) {
	token, err := r.c.agent.Refresh(ctx)
	if err != nil && ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return "", err
	}
	if err != nil {
		r.c.metrics.Inc(MetricRefreshFailure)
		r.c.emitAudit(ctx, AuditEvent{EventType: AuditEventRefreshFailure, Error: errorString(err)})
		return "", fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}
	r.c.metrics.Inc(MetricRefreshSuccess)
	r.c.emitAudit(ctx, AuditEvent{EventType: AuditEventRefreshSuccess, Success: true})
	return token, nil
}

func (c *Client) onReplay(req *http.Request) {
	c.metrics.Inc(MetricReplay)
	c.emitAudit(req.Context(), AuditEvent{
		EventType: AuditEventReplay,
		RequestID: req.Header.Get(transport.RequestIDHeader),
		Method:    req.Method,
		Path:      req.URL.Path,
		Success:   true,
	})
}

func (c *Client) onForcedLogout(req *http.Request, err error) {
	c.metrics.Inc(MetricForcedLogout)
	c.emitAudit(req.Context(), AuditEvent{
		EventType: AuditEventForcedLogout,
		RequestID: req.Header.Get(transport.RequestIDHeader),
		Method:    req.Method,
		Path:      req.URL.Path,
		Error:     errorString(err),
	})
}
