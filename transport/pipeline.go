package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestIDHeader carries a per-request correlation id, shared by a request and
// its replay.
const RequestIDHeader = "X-Request-ID"

const maxDrainBytes = 64 << 10

// TokenSource returns the current access token. It is consulted on every
// attachment so a refreshed or cleared token is never stale.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, bool)
}

// Refresher exchanges the stored refresh token for a new access token.
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
}

// LogoutNotifier receives the forced-logout signal.
type LogoutNotifier interface {
	Broadcast()
}

// Hooks observe pipeline events. Every field is optional.
type Hooks struct {
	OnTransition   func(requestID string, from, to State)
	OnReplay       func(req *http.Request)
	OnForcedLogout func(req *http.Request, err error)
}

// Config wires a Transport.
type Config struct {
	// Base performs the actual network I/O. Defaults to http.DefaultTransport.
	Base      http.RoundTripper
	Tokens    TokenSource
	Refresher Refresher
	Notifier  LogoutNotifier
	Logger    *zap.Logger
	Hooks     Hooks
}

// Transport attaches bearer credentials and performs the single
// refresh-and-replay on 401.
//
// Transport is safe for concurrent use; per-request state lives on the stack.
type Transport struct {
	base      http.RoundTripper
	tokens    TokenSource
	refresher Refresher
	notifier  LogoutNotifier
	logger    *zap.Logger
	hooks     Hooks
}

// NewTransport builds a Transport from cfg.
func NewTransport(cfg Config) *Transport {
	if cfg.Base == nil {
		cfg.Base = http.DefaultTransport
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Transport{
		base:      cfg.Base,
		tokens:    cfg.Tokens,
		refresher: cfg.Refresher,
		notifier:  cfg.Notifier,
		logger:    cfg.Logger,
		hooks:     cfg.Hooks,
	}
}

// RoundTrip implements http.RoundTripper. The caller's request is never
// mutated; both dispatches use clones.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	a := &attempt{
		id:       req.Header.Get(RequestIDHeader),
		skipAuth: SkipAuth(ctx),
		state:    StateUnsent,
		observe:  t.observe,
	}
	if a.id == "" {
		a.id = uuid.NewString()
	}

	getBody, err := replayableBody(req)
	if err != nil {
		_ = a.advance(StateSettled)
		return nil, err
	}

	out, err := t.prepare(req, a.id, getBody)
	if err != nil {
		_ = a.advance(StateSettled)
		return nil, err
	}
	if a.skipAuth {
		out.Header.Del("Authorization")
	} else if token, ok := t.accessToken(ctx); ok {
		out.Header.Set("Authorization", "Bearer "+token)
	}
	if err := a.advance(StateAttached); err != nil {
		return nil, err
	}

	resp, err := t.dispatch(a, out)
	if err != nil {
		_ = a.advance(StateSettled)
		return nil, err
	}
	if t.refresher == nil || !a.retryable(resp.StatusCode) {
		_ = a.advance(StateSettled)
		return resp, nil
	}

	drain(resp.Body)
	if err := a.advance(StateRetried); err != nil {
		return nil, err
	}

	token, err := t.refresher.Refresh(ctx)
	if err != nil && abandoned(ctx, err) {
		t.logger.Debug("caller gave up during access token refresh",
			zap.String("request_id", a.id),
			zap.Error(err),
		)
		_ = a.advance(StateSettled)
		return nil, err
	}
	if err != nil {
		t.logger.Warn("access token refresh failed; forcing logout",
			zap.String("request_id", a.id),
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Error(err),
		)
		if t.notifier != nil {
			t.notifier.Broadcast()
		}
		if t.hooks.OnForcedLogout != nil {
			t.hooks.OnForcedLogout(req, err)
		}
		_ = a.advance(StateSettled)
		return nil, err
	}

	replay, err := t.prepare(req, a.id, getBody)
	if err != nil {
		_ = a.advance(StateSettled)
		return nil, err
	}
	replay.Header.Set("Authorization", "Bearer "+token)
	if t.hooks.OnReplay != nil {
		t.hooks.OnReplay(replay)
	}

	resp, err = t.dispatch(a, replay)
	_ = a.advance(StateSettled)
	return resp, err
}

// abandoned reports whether err is the caller's own cancellation or timeout
// rather than a rejected refresh. It ends the request without a logout.
func abandoned(ctx context.Context, err error) bool {
	if ctx.Err() == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (t *Transport) dispatch(a *attempt, req *http.Request) (*http.Response, error) {
	if err := a.advance(StateSent); err != nil {
		return nil, err
	}
	return t.base.RoundTrip(req)
}

func (t *Transport) prepare(req *http.Request, id string, getBody func() (io.ReadCloser, error)) (*http.Request, error) {
	out := req.Clone(req.Context())
	out.Header.Set(RequestIDHeader, id)
	if getBody != nil {
		body, err := getBody()
		if err != nil {
			return nil, err
		}
		out.Body = body
		out.GetBody = getBody
	}
	return out, nil
}

func (t *Transport) accessToken(ctx context.Context) (string, bool) {
	if t.tokens == nil {
		return "", false
	}
	return t.tokens.AccessToken(ctx)
}

func (t *Transport) observe(id string, from, to State) {
	t.logger.Debug("request state",
		zap.String("request_id", id),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
	)
	if t.hooks.OnTransition != nil {
		t.hooks.OnTransition(id, from, to)
	}
}

// replayableBody returns a body factory for req, buffering the body when the
// request does not provide GetBody. The caller's body is always closed; every
// dispatch reads a fresh copy.
func replayableBody(req *http.Request) (func() (io.ReadCloser, error), error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	if req.GetBody != nil {
		_ = req.Body.Close()
		return req.GetBody, nil
	}
	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, err
	}
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}, nil
}

func drain(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxDrainBytes))
	_ = body.Close()
}
