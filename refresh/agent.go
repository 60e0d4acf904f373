package refresh

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/MrEthical07/goAuthClient/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrNoRefreshToken is returned when the store holds no refresh token.
	ErrNoRefreshToken = errors.New("no refresh token available")
	// ErrMalformedRefreshResponse is returned when a 2xx refresh response has
	// no access token.
	ErrMalformedRefreshResponse = errors.New("no access token in refresh response")
)

const maxResponseBytes = 1 << 20

// TokenStore is the subset of tokenstore.Store the agent needs.
type TokenStore interface {
	RefreshToken(ctx context.Context) (string, bool)
	SetTokens(ctx context.Context, access, refresh string) error
	ClearTokens(ctx context.Context) error
}

// Config wires an Agent.
type Config struct {
	// Endpoint is the absolute URL of the refresh endpoint.
	Endpoint string
	// HTTPClient must not use the authenticating pipeline as its transport.
	HTTPClient   *http.Client
	Tokens       TokenStore
	SingleFlight bool
	Logger       *zap.Logger
}

// Agent exchanges refresh tokens for access tokens.
type Agent struct {
	endpoint     string
	client       *http.Client
	tokens       TokenStore
	singleFlight bool
	logger       *zap.Logger

	group     singleflight.Group
	exchanges atomic.Uint64
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type refreshResponse struct {
	Access string `json:"access"`
}

// NewAgent builds an Agent from cfg.
func NewAgent(cfg Config) *Agent {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Agent{
		endpoint:     cfg.Endpoint,
		client:       cfg.HTTPClient,
		tokens:       cfg.Tokens,
		singleFlight: cfg.SingleFlight,
		logger:       cfg.Logger,
	}
}

// Exchanges returns the number of refresh exchanges attempted so far,
// including ones that failed before reaching the network.
func (a *Agent) Exchanges() uint64 {
	return a.exchanges.Load()
}

// Refresh returns a new access token and stores it next to the existing
// refresh token, which is never replaced.
//
// When ctx ends first, Refresh returns ctx.Err() and leaves the store alone.
// A shared exchange keeps running for the other callers and may still store
// a new access token.
func (a *Agent) Refresh(ctx context.Context) (string, error) {
	if !a.singleFlight {
		return a.exchange(ctx)
	}

	// The shared exchange outlives any single caller's cancellation.
	shared := context.WithoutCancel(ctx)
	ch := a.group.DoChan("refresh", func() (interface{}, error) {
		return a.exchange(shared)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (a *Agent) exchange(ctx context.Context) (string, error) {
	a.exchanges.Add(1)

	refreshToken, ok := a.tokens.RefreshToken(ctx)
	if !ok {
		a.clear(ctx)
		return "", ErrNoRefreshToken
	}

	payload, err := json.Marshal(refreshRequest{Refresh: refreshToken})
	if err != nil {
		a.clear(ctx)
		return "", err
	}
	req, err := http.NewRequestWithContext(transport.WithSkipAuth(ctx), http.MethodPost, a.endpoint, bytes.NewReader(payload))
	if err != nil {
		a.clear(ctx)
		return "", fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			// The caller gave up; the refresh token was never rejected.
			return "", ctxErr
		}
		a.clear(ctx)
		return "", transport.NetworkError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		a.clear(ctx)
		return "", transport.NetworkError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		a.clear(ctx)
		return "", transport.NewStatusError(resp.StatusCode, body)
	}

	var out refreshResponse
	if err := json.Unmarshal(body, &out); err != nil || out.Access == "" {
		a.clear(ctx)
		return "", ErrMalformedRefreshResponse
	}

	if err := a.tokens.SetTokens(ctx, out.Access, refreshToken); err != nil {
		a.clear(ctx)
		return "", fmt.Errorf("store refreshed access token: %w", err)
	}
	a.logger.Debug("access token refreshed")
	return out.Access, nil
}

func (a *Agent) clear(ctx context.Context) {
	if err := a.tokens.ClearTokens(ctx); err != nil {
		a.logger.Warn("clearing tokens after refresh failure failed", zap.Error(err))
	}
}
