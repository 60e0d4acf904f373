package middleware

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	goAuthClient "github.com/MrEthical07/goAuthClient"
	"go.uber.org/zap"
)

// Authenticator reports whether the local session is usable.
type Authenticator interface {
	IsAuthenticated(ctx context.Context) bool
}

// TokenClearer removes stale tokens.
type TokenClearer interface {
	ClearTokens(ctx context.Context) error
}

// LogoutSource delivers forced-logout notifications.
type LogoutSource interface {
	Subscribe(fn func()) (unsubscribe func())
}

// GuardConfig controls where unauthenticated requests are sent.
type GuardConfig struct {
	// RedirectTo is the login location. Defaults to /login.
	RedirectTo string
	// NextParam names the query parameter carrying the original location.
	// Defaults to next.
	NextParam string
	Logger    *zap.Logger
}

// RouteGuard lets requests through only while the session is authenticated,
// and reacts to forced logouts as they are broadcast.
type RouteGuard struct {
	auth   Authenticator
	tokens TokenClearer
	cfg    GuardConfig

	mu          sync.Mutex
	loggedOut   chan struct{}
	forced      atomic.Uint64
	unsubscribe func()
}

// NewRouteGuard subscribes to source immediately. Call Close to unsubscribe.
func NewRouteGuard(auth Authenticator, tokens TokenClearer, source LogoutSource, cfg GuardConfig) *RouteGuard {
	if cfg.RedirectTo == "" {
		cfg.RedirectTo = "/login"
	}
	if cfg.NextParam == "" {
		cfg.NextParam = "next"
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	g := &RouteGuard{
		auth:      auth,
		tokens:    tokens,
		cfg:       cfg,
		loggedOut: make(chan struct{}),
	}
	if source != nil {
		g.unsubscribe = source.Subscribe(g.onLogout)
	}
	return g
}

// Guard builds a RouteGuard over client and returns its middleware.
func Guard(client *goAuthClient.Client, cfg GuardConfig) func(http.Handler) http.Handler {
	if client == nil {
		return func(http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
			})
		}
	}
	return NewRouteGuard(client.Oracle(), client.Tokens(), client.Notifier(), cfg).Middleware
}

func (g *RouteGuard) onLogout() {
	g.forced.Add(1)
	g.cfg.Logger.Info("session ended by forced logout")

	g.mu.Lock()
	close(g.loggedOut)
	g.loggedOut = make(chan struct{})
	g.mu.Unlock()
}

// LoggedOut returns a channel closed by the next forced logout.
func (g *RouteGuard) LoggedOut() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.loggedOut
}

// ForcedLogouts counts broadcasts observed since construction.
func (g *RouteGuard) ForcedLogouts() uint64 {
	return g.forced.Load()
}

// Close stops listening for logouts. It is idempotent.
func (g *RouteGuard) Close() {
	g.mu.Lock()
	unsubscribe := g.unsubscribe
	g.unsubscribe = nil
	g.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// Middleware redirects unauthenticated browser requests to the login
// location and answers 401 to clients asking for JSON. Stale tokens are
// cleared before either response.
func (g *RouteGuard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.auth != nil && g.auth.IsAuthenticated(r.Context()) {
			next.ServeHTTP(w, r)
			return
		}

		if g.tokens != nil {
			if err := g.tokens.ClearTokens(r.Context()); err != nil {
				g.cfg.Logger.Warn("clearing stale tokens failed", zap.Error(err))
			}
		}

		if wantsJSON(r) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"authentication required"}` + "\n"))
			return
		}
		http.Redirect(w, r, g.loginLocation(r), http.StatusSeeOther)
	})
}

func (g *RouteGuard) loginLocation(r *http.Request) string {
	u, err := url.Parse(g.cfg.RedirectTo)
	if err != nil {
		return g.cfg.RedirectTo
	}
	q := u.Query()
	q.Set(g.cfg.NextParam, r.URL.RequestURI())
	u.RawQuery = q.Encode()
	return u.String()
}

func wantsJSON(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/html")
}
