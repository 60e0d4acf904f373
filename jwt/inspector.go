package jwt

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Clock returns the current instant. Tests swap it to pin expiry decisions.
type Clock func() time.Time

// Option configures an [Inspector].
type Option func(*Inspector)

// WithClock overrides the wall clock used for expiry comparisons.
func WithClock(clock Clock) Option {
	return func(i *Inspector) {
		if clock != nil {
			i.now = clock
		}
	}
}

// Inspector decodes the expiry instant from access tokens.
//
// Inspector values are immutable after construction and safe for concurrent use.
type Inspector struct {
	now    Clock
	parser *jwt.Parser
}

// NewInspector returns an inspector that tolerates both padded and raw
// base64url segments.
func NewInspector(opts ...Option) *Inspector {
	i := &Inspector{
		now:    time.Now,
		parser: jwt.NewParser(jwt.WithPaddingAllowed()),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

var defaultInspector = NewInspector()

// IsExpired reports whether token is expired according to the wall clock.
func IsExpired(token string) bool {
	return defaultInspector.IsExpired(token)
}

// ExpiresAt returns the decoded exp claim of token.
//
// Only the middle segment is read; the header, the signature, and every other
// claim are ignored. The boolean is false when the token does not have three
// segments, the payload is undecodable, or it carries no numeric exp claim.
func (i *Inspector) ExpiresAt(token string) (time.Time, bool) {
	if i == nil || token == "" {
		return time.Time{}, false
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return time.Time{}, false
	}

	raw, err := i.parser.DecodeSegment(parts[1])
	if err != nil {
		return time.Time{}, false
	}
	var payload expiryClaim
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Exp == nil {
		return time.Time{}, false
	}
	return payload.Exp.Time, true
}

type expiryClaim struct {
	Exp *jwt.NumericDate `json:"exp"`
}

// IsExpired reports whether token must be treated as expired.
//
// Absent, malformed, or undecodable tokens and tokens without exp are expired.
// A token whose exp equals the current instant is expired.
func (i *Inspector) IsExpired(token string) bool {
	exp, ok := i.ExpiresAt(token)
	if !ok {
		return true
	}
	return !i.now().Before(exp)
}
