package session

import (
	"context"

	"github.com/MrEthical07/goAuthClient/jwt"
)

// TokenReader is the read side of the token store.
type TokenReader interface {
	AccessToken(ctx context.Context) (string, bool)
}

// ExpiryChecker decides whether an access token is expired.
type ExpiryChecker interface {
	IsExpired(token string) bool
}

// Oracle is the single authority on whether the caller is authenticated.
type Oracle struct {
	tokens    TokenReader
	inspector ExpiryChecker
}

// NewOracle builds an Oracle. A nil inspector uses jwt.NewInspector().
func NewOracle(tokens TokenReader, inspector ExpiryChecker) *Oracle {
	if inspector == nil {
		inspector = jwt.NewInspector()
	}
	return &Oracle{tokens: tokens, inspector: inspector}
}

// IsAuthenticated is false when no access token is stored, otherwise it is the
// negation of the inspector's expiry verdict. It is recomputed on every call.
func (o *Oracle) IsAuthenticated(ctx context.Context) bool {
	if o == nil || o.tokens == nil {
		return false
	}
	access, ok := o.tokens.AccessToken(ctx)
	if !ok {
		return false
	}
	return !o.inspector.IsExpired(access)
}
