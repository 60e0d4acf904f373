package transport

import (
	"context"
	"fmt"
	"net/http"
)

// State is the lifecycle position of one outgoing request.
type State uint8

const (
	StateUnsent State = iota
	StateAttached
	StateSent
	StateRetried
	StateSettled
)

func (s State) String() string {
	switch s {
	case StateUnsent:
		return "unsent"
	case StateAttached:
		return "attached"
	case StateSent:
		return "sent"
	case StateRetried:
		return "retried"
	case StateSettled:
		return "settled"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

var allowedTransitions = map[State][]State{
	StateUnsent:   {StateAttached, StateSettled},
	StateAttached: {StateSent},
	StateSent:     {StateRetried, StateSettled},
	StateRetried:  {StateSent, StateSettled},
}

// attempt carries one request through the pipeline. It replaces a mutable
// "already retried" flag on the request itself.
type attempt struct {
	id       string
	skipAuth bool
	retried  bool
	state    State
	observe  func(id string, from, to State)
}

func (a *attempt) advance(to State) error {
	for _, next := range allowedTransitions[a.state] {
		if next == to {
			from := a.state
			a.state = to
			if to == StateRetried {
				a.retried = true
			}
			if a.observe != nil {
				a.observe(a.id, from, to)
			}
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.state, to)
}

// retryable reports whether a 401 on this attempt may take the refresh path.
func (a *attempt) retryable(status int) bool {
	return status == http.StatusUnauthorized && !a.skipAuth && !a.retried && a.state == StateSent
}

type skipAuthKey struct{}

// WithSkipAuth marks requests made with ctx as exempt from bearer attachment
// and from the 401 refresh path.
func WithSkipAuth(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipAuthKey{}, true)
}

// SkipAuth reports whether ctx was marked with WithSkipAuth.
func SkipAuth(ctx context.Context) bool {
	v, _ := ctx.Value(skipAuthKey{}).(bool)
	return v
}
