package goAuthClient

import (
	"errors"
	"sort"
	"strings"

	"github.com/MrEthical07/goAuthClient/refresh"
	"github.com/MrEthical07/goAuthClient/transport"
)

var (
	// ErrUnauthorized matches a 401 that survived the pipeline's single refresh and replay.
	ErrUnauthorized = transport.ErrUnauthorized
	// ErrForbidden matches a 403 response.
	ErrForbidden = transport.ErrForbidden
	// ErrNotFound matches a 404 response.
	ErrNotFound = transport.ErrNotFound
	// ErrNetworkFailure marks calls that never received an HTTP response.
	ErrNetworkFailure = transport.ErrNetworkFailure
	// ErrNoRefreshToken is returned by a refresh when no refresh token is stored.
	ErrNoRefreshToken = refresh.ErrNoRefreshToken
	// ErrMalformedRefreshResponse is returned when the refresh endpoint answers
	// 2xx without an access token.
	ErrMalformedRefreshResponse = refresh.ErrMalformedRefreshResponse
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrMalformedResponse is returned when a 2xx body cannot be decoded.
	ErrMalformedResponse = errors.New("malformed api response")
	// ErrClientClosed is returned by calls made after Close.
	ErrClientClosed = errors.New("client closed")
)

// APIError is a non-2xx response from the account API.
type APIError = transport.StatusError

// ValidationError carries field-level messages, either from local checks or
// from a 400 response shaped {field: [messages]}.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(ErrValidation.Error())
	b.WriteString(": ")
	for i, name := range names {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Fields[name], ", "))
	}
	return b.String()
}

// Is lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Field returns the first message recorded for name, or "".
func (e *ValidationError) Field(name string) string {
	if e == nil {
		return ""
	}
	if msgs := e.Fields[name]; len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

func (e *ValidationError) empty() bool {
	return e == nil || len(e.Fields) == 0
}
