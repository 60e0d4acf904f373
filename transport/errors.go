package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNetworkFailure marks errors where no HTTP response was received.
	ErrNetworkFailure = errors.New("network failure")
	// ErrUnauthorized matches a StatusError carrying 401.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden matches a StatusError carrying 403.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound matches a StatusError carrying 404.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition reports an illegal request state change.
	ErrInvalidTransition = errors.New("invalid request state transition")
)

// StatusError is a non-2xx response from the API.
type StatusError struct {
	StatusCode int
	Message    string
	Body       []byte
}

// NewStatusError builds a StatusError, lifting a human message out of the
// common {"error"}, {"detail"}, or {"message"} body shapes.
func NewStatusError(statusCode int, body []byte) *StatusError {
	return &StatusError{
		StatusCode: statusCode,
		Message:    messageFromBody(body),
		Body:       body,
	}
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api status %d: %s", e.StatusCode, strings.ToLower(http.StatusText(e.StatusCode)))
}

// Is lets errors.Is match status sentinels.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrForbidden:
		return e.StatusCode == http.StatusForbidden
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// NetworkError wraps err with ErrNetworkFailure. A nil err stays nil.
func NetworkError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrNetworkFailure, err)
}

func messageFromBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	for _, key := range []string{"error", "detail", "message"} {
		if s, ok := payload[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
