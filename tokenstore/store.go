package tokenstore

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

const (
	// AccessTokenKey is the storage key of the access credential.
	AccessTokenKey = "access_token"
	// RefreshTokenKey is the storage key of the refresh credential.
	RefreshTokenKey = "refresh_token"
)

var (
	// ErrNotFound is returned by a Backend when a key holds no value.
	ErrNotFound = errors.New("token not found")
	// ErrBackendUnavailable wraps I/O failures reported by a Backend.
	ErrBackendUnavailable = errors.New("token backend unavailable")
)

// Backend is the durable key/value storage behind a Store.
//
// SetMany and Delete must apply all keys in one step.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	SetMany(ctx context.Context, values map[string]string) error
	Delete(ctx context.Context, keys ...string) error
}

// Store persists and retrieves the credential pair.
//
// Store is safe for concurrent use when its Backend is.
type Store struct {
	backend Backend
	logger  *zap.Logger
}

// NewStore wraps backend. A nil backend falls back to a fresh MemoryBackend and
// a nil logger to zap.NewNop.
func NewStore(backend Backend, logger *zap.Logger) *Store {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{backend: backend, logger: logger}
}

// SetTokens persists whichever of access and refresh is non-empty. An empty
// argument leaves the stored value untouched.
func (s *Store) SetTokens(ctx context.Context, access, refresh string) error {
	values := make(map[string]string, 2)
	if access != "" {
		values[AccessTokenKey] = access
	}
	if refresh != "" {
		values[RefreshTokenKey] = refresh
	}
	if len(values) == 0 {
		return nil
	}
	if err := s.backend.SetMany(ctx, values); err != nil {
		s.logger.Warn("token store write failed", zap.Error(err))
		return err
	}
	return nil
}

// AccessToken returns the stored access token.
func (s *Store) AccessToken(ctx context.Context) (string, bool) {
	return s.read(ctx, AccessTokenKey)
}

// RefreshToken returns the stored refresh token.
func (s *Store) RefreshToken(ctx context.Context) (string, bool) {
	return s.read(ctx, RefreshTokenKey)
}

// HasAccessToken reports whether an access token is present.
func (s *Store) HasAccessToken(ctx context.Context) bool {
	_, ok := s.AccessToken(ctx)
	return ok
}

// HasRefreshToken reports whether a refresh token is present.
func (s *Store) HasRefreshToken(ctx context.Context) bool {
	_, ok := s.RefreshToken(ctx)
	return ok
}

// ClearTokens removes both credentials. Clearing an empty store succeeds.
func (s *Store) ClearTokens(ctx context.Context) error {
	if err := s.backend.Delete(ctx, AccessTokenKey, RefreshTokenKey); err != nil {
		s.logger.Warn("token store clear failed", zap.Error(err))
		return err
	}
	return nil
}

func (s *Store) read(ctx context.Context, key string) (string, bool) {
	if s == nil {
		return "", false
	}
	value, err := s.backend.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warn("token store read failed", zap.String("key", key), zap.Error(err))
		}
		return "", false
	}
	if value == "" {
		return "", false
	}
	return value, true
}
