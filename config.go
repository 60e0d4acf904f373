package goAuthClient

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Config holds every client setting. Build it from DefaultConfig and adjust.
type Config struct {
	API     APIConfig
	Refresh RefreshConfig
	Storage StorageConfig
	Audit   AuditConfig
	Metrics MetricsConfig
	// Logger receives pipeline and store diagnostics. Nil means zap.NewNop().
	Logger *zap.Logger
}

/*
====================================
API CONFIG
====================================
*/

// APIConfig locates the account API.
type APIConfig struct {
	// BaseURL is the API root, e.g. http://127.0.0.1:8000/api.
	BaseURL string
	// Timeout bounds each call end to end, refresh and replay included.
	Timeout   time.Duration
	UserAgent string
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig controls the refresh agent.
type RefreshConfig struct {
	// SingleFlight collapses concurrent refreshes into one exchange. When
	// false every 401 runs its own exchange.
	SingleFlight bool
}

/*
====================================
STORAGE CONFIG
====================================
*/

// StorageKind selects where the credential pair lives.
type StorageKind string

const (
	// StorageMemory keeps tokens for the life of the process.
	StorageMemory StorageKind = "memory"
	// StorageFile keeps tokens in a JSON file readable only by the owner.
	StorageFile StorageKind = "file"
	// StorageRedis keeps tokens in Redis; requires Builder.WithRedis.
	StorageRedis StorageKind = "redis"
)

// ParseStorageKind maps a case-insensitive name to a StorageKind.
func ParseStorageKind(s string) (StorageKind, error) {
	switch k := StorageKind(strings.ToLower(strings.TrimSpace(s))); k {
	case StorageMemory, StorageFile, StorageRedis:
		return k, nil
	case "":
		return StorageMemory, nil
	default:
		return "", fmt.Errorf("unknown storage kind %q", s)
	}
}

// StorageConfig selects and parameterises the token backend.
type StorageConfig struct {
	Kind        StorageKind
	FilePath    string
	RedisPrefix string
}

// AuditConfig controls async audit delivery.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process metrics.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

const (
	defaultBaseURL = "http://127.0.0.1:8000/api"
	defaultTimeout = 10 * time.Second
)

// DefaultConfig returns the settings used when none are supplied.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			BaseURL:   defaultBaseURL,
			Timeout:   defaultTimeout,
			UserAgent: "goAuthClient",
		},
		Refresh: RefreshConfig{
			SingleFlight: true,
		},
		Storage: StorageConfig{
			Kind:        StorageMemory,
			RedisPrefix: "ac",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return errors.New("API BaseURL is required")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return fmt.Errorf("API BaseURL is invalid: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("API BaseURL must use http or https")
	}
	if u.Host == "" {
		return errors.New("API BaseURL must include a host")
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return errors.New("API BaseURL must not carry a query or fragment")
	}
	if c.API.Timeout <= 0 {
		return errors.New("API Timeout must be > 0")
	}

	switch c.Storage.Kind {
	case StorageMemory, StorageRedis:
	case StorageFile:
		if strings.TrimSpace(c.Storage.FilePath) == "" {
			return errors.New("Storage FilePath is required for file storage")
		}
	default:
		return errors.New("Storage Kind is invalid")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}

/*
====================================
LINT
====================================
*/

// LintWarning is a valid but questionable setting.
type LintWarning struct {
	Code    string
	Message string
}

// LintWarnings is the result of Config.Lint.
type LintWarnings []LintWarning

// Codes lists the warning codes in order.
func (ws LintWarnings) Codes() []string {
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Code)
	}
	return out
}

// Lint reports settings that are accepted by Validate but usually wrong.
func (c *Config) Lint() LintWarnings {
	var ws LintWarnings
	if u, err := url.Parse(c.API.BaseURL); err == nil && u.Scheme == "http" && !isLoopback(u.Hostname()) {
		ws = append(ws, LintWarning{
			Code:    "plaintext_api",
			Message: "bearer tokens will cross the network unencrypted",
		})
	}
	if !c.Refresh.SingleFlight {
		ws = append(ws, LintWarning{
			Code:    "refresh_not_deduplicated",
			Message: "concurrent 401s each run their own refresh exchange",
		})
	}
	if c.API.Timeout > time.Minute {
		ws = append(ws, LintWarning{
			Code:    "timeout_long",
			Message: "API Timeout above 1m delays forced logout on a hung refresh",
		})
	}
	if c.Audit.Enabled && !c.Audit.DropIfFull {
		ws = append(ws, LintWarning{
			Code:    "audit_blocking",
			Message: "a slow audit sink will stall login and logout",
		})
	}
	return ws
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
