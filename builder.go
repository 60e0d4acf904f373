package goAuthClient

import (
	"errors"
	"net/http"
	"strings"

	"github.com/MrEthical07/goAuthClient/internal/audit"
	"github.com/MrEthical07/goAuthClient/jwt"
	"github.com/MrEthical07/goAuthClient/refresh"
	"github.com/MrEthical07/goAuthClient/session"
	"github.com/MrEthical07/goAuthClient/tokenstore"
	"github.com/MrEthical07/goAuthClient/transport"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles a Client. A Builder is single-use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	backend   tokenstore.Backend
	base      http.RoundTripper
	inspector *jwt.Inspector
	auditSink AuditSink

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithBaseURL sets Config.API.BaseURL.
func (b *Builder) WithBaseURL(baseURL string) *Builder {
	b.config.API.BaseURL = baseURL
	return b
}

// WithRedis supplies the client used by StorageRedis.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithBackend overrides Config.Storage with a ready backend.
func (b *Builder) WithBackend(backend tokenstore.Backend) *Builder {
	b.backend = backend
	return b
}

// WithBaseTransport sets the RoundTripper that performs network I/O for both
// the pipeline and the refresh agent. Defaults to http.DefaultTransport.
func (b *Builder) WithBaseTransport(rt http.RoundTripper) *Builder {
	b.base = rt
	return b
}

// WithInspector overrides the expiry inspector, typically to inject a clock.
func (b *Builder) WithInspector(inspector *jwt.Inspector) *Builder {
	b.inspector = inspector
	return b
}

// WithAuditSink sets the audit destination. It takes effect only when
// Config.Audit.Enabled is true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets Config.Logger.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.config.Logger = logger
	return b
}

// WithSingleFlightRefresh sets Config.Refresh.SingleFlight.
func (b *Builder) WithSingleFlightRefresh(enabled bool) *Builder {
	b.config.Refresh.SingleFlight = enabled
	return b
}

// WithMetricsEnabled sets Config.Metrics.Enabled.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms sets Config.Metrics.EnableLatencyHistograms.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the client. No network I/O
// happens here.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	logger := cfg.Logger

	// -------- TOKEN STORE --------
	backend, err := b.tokenBackend(cfg.Storage)
	if err != nil {
		return nil, err
	}
	store := tokenstore.NewStore(backend, logger.Named("tokenstore"))

	// -------- SESSION --------
	inspector := b.inspector
	if inspector == nil {
		inspector = jwt.NewInspector()
	}
	notifier := session.NewLogoutNotifier()

	base := b.base
	if base == nil {
		base = http.DefaultTransport
	}
	baseURL := strings.TrimRight(cfg.API.BaseURL, "/")

	c := &Client{
		config:    cfg,
		logger:    logger,
		baseURL:   baseURL,
		store:     store,
		inspector: inspector,
		oracle:    session.NewOracle(store, inspector),
		notifier:  notifier,
		metrics:   NewMetrics(cfg.Metrics),
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
			Critical:   []string{AuditEventLogout, AuditEventForcedLogout},
			Logger:     logger.Named("audit"),
		}, b.auditSink),
	}

	// -------- REFRESH AGENT --------
	// The agent talks to the base transport directly so a refresh can never
	// re-enter the pipeline.
	c.agent = refresh.NewAgent(refresh.Config{
		Endpoint:     baseURL + RefreshPath,
		HTTPClient:   &http.Client{Transport: base, Timeout: cfg.API.Timeout},
		Tokens:       store,
		SingleFlight: cfg.Refresh.SingleFlight,
		Logger:       logger.Named("refresh"),
	})

	// -------- PIPELINE --------
	pipeline := transport.NewTransport(transport.Config{
		Base:      base,
		Tokens:    store,
		Refresher: clientRefresher{c: c},
		Notifier:  notifier,
		Logger:    logger.Named("transport"),
		Hooks: transport.Hooks{
			OnReplay:       c.onReplay,
			OnForcedLogout: c.onForcedLogout,
		},
	})
	c.http = &http.Client{Transport: pipeline, Timeout: cfg.API.Timeout}

	b.built = true

	return c, nil
}

func (b *Builder) tokenBackend(cfg StorageConfig) (tokenstore.Backend, error) {
	if b.backend != nil {
		return b.backend, nil
	}
	switch cfg.Kind {
	case StorageFile:
		return tokenstore.NewFileBackend(cfg.FilePath), nil
	case StorageRedis:
		if b.redis == nil {
			return nil, errors.New("redis storage requires a redis client")
		}
		return tokenstore.NewRedisBackend(b.redis, cfg.RedisPrefix), nil
	default:
		return tokenstore.NewMemoryBackend(), nil
	}
}
