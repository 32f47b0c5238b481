package goSession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/MrEthical07/goSession/csrf"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/middleware"
	"github.com/MrEthical07/goSession/session"
	"github.com/redis/go-redis/v9"
)

// Builder defines a public type used by goSession APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config

	kv    session.KV
	redis redis.UniversalClient

	transport http.RoundTripper
	navigator Navigator
	eventSink EventSink
	logger    *slog.Logger
	clock     func() time.Time
	sleep     func(context.Context, time.Duration) error

	built bool
}

// New describes the new operation and its observable behavior.
//
// New starts from [DefaultConfig]. New does not mutate shared global state and can be used concurrently.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig replaces the whole configuration; start from [DefaultConfig] or [LoadConfigFromEnv] to keep defaults.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithKV describes the withkv operation and its observable behavior.
//
// WithKV injects a credential backend and takes precedence over Config.Storage.Backend.
func (b *Builder) WithKV(kv session.KV) *Builder {
	b.kv = kv
	return b
}

// WithRedis describes the withredis operation and its observable behavior.
//
// WithRedis stores credentials in Redis under Config.Storage.RedisPrefix, so several processes share one session.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	b.config.Storage.Backend = StorageRedis
	return b
}

// WithKeyring describes the withkeyring operation and its observable behavior.
//
// WithKeyring stores credentials in the OS credential store under Config.Storage.KeyringService.
func (b *Builder) WithKeyring() *Builder {
	b.config.Storage.Backend = StorageKeyring
	return b
}

// WithTransport sets the RoundTripper that performs the wire exchange. Tests use it to
// inject failing or scripted transports.
func (b *Builder) WithTransport(rt http.RoundTripper) *Builder {
	b.transport = rt
	return b
}

// WithNavigator sets the host navigation primitive. The default is a [MemoryNavigator]
// starting at "/".
func (b *Builder) WithNavigator(nav Navigator) *Builder {
	b.navigator = nav
	return b
}

// WithEventSink describes the witheventsink operation and its observable behavior.
//
// WithEventSink receives token-expired and the other session events when Config.Events.Enabled is set.
func (b *Builder) WithEventSink(sink EventSink) *Builder {
	b.eventSink = sink
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock replaces the clock used for token expiry decisions.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms describes the withlatencyhistograms operation and its observable behavior.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when configuration validation or backend selection fails. A
// missing BaseURL is not an error: it is logged at error level and [FallbackBaseURL] is
// used. A Builder can be built once.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = NewLogger(cfg.LogLevel)
	}

	if cfg.BaseURL == "" {
		logger.Error("goSession: BaseURL is not configured; using fallback",
			"fallback", FallbackBaseURL,
			"env", "GOSESSION_BASE_URL",
		)
		cfg.BaseURL = FallbackBaseURL
	}
	baseURL, err := parseBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	// -------- CREDENTIAL STORAGE --------
	kv, err := b.resolveKV(cfg)
	if err != nil {
		return nil, err
	}
	store := session.NewStore(kv, logger)

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	nav := b.navigator
	if nav == nil {
		nav = NewMemoryNavigator("/")
	}

	sleep := b.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	c := &Client{
		cfg:       cfg,
		baseURL:   baseURL,
		store:     store,
		inspector: jwt.NewInspector(b.clock, cfg.Refresh.ExpiryBuffer),
		nav:       nav,
		metrics:   NewMetrics(cfg.Metrics),
		log:       logger,
		sleep:     sleep,
	}

	c.csrf = csrf.New(csrf.Options{
		Store:   store,
		Jar:     jar,
		BaseURL: baseURL,
		Fetch:   c.fetchCSRF,
		Logger:  logger,
	})

	// -------- TRANSPORT CHAIN --------
	wire := b.transport
	if wire == nil {
		wire = http.DefaultTransport.(*http.Transport).Clone()
	}
	st := &sessionTransport{
		next:   middleware.Chain(wire, middleware.Logging(logger)),
		client: c,
	}
	c.http = &http.Client{
		Transport: middleware.Chain(st, middleware.BaseURL(baseURL), middleware.RequestID()),
		Jar:       jar,
		Timeout:   cfg.HTTP.Timeout,
	}

	c.events = newEventDispatcher(cfg.Events, b.eventSink, logger)

	b.built = true

	return c, nil
}

func (b *Builder) resolveKV(cfg Config) (session.KV, error) {
	if b.kv != nil {
		return b.kv, nil
	}
	switch cfg.Storage.Backend {
	case StorageRedis:
		if b.redis == nil {
			return nil, fmt.Errorf("%w: redis storage requires WithRedis", ErrConfig)
		}
		return session.NewRedisKV(b.redis, cfg.Storage.RedisPrefix, cfg.Storage.RedisTTL), nil
	case StorageKeyring:
		return session.NewKeyringKV(cfg.Storage.KeyringService), nil
	default:
		return session.NewMemoryKV(), nil
	}
}
