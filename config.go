package goSession

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// FallbackBaseURL is used when no base URL is configured. A missing base URL is logged
// loudly at Build; the client still starts against this address.
const FallbackBaseURL = "http://localhost:5000/api"

// Config defines the client's behavior.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	BaseURL    string
	Endpoints  EndpointsConfig
	Retry      RetryConfig
	Refresh    RefreshConfig
	CSRF       CSRFConfig
	Storage    StorageConfig
	Navigation NavigationConfig
	Events     EventsConfig
	Metrics    MetricsConfig
	HTTP       HTTPConfig
	LogLevel   string
}

/*
====================================
ENDPOINTS CONFIG
====================================
*/

// EndpointsConfig holds API paths relative to BaseURL.
type EndpointsConfig struct {
	Login          string
	Register       string
	Logout         string
	Refresh        string
	CSRF           string
	VerifyEmail    string
	ForgotPassword string
	ResetPassword  string
	Profile        string
}

/*
====================================
RECOVERY CONFIG
====================================
*/

// RetryConfig controls network-failure retries. Delays grow as BaseDelay * 2^(n-1) for
// retry n.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// RefreshConfig controls token expiry evaluation and the background refresh loop.
type RefreshConfig struct {
	ExpiryBuffer    time.Duration
	Interval        time.Duration
	ProactiveWindow time.Duration
}

// CSRFConfig toggles anti-forgery handling. When disabled no CSRF header is attached and
// 403 diagnostics are skipped.
type CSRFConfig struct {
	Enabled bool
}

/*
====================================
STORAGE CONFIG
====================================
*/

// StorageBackend names a credential storage backend.
type StorageBackend string

const (
	// StorageMemory keeps credentials for the lifetime of the process.
	StorageMemory StorageBackend = "memory"
	// StorageRedis shares credentials between processes through Redis.
	StorageRedis StorageBackend = "redis"
	// StorageKeyring keeps credentials in the OS credential store.
	StorageKeyring StorageBackend = "keyring"
)

// StorageConfig selects the credential backend when none is injected with WithKV.
type StorageConfig struct {
	Backend        StorageBackend
	RedisPrefix    string
	RedisTTL       time.Duration
	KeyringService string
}

// NavigationConfig names the login route and the query parameter stripped on expiry.
type NavigationConfig struct {
	LoginRoute      string
	TokenQueryParam string
}

// EventsConfig configures the session event dispatcher.
type EventsConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig enables in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// HTTPConfig tunes the underlying *http.Client. A zero Timeout leaves the transport
// defaults in charge.
type HTTPConfig struct {
	Timeout         time.Duration
	UserAgent       string
	DefaultLanguage string
	MaxBodyBytes    int64
}

// DefaultConfig returns the configuration used by [New].
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Endpoints: EndpointsConfig{
			Login:          "/auth/login",
			Register:       "/auth/register",
			Logout:         "/auth/logout",
			Refresh:        "/auth/refresh-token",
			CSRF:           "/csrf-token",
			VerifyEmail:    "/auth/verify-email",
			ForgotPassword: "/auth/forgot-password",
			ResetPassword:  "/auth/reset-password",
			Profile:        "/auth/me",
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   500 * time.Millisecond,
		},
		Refresh: RefreshConfig{
			ExpiryBuffer:    30 * time.Second,
			Interval:        60 * time.Second,
			ProactiveWindow: 300 * time.Second,
		},
		CSRF: CSRFConfig{
			Enabled: true,
		},
		Storage: StorageConfig{
			Backend:        StorageMemory,
			RedisPrefix:    "gs",
			KeyringService: "goSession",
		},
		Navigation: NavigationConfig{
			LoginRoute:      "/login",
			TokenQueryParam: "token",
		},
		Events: EventsConfig{
			Enabled:    true,
			BufferSize: 64,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
		HTTP: HTTPConfig{
			UserAgent:    "goSession/1",
			MaxBodyBytes: 8 << 20,
		},
		LogLevel: "info",
	}
}

// Validate checks everything except the base URL, whose absence is tolerated with a
// fallback.
func (c *Config) Validate() error {
	if c.BaseURL != "" {
		if _, err := parseBaseURL(c.BaseURL); err != nil {
			return err
		}
	}

	endpoints := map[string]string{
		"Login":          c.Endpoints.Login,
		"Register":       c.Endpoints.Register,
		"Logout":         c.Endpoints.Logout,
		"Refresh":        c.Endpoints.Refresh,
		"CSRF":           c.Endpoints.CSRF,
		"VerifyEmail":    c.Endpoints.VerifyEmail,
		"ForgotPassword": c.Endpoints.ForgotPassword,
		"ResetPassword":  c.Endpoints.ResetPassword,
		"Profile":        c.Endpoints.Profile,
	}
	for name, path := range endpoints {
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("%w: endpoint %s must start with /", ErrConfig, name)
		}
	}

	if c.Retry.MaxAttempts < 0 || c.Retry.MaxAttempts > 10 {
		return fmt.Errorf("%w: Retry.MaxAttempts must be in [0,10]", ErrConfig)
	}
	if c.Retry.BaseDelay <= 0 {
		return fmt.Errorf("%w: Retry.BaseDelay must be > 0", ErrConfig)
	}

	if c.Refresh.ExpiryBuffer < 0 {
		return fmt.Errorf("%w: Refresh.ExpiryBuffer must be >= 0", ErrConfig)
	}
	if c.Refresh.Interval <= 0 {
		return fmt.Errorf("%w: Refresh.Interval must be > 0", ErrConfig)
	}
	if c.Refresh.ProactiveWindow <= c.Refresh.ExpiryBuffer {
		return fmt.Errorf("%w: Refresh.ProactiveWindow must exceed Refresh.ExpiryBuffer", ErrConfig)
	}

	switch c.Storage.Backend {
	case StorageMemory, StorageRedis, StorageKeyring:
	default:
		return fmt.Errorf("%w: unknown storage backend %q", ErrConfig, c.Storage.Backend)
	}

	if !strings.HasPrefix(c.Navigation.LoginRoute, "/") {
		return fmt.Errorf("%w: Navigation.LoginRoute must start with /", ErrConfig)
	}

	if c.Events.Enabled && c.Events.BufferSize <= 0 {
		return fmt.Errorf("%w: Events.BufferSize must be > 0", ErrConfig)
	}

	if c.HTTP.Timeout < 0 {
		return fmt.Errorf("%w: HTTP.Timeout must be >= 0", ErrConfig)
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		return fmt.Errorf("%w: HTTP.MaxBodyBytes must be > 0", ErrConfig)
	}

	if _, err := parseLogLevel(c.LogLevel); err != nil {
		return err
	}

	return nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: BaseURL: %v", ErrConfig, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: BaseURL must be http or https", ErrConfig)
	}
	if u.Host == "" {
		return nil, errors.Join(ErrConfig, errors.New("BaseURL has no host"))
	}
	return u, nil
}
