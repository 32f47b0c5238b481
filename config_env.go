package goSession

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadConfigFromEnv starts from the defaults and applies GOSESSION_* environment
// variables. Unparseable values keep the default.
func LoadConfigFromEnv() Config {
	cfg := defaultConfig()

	cfg.BaseURL = strings.TrimRight(envString("GOSESSION_BASE_URL", cfg.BaseURL), "/")
	cfg.LogLevel = envString("GOSESSION_LOG_LEVEL", cfg.LogLevel)

	cfg.Retry.MaxAttempts = envInt("GOSESSION_RETRY_MAX_ATTEMPTS", cfg.Retry.MaxAttempts)
	cfg.Retry.BaseDelay = envDuration("GOSESSION_RETRY_BASE_DELAY", cfg.Retry.BaseDelay)

	cfg.Refresh.ExpiryBuffer = envDuration("GOSESSION_EXPIRY_BUFFER", cfg.Refresh.ExpiryBuffer)
	cfg.Refresh.Interval = envDuration("GOSESSION_REFRESH_INTERVAL", cfg.Refresh.Interval)
	cfg.Refresh.ProactiveWindow = envDuration("GOSESSION_REFRESH_WINDOW", cfg.Refresh.ProactiveWindow)

	cfg.CSRF.Enabled = envBool("GOSESSION_CSRF_ENABLED", cfg.CSRF.Enabled)

	cfg.Storage.Backend = StorageBackend(envString("GOSESSION_STORAGE", string(cfg.Storage.Backend)))
	cfg.Storage.RedisPrefix = envString("GOSESSION_REDIS_PREFIX", cfg.Storage.RedisPrefix)
	cfg.Storage.RedisTTL = envDuration("GOSESSION_REDIS_TTL", cfg.Storage.RedisTTL)
	cfg.Storage.KeyringService = envString("GOSESSION_KEYRING_SERVICE", cfg.Storage.KeyringService)

	cfg.Navigation.LoginRoute = envString("GOSESSION_LOGIN_ROUTE", cfg.Navigation.LoginRoute)

	cfg.Metrics.Enabled = envBool("GOSESSION_METRICS", cfg.Metrics.Enabled)
	cfg.Metrics.EnableLatencyHistograms = envBool("GOSESSION_METRICS_LATENCY", cfg.Metrics.EnableLatencyHistograms)

	cfg.HTTP.Timeout = envDuration("GOSESSION_HTTP_TIMEOUT", cfg.HTTP.Timeout)
	cfg.HTTP.DefaultLanguage = envString("GOSESSION_LANGUAGE", cfg.HTTP.DefaultLanguage)

	return cfg
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
