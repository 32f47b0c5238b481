package csrf

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/MrEthical07/goSession/session"
	"golang.org/x/sync/singleflight"
)

// HeaderName is the request and response header carrying the token.
const HeaderName = "X-XSRF-TOKEN"

// CookieNames are the cookies consulted, in order, when no token is cached.
var CookieNames = []string{"XSRF-TOKEN", "_csrf"}

// BodyKeys are the response body keys that may carry the token, in priority order.
// Generic keys such as "token" or "accessToken" are deliberately absent: they carry the
// session token.
var BodyKeys = []string{"X-XSRF-TOKEN", "csrfToken", "csrf", "_csrf"}

var (
	// ErrNoToken is returned when a CSRF endpoint response carries no token.
	ErrNoToken = errors.New("csrf token missing from response")
	// ErrNoFetcher is returned by FetchExplicit when the cache has no fetcher.
	ErrNoFetcher = errors.New("csrf fetcher not configured")
)

// FetchFunc performs the dedicated CSRF-token request and returns the response header and
// body.
type FetchFunc func(ctx context.Context) (http.Header, []byte, error)

// Options configures a [Cache].
type Options struct {
	Store   *session.Store
	Jar     http.CookieJar
	BaseURL *url.URL
	Fetch   FetchFunc
	Logger  *slog.Logger
}

// Cache holds the anti-forgery token for one client.
type Cache struct {
	mu     sync.RWMutex
	memory string

	store  *session.Store
	jar    http.CookieJar
	origin *url.URL
	fetch  FetchFunc
	log    *slog.Logger
	group  singleflight.Group
}

// New creates a cache. Every option may be nil; missing tiers are skipped.
func New(opts Options) *Cache {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Cache{
		store:  opts.Store,
		jar:    opts.Jar,
		origin: opts.BaseURL,
		fetch:  opts.Fetch,
		log:    logger,
	}
}

// Get returns the cached token or "" when no tier has one.
func (c *Cache) Get(ctx context.Context) string {
	c.mu.RLock()
	token := c.memory
	c.mu.RUnlock()
	if token != "" {
		return token
	}

	if c.store != nil {
		if token = c.store.Get(ctx, session.KindCSRFToken); token != "" {
			c.setMemory(token)
			return token
		}
	}

	if token = c.fromCookies(); token != "" {
		c.setMemory(token)
		if c.store != nil {
			if err := c.store.Set(ctx, session.KindCSRFToken, token); err != nil {
				c.log.WarnContext(ctx, "goSession: csrf backfill failed", "error", err)
			}
		}
	}
	return token
}

func (c *Cache) fromCookies() string {
	if c.jar == nil || c.origin == nil {
		return ""
	}
	cookies := c.jar.Cookies(c.origin)
	for _, name := range CookieNames {
		for _, ck := range cookies {
			if ck.Name == name && ck.Value != "" {
				if v, err := url.QueryUnescape(ck.Value); err == nil {
					return v
				}
				return ck.Value
			}
		}
	}
	return ""
}

func (c *Cache) setMemory(token string) {
	c.mu.Lock()
	c.memory = token
	c.mu.Unlock()
}

// ExtractFromResponse picks the token out of a response. The header wins; otherwise the
// first non-empty string under one of [BodyKeys] in a JSON object body.
func ExtractFromResponse(header http.Header, body []byte) string {
	if header != nil {
		if v := header.Get(HeaderName); v != "" {
			return v
		}
	}
	if len(body) == 0 {
		return ""
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return ""
	}
	for _, key := range BodyKeys {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var v string
		if err := json.Unmarshal(raw, &v); err == nil && v != "" {
			return v
		}
	}
	return ""
}

// Capture extracts a token from a response and, when one is found, stores it in memory
// and persistent storage.
func (c *Cache) Capture(ctx context.Context, header http.Header, body []byte) string {
	token := ExtractFromResponse(header, body)
	if token == "" {
		return ""
	}
	c.mu.RLock()
	same := c.memory == token
	c.mu.RUnlock()
	if same {
		return token
	}
	c.setMemory(token)
	if c.store != nil {
		if err := c.store.Set(ctx, session.KindCSRFToken, token); err != nil {
			c.log.WarnContext(ctx, "goSession: csrf persist failed", "error", err)
		}
	}
	return token
}

// FetchExplicit requests a fresh token from the CSRF endpoint. Concurrent callers share
// one request, which is not cancelled when the caller that started it is.
func (c *Cache) FetchExplicit(ctx context.Context) (string, error) {
	fetch := c.fetch
	if fetch == nil {
		return "", ErrNoFetcher
	}

	// Joined callers must not fail because the first caller gave up.
	fetchCtx := context.WithoutCancel(ctx)
	v, err, _ := c.group.Do("fetch", func() (any, error) {
		header, body, err := fetch(fetchCtx)
		if err != nil {
			return "", err
		}
		token := c.Capture(fetchCtx, header, body)
		if token == "" {
			return "", ErrNoToken
		}
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Ensure returns the cached token, fetching one when every tier is empty.
func (c *Cache) Ensure(ctx context.Context) (string, error) {
	if token := c.Get(ctx); token != "" {
		return token, nil
	}
	return c.FetchExplicit(ctx)
}

// Reset drops the in-memory token. Persistent storage is cleared by the token store.
func (c *Cache) Reset() {
	c.setMemory("")
}
