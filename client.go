package goSession

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goSession/csrf"
	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/session"
	"golang.org/x/sync/singleflight"
)

// Client is the session-aware API client returned by [Builder.Build]. It is safe for
// concurrent use.
type Client struct {
	cfg       Config
	baseURL   *url.URL
	http      *http.Client
	store     *session.Store
	csrf      *csrf.Cache
	inspector jwt.Inspector
	nav       Navigator
	events    *eventDispatcher
	metrics   *Metrics
	log       *slog.Logger
	sleep     func(context.Context, time.Duration) error

	refreshGroup singleflight.Group

	refresherMu sync.Mutex
	refresher   *Refresher

	closed atomic.Bool
}

// AuthResult is the outcome of a call that may establish a session.
type AuthResult struct {
	LoggedIn bool
	Profile  session.Profile
}

// LoginRequest is the login payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is the account registration payload.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
	Password string `json:"password"`
	Language string `json:"language,omitempty"`
}

// HTTPClient returns the configured *http.Client. Requests sent through it get the same
// header policy and recovery as [Client.Do]; tag them with [WithAuthKind].
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// BaseURL returns the resolved API base, which is [FallbackBaseURL] when none was
// configured.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// Do sends r and decodes a 2xx JSON body into out (when non-nil). Non-2xx responses are
// returned together with a *StatusError; network failures wrap [ErrNetwork].
func (c *Client) Do(ctx context.Context, r Request, out any) (*Response, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	body, contentType, err := encodeBody(r)
	if err != nil {
		return nil, err
	}

	if r.Kind != AuthStandard {
		ctx = WithAuthKind(ctx, r.Kind)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := c.newRequest(ctx, method, r.Path, r.Query, reader)
	if err != nil {
		return nil, err
	}
	for name, values := range r.Header {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	if r.Multipart != nil {
		req.Header.Del(headerContentType)
	}
	if contentType != "" && (r.Multipart != nil || req.Header.Get(headerContentType) == "") {
		req.Header.Set(headerContentType, contentType)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrNetwork, method, r.Path, err)
	}
	data, err := readBody(resp, c.cfg.HTTP.MaxBodyBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrNetwork, method, r.Path, err)
	}

	result := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
		Duration:   time.Since(start),
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return result, &StatusError{
			StatusCode: resp.StatusCode,
			Method:     method,
			Path:       r.Path,
			Message:    errorMessage(data),
			Body:       data,
		}
	}

	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return result, fmt.Errorf("%w: %s %s: %w", ErrDecode, method, r.Path, err)
		}
	}
	return result, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("%w: path %q: %v", ErrInvalidRequest, path, err)
	}
	u := ref
	if ref.Host == "" {
		u = c.BaseURL()
		u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(ref.Path, "/")
		u.RawQuery = ref.RawQuery
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if c.cfg.HTTP.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.HTTP.UserAgent)
	}
	return req, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func encodeBody(r Request) ([]byte, string, error) {
	if r.Multipart != nil {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		for _, f := range r.Multipart.Fields {
			if err := w.WriteField(f.Name, f.Value); err != nil {
				return nil, "", fmt.Errorf("%w: multipart field %q: %v", ErrInvalidRequest, f.Name, err)
			}
		}
		for _, f := range r.Multipart.Files {
			h := make(textproto.MIMEHeader)
			h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
				quoteEscaper.Replace(f.Field), quoteEscaper.Replace(f.FileName)))
			ct := f.ContentType
			if ct == "" {
				ct = "application/octet-stream"
			}
			h.Set(headerContentType, ct)
			part, err := w.CreatePart(h)
			if err != nil {
				return nil, "", fmt.Errorf("%w: multipart file %q: %v", ErrInvalidRequest, f.FileName, err)
			}
			if _, err := part.Write(f.Content); err != nil {
				return nil, "", fmt.Errorf("%w: multipart file %q: %v", ErrInvalidRequest, f.FileName, err)
			}
		}
		if err := w.Close(); err != nil {
			return nil, "", fmt.Errorf("%w: multipart: %v", ErrInvalidRequest, err)
		}
		return buf.Bytes(), w.FormDataContentType(), nil
	}

	switch b := r.Body.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return b, "application/json", nil
	case json.RawMessage:
		return b, "application/json", nil
	}
	data, err := json.Marshal(r.Body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: encode body: %v", ErrInvalidRequest, err)
	}
	return data, "application/json", nil
}

func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Message != "" {
		return payload.Message
	}
	return payload.Error
}

/*
====================================
AUTH CALLS
====================================
*/

// Login authenticates with email and password and persists the returned credentials.
func (c *Client) Login(ctx context.Context, in LoginRequest) (AuthResult, error) {
	resp, err := c.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   c.cfg.Endpoints.Login,
		Body:   in,
		Kind:   AuthLogin,
	}, nil)
	if err != nil {
		c.metrics.Inc(MetricLoginFailure)
		return AuthResult{}, err
	}

	res, ok, err := c.establish(ctx, resp.Body, "login")
	if err != nil {
		c.metrics.Inc(MetricLoginFailure)
		return AuthResult{}, err
	}
	if !ok {
		c.metrics.Inc(MetricLoginFailure)
		return AuthResult{}, ErrMissingCredentials
	}
	c.metrics.Inc(MetricLoginSuccess)
	return res, nil
}

// Register creates an account. When the server logs the new account in directly, the
// credentials are persisted and LoggedIn is true.
func (c *Client) Register(ctx context.Context, in RegisterRequest) (AuthResult, error) {
	resp, err := c.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   c.cfg.Endpoints.Register,
		Body:   in,
		Kind:   AuthRegister,
	}, nil)
	if err != nil {
		return AuthResult{}, err
	}
	res, _, err := c.establish(ctx, resp.Body, "register")
	return res, err
}

// VerifyEmail confirms an address with the emailed verification token. The token is sent
// as the bearer credential in place of any session token.
func (c *Client) VerifyEmail(ctx context.Context, verificationToken string) (AuthResult, error) {
	if verificationToken == "" {
		return AuthResult{}, fmt.Errorf("%w: verification token is empty", ErrInvalidRequest)
	}
	header := http.Header{}
	setBearer(header, verificationToken)
	resp, err := c.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   c.cfg.Endpoints.VerifyEmail,
		Header: header,
		Kind:   AuthVerifyEmail,
	}, nil)
	if err != nil {
		return AuthResult{}, err
	}
	res, _, err := c.establish(ctx, resp.Body, "verify_email")
	return res, err
}

// ForgotPassword asks the server to email a reset link.
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	_, err := c.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   c.cfg.Endpoints.ForgotPassword,
		Body:   map[string]string{"email": email},
		Kind:   AuthPasswordReset,
	}, nil)
	return err
}

// ResetPassword sets a new password using the emailed reset token.
func (c *Client) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	_, err := c.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   c.cfg.Endpoints.ResetPassword,
		Body: map[string]string{
			"token":    resetToken,
			"password": newPassword,
		},
		Kind: AuthPasswordReset,
	}, nil)
	return err
}

// Logout tells the server and clears local state. Local state is cleared even when the
// server is unreachable or refuses; only a storage failure is returned.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.sendLogout(ctx); err != nil {
		c.log.WarnContext(ctx, "goSession: server logout failed", "error", err)
	}
	c.metrics.Inc(MetricLogout)
	c.csrf.Reset()
	if err := c.store.ClearAll(ctx); err != nil {
		return err
	}
	c.emit(ctx, EventLoggedOut, "", nil)
	return nil
}

// Refresh exchanges the refresh token now. A failure expires the session exactly as a
// failed 401 recovery does.
func (c *Client) Refresh(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	_, err := c.refresh(ctx, "manual")
	return err
}

// IsAuthenticated reports whether a usable access token or a refresh token is stored.
func (c *Client) IsAuthenticated(ctx context.Context) bool {
	creds := c.store.Credentials(ctx)
	if creds.RefreshToken != "" {
		return true
	}
	return c.inspector.IsValidFormat(creds.AccessToken) && !c.inspector.IsExpired(creds.AccessToken)
}

// AccessTokenRemaining returns the stored access token's remaining lifetime (0 when
// absent, malformed or expired).
func (c *Client) AccessTokenRemaining(ctx context.Context) time.Duration {
	return c.inspector.TimeRemaining(c.store.Get(ctx, session.KindAccessToken))
}

// CurrentProfile returns the cached user profile.
func (c *Client) CurrentProfile(ctx context.Context) (session.Profile, bool) {
	return c.store.Profile(ctx)
}

// FetchProfile loads the current user from the API and caches it.
func (c *Client) FetchProfile(ctx context.Context) (session.Profile, error) {
	resp, err := c.Do(ctx, Request{Path: c.cfg.Endpoints.Profile}, nil)
	if err != nil {
		return session.Profile{}, err
	}
	raw := userPayload(resp.Body)
	if raw == nil {
		return session.Profile{}, fmt.Errorf("%w: profile response has no user", ErrDecode)
	}
	var p session.Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return session.Profile{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if err := c.store.SetUser(ctx, raw); err != nil {
		return p, err
	}
	return p, nil
}

// establish persists credentials carried by an auth response. ok is false when the body
// has no access token.
func (c *Client) establish(ctx context.Context, body []byte, reason string) (AuthResult, bool, error) {
	pair, ok := flows.ParseTokenPair(body)
	if !ok {
		return AuthResult{}, false, nil
	}
	if err := c.store.SetTokens(ctx, pair.AccessToken, pair.RefreshToken); err != nil {
		return AuthResult{}, true, err
	}

	res := AuthResult{LoggedIn: true}
	if len(pair.User) > 0 {
		if err := c.store.SetUser(ctx, pair.User); err != nil {
			c.log.WarnContext(ctx, "goSession: caching user failed", "error", err)
		} else if p, ok := c.store.Profile(ctx); ok {
			res.Profile = p
		}
	}

	c.emit(ctx, EventLoggedIn, reason, nil)
	c.log.InfoContext(ctx, "goSession: session established",
		"via", reason,
		"access_token", redactToken(pair.AccessToken),
	)
	return res, true, nil
}

// userPayload finds the user object in a profile response: {"user":{}}, {"data":{"user":{}}},
// {"data":{}} or the top-level object itself.
func userPayload(body []byte) json.RawMessage {
	var envelope struct {
		User json.RawMessage `json:"user"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil
	}
	if isObject(envelope.User) {
		return envelope.User
	}
	if isObject(envelope.Data) {
		var inner struct {
			User json.RawMessage `json:"user"`
		}
		if err := json.Unmarshal(envelope.Data, &inner); err == nil && isObject(inner.User) {
			return inner.User
		}
		return envelope.Data
	}
	return json.RawMessage(body)
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

/*
====================================
LIFECYCLE
====================================
*/

// StartBackgroundRefresh starts the proactive refresh loop. Calling it while the loop runs
// is a no-op.
func (c *Client) StartBackgroundRefresh(ctx context.Context) {
	c.refresherMu.Lock()
	defer c.refresherMu.Unlock()
	if c.closed.Load() {
		return
	}
	if c.refresher == nil {
		c.refresher = newRefresher(c)
	}
	c.refresher.Start(ctx)
}

// StopBackgroundRefresh stops the loop and waits for it to exit.
func (c *Client) StopBackgroundRefresh() {
	c.refresherMu.Lock()
	r := c.refresher
	c.refresherMu.Unlock()
	if r != nil {
		r.Stop()
	}
}

// Close stops the refresh loop and flushes queued events. Credentials stay stored.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.StopBackgroundRefresh()
	c.events.Close()
	return nil
}

// MetricsSnapshot returns the current counters.
func (c *Client) MetricsSnapshot() MetricsSnapshot {
	return c.metrics.Snapshot()
}

// Metrics exposes the live counters for exporters.
func (c *Client) Metrics() *Metrics {
	return c.metrics
}

// EventsDropped returns how many events were dropped because the sink fell behind.
func (c *Client) EventsDropped() uint64 {
	return c.events.Dropped()
}

// EventsDroppedByType breaks [Client.EventsDropped] down by event type.
func (c *Client) EventsDroppedByType() map[EventType]uint64 {
	return c.events.DroppedByType()
}
