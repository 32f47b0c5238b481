package goSession

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/internal/testserver"
	"github.com/MrEthical07/goSession/session"
)

type liveEnv struct {
	srv    *testserver.Server
	client *Client
	nav    *MemoryNavigator
	sink   *ChannelSink
}

func newLiveEnv(t *testing.T, opts testserver.Options) *liveEnv {
	t.Helper()
	srv := testserver.New(opts)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.BaseURL = srv.BaseURL()
	cfg.Metrics.Enabled = true
	cfg.Events.DropIfFull = false

	env := &liveEnv{
		srv:  srv,
		nav:  NewMemoryNavigator("/dashboard"),
		sink: NewChannelSink(64),
	}
	client, err := New().
		WithConfig(cfg).
		WithKV(session.NewMemoryKV()).
		WithNavigator(env.nav).
		WithEventSink(env.sink).
		WithLogger(slog.New(slog.DiscardHandler)).
		Build()
	if err != nil {
		t.Fatalf("build client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	env.client = client
	return env
}

func (e *liveEnv) login(t *testing.T) AuthResult {
	t.Helper()
	res, err := e.client.Login(context.Background(), LoginRequest{Email: "demo@example.test", Password: "secret"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return res
}

func TestLoginPersistsCredentialsAndProfile(t *testing.T) {
	env := newLiveEnv(t, testserver.Options{Language: "ar"})
	ctx := context.Background()

	res := env.login(t)
	if !res.LoggedIn || res.Profile.Email != "demo@example.test" {
		t.Fatalf("unexpected login result %+v", res)
	}
	creds := env.client.store.Credentials(ctx)
	if creds.AccessToken == "" || creds.RefreshToken == "" {
		t.Fatalf("credentials not stored: %+v", creds)
	}
	if !env.client.IsAuthenticated(ctx) {
		t.Fatalf("expected authenticated session")
	}
	if env.srv.LastHeader(testserver.RouteLogin, "Authorization") != "" {
		t.Fatalf("login must not carry a bearer token")
	}

	profile, err := env.client.FetchProfile(ctx)
	if err != nil {
		t.Fatalf("FetchProfile: %v", err)
	}
	if profile.Language != "ar" {
		t.Fatalf("profile language = %q", profile.Language)
	}
	if got := env.srv.LastHeader(testserver.RouteMe, "Accept-Language"); got != "ar" {
		t.Fatalf("Accept-Language = %q, want profile language", got)
	}
	if got := env.srv.LastHeader(testserver.RouteMe, "Authorization"); got != "Bearer "+creds.AccessToken {
		t.Fatalf("Authorization = %q", got)
	}
	if got := env.srv.LastHeader(testserver.RouteMe, "X-Request-ID"); got == "" {
		t.Fatalf("request id header missing")
	}
}

func TestLoginWrongPasswordIsNotRecovered(t *testing.T) {
	env := newLiveEnv(t, testserver.Options{})

	_, err := env.client.Login(context.Background(), LoginRequest{Email: "demo@example.test", Password: "nope"})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.Message != "invalid credentials" {
		t.Fatalf("expected server message, got %v", err)
	}
	if env.srv.Calls(testserver.RouteRefresh) != 0 {
		t.Fatalf("login failure must not trigger refresh")
	}
	if len(env.nav.Navigations()) != 0 {
		t.Fatalf("login failure must not navigate")
	}
}

func TestRevokedAccessTokenIsRefreshedAndReplayed(t *testing.T) {
	env := newLiveEnv(t, testserver.Options{RotateRefresh: true})
	ctx := context.Background()
	env.login(t)

	old := env.client.store.Get(ctx, session.KindAccessToken)
	oldRefresh := env.client.store.Get(ctx, session.KindRefreshToken)
	env.srv.Revoke(old)

	if _, err := env.client.FetchProfile(ctx); err != nil {
		t.Fatalf("FetchProfile after revoke: %v", err)
	}
	if got := env.srv.Calls(testserver.RouteRefresh); got != 1 {
		t.Fatalf("refresh calls = %d, want 1", got)
	}
	if got := env.srv.Calls(testserver.RouteMe); got != 2 {
		t.Fatalf("profile calls = %d, want original + replay", got)
	}
	creds := env.client.store.Credentials(ctx)
	if creds.AccessToken == old || creds.RefreshToken == oldRefresh {
		t.Fatalf("rotated credentials not persisted")
	}
	if got := env.srv.LastHeader(testserver.RouteMe, "Authorization"); got != "Bearer "+creds.AccessToken {
		t.Fatalf("replay carried %q", got)
	}
	if got := env.srv.LastHeader(testserver.RouteRefresh, "Authorization"); got != "Bearer "+oldRefresh {
		t.Fatalf("refresh call carried %q", got)
	}
}

func TestRejectedRefreshExpiresSession(t *testing.T) {
	env := newLiveEnv(t, testserver.Options{})
	ctx := context.Background()
	env.login(t)

	env.srv.Revoke(env.client.store.Get(ctx, session.KindAccessToken))
	env.srv.FailRefresh(true)

	_, err := env.client.FetchProfile(ctx)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected the original 401, got %v", err)
	}
	if env.client.IsAuthenticated(ctx) {
		t.Fatalf("credentials must be cleared")
	}
	if env.srv.Calls(testserver.RouteLogout) != 1 {
		t.Fatalf("server logout should be attempted once")
	}
	if navs := env.nav.Navigations(); len(navs) != 1 || navs[0] != "/login" {
		t.Fatalf("navigations = %v", navs)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-env.sink.Events():
			if ev.Type == EventTokenExpired {
				if ev.Reason != "refresh_rejected" {
					t.Fatalf("reason = %q", ev.Reason)
				}
				return
			}
		case <-deadline:
			t.Fatal("no token-expired event")
		}
	}
}

func TestMultipartReservationFetchesCSRFInline(t *testing.T) {
	env := newLiveEnv(t, testserver.Options{RequireCSRF: true})
	ctx := context.Background()
	env.login(t)

	resp, err := env.client.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   "/reservations",
		Multipart: &Multipart{
			Fields: []FormField{{Name: "projectId", Value: "p-1"}},
			Files: []FilePart{{
				Field:       "receipt",
				FileName:    "receipt.pdf",
				ContentType: "application/pdf",
				Content:     []byte("%PDF-1.4"),
			}},
		},
	}, nil)
	if err != nil {
		t.Fatalf("reservation: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := env.srv.Calls(testserver.RouteCSRF); got != 1 {
		t.Fatalf("csrf fetches = %d, want 1", got)
	}
	if got := env.srv.LastHeader(testserver.RouteReserve, "X-XSRF-TOKEN"); got != env.srv.CSRFToken() {
		t.Fatalf("csrf header = %q, want %q", got, env.srv.CSRFToken())
	}
	if ct := env.srv.LastHeader(testserver.RouteReserve, "Content-Type"); !strings.HasPrefix(ct, "multipart/form-data; boundary=") {
		t.Fatalf("content type = %q", ct)
	}

	// The cached token serves the next mutation without another fetch.
	if _, err := env.client.Do(ctx, Request{Method: http.MethodPost, Path: "/reservations", Body: map[string]string{"projectId": "p-2"}}, nil); err != nil {
		t.Fatalf("second reservation: %v", err)
	}
	if got := env.srv.Calls(testserver.RouteCSRF); got != 1 {
		t.Fatalf("csrf fetches = %d after cached use, want 1", got)
	}
}

func TestVerifyEmailBypassesSessionHeaders(t *testing.T) {
	env := newLiveEnv(t, testserver.Options{})
	env.login(t)

	res, err := env.client.VerifyEmail(context.Background(), "verify-123")
	if err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}
	if res.LoggedIn {
		t.Fatalf("verify response without tokens must not log in")
	}
	if got := env.srv.LastHeader(testserver.RouteVerifyEmail, "Authorization"); got != "Bearer verify-123" {
		t.Fatalf("Authorization = %q", got)
	}
	if got := env.srv.LastHeader(testserver.RouteVerifyEmail, "X-XSRF-TOKEN"); got != "" {
		t.Fatalf("verify email must not carry csrf, got %q", got)
	}

	if _, err := env.client.VerifyEmail(context.Background(), ""); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("empty token: %v", err)
	}
}

func TestLogoutClearsLocalState(t *testing.T) {
	env := newLiveEnv(t, testserver.Options{})
	ctx := context.Background()
	env.login(t)
	access := env.client.store.Get(ctx, session.KindAccessToken)

	if err := env.client.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if got := env.srv.LastHeader(testserver.RouteLogout, "Authorization"); got != "Bearer "+access {
		t.Fatalf("logout carried %q", got)
	}
	if env.client.IsAuthenticated(ctx) {
		t.Fatalf("still authenticated after logout")
	}
	if _, ok := env.client.CurrentProfile(ctx); ok {
		t.Fatalf("profile survived logout")
	}
}

func TestPublicEndpointAndStatusMapping(t *testing.T) {
	env := newLiveEnv(t, testserver.Options{})
	ctx := context.Background()

	var out struct {
		Data []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"data"`
	}
	if _, err := env.client.Do(ctx, Request{Path: "/projects", Kind: AuthNone}, &out); err != nil {
		t.Fatalf("projects: %v", err)
	}
	if len(out.Data) != 2 {
		t.Fatalf("projects = %+v", out.Data)
	}
	if got := env.srv.LastHeader(testserver.RouteProjects, "Accept-Language"); got != "" {
		t.Fatalf("no language configured, got %q", got)
	}

	_, err := env.client.Do(ctx, Request{Path: "/does-not-exist"}, nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTokenSourceReturnsStoredToken(t *testing.T) {
	env := newLiveEnv(t, testserver.Options{AccessTTL: time.Hour})
	ctx := context.Background()
	env.login(t)

	tok, err := env.client.TokenSource(ctx).Token()
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok.AccessToken != env.client.store.Get(ctx, session.KindAccessToken) {
		t.Fatalf("token source returned a different token")
	}
	until := time.Until(tok.Expiry)
	if until < 58*time.Minute || until > time.Hour-29*time.Second {
		t.Fatalf("expiry %v outside buffered window", until)
	}
	if env.srv.Calls(testserver.RouteRefresh) != 0 {
		t.Fatalf("valid token must not refresh")
	}
}

func TestTokenSourceRefreshesExpiredToken(t *testing.T) {
	env := newLiveEnv(t, testserver.Options{})
	ctx := context.Background()
	stale := env.srv.IssueAccess("u-1", 10*time.Second)
	if err := env.client.store.SetTokens(ctx, stale, env.srv.IssueRefresh()); err != nil {
		t.Fatalf("seed: %v", err)
	}

	tok, err := env.client.TokenSource(ctx).Token()
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok.AccessToken == stale {
		t.Fatalf("token inside the expiry buffer was not refreshed")
	}
	if env.srv.Calls(testserver.RouteRefresh) != 1 {
		t.Fatalf("refresh calls = %d", env.srv.Calls(testserver.RouteRefresh))
	}
}
