package goSession

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestTokenSourceStopsAfterExpiry(t *testing.T) {
	var refreshes atomic.Int32
	ft := refreshingTransport(t, &refreshes, 200)
	env := newTestEnv(t, ft, nil)
	ctx := context.Background()
	env.seed(t, testToken(t, time.Hour), "R1")

	ts := env.client.TokenSource(ctx)
	if _, err := ts.Token(); err != nil {
		t.Fatalf("Token: %v", err)
	}

	env.client.expire(ctx, "test")

	tok, err := ts.Token()
	if !errors.Is(err, ErrNoRefreshToken) {
		t.Fatalf("expected ErrNoRefreshToken after expiry, got token=%v err=%v", tok, err)
	}
	if refreshes.Load() != 0 {
		t.Fatalf("cleared session must not refresh")
	}
}

func TestTokenSourceWithoutCredentialsDoesNotExpire(t *testing.T) {
	var refreshes atomic.Int32
	ft := refreshingTransport(t, &refreshes, 200)
	env := newTestEnv(t, ft, nil)

	_, err := env.client.TokenSource(context.Background()).Token()
	if !errors.Is(err, ErrNoRefreshToken) {
		t.Fatalf("expected ErrNoRefreshToken, got %v", err)
	}
	if ft.count("/api/auth/logout") != 0 || refreshes.Load() != 0 {
		t.Fatalf("no request may be sent for an empty session")
	}
	if navs := env.nav.Navigations(); len(navs) != 0 {
		t.Fatalf("navigations = %v, want none", navs)
	}
	if env.client.metrics.Value(MetricSessionExpired) != 0 {
		t.Fatalf("empty session must not be expired")
	}
}

func TestZeroExpiryBufferIsHonoured(t *testing.T) {
	var refreshes atomic.Int32
	ft := refreshingTransport(t, &refreshes, 200)
	env := newTestEnv(t, ft, func(cfg *Config) {
		cfg.Refresh.ExpiryBuffer = 0
	})
	ctx := context.Background()
	short := testToken(t, 10*time.Second)
	env.seed(t, short, "R1")

	if env.client.inspector.IsExpired(short) {
		t.Fatalf("token with 10s left is expired under a zero buffer")
	}
	tok, err := env.client.TokenSource(ctx).Token()
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok.AccessToken != short || refreshes.Load() != 0 {
		t.Fatalf("live token must be returned without refresh")
	}
	if until := time.Until(tok.Expiry); until < 5*time.Second || until > 11*time.Second {
		t.Fatalf("expiry %v must be the raw exp claim", until)
	}
}
