package goSession

import (
	"context"
	"fmt"
	"net/http"

	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/session"
)

const refreshKey = "refresh"

// recoverSession returns the token a 401'd request should be replayed with. When another
// request already rotated the token since sent was attached, that token is reused without
// a second refresh; when another request already expired the session, nothing is done.
func (c *Client) recoverSession(ctx context.Context, sent string) (string, bool) {
	current := c.store.Get(ctx, session.KindAccessToken)
	if sent != "" && current == "" {
		// An expiry that ran after this request was sent already ended the session.
		return "", false
	}
	if current != "" && current != sent && c.inspector.IsValidFormat(current) && !c.inspector.IsExpired(current) {
		return current, true
	}
	token, err := c.refresh(ctx, "reactive")
	return token, err == nil
}

// refresh exchanges the refresh token for a new access token. Concurrent callers, reactive
// and proactive alike, share one refresh call; a failed refresh expires the session once
// for the whole batch.
func (c *Client) refresh(ctx context.Context, trigger string) (string, error) {
	v, err, shared := c.refreshGroup.Do(refreshKey, func() (any, error) {
		return c.runRefresh(context.WithoutCancel(ctx), trigger)
	})
	if shared {
		c.metrics.Inc(MetricRefreshShared)
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) runRefresh(ctx context.Context, trigger string) (string, error) {
	res := flows.RunRefresh(ctx, flows.RefreshDeps{
		RefreshToken: func(ctx context.Context) string {
			return c.store.Get(ctx, session.KindRefreshToken)
		},
		Send:    c.sendRefresh,
		Persist: c.store.SetTokens,
	})

	if res.Failure == flows.RefreshFailureNone {
		c.metrics.Inc(MetricRefreshSuccess)
		c.log.InfoContext(ctx, "goSession: access token refreshed",
			"trigger", trigger,
			"rotated", res.RefreshToken != "",
		)
		c.emit(ctx, EventTokenRefreshed, trigger, nil)
		return res.AccessToken, nil
	}

	c.metrics.Inc(MetricRefreshFailure)
	c.log.WarnContext(ctx, "goSession: refresh failed",
		"trigger", trigger,
		"reason", res.Failure.String(),
		"status", res.Status,
		"error", res.Err,
	)
	c.expire(ctx, "refresh_"+res.Failure.String())
	return "", refreshError(res)
}

func refreshError(res flows.RefreshResult) error {
	switch res.Failure {
	case flows.RefreshFailureMissingToken:
		return fmt.Errorf("%w: %w", ErrSessionExpired, ErrNoRefreshToken)
	case flows.RefreshFailureTransport:
		return fmt.Errorf("%w: %w: %w", ErrSessionExpired, ErrNetwork, res.Err)
	case flows.RefreshFailureRejected:
		return fmt.Errorf("%w: %w (status %d)", ErrSessionExpired, ErrRefreshRejected, res.Status)
	case flows.RefreshFailureMalformed:
		return fmt.Errorf("%w: %w", ErrSessionExpired, ErrRefreshMalformed)
	default:
		return fmt.Errorf("%w: persist refreshed tokens: %w", ErrSessionExpired, res.Err)
	}
}

func (c *Client) sendRefresh(ctx context.Context, refreshToken string) (int, []byte, error) {
	req, err := c.newRequest(WithAuthKind(ctx, AuthRefresh), http.MethodPost, c.cfg.Endpoints.Refresh, nil, nil)
	if err != nil {
		return 0, nil, err
	}
	setBearer(req.Header, refreshToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	body, err := readBody(resp, c.cfg.HTTP.MaxBodyBytes)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

// expire ends a session that cannot be recovered. Storage is cleared even when the server
// cannot be told.
func (c *Client) expire(ctx context.Context, reason string) {
	c.metrics.Inc(MetricSessionExpired)

	res := flows.RunExpire(ctx, reason, flows.ExpireDeps{
		Logout:           c.sendLogout,
		ClearCredentials: c.store.ClearAll,
		ResetCSRF:        c.csrf.Reset,
		StripTokenParam: func() bool {
			return stripQueryParam(c.nav, c.cfg.Navigation.TokenQueryParam)
		},
		OnLoginPage: c.onLoginPage,
		NavigateToLogin: func() {
			c.nav.Navigate(c.cfg.Navigation.LoginRoute)
		},
		Emit: func(ctx context.Context, reason string) {
			c.emit(ctx, EventTokenExpired, reason, nil)
		},
	})

	if res.ClearErr != nil {
		c.log.ErrorContext(ctx, "goSession: clearing credentials failed", "error", res.ClearErr)
	}
	c.log.WarnContext(ctx, "goSession: session expired",
		"reason", reason,
		"logout_error", res.LogoutErr,
		"navigated", res.Navigated,
	)
}

// sendLogout notifies the server. Network failures come back as a synthetic success, so
// only non-2xx answers are errors.
func (c *Client) sendLogout(ctx context.Context) error {
	req, err := c.newRequest(WithAuthKind(ctx, AuthLogout), http.MethodPost, c.cfg.Endpoints.Logout, nil, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	drainAndClose(resp)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode, Method: req.Method, Path: req.URL.Path}
	}
	return nil
}

func (c *Client) onLoginPage() bool {
	u := c.nav.CurrentURL()
	return u != nil && u.Path == c.cfg.Navigation.LoginRoute
}

func (c *Client) emit(ctx context.Context, typ EventType, reason string, metadata map[string]string) {
	c.events.Emit(ctx, newEvent(typ, reason, metadata))
}

// fetchCSRF performs the dedicated CSRF-token request for the csrf cache.
func (c *Client) fetchCSRF(ctx context.Context) (http.Header, []byte, error) {
	req, err := c.newRequest(WithAuthKind(ctx, AuthCSRF), http.MethodGet, c.cfg.Endpoints.CSRF, nil, nil)
	if err != nil {
		return nil, nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, err
	}
	body, err := readBody(resp, c.cfg.HTTP.MaxBodyBytes)
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, &StatusError{StatusCode: resp.StatusCode, Method: req.Method, Path: req.URL.Path}
	}
	return resp.Header, body, nil
}
