package goSession

import (
	"context"
	"fmt"
	"mime"
	"net/http"

	"github.com/MrEthical07/goSession/csrf"
	"github.com/MrEthical07/goSession/session"
)

const (
	headerAuthorization  = "Authorization"
	headerAcceptLanguage = "Accept-Language"
	headerContentType    = "Content-Type"
)

// prepare builds the outgoing copy of req for the next attempt. The first attempt sends
// the caller's body; later attempts replay it through GetBody.
func (t *sessionTransport) prepare(req *http.Request, p *pendingRequest) (*http.Request, error) {
	ctx := req.Context()
	out := req.Clone(ctx)
	if p.attempts > 0 && hasBody(req) {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("%w: replay body: %w", ErrInvalidRequest, err)
		}
		out.Body = body
	}
	t.authorize(ctx, out, p)
	return out, nil
}

// authorize applies the header policy for p.kind, in priority order:
//
//  1. verify-email requests are sent exactly as built;
//  2. refresh carries the refresh token and nothing else;
//  3. login and register carry no token, logout carries whatever access token exists;
//  4. everything else carries the access token only while it is well-formed and unexpired;
//  5. mutating requests outside the auth calls carry the CSRF token;
//  6. every request carries the profile language;
//  7. multipart bodies never carry a boundary-less Content-Type.
func (t *sessionTransport) authorize(ctx context.Context, out *http.Request, p *pendingRequest) {
	c := t.client
	if p.kind == AuthVerifyEmail {
		return
	}

	switch p.kind {
	case AuthRefresh:
		if out.Header.Get(headerAuthorization) == "" {
			if refresh := c.store.Get(ctx, session.KindRefreshToken); refresh != "" {
				setBearer(out.Header, refresh)
			}
		}
		out.Header.Del(csrf.HeaderName)
		t.attachLanguage(ctx, out)
		return
	case AuthLogin, AuthRegister:
		out.Header.Del(headerAuthorization)
	case AuthLogout:
		access := c.store.Get(ctx, session.KindAccessToken)
		p.sentAccess = access
		if access != "" {
			setBearer(out.Header, access)
		} else {
			out.Header.Del(headerAuthorization)
		}
	case AuthNone:
		out.Header.Del(headerAuthorization)
	default:
		access := c.store.Get(ctx, session.KindAccessToken)
		if c.inspector.IsValidFormat(access) && !c.inspector.IsExpired(access) {
			p.sentAccess = access
			setBearer(out.Header, access)
		} else {
			p.sentAccess = ""
			out.Header.Del(headerAuthorization)
		}
	}

	if p.authOverride != "" {
		p.sentAccess = p.authOverride
		setBearer(out.Header, p.authOverride)
	}

	if c.cfg.CSRF.Enabled && isMutating(out.Method) && !p.kind.skipsCSRF() {
		if token := t.csrfToken(ctx); token != "" {
			out.Header.Set(csrf.HeaderName, token)
		}
	}

	t.attachLanguage(ctx, out)
	stripBoundaryless(out.Header)
}

// csrfToken returns the cached token or fetches one inline. A failed fetch is logged and
// the request proceeds without the header.
func (t *sessionTransport) csrfToken(ctx context.Context) string {
	c := t.client
	if token := c.csrf.Get(ctx); token != "" {
		return token
	}
	token, err := c.csrf.FetchExplicit(ctx)
	if err != nil {
		c.metrics.Inc(MetricCSRFFetchFailure)
		c.log.WarnContext(ctx, "goSession: csrf fetch failed, sending without token", "error", err)
		return ""
	}
	c.metrics.Inc(MetricCSRFFetchSuccess)
	return token
}

func (t *sessionTransport) attachLanguage(ctx context.Context, out *http.Request) {
	c := t.client
	if profile, ok := c.store.Profile(ctx); ok && profile.Language != "" {
		out.Header.Set(headerAcceptLanguage, profile.Language)
		return
	}
	if c.cfg.HTTP.DefaultLanguage != "" && out.Header.Get(headerAcceptLanguage) == "" {
		out.Header.Set(headerAcceptLanguage, c.cfg.HTTP.DefaultLanguage)
	}
}

// stripBoundaryless drops a multipart Content-Type that has no boundary parameter; the
// body writer is the only party that knows the boundary.
func stripBoundaryless(h http.Header) {
	ct := h.Get(headerContentType)
	if ct == "" {
		return
	}
	mediaType, params, err := mime.ParseMediaType(ct)
	if err != nil || mediaType != "multipart/form-data" {
		return
	}
	if params["boundary"] == "" {
		h.Del(headerContentType)
	}
}

func setBearer(h http.Header, token string) {
	h.Set(headerAuthorization, "Bearer "+token)
}

func hasBody(req *http.Request) bool {
	return req.Body != nil && req.Body != http.NoBody
}
