package goSession

import (
	"context"

	"github.com/MrEthical07/goSession/session"
	"golang.org/x/oauth2"
)

type storeTokenSource struct {
	ctx    context.Context
	client *Client
}

// TokenSource exposes the stored access token as an oauth2.TokenSource. Every call reads
// the store, so a cleared session stops yielding tokens at once. An expired token is
// refreshed through the shared refresh path and a failed refresh expires the session.
// With no credentials stored, Token returns [ErrNoRefreshToken] and leaves the session
// alone.
func (c *Client) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &storeTokenSource{ctx: ctx, client: c}
}

func (s *storeTokenSource) Token() (*oauth2.Token, error) {
	c := s.client
	if c.closed.Load() {
		return nil, ErrClientClosed
	}

	creds := c.store.Credentials(s.ctx)
	access := creds.AccessToken
	if !c.inspector.IsValidFormat(access) || c.inspector.IsExpired(access) {
		if creds.RefreshToken == "" {
			return nil, ErrNoRefreshToken
		}
		refreshed, err := c.refresh(s.ctx, "token_source")
		if err != nil {
			return nil, err
		}
		access = refreshed
	}

	tok := &oauth2.Token{
		AccessToken:  access,
		TokenType:    "Bearer",
		RefreshToken: c.store.Get(s.ctx, session.KindRefreshToken),
	}
	if claims := c.inspector.Decode(access); claims != nil && claims.ExpiresAt != nil {
		// oauth2 treats tokens as expired 10s early; the inspector buffer may be wider.
		tok.Expiry = claims.ExpiresAt.Add(-c.inspector.Buffer())
	}
	return tok, nil
}
