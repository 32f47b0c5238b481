package flows

import (
	"context"
	"encoding/json"
	"errors"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureMissingToken
	RefreshFailureTransport
	RefreshFailureRejected
	RefreshFailureMalformed
	RefreshFailurePersist
)

func (k RefreshFailureKind) String() string {
	switch k {
	case RefreshFailureNone:
		return "none"
	case RefreshFailureMissingToken:
		return "missing_refresh_token"
	case RefreshFailureTransport:
		return "transport"
	case RefreshFailureRejected:
		return "rejected"
	case RefreshFailureMalformed:
		return "malformed_response"
	case RefreshFailurePersist:
		return "persist"
	default:
		return "unknown"
	}
}

// RefreshResult carries either the new token pair or failure metadata.
type RefreshResult struct {
	Failure      RefreshFailureKind
	Err          error
	Status       int
	AccessToken  string
	RefreshToken string
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	// RefreshToken reads the stored refresh token ("" when absent).
	RefreshToken func(context.Context) string
	// Send calls the refresh endpoint with the refresh token as bearer credential.
	Send func(ctx context.Context, refreshToken string) (status int, body []byte, err error)
	// Persist stores the new access token and, when non-empty, the rotated refresh token.
	Persist func(ctx context.Context, access, refresh string) error
}

var (
	errMissingRefresh = errors.New("refresh token absent")
	errRejected       = errors.New("refresh endpoint rejected the token")
	errMalformed      = errors.New("refresh response has no access token")
)

// RunRefresh exchanges the stored refresh token for a new access token.
func RunRefresh(ctx context.Context, deps RefreshDeps) RefreshResult {
	refreshToken := deps.RefreshToken(ctx)
	if refreshToken == "" {
		return RefreshResult{Failure: RefreshFailureMissingToken, Err: errMissingRefresh}
	}

	status, body, err := deps.Send(ctx, refreshToken)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureTransport, Err: err}
	}
	if status < 200 || status > 299 {
		return RefreshResult{Failure: RefreshFailureRejected, Err: errRejected, Status: status}
	}

	pair, ok := ParseTokenPair(body)
	if !ok {
		return RefreshResult{Failure: RefreshFailureMalformed, Err: errMalformed, Status: status}
	}

	if err := deps.Persist(ctx, pair.AccessToken, pair.RefreshToken); err != nil {
		return RefreshResult{Failure: RefreshFailurePersist, Err: err, Status: status}
	}

	return RefreshResult{
		Failure:      RefreshFailureNone,
		Status:       status,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}
}

// TokenPair is the credential payload of login, register and refresh responses.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	User         json.RawMessage
}

type tokenEnvelope struct {
	Token        string          `json:"token"`
	AccessToken  string          `json:"accessToken"`
	RefreshToken string          `json:"refreshToken"`
	User         json.RawMessage `json:"user"`
}

// ParseTokenPair reads "token" (or "accessToken"), optional "refreshToken" and optional
// "user" from a JSON object, either at the top level or under "data". ok is false when no
// access token is present.
func ParseTokenPair(body []byte) (TokenPair, bool) {
	var outer struct {
		tokenEnvelope
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &outer); err != nil {
		return TokenPair{}, false
	}
	if pair, ok := outer.tokenEnvelope.pair(); ok {
		return pair, true
	}
	if len(outer.Data) == 0 {
		return TokenPair{}, false
	}
	var inner tokenEnvelope
	if err := json.Unmarshal(outer.Data, &inner); err != nil {
		return TokenPair{}, false
	}
	return inner.pair()
}

func (e tokenEnvelope) pair() (TokenPair, bool) {
	access := e.Token
	if access == "" {
		access = e.AccessToken
	}
	if access == "" {
		return TokenPair{}, false
	}
	return TokenPair{AccessToken: access, RefreshToken: e.RefreshToken, User: e.User}, true
}
