package goSession

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// AuthKind tags a request with its authorization class. It is chosen where the request is
// built, never inferred from the URL.
type AuthKind uint8

const (
	// AuthStandard attaches the access token when it is well-formed and unexpired. It is the
	// zero value, so untagged requests are treated as protected calls.
	AuthStandard AuthKind = iota
	// AuthNone never attaches a bearer credential (public catalogue endpoints).
	AuthNone
	// AuthLogin marks the login call.
	AuthLogin
	// AuthRegister marks the account registration call.
	AuthRegister
	// AuthLogout marks the logout call. It always carries whatever access token exists.
	AuthLogout
	// AuthRefresh marks the refresh-token call. It carries the refresh token.
	AuthRefresh
	// AuthVerifyEmail bypasses the request interceptor; the caller sets headers.
	AuthVerifyEmail
	// AuthPasswordReset marks forgot/reset password calls.
	AuthPasswordReset
	// AuthCSRF marks the CSRF-token fetch.
	AuthCSRF
)

func (k AuthKind) String() string {
	switch k {
	case AuthStandard:
		return "standard"
	case AuthNone:
		return "none"
	case AuthLogin:
		return "login"
	case AuthRegister:
		return "register"
	case AuthLogout:
		return "logout"
	case AuthRefresh:
		return "refresh"
	case AuthVerifyEmail:
		return "verify_email"
	case AuthPasswordReset:
		return "password_reset"
	case AuthCSRF:
		return "csrf"
	default:
		return "unknown"
	}
}

func (k AuthKind) skipsCSRF() bool {
	switch k {
	case AuthLogin, AuthRegister, AuthLogout, AuthRefresh, AuthVerifyEmail, AuthPasswordReset, AuthCSRF:
		return true
	default:
		return false
	}
}

// recoverable reports whether a 401 on this kind may trigger refresh-and-replay. Public
// and verify-email calls never carry the session token, so a new one cannot help them.
func (k AuthKind) recoverable() bool {
	switch k {
	case AuthLogin, AuthLogout, AuthRefresh, AuthNone, AuthVerifyEmail:
		return false
	default:
		return true
	}
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

type authKindKey struct{}

// WithAuthKind tags requests built with ctx. Use it with [Client.HTTPClient] when
// constructing *http.Request values directly.
func WithAuthKind(ctx context.Context, kind AuthKind) context.Context {
	return context.WithValue(ctx, authKindKey{}, kind)
}

// AuthKindFromContext returns the tag set by [WithAuthKind], or AuthStandard.
func AuthKindFromContext(ctx context.Context) AuthKind {
	if kind, ok := ctx.Value(authKindKey{}).(AuthKind); ok {
		return kind
	}
	return AuthStandard
}

// Request describes one API call made through [Client.Do].
//
// Body is JSON-encoded unless Multipart is set. A Content-Type in Header is ignored for
// multipart requests; the client sets the boundary itself.
type Request struct {
	Method    string
	Path      string
	Query     url.Values
	Header    http.Header
	Body      any
	Multipart *Multipart
	Kind      AuthKind
}

// Multipart is a multipart/form-data body, used for reservation documents and payment
// receipts.
type Multipart struct {
	Fields []FormField
	Files  []FilePart
}

// FormField is one plain multipart field.
type FormField struct {
	Name  string
	Value string
}

// FilePart is one multipart file. ContentType defaults to application/octet-stream.
type FilePart struct {
	Field       string
	FileName    string
	ContentType string
	Content     []byte
}

// Response is a fully read API response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
}

// Synthetic reports whether the response was produced locally rather than received.
func (r *Response) Synthetic() bool {
	return r != nil && r.Header.Get(syntheticHeader) != ""
}

// pendingRequest is the per-request recovery state. It lives for one RoundTrip and is
// discarded when the request resolves.
type pendingRequest struct {
	kind                AuthKind
	attempts            int
	retryCount          int
	maxRetryAttempts    int
	retryDelay          time.Duration
	hasAttemptedRefresh bool
	// authOverride is the token obtained by refresh; the replay carries it verbatim.
	authOverride string
	// sentAccess is the access token attached to the latest attempt.
	sentAccess string
}
