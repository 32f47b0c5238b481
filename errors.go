package goSession

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNetwork wraps transport failures that survived every retry.
	ErrNetwork = errors.New("network request failed")
	// ErrUnauthorized is matched by responses with status 401.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is matched by responses with status 403, including CSRF rejections.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound is matched by responses with status 404.
	ErrNotFound = errors.New("not found")
	// ErrRateLimited is matched by responses with status 429.
	ErrRateLimited = errors.New("rate limited")
	// ErrServer is matched by responses with a 5xx status.
	ErrServer = errors.New("server error")
	// ErrRequestFailed is matched by every other 4xx response.
	ErrRequestFailed = errors.New("request failed")
	// ErrDecode is returned when a successful response body cannot be decoded.
	ErrDecode = errors.New("response decode failed")
	// ErrSessionExpired is returned when the session could not be refreshed.
	ErrSessionExpired = errors.New("session expired")
	// ErrNoRefreshToken is returned by a refresh attempt with nothing to refresh.
	ErrNoRefreshToken = errors.New("no refresh token stored")
	// ErrRefreshRejected is returned when the refresh endpoint refuses the refresh token.
	ErrRefreshRejected = errors.New("refresh token rejected")
	// ErrRefreshMalformed is returned when the refresh response carries no access token.
	ErrRefreshMalformed = errors.New("refresh response malformed")
	// ErrMissingCredentials is returned by auth calls whose response carries no token.
	ErrMissingCredentials = errors.New("response carries no credentials")
	// ErrInvalidRequest is returned when a Request cannot be built.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrClientClosed is returned by calls on a closed client.
	ErrClientClosed = errors.New("client closed")
	// ErrConfig wraps configuration validation failures.
	ErrConfig = errors.New("invalid configuration")
)

// StatusError describes a non-2xx response. It matches the status sentinel through
// errors.Is, so callers can write errors.Is(err, goSession.ErrUnauthorized).
type StatusError struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
	Body       []byte
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode), e.Message)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
}

// Is maps the status code onto the sentinel errors.
func (e *StatusError) Is(target error) bool {
	return statusSentinel(e.StatusCode) == target
}

func statusSentinel(code int) error {
	switch {
	case code == http.StatusUnauthorized:
		return ErrUnauthorized
	case code == http.StatusForbidden:
		return ErrForbidden
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusTooManyRequests:
		return ErrRateLimited
	case code >= 500:
		return ErrServer
	case code >= 400:
		return ErrRequestFailed
	default:
		return nil
	}
}
