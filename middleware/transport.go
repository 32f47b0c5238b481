package middleware

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RequestIDHeader is the header set by [RequestID].
const RequestIDHeader = "X-Request-ID"

// Func adapts a function to http.RoundTripper.
type Func func(*http.Request) (*http.Response, error)

func (f Func) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

// Middleware wraps a RoundTripper.
type Middleware func(http.RoundTripper) http.RoundTripper

// Chain wraps base with mws. The first middleware sees the request first.
func Chain(base http.RoundTripper, mws ...Middleware) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	rt := base
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			rt = mws[i](rt)
		}
	}
	return rt
}

// BaseURL resolves requests whose URL has no host against base. The base path is kept as
// a prefix, so "/auth/login" on "http://h/api" becomes "http://h/api/auth/login".
func BaseURL(base *url.URL) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return Func(func(req *http.Request) (*http.Response, error) {
			if base == nil || req.URL == nil || req.URL.Host != "" {
				return next.RoundTrip(req)
			}
			out := req.Clone(req.Context())
			u := *base
			u.Path = strings.TrimRight(base.Path, "/") + "/" + strings.TrimLeft(req.URL.Path, "/")
			u.RawPath = ""
			u.RawQuery = req.URL.RawQuery
			u.Fragment = ""
			out.URL = &u
			out.Host = u.Host
			return next.RoundTrip(out)
		})
	}
}

// RequestID sets [RequestIDHeader] to a random UUID unless the request already has one.
func RequestID() Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return Func(func(req *http.Request) (*http.Response, error) {
			if req.Header.Get(RequestIDHeader) != "" {
				return next.RoundTrip(req)
			}
			out := req.Clone(req.Context())
			out.Header.Set(RequestIDHeader, uuid.NewString())
			return next.RoundTrip(out)
		})
	}
}

// Logging logs every attempt at debug level and transport failures at warn level.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return func(next http.RoundTripper) http.RoundTripper {
		return Func(func(req *http.Request) (*http.Response, error) {
			start := time.Now()
			resp, err := next.RoundTrip(req)
			attrs := []any{
				"method", req.Method,
				"path", req.URL.Path,
				"request_id", req.Header.Get(RequestIDHeader),
				"elapsed", time.Since(start),
			}
			if err != nil {
				logger.WarnContext(req.Context(), "goSession: request failed", append(attrs, "error", err)...)
				return nil, err
			}
			logger.DebugContext(req.Context(), "goSession: response", append(attrs, "status", resp.StatusCode)...)
			return resp, nil
		})
	}
}
