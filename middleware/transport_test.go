package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"testing"
)

func okTransport(seen *[]*http.Request) http.RoundTripper {
	return Func(func(req *http.Request) (*http.Response, error) {
		*seen = append(*seen, req)
		return &http.Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: http.NoBody, Request: req}, nil
	})
}

func TestBaseURLResolvesRelativePaths(t *testing.T) {
	var seen []*http.Request
	base, _ := url.Parse("http://api.example.test/api")
	rt := Chain(okTransport(&seen), BaseURL(base))

	req, _ := http.NewRequest(http.MethodGet, "/projects?page=2", nil)
	if _, err := rt.RoundTrip(req); err != nil {
		t.Fatalf("round trip: %v", err)
	}
	got := seen[0].URL.String()
	if got != "http://api.example.test/api/projects?page=2" {
		t.Fatalf("resolved URL = %s", got)
	}
	if req.URL.Host != "" {
		t.Fatalf("original request must not be mutated")
	}
}

func TestBaseURLLeavesAbsoluteURLs(t *testing.T) {
	var seen []*http.Request
	base, _ := url.Parse("http://api.example.test/api")
	rt := Chain(okTransport(&seen), BaseURL(base))

	req, _ := http.NewRequest(http.MethodGet, "http://other.test/x", nil)
	_, _ = rt.RoundTrip(req)
	if seen[0].URL.Host != "other.test" {
		t.Fatalf("absolute URL rewritten to %s", seen[0].URL)
	}
}

func TestRequestIDKeepsCallerValue(t *testing.T) {
	var seen []*http.Request
	rt := Chain(okTransport(&seen), RequestID())

	req, _ := http.NewRequest(http.MethodGet, "http://h/x", nil)
	_, _ = rt.RoundTrip(req)
	generated := seen[0].Header.Get(RequestIDHeader)
	if len(generated) != 36 {
		t.Fatalf("expected uuid request id, got %q", generated)
	}

	req2, _ := http.NewRequest(http.MethodGet, "http://h/x", nil)
	req2.Header.Set(RequestIDHeader, "fixed")
	_, _ = rt.RoundTrip(req2)
	if seen[1].Header.Get(RequestIDHeader) != "fixed" {
		t.Fatalf("caller request id overwritten")
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.RoundTripper) http.RoundTripper {
			return Func(func(req *http.Request) (*http.Response, error) {
				order = append(order, name)
				return next.RoundTrip(req)
			})
		}
	}
	var seen []*http.Request
	rt := Chain(okTransport(&seen), mark("a"), nil, mark("b"))
	req, _ := http.NewRequest(http.MethodGet, "http://h/x", nil)
	_, _ = rt.RoundTrip(req)
	if strings.Join(order, ",") != "a,b" {
		t.Fatalf("order = %v", order)
	}
}

func TestLoggingWritesFailures(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	failing := Func(func(*http.Request) (*http.Response, error) {
		return nil, &url.Error{Op: "Get", URL: "http://h/x", Err: errRefused}
	})
	rt := Chain(failing, Logging(logger))
	req, _ := http.NewRequest(http.MethodGet, "http://h/x", nil)
	if _, err := rt.RoundTrip(req); err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(buf.String(), "goSession: request failed") {
		t.Fatalf("missing failure log: %s", buf.String())
	}
}

type refusedError struct{}

func (refusedError) Error() string { return "connection refused" }

var errRefused = refusedError{}
