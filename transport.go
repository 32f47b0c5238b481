package goSession

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/goSession/csrf"
	"github.com/MrEthical07/goSession/middleware"
	"github.com/cenkalti/backoff/v4"
)

// syntheticHeader marks responses produced locally instead of received from the server.
const syntheticHeader = "X-Gosession-Synthetic"

// sessionTransport applies the request header policy and recovers from network failures
// and expired sessions. It sits between the request-id middleware and the wire.
type sessionTransport struct {
	next   http.RoundTripper
	client *Client
}

// RoundTrip sends req, retrying network failures with exponential backoff and replaying
// it once after a successful refresh when the server answers 401.
func (t *sessionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c := t.client
	ctx := req.Context()
	p := &pendingRequest{
		kind:             AuthKindFromContext(ctx),
		maxRetryAttempts: c.cfg.Retry.MaxAttempts,
		retryDelay:       c.cfg.Retry.BaseDelay,
	}

	c.metrics.Inc(MetricRequest)
	start := time.Now()
	defer func() {
		c.metrics.Observe(MetricRequestLatency, time.Since(start))
	}()

	replayable := !hasBody(req) || req.GetBody != nil
	var schedule backoff.BackOff

	for {
		out, err := t.prepare(req, p)
		if err != nil {
			if p.attempts == 0 && hasBody(req) {
				_ = req.Body.Close()
			}
			return nil, err
		}
		p.attempts++

		resp, err := t.next.RoundTrip(out)
		if err != nil {
			if p.kind == AuthLogout {
				c.metrics.Inc(MetricLogoutSynthetic)
				c.log.WarnContext(ctx, "goSession: logout unreachable, answering locally", "error", err)
				return syntheticLogout(out, err), nil
			}
			if ctx.Err() != nil || !replayable {
				return nil, err
			}
			if schedule == nil {
				schedule = c.newBackOff()
			}
			delay := schedule.NextBackOff()
			if delay == backoff.Stop {
				c.metrics.Inc(MetricRetriesExhausted)
				c.log.WarnContext(ctx, "goSession: retries exhausted", attemptAttrs(out, p, "error", err)...)
				return nil, err
			}
			p.retryCount++
			p.retryDelay = delay
			c.metrics.Inc(MetricNetworkRetry)
			c.log.InfoContext(ctx, "goSession: network error, retrying", attemptAttrs(out, p, "delay", delay, "error", err)...)
			if serr := c.sleep(ctx, delay); serr != nil {
				return nil, err
			}
			continue
		}

		t.captureCSRF(ctx, resp)

		switch resp.StatusCode {
		case http.StatusUnauthorized:
			c.metrics.Inc(MetricUnauthorized)
			if !p.kind.recoverable() || p.hasAttemptedRefresh || !replayable {
				return resp, nil
			}
			p.hasAttemptedRefresh = true
			token, ok := c.recoverSession(ctx, p.sentAccess)
			if !ok {
				return resp, nil
			}
			drainAndClose(resp)
			p.authOverride = token
			c.metrics.Inc(MetricReplay)
			c.log.DebugContext(ctx, "goSession: replaying after refresh", attemptAttrs(out, p)...)
			continue
		case http.StatusForbidden:
			t.diagnoseForbidden(ctx, out)
		}
		return resp, nil
	}
}

// diagnoseForbidden logs what an operator needs to tell a stale CSRF token from a real
// permission failure. 403 is never retried.
func (t *sessionTransport) diagnoseForbidden(ctx context.Context, out *http.Request) {
	c := t.client
	if !c.cfg.CSRF.Enabled {
		return
	}
	c.metrics.Inc(MetricCSRFRejected)
	c.log.WarnContext(ctx, "goSession: request forbidden",
		"method", out.Method,
		"path", out.URL.Path,
		"request_id", out.Header.Get(middleware.RequestIDHeader),
		"csrf_sent", redactToken(out.Header.Get(csrf.HeaderName)),
		"csrf_cached", redactToken(c.csrf.Get(ctx)),
	)
}

// captureCSRF offers the response header and, for JSON bodies within the size limit, the
// body to the CSRF cache. The body is buffered and handed back unread.
func (t *sessionTransport) captureCSRF(ctx context.Context, resp *http.Response) {
	c := t.client
	if !c.cfg.CSRF.Enabled || !isJSON(resp.Header.Get(headerContentType)) || resp.Body == nil || resp.Body == http.NoBody {
		c.csrf.Capture(ctx, resp.Header, nil)
		return
	}

	limit := c.cfg.HTTP.MaxBodyBytes
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil || int64(len(data)) > limit {
		resp.Body = &replayedBody{Reader: io.MultiReader(bytes.NewReader(data), resp.Body), Closer: resp.Body}
		c.csrf.Capture(ctx, resp.Header, nil)
		return
	}
	_ = resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(data))
	c.csrf.Capture(ctx, resp.Header, data)
}

type replayedBody struct {
	io.Reader
	io.Closer
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

func attemptAttrs(out *http.Request, p *pendingRequest, extra ...any) []any {
	attrs := []any{
		"method", out.Method,
		"path", out.URL.Path,
		"kind", p.kind.String(),
		"attempt", p.attempts,
		"retry", strconv.Itoa(p.retryCount) + "/" + strconv.Itoa(p.maxRetryAttempts),
		"request_id", out.Header.Get(middleware.RequestIDHeader),
	}
	return append(attrs, extra...)
}

// newBackOff yields BaseDelay, 2*BaseDelay, 4*BaseDelay... and stops after MaxAttempts.
func (c *Client) newBackOff() backoff.BackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     c.cfg.Retry.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         c.cfg.Retry.BaseDelay << c.cfg.Retry.MaxAttempts,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return backoff.WithMaxRetries(b, uint64(c.cfg.Retry.MaxAttempts))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type logoutFallback struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// syntheticLogout answers a logout that never reached the server so local cleanup can
// proceed.
func syntheticLogout(req *http.Request, cause error) *http.Response {
	body, _ := json.Marshal(logoutFallback{
		Success: false,
		Message: "logged out locally; server unreachable: " + cause.Error(),
	})
	h := http.Header{}
	h.Set(headerContentType, "application/json")
	h.Set(syntheticHeader, "logout")
	return &http.Response{
		Status:        "200 OK",
		StatusCode:    http.StatusOK,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        h,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

func drainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

// readBody reads at most limit bytes and closes the body.
func readBody(resp *http.Response, limit int64) ([]byte, error) {
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errors.New("response body exceeds limit")
	}
	return data, nil
}
