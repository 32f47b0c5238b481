package goSession

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/session"
	gjwt "github.com/golang-jwt/jwt/v5"
)

const testBaseURL = "http://api.test/api"

var testSecret = []byte("test-secret")

func testToken(t *testing.T, ttl time.Duration) string {
	t.Helper()
	now := time.Now()
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, gjwt.MapClaims{
		"sub": "u-1",
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

type recorded struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// fakeTransport answers every wire attempt through handle and records what was sent.
type fakeTransport struct {
	mu     sync.Mutex
	handle func(req *http.Request, body []byte) (*http.Response, error)
	seen   []recorded
}

func (f *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
		_ = req.Body.Close()
	}
	f.mu.Lock()
	f.seen = append(f.seen, recorded{
		Method: req.Method,
		Path:   req.URL.Path,
		Header: req.Header.Clone(),
		Body:   body,
	})
	f.mu.Unlock()
	return f.handle(req, body)
}

func (f *fakeTransport) requests(path string) []recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recorded
	for _, r := range f.seen {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeTransport) count(path string) int {
	return len(f.requests(path))
}

func respond(req *http.Request, status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.delays))
	copy(out, s.delays)
	return out
}

type testEnv struct {
	client *Client
	kv     *session.MemoryKV
	store  *session.Store
	nav    *MemoryNavigator
	sink   *ChannelSink
	sleeps *sleepRecorder
	logs   *syncBuffer
}

func newTestEnv(t *testing.T, rt http.RoundTripper, mutate func(*Config)) *testEnv {
	t.Helper()

	cfg := DefaultConfig()
	cfg.BaseURL = testBaseURL
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	cfg.Events.DropIfFull = false
	if mutate != nil {
		mutate(&cfg)
	}

	env := &testEnv{
		kv:     session.NewMemoryKV(),
		nav:    NewMemoryNavigator("/"),
		sink:   NewChannelSink(64),
		sleeps: &sleepRecorder{},
		logs:   &syncBuffer{},
	}
	logger := slog.New(slog.NewTextHandler(env.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	b := New().
		WithConfig(cfg).
		WithKV(env.kv).
		WithTransport(rt).
		WithNavigator(env.nav).
		WithEventSink(env.sink).
		WithLogger(logger)
	b.sleep = env.sleeps.sleep

	client, err := b.Build()
	if err != nil {
		t.Fatalf("build client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	env.client = client
	env.store = client.store
	return env
}

func (e *testEnv) seed(t *testing.T, access, refresh string) {
	t.Helper()
	if err := e.store.SetTokens(context.Background(), access, refresh); err != nil {
		t.Fatalf("seed tokens: %v", err)
	}
}

func (e *testEnv) nextEvent(t *testing.T) Event {
	t.Helper()
	select {
	case ev := <-e.sink.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}
