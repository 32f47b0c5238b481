package csrf

import (
	"context"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/MrEthical07/goSession/session"
)

func TestExtractHeaderWinsOverBody(t *testing.T) {
	header := http.Header{}
	header.Set("x-xsrf-token", "H")
	body := []byte(`{"token":"ACCESS","csrfToken":"C"}`)

	if got := ExtractFromResponse(header, body); got != "H" {
		t.Fatalf("with header: got %q, want H", got)
	}
	if got := ExtractFromResponse(http.Header{}, body); got != "C" {
		t.Fatalf("without header: got %q, want C", got)
	}
}

func TestExtractNeverReturnsSessionToken(t *testing.T) {
	body := []byte(`{"token":"ACCESS","accessToken":"ACCESS2"}`)
	if got := ExtractFromResponse(nil, body); got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}

func TestExtractBodyKeyPriority(t *testing.T) {
	cases := []struct {
		body string
		want string
	}{
		{`{"_csrf":"u","csrf":"c","csrfToken":"t","X-XSRF-TOKEN":"x"}`, "x"},
		{`{"_csrf":"u","csrf":"c","csrfToken":"t"}`, "t"},
		{`{"_csrf":"u","csrf":"c"}`, "c"},
		{`{"_csrf":"u"}`, "u"},
		{`{"csrfToken":"","csrf":"c"}`, "c"},
		{`{"csrfToken":42}`, ""},
		{`[1,2]`, ""},
		{`not json`, ""},
	}
	for _, tc := range cases {
		if got := ExtractFromResponse(nil, []byte(tc.body)); got != tc.want {
			t.Fatalf("body %s: got %q, want %q", tc.body, got, tc.want)
		}
	}
}

func TestGetTierOrderAndBackfill(t *testing.T) {
	ctx := context.Background()
	kv := session.NewMemoryKV()
	store := session.NewStore(kv, nil)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	origin, _ := url.Parse("https://api.example.test/api")
	jar.SetCookies(origin, []*http.Cookie{{Name: "XSRF-TOKEN", Value: "from-cookie", Path: "/"}})

	c := New(Options{Store: store, Jar: jar, BaseURL: origin})

	if got := c.Get(ctx); got != "from-cookie" {
		t.Fatalf("cookie tier: got %q", got)
	}
	if got := store.Get(ctx, session.KindCSRFToken); got != "from-cookie" {
		t.Fatalf("expected cookie hit to backfill storage, got %q", got)
	}

	_ = store.Set(ctx, session.KindCSRFToken, "from-store")
	c.Reset()
	if got := c.Get(ctx); got != "from-store" {
		t.Fatalf("storage tier must win over cookie: got %q", got)
	}

	_ = store.Set(ctx, session.KindCSRFToken, "changed-later")
	if got := c.Get(ctx); got != "from-store" {
		t.Fatalf("memory tier must win: got %q", got)
	}
}

func TestCapturePersists(t *testing.T) {
	ctx := context.Background()
	store := session.NewStore(nil, nil)
	c := New(Options{Store: store})

	header := http.Header{}
	header.Set(HeaderName, "fresh")
	if got := c.Capture(ctx, header, nil); got != "fresh" {
		t.Fatalf("capture = %q", got)
	}
	if store.Get(ctx, session.KindCSRFToken) != "fresh" {
		t.Fatal("expected captured token in storage")
	}
	if got := c.Capture(ctx, http.Header{}, nil); got != "" {
		t.Fatalf("empty capture = %q", got)
	}
	if c.Get(ctx) != "fresh" {
		t.Fatal("an empty response must not wipe the cached token")
	}
}

func TestFetchExplicitSharesConcurrentCalls(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int32
	release := make(chan struct{})
	c := New(Options{Fetch: func(context.Context) (http.Header, []byte, error) {
		calls.Add(1)
		<-release
		return http.Header{}, []byte(`{"csrfToken":"fetched"}`), nil
	}})

	const n = 8
	var wg sync.WaitGroup
	results := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := c.FetchExplicit(ctx)
			if err != nil {
				t.Errorf("fetch: %v", err)
			}
			results <- token
		}()
	}
	close(release)
	wg.Wait()
	close(results)

	for token := range results {
		if token != "fetched" {
			t.Fatalf("token = %q", token)
		}
	}
	if got := calls.Load(); got < 1 || got > n {
		t.Fatalf("unexpected fetch count %d", got)
	}
}

func TestFetchExplicitOutlivesCancelledCaller(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	c := New(Options{Fetch: func(ctx context.Context) (http.Header, []byte, error) {
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		return http.Header{}, []byte(`{"csrfToken":"shared"}`), nil
	}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.FetchExplicit(ctx)
		done <- err
	}()

	<-started
	cancel()
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("fetch failed after caller cancelled: %v", err)
	}
	if got := c.Get(context.Background()); got != "shared" {
		t.Fatalf("token = %q, want shared", got)
	}
}

func TestFetchExplicitErrors(t *testing.T) {
	ctx := context.Background()
	if _, err := New(Options{}).FetchExplicit(ctx); !errors.Is(err, ErrNoFetcher) {
		t.Fatalf("expected ErrNoFetcher, got %v", err)
	}

	empty := New(Options{Fetch: func(context.Context) (http.Header, []byte, error) {
		return http.Header{}, []byte(`{"token":"session"}`), nil
	}})
	if _, err := empty.FetchExplicit(ctx); !errors.Is(err, ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}

	boom := errors.New("boom")
	failing := New(Options{Fetch: func(context.Context) (http.Header, []byte, error) {
		return nil, nil, boom
	}})
	if _, err := failing.Ensure(ctx); !errors.Is(err, boom) {
		t.Fatalf("expected fetch error, got %v", err)
	}
}
