package goSession

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goSession/session"
)

// Refresher refreshes the access token ahead of expiry so normal use never reaches the
// 401 recovery path. At most one loop runs per Refresher.
type Refresher struct {
	client   *Client
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	inFlight atomic.Bool
}

func newRefresher(c *Client) *Refresher {
	return &Refresher{
		client:   c,
		interval: c.cfg.Refresh.Interval,
	}
}

// Start runs one check immediately and then one per interval until Stop or ctx is done.
// It reports false when a loop is already running.
func (r *Refresher) Start(ctx context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		select {
		case <-r.done:
		default:
			return false
		}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.run(loopCtx, r.done)
	return true
}

// Stop cancels the loop and waits for it to exit. The ticker is released before Stop
// returns.
func (r *Refresher) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the loop is active.
func (r *Refresher) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done == nil {
		return false
	}
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

func (r *Refresher) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	r.check(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.check(ctx)
		}
	}
}

// check evaluates the stored access token once. Overlapping checks no-op.
func (r *Refresher) check(ctx context.Context) {
	if !r.inFlight.CompareAndSwap(false, true) {
		return
	}
	defer r.inFlight.Store(false)

	c := r.client
	access := c.store.Get(ctx, session.KindAccessToken)
	if access == "" {
		return
	}
	if c.inspector.IsExpired(access) {
		c.log.InfoContext(ctx, "goSession: access token expired before proactive refresh")
		c.expire(ctx, "access_token_expired")
		return
	}
	if remaining := c.inspector.TimeRemaining(access); remaining < c.cfg.Refresh.ProactiveWindow {
		c.metrics.Inc(MetricProactiveRefresh)
		c.log.DebugContext(ctx, "goSession: proactive refresh", "remaining", remaining)
		_, _ = c.refresh(ctx, "proactive")
	}
}
