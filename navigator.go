package goSession

import (
	"net/url"
	"sync"
)

// Navigator is the host's navigation primitive. The client reads and rewrites the current
// location's query string and performs a full navigation to the login route when the
// session cannot be recovered.
type Navigator interface {
	CurrentURL() *url.URL
	ReplaceURL(u *url.URL)
	Navigate(path string)
}

// NopNavigator ignores navigation. Use it for headless clients.
type NopNavigator struct{}

func (NopNavigator) CurrentURL() *url.URL { return &url.URL{Path: "/"} }
func (NopNavigator) ReplaceURL(*url.URL)  {}
func (NopNavigator) Navigate(string)      {}

// MemoryNavigator tracks a current location in memory and records every navigation.
// It is the default navigator and is safe for concurrent use.
type MemoryNavigator struct {
	mu          sync.Mutex
	current     *url.URL
	navigations []string
	replaces    int
}

// NewMemoryNavigator starts at start ("/" when empty or unparseable).
func NewMemoryNavigator(start string) *MemoryNavigator {
	u, err := url.Parse(start)
	if err != nil || start == "" {
		u = &url.URL{Path: "/"}
	}
	return &MemoryNavigator{current: u}
}

func (n *MemoryNavigator) CurrentURL() *url.URL {
	n.mu.Lock()
	defer n.mu.Unlock()
	u := *n.current
	return &u
}

func (n *MemoryNavigator) ReplaceURL(u *url.URL) {
	if u == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	cp := *u
	n.current = &cp
	n.replaces++
}

func (n *MemoryNavigator) Navigate(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	u, err := url.Parse(path)
	if err != nil {
		u = &url.URL{Path: path}
	}
	n.current = u
	n.navigations = append(n.navigations, path)
}

// Navigations returns every path passed to Navigate, in order.
func (n *MemoryNavigator) Navigations() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.navigations))
	copy(out, n.navigations)
	return out
}

// Replaces returns how many times ReplaceURL was called.
func (n *MemoryNavigator) Replaces() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.replaces
}

// stripQueryParam removes param from the navigator's current URL without navigating.
// It reports whether anything was removed.
func stripQueryParam(nav Navigator, param string) bool {
	if nav == nil || param == "" {
		return false
	}
	u := nav.CurrentURL()
	if u == nil {
		return false
	}
	q := u.Query()
	if _, ok := q[param]; !ok {
		return false
	}
	q.Del(param)
	u.RawQuery = q.Encode()
	nav.ReplaceURL(u)
	return true
}
