// Package goSession provides a session-aware HTTP client: it attaches credentials to
// outgoing API requests, keeps an anti-forgery token, and recovers from authorization
// and network failures without the caller noticing.
//
// The client is safe for concurrent use after construction through [Builder.Build].
//
// # Architecture boundaries
//
// goSession is the public surface. It exposes [Client], [Builder], [Config], [Request]
// and the event types. Credential persistence lives in the session package, token
// decoding in jwt, the CSRF cache in csrf, and flow orchestration under internal/.
//
// Requests pass through this chain, outermost first:
//
//	BaseURL -> RequestID -> session transport (header policy, retry, refresh) -> Logging -> wire
//
// # Recovery contract
//
// A request that fails without a response is resubmitted up to Retry.MaxAttempts times
// with delays of BaseDelay, 2*BaseDelay, 4*BaseDelay. A 401 triggers one shared refresh
// and one replay; when the refresh cannot succeed the session is expired: credentials
// are cleared, the host navigates to the login route and [EventTokenExpired] is emitted.
// A logout that cannot reach the server resolves with a synthetic success.
//
// # What this package must NOT do
//
//   - Verify token signatures (the server is authoritative; tokens are only decoded).
//   - Log token values beyond a short redacted prefix.
//   - Keep package-level mutable state. Every cache belongs to one Client.
package goSession
