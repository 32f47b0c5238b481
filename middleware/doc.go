// Package middleware exposes http.RoundTripper decorators used to assemble the client's
// outgoing request pipeline.
//
// # Decorators
//
//   - [BaseURL]: resolves relative request URLs against the API base.
//   - [RequestID]: attaches an X-Request-ID when the caller did not set one.
//   - [Logging]: one structured log line per wire attempt.
//
// [Chain] composes decorators around a base transport; the first decorator listed is the
// outermost.
//
// # What this package must NOT do
//
//   - Read or write credentials (the session transport in goSession owns them).
//   - Retry, replay or otherwise re-issue requests.
//   - Import goSession (no import cycles).
package middleware
