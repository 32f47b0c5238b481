// Package flows contains pure-function orchestrators for the client's session flows.
//
// Each flow function (RunRefresh, RunExpire) accepts a typed dependency struct and
// returns a result value; the client decides what to log, count and emit. This keeps the
// failure classification testable without an HTTP stack.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goSession (to avoid import cycles).
//   - Perform I/O directly: all I/O is mediated through dependency functions.
package flows
