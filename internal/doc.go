// Package internal contains helpers that are intentionally private to goSession.
//
// # Sub-packages
//
//   - flows: pure-function orchestrators for refresh and session expiry
//   - testserver: a fake API backend used by tests and the CLI's local mode
//
// # What this package must NOT do
//
//   - Export types that appear in the public goSession API.
//   - Be imported by any package outside the goSession module.
package internal
