// Package session persists client credentials: access token, refresh token, CSRF token and
// the cached user profile.
//
// # Architecture boundaries
//
// [Store] is a pure key-value façade over a [KV] backend. It does not inspect tokens,
// decide expiry, or talk to the API; those responsibilities belong to the client.
// Backends: [MemoryKV] (process lifetime), [RedisKV] (shared between processes on one
// profile), [KeyringKV] (OS credential store).
//
// # What this package must NOT do
//
//   - Import goSession, jwt, or csrf (no upward imports).
//   - Return backend errors from reads. A failed read is an absent value.
//   - Log token values.
package session
