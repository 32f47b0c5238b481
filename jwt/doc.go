// Package jwt inspects access tokens on the client side without verifying their signature.
//
// Signature verification is the server's job. The [Inspector] only reads the payload
// segment so the client can reason about expiry: whether to attach a token, and when to
// refresh it ahead of time.
//
// # What this package must NOT do
//
//   - Panic or return errors for malformed input; a bad token decodes to nil.
//   - Hold mutable package state. The default inspector is a value with no clock override.
package jwt
