// Package csrf caches the anti-forgery token the API requires on state-changing requests.
//
// Lookups go memory, then persistent storage, then the cookie jar; the first hit wins
// and is copied into the faster tiers. Tokens are learned from response headers, from a
// small set of body keys, or from an explicit fetch of the CSRF endpoint.
//
// The cache is owned by one client. There is no package-level token.
package csrf
