package jwt

import (
	"encoding/json"
	"strings"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

// DefaultExpiryBuffer is subtracted from a token's lifetime when deciding expiry so a
// token is not sent when it would expire in transit.
const DefaultExpiryBuffer = 30 * time.Second

var segmentParser = gjwt.NewParser(gjwt.WithPaddingAllowed())

// Claims is the decoded payload of an access token. It is derived on demand and never
// persisted.
type Claims struct {
	ExpiresAt *time.Time
	IssuedAt  *time.Time
	Subject   string
	Raw       map[string]any
}

// Inspector decodes tokens and evaluates expiry against a clock.
//
// The zero value is ready to use: it reads time.Now and applies [DefaultExpiryBuffer].
type Inspector struct {
	Now          func() time.Time
	ExpiryBuffer time.Duration

	// bufferSet makes a zero ExpiryBuffer mean "no buffer" instead of the default.
	bufferSet bool
}

// NewInspector returns an Inspector with the given clock and buffer. A nil clock means
// time.Now. The buffer is used as given, so zero disables it; negative values count as
// zero.
func NewInspector(now func() time.Time, buffer time.Duration) Inspector {
	if buffer < 0 {
		buffer = 0
	}
	return Inspector{Now: now, ExpiryBuffer: buffer, bufferSet: true}
}

func (i Inspector) now() time.Time {
	if i.Now != nil {
		return i.Now()
	}
	return time.Now()
}

func (i Inspector) buffer() time.Duration {
	if i.bufferSet || i.ExpiryBuffer > 0 {
		return i.ExpiryBuffer
	}
	return DefaultExpiryBuffer
}

// Decode splits the token on ".", base64url-decodes the middle segment and parses it as a
// JSON object. Any failure yields nil.
func (i Inspector) Decode(token string) *Claims {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil
	}

	payload, err := segmentParser.DecodeSegment(parts[1])
	if err != nil {
		return nil
	}

	var raw gjwt.MapClaims
	if err := json.Unmarshal(payload, &raw); err != nil || raw == nil {
		return nil
	}

	claims := &Claims{Raw: map[string]any(raw)}
	if exp, err := raw.GetExpirationTime(); err == nil && exp != nil {
		t := exp.Time
		claims.ExpiresAt = &t
	}
	if iat, err := raw.GetIssuedAt(); err == nil && iat != nil {
		t := iat.Time
		claims.IssuedAt = &t
	}
	if sub, err := raw.GetSubject(); err == nil {
		claims.Subject = sub
	}

	return claims
}

// IsExpired reports true for empty or malformed tokens, tokens without an exp claim, and
// tokens whose exp falls within the expiry buffer from now.
func (i Inspector) IsExpired(token string) bool {
	if token == "" {
		return true
	}
	claims := i.Decode(token)
	if claims == nil || claims.ExpiresAt == nil {
		return true
	}
	return !claims.ExpiresAt.After(i.now().Add(i.buffer()))
}

// TimeRemaining returns exp - now, floored at zero. Malformed tokens and tokens without
// exp have no time remaining.
func (i Inspector) TimeRemaining(token string) time.Duration {
	claims := i.Decode(token)
	if claims == nil || claims.ExpiresAt == nil {
		return 0
	}
	remaining := claims.ExpiresAt.Sub(i.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Buffer returns the expiry buffer in effect.
func (i Inspector) Buffer() time.Duration {
	return i.buffer()
}

// IsValidFormat reports whether the token is a non-empty string other than the literals
// "undefined" and "null" with exactly three dot-separated parts.
func (i Inspector) IsValidFormat(token string) bool {
	return IsValidFormat(token)
}

// IsValidFormat is the clock-independent structural check used by [Inspector].
func IsValidFormat(token string) bool {
	if token == "" || token == "undefined" || token == "null" {
		return false
	}
	return strings.Count(token, ".") == 2
}

// Decode decodes with the default inspector.
func Decode(token string) *Claims { return Inspector{}.Decode(token) }

// IsExpired checks expiry with the default inspector.
func IsExpired(token string) bool { return Inspector{}.IsExpired(token) }

// TimeRemaining computes the remaining lifetime with the default inspector.
func TimeRemaining(token string) time.Duration { return Inspector{}.TimeRemaining(token) }
