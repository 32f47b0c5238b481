package jwt

import (
	"encoding/base64"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var fixedNow = time.Unix(1_760_000_000, 0)

func fixedInspector() Inspector {
	return NewInspector(func() time.Time { return fixedNow }, DefaultExpiryBuffer)
}

func signedToken(t *testing.T, claims gjwt.MapClaims) string {
	t.Helper()
	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims)
	s, err := tok.SignedString([]byte("inspector-test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func TestDecodeRejectsWrongSegmentCount(t *testing.T) {
	in := fixedInspector()
	for _, token := range []string{"", "abc", "a.b", "a.b.c.d", "undefined", "null"} {
		if got := in.Decode(token); got != nil {
			t.Fatalf("Decode(%q) = %+v, want nil", token, got)
		}
		if !in.IsExpired(token) {
			t.Fatalf("IsExpired(%q) = false, want true", token)
		}
	}
}

func TestDecodeRejectsBadPayload(t *testing.T) {
	in := fixedInspector()
	notJSON := base64.RawURLEncoding.EncodeToString([]byte("not json"))
	array := base64.RawURLEncoding.EncodeToString([]byte(`[1,2,3]`))
	for _, token := range []string{"h.%%%.s", "h." + notJSON + ".s", "h." + array + ".s"} {
		if got := in.Decode(token); got != nil {
			t.Fatalf("Decode(%q) = %+v, want nil", token, got)
		}
	}
}

func TestDecodeIgnoresHeaderAndSignature(t *testing.T) {
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"u-7","exp":1760000100}`))
	claims := fixedInspector().Decode("garbage." + payload + ".garbage")
	if claims == nil {
		t.Fatal("expected claims from payload segment")
	}
	if claims.Subject != "u-7" {
		t.Fatalf("subject = %q", claims.Subject)
	}
	if claims.ExpiresAt == nil || claims.ExpiresAt.Unix() != 1760000100 {
		t.Fatalf("unexpected exp %v", claims.ExpiresAt)
	}
}

func TestDecodeAcceptsPaddedSegment(t *testing.T) {
	payload := base64.URLEncoding.EncodeToString([]byte(`{"sub":"abc"}`))
	if fixedInspector().Decode("h."+payload+".s") == nil {
		t.Fatal("expected padded payload to decode")
	}
}

func TestIsExpiredBufferBoundary(t *testing.T) {
	in := fixedInspector()

	fresh := signedToken(t, gjwt.MapClaims{"exp": fixedNow.Add(31 * time.Second).Unix()})
	if in.IsExpired(fresh) {
		t.Fatal("token expiring in 31s must not be expired")
	}

	stale := signedToken(t, gjwt.MapClaims{"exp": fixedNow.Add(29 * time.Second).Unix()})
	if !in.IsExpired(stale) {
		t.Fatal("token expiring in 29s must be expired")
	}

	edge := signedToken(t, gjwt.MapClaims{"exp": fixedNow.Add(30 * time.Second).Unix()})
	if !in.IsExpired(edge) {
		t.Fatal("token expiring exactly at the buffer must be expired")
	}
}

func TestIsExpiredWithoutExpClaim(t *testing.T) {
	in := fixedInspector()
	if !in.IsExpired(signedToken(t, gjwt.MapClaims{"sub": "u"})) {
		t.Fatal("token without exp must be expired")
	}
	if !in.IsExpired(signedToken(t, gjwt.MapClaims{"exp": "tomorrow"})) {
		t.Fatal("token with non-numeric exp must be expired")
	}
}

func TestTimeRemainingNeverNegative(t *testing.T) {
	in := fixedInspector()

	if got := in.TimeRemaining("bad"); got != 0 {
		t.Fatalf("malformed remaining = %v", got)
	}
	past := signedToken(t, gjwt.MapClaims{"exp": fixedNow.Add(-time.Hour).Unix()})
	if got := in.TimeRemaining(past); got != 0 {
		t.Fatalf("expired remaining = %v", got)
	}
	future := signedToken(t, gjwt.MapClaims{"exp": fixedNow.Add(5 * time.Minute).Unix()})
	if got := in.TimeRemaining(future); got != 5*time.Minute {
		t.Fatalf("remaining = %v, want 5m", got)
	}
}

func TestIsValidFormat(t *testing.T) {
	cases := map[string]bool{
		"":          false,
		"undefined": false,
		"null":      false,
		"a.b":       false,
		"a.b.c":     true,
		"a.b.c.d":   false,
	}
	for token, want := range cases {
		if got := IsValidFormat(token); got != want {
			t.Fatalf("IsValidFormat(%q) = %v, want %v", token, got, want)
		}
	}
}

func TestCustomBuffer(t *testing.T) {
	in := NewInspector(func() time.Time { return fixedNow }, 5*time.Minute)
	token := signedToken(t, gjwt.MapClaims{"exp": fixedNow.Add(4 * time.Minute).Unix()})
	if !in.IsExpired(token) {
		t.Fatal("expected expiry inside custom buffer")
	}
}

func TestExplicitZeroBufferIsHonoured(t *testing.T) {
	token := signedToken(t, gjwt.MapClaims{"exp": fixedNow.Add(10 * time.Second).Unix()})

	in := NewInspector(func() time.Time { return fixedNow }, 0)
	if in.Buffer() != 0 {
		t.Fatalf("Buffer = %v, want 0", in.Buffer())
	}
	if in.IsExpired(token) {
		t.Fatalf("token with 10s left must be live without a buffer")
	}

	var zero Inspector
	zero.Now = func() time.Time { return fixedNow }
	if zero.Buffer() != DefaultExpiryBuffer || !zero.IsExpired(token) {
		t.Fatalf("zero-value inspector must apply the default buffer")
	}
}
