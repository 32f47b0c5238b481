package session

// Kind identifies one credential field.
type Kind uint8

const (
	// KindAccessToken is the short-lived bearer credential.
	KindAccessToken Kind = iota
	// KindRefreshToken is exchanged for a new access token.
	KindRefreshToken
	// KindCSRFToken is the persisted anti-forgery token.
	KindCSRFToken
	// KindUser is the cached user profile JSON.
	KindUser
)

// Storage keys. Access and refresh tokens are also mirrored under legacy keys so older
// builds sharing the same storage keep working.
const (
	KeyAccessToken        = "accessToken"
	KeyRefreshToken       = "refreshToken"
	KeyCSRFToken          = "csrfToken"
	KeyUser               = "user"
	LegacyKeyAccessToken  = "token"
	LegacyKeyRefreshToken = "refresh_token"
)

var kinds = [...]Kind{KindAccessToken, KindRefreshToken, KindCSRFToken, KindUser}

func (k Kind) String() string {
	switch k {
	case KindAccessToken:
		return "access_token"
	case KindRefreshToken:
		return "refresh_token"
	case KindCSRFToken:
		return "csrf_token"
	case KindUser:
		return "user"
	default:
		return "unknown"
	}
}

func (k Kind) key() string {
	switch k {
	case KindAccessToken:
		return KeyAccessToken
	case KindRefreshToken:
		return KeyRefreshToken
	case KindCSRFToken:
		return KeyCSRFToken
	case KindUser:
		return KeyUser
	default:
		return ""
	}
}

func (k Kind) legacyKey() string {
	switch k {
	case KindAccessToken:
		return LegacyKeyAccessToken
	case KindRefreshToken:
		return LegacyKeyRefreshToken
	default:
		return ""
	}
}

// Credentials is a point-in-time copy of the stored session credentials.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	CSRFToken    string
}

// LoggedIn reports whether any session token is present.
func (c Credentials) LoggedIn() bool {
	return c.AccessToken != "" || c.RefreshToken != ""
}

// Profile is the subset of the cached user record the client reads. Language drives the
// Accept-Language header ("ar" or "en").
type Profile struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Language string `json:"language,omitempty"`
	Verified bool   `json:"isVerified,omitempty"`
}
