// Package testserver is a fake API backend with the auth, CSRF and protected routes the
// client talks to. Tests and the CLI's local mode run against it.
package testserver

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
)

// Route names used by Calls and LastHeader.
const (
	RouteLogin       = "login"
	RouteRegister    = "register"
	RouteLogout      = "logout"
	RouteRefresh     = "refresh"
	RouteCSRF        = "csrf"
	RouteVerifyEmail = "verify-email"
	RouteForgot      = "forgot-password"
	RouteReset       = "reset-password"
	RouteMe          = "me"
	RouteProjects    = "projects"
	RouteReserve     = "reservations"
)

// Options configures the fake backend.
type Options struct {
	Secret    []byte
	AccessTTL time.Duration
	Now       func() time.Time
	Email     string
	Password  string
	Language  string
	// RequireCSRF makes mutating protected routes answer 403 without a matching token.
	RequireCSRF bool
	// RotateRefresh issues a new refresh token on every refresh.
	RotateRefresh bool
}

// User is the account returned by login and /auth/me.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Language string `json:"language"`
}

// Server is a running fake backend. Its API lives under URL + "/api".
type Server struct {
	*httptest.Server

	opts    Options
	account account

	mu            sync.Mutex
	calls         map[string]int
	headers       map[string]http.Header
	refreshTokens map[string]bool
	revoked       map[string]bool
	csrfToken     string
	failRefresh   bool
}

// New starts a server. Zero options get a random secret, a 15 minute access TTL and the
// demo@example.test / secret account.
func New(opts Options) *Server {
	if len(opts.Secret) == 0 {
		opts.Secret = []byte(randomHex(32))
	}
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = 15 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Email == "" {
		opts.Email = "demo@example.test"
	}
	if opts.Password == "" {
		opts.Password = "secret"
	}
	if opts.Language == "" {
		opts.Language = "en"
	}

	s := &Server{
		opts:          opts,
		account:       newAccount(opts.Email, opts.Password),
		calls:         make(map[string]int),
		headers:       make(map[string]http.Header),
		refreshTokens: make(map[string]bool),
		revoked:       make(map[string]bool),
		csrfToken:     randomHex(16),
	}
	s.Server = httptest.NewServer(s.router())
	return s
}

// BaseURL is the API root to configure the client with.
func (s *Server) BaseURL() string {
	return s.URL + "/api"
}

func (s *Server) router() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/auth/login", s.track(RouteLogin, s.handleLogin)).Methods(http.MethodPost)
	api.HandleFunc("/auth/register", s.track(RouteRegister, s.handleRegister)).Methods(http.MethodPost)
	api.HandleFunc("/auth/logout", s.track(RouteLogout, s.handleOK)).Methods(http.MethodPost)
	api.HandleFunc("/auth/refresh-token", s.track(RouteRefresh, s.handleRefresh)).Methods(http.MethodPost)
	api.HandleFunc("/csrf-token", s.track(RouteCSRF, s.handleCSRF)).Methods(http.MethodGet)
	api.HandleFunc("/auth/verify-email", s.track(RouteVerifyEmail, s.handleVerifyEmail)).Methods(http.MethodPost)
	api.HandleFunc("/auth/forgot-password", s.track(RouteForgot, s.handleOK)).Methods(http.MethodPost)
	api.HandleFunc("/auth/reset-password", s.track(RouteReset, s.handleOK)).Methods(http.MethodPost)
	api.HandleFunc("/auth/me", s.track(RouteMe, s.protected(s.handleMe))).Methods(http.MethodGet)
	api.HandleFunc("/projects", s.track(RouteProjects, s.handleProjects)).Methods(http.MethodGet)
	api.HandleFunc("/reservations", s.track(RouteReserve, s.protected(s.csrfGuard(s.handleReserve)))).Methods(http.MethodPost)

	return r
}

func (s *Server) track(name string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[name]++
		s.headers[name] = r.Header.Clone()
		s.mu.Unlock()
		next(w, r)
	}
}

/*
====================================
TOKENS
====================================
*/

// IssueAccess signs an HS256 access token for subject expiring after ttl.
func (s *Server) IssueAccess(subject string, ttl time.Duration) string {
	now := s.opts.Now()
	claims := gjwt.RegisteredClaims{
		ID:        randomHex(8),
		Subject:   subject,
		IssuedAt:  gjwt.NewNumericDate(now),
		ExpiresAt: gjwt.NewNumericDate(now.Add(ttl)),
	}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString(s.opts.Secret)
	if err != nil {
		panic(err)
	}
	return token
}

// IssueRefresh creates a refresh token the server will accept.
func (s *Server) IssueRefresh() string {
	token := randomHex(24)
	s.mu.Lock()
	s.refreshTokens[token] = true
	s.mu.Unlock()
	return token
}

// Revoke makes the server reject access even though it has not expired.
func (s *Server) Revoke(access string) {
	s.mu.Lock()
	s.revoked[access] = true
	s.mu.Unlock()
}

// FailRefresh makes the refresh endpoint answer 401.
func (s *Server) FailRefresh(fail bool) {
	s.mu.Lock()
	s.failRefresh = fail
	s.mu.Unlock()
}

// CSRFToken is the token the server currently expects.
func (s *Server) CSRFToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.csrfToken
}

// Calls returns how many requests hit route.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// LastHeader returns a header of the latest request to route.
func (s *Server) LastHeader(route, name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.headers[route].Get(name)
}

func (s *Server) validAccess(token string) (string, bool) {
	s.mu.Lock()
	revoked := s.revoked[token]
	s.mu.Unlock()
	if revoked {
		return "", false
	}
	claims := &gjwt.RegisteredClaims{}
	_, err := gjwt.ParseWithClaims(token, claims, func(*gjwt.Token) (any, error) {
		return s.opts.Secret, nil
	}, gjwt.WithValidMethods([]string{gjwt.SigningMethodHS256.Alg()}), gjwt.WithTimeFunc(s.opts.Now))
	if err != nil {
		return "", false
	}
	return claims.Subject, true
}

func (s *Server) user() User {
	return User{ID: "u-1", Name: "Demo", Email: s.opts.Email, Language: s.opts.Language}
}

/*
====================================
HANDLERS
====================================
*/

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "invalid body"})
		return
	}
	if !s.account.verify(in.Email, in.Password) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "invalid credentials"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"token":        s.IssueAccess("u-1", s.opts.AccessTTL),
			"refreshToken": s.IssueRefresh(),
			"user":         s.user(),
		},
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "message": "verification email sent"})
}

func (s *Server) handleOK(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	token := bearer(r)
	s.mu.Lock()
	ok := !s.failRefresh && s.refreshTokens[token]
	rotate := ok && s.opts.RotateRefresh
	if rotate {
		delete(s.refreshTokens, token)
	}
	s.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "invalid refresh token"})
		return
	}
	out := map[string]any{"token": s.IssueAccess("u-1", s.opts.AccessTTL)}
	if rotate {
		out["refreshToken"] = s.IssueRefresh()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCSRF(w http.ResponseWriter, _ *http.Request) {
	token := s.CSRFToken()
	http.SetCookie(w, &http.Cookie{Name: "XSRF-TOKEN", Value: token, Path: "/"})
	w.Header().Set("X-XSRF-TOKEN", token)
	writeJSON(w, http.StatusOK, map[string]any{"csrfToken": token})
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	if bearer(r) == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "missing verification token"})
		return
	}
	s.handleOK(w, r)
}

func (s *Server) handleMe(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"user": s.user()}})
}

func (s *Server) handleProjects(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data": []map[string]any{
			{"id": "p-1", "name": "Marina Towers"},
			{"id": "p-2", "name": "Palm Residences"},
		},
	})
}

func (s *Server) handleReserve(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseMultipartForm(1 << 20)
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "data": map[string]any{"id": "r-1"}})
}

func (s *Server) protected(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := s.validAccess(bearer(r)); !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "token expired"})
			return
		}
		next(w, r)
	}
}

func (s *Server) csrfGuard(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.opts.RequireCSRF && r.Header.Get("X-XSRF-TOKEN") != s.CSRFToken() {
			writeJSON(w, http.StatusForbidden, map[string]any{"success": false, "message": "invalid csrf token"})
			return
		}
		next(w, r)
	}
}

func bearer(r *http.Request) string {
	const prefix = "Bearer "
	v := r.Header.Get("Authorization")
	if !strings.HasPrefix(v, prefix) {
		return ""
	}
	return v[len(prefix):]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
