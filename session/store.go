package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
)

// Store is the single source of truth for credential persistence.
//
// Store performs no validation. Reads never fail: a backend error is logged and the value
// reads as absent. Writes are last-write-wins.
type Store struct {
	kv  KV
	log *slog.Logger
}

// NewStore creates a [Store] over kv. A nil kv gets a fresh [MemoryKV]; a nil logger
// discards output.
func NewStore(kv KV, logger *slog.Logger) *Store {
	if kv == nil {
		kv = NewMemoryKV()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{kv: kv, log: logger}
}

// Get returns the stored value for kind or "" when absent. The current key is preferred;
// the legacy key is consulted when the current one is missing.
func (s *Store) Get(ctx context.Context, kind Kind) string {
	if v, ok := s.read(ctx, kind.key()); ok {
		return v
	}
	if legacy := kind.legacyKey(); legacy != "" {
		if v, ok := s.read(ctx, legacy); ok {
			return v
		}
	}
	return ""
}

func (s *Store) read(ctx context.Context, key string) (string, bool) {
	if key == "" {
		return "", false
	}
	v, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		s.log.WarnContext(ctx, "goSession: credential read failed", "key", key, "error", err)
		return "", false
	}
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Set overwrites the value for kind. Access and refresh tokens are written under both the
// current and legacy keys. Setting "" clears the field.
func (s *Store) Set(ctx context.Context, kind Kind, value string) error {
	if value == "" {
		return s.Clear(ctx, kind)
	}
	key := kind.key()
	if key == "" {
		return errors.New("unknown credential kind")
	}
	if err := s.kv.Set(ctx, key, value); err != nil {
		return err
	}
	if legacy := kind.legacyKey(); legacy != "" {
		if err := s.kv.Set(ctx, legacy, value); err != nil {
			return err
		}
	}
	return nil
}

// SetTokens persists a token pair. An empty refresh token keeps the stored one, which is
// how non-rotating refresh responses are handled.
func (s *Store) SetTokens(ctx context.Context, access, refresh string) error {
	if err := s.Set(ctx, KindAccessToken, access); err != nil {
		return err
	}
	if refresh == "" {
		return nil
	}
	return s.Set(ctx, KindRefreshToken, refresh)
}

// Clear removes one credential field, including its legacy key.
func (s *Store) Clear(ctx context.Context, kind Kind) error {
	var errs []error
	if key := kind.key(); key != "" {
		errs = append(errs, s.kv.Delete(ctx, key))
	}
	if legacy := kind.legacyKey(); legacy != "" {
		errs = append(errs, s.kv.Delete(ctx, legacy))
	}
	return errors.Join(errs...)
}

// ClearAll removes every credential field. It keeps going after a failed delete so no
// field is left behind because an earlier one failed.
func (s *Store) ClearAll(ctx context.Context) error {
	var errs []error
	for _, k := range kinds {
		errs = append(errs, s.Clear(ctx, k))
	}
	return errors.Join(errs...)
}

// Credentials returns a snapshot of the stored tokens.
func (s *Store) Credentials(ctx context.Context) Credentials {
	return Credentials{
		AccessToken:  s.Get(ctx, KindAccessToken),
		RefreshToken: s.Get(ctx, KindRefreshToken),
		CSRFToken:    s.Get(ctx, KindCSRFToken),
	}
}

// SetUser caches the raw user JSON returned by the API.
func (s *Store) SetUser(ctx context.Context, raw json.RawMessage) error {
	if len(raw) == 0 || string(raw) == "null" {
		return s.Clear(ctx, KindUser)
	}
	if !json.Valid(raw) {
		return errors.New("user payload is not valid JSON")
	}
	return s.Set(ctx, KindUser, string(raw))
}

// SetProfile encodes p as the cached user.
func (s *Store) SetProfile(ctx context.Context, p Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.Set(ctx, KindUser, string(data))
}

// Profile decodes the cached user. ok is false when nothing usable is stored.
func (s *Store) Profile(ctx context.Context) (Profile, bool) {
	raw := s.Get(ctx, KindUser)
	if raw == "" {
		return Profile{}, false
	}
	var p Profile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		s.log.WarnContext(ctx, "goSession: cached user is not valid JSON", "error", err)
		return Profile{}, false
	}
	return p, true
}
