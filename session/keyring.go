package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// KeyringKV stores credentials in the operating system's credential store under one
// service name.
type KeyringKV struct {
	service string
}

// NewKeyringKV creates a [KeyringKV] for the given service name.
func NewKeyringKV(service string) *KeyringKV {
	if service == "" {
		service = "goSession"
	}
	return &KeyringKV{service: service}
}

func (k *KeyringKV) Get(_ context.Context, key string) (string, bool, error) {
	v, err := keyring.Get(k.service, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return v, true, nil
}

func (k *KeyringKV) Set(_ context.Context, key, value string) error {
	if err := keyring.Set(k.service, key, value); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

func (k *KeyringKV) Delete(_ context.Context, key string) error {
	if err := keyring.Delete(k.service, key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}
