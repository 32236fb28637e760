package keystore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// DefaultService is the keychain service name entries are filed under.
const DefaultService = "bankwiser"

// KeyringStore keeps key material in the OS keychain (macOS Keychain,
// Secret Service on Linux, Windows Credential Manager).
type KeyringStore struct {
	service string
}

func NewKeyringStore(service string) *KeyringStore {
	if service == "" {
		service = DefaultService
	}
	return &KeyringStore{service: service}
}

func (s *KeyringStore) Load(ctx context.Context, alias string) ([]byte, error) {
	v, err := keyring.Get(s.service, alias)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("keyring get: %w", err)
	}

	b, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return nil, fmt.Errorf("keyring decode: %w", err)
	}
	return b, nil
}

func (s *KeyringStore) Save(ctx context.Context, alias string, material []byte) error {
	if err := keyring.Set(s.service, alias, base64.StdEncoding.EncodeToString(material)); err != nil {
		return fmt.Errorf("keyring set: %w", err)
	}
	return nil
}

// Delete removes the entry. A missing entry is not an error.
func (s *KeyringStore) Delete(ctx context.Context, alias string) error {
	if err := keyring.Delete(s.service, alias); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keyring delete: %w", err)
	}
	return nil
}
