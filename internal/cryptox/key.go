package cryptox

import (
	"context"
	"crypto/cipher"
	"fmt"
)

// Key is an opaque handle to a symmetric AES-256 key. The raw material is
// not reachable through the public API except via the diagnostic Export.
type Key struct {
	alias    string
	material []byte
}

// NewKey wraps key material into a handle. The slice is copied.
func NewKey(alias string, material []byte) (*Key, error) {
	if len(material) != KeySize {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidKey, KeySize, len(material))
	}
	m := make([]byte, len(material))
	copy(m, material)
	return &Key{alias: alias, material: m}, nil
}

// Alias returns the name the key is stored under.
func (k *Key) Alias() string {
	return k.alias
}

// Export returns a copy of the raw key material. It is a best-effort
// diagnostic accessor and reports false when the handle holds nothing.
func (k *Key) Export() ([]byte, bool) {
	if k == nil || len(k.material) == 0 {
		return nil, false
	}
	b := make([]byte, len(k.material))
	copy(b, k.material)
	return b, true
}

func (k *Key) aead() (cipher.AEAD, error) {
	if k == nil || len(k.material) != KeySize {
		return nil, ErrInvalidKey
	}
	return newGCM(k.material)
}

// KeyProvider hands out the key used for audio artifacts.
type KeyProvider interface {
	GetOrCreateKey(ctx context.Context) (*Key, error)
}

// StaticKeyProvider always returns the same key. Handy for tests and tools
// that already hold the key.
type StaticKeyProvider struct {
	Key *Key
}

func (p StaticKeyProvider) GetOrCreateKey(ctx context.Context) (*Key, error) {
	if p.Key == nil {
		return nil, ErrInvalidKey
	}
	return p.Key, nil
}
