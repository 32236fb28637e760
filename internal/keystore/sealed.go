package keystore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/bankwiser/internal/cryptox"
)

const (
	saltKey     = "keystore_salt"
	entryPrefix = "keystore_"
	saltSize    = 32
)

// KV is the slice of the metadata repository SealedStore needs. Get returns
// (nil, nil) for a missing key.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// SealedStore keeps key material in a KV store, wrapped with AES-GCM under
// a master key derived from a passphrase (argon2id). It serves hosts without
// an OS keychain.
//
// A wrong passphrase surfaces as cryptox.ErrIntegrity from Load, which the
// Provider reports as ErrKeyUnavailable.
type SealedStore struct {
	kv         KV
	passphrase []byte

	mu        sync.Mutex
	masterKey []byte
}

func NewSealedStore(kv KV, passphrase []byte) *SealedStore {
	p := make([]byte, len(passphrase))
	copy(p, passphrase)
	return &SealedStore{kv: kv, passphrase: p}
}

func (s *SealedStore) Load(ctx context.Context, alias string) ([]byte, error) {
	blob, err := s.kv.Get(ctx, entryPrefix+alias)
	if err != nil {
		return nil, fmt.Errorf("read sealed key: %w", err)
	}
	if blob == nil {
		return nil, ErrNotFound
	}
	if len(blob) <= cryptox.NonceSize {
		return nil, errors.New("sealed key entry is corrupt")
	}

	mk, err := s.master(ctx, false)
	if err != nil {
		return nil, err
	}

	return cryptox.OpenBytes(blob[cryptox.NonceSize:], blob[:cryptox.NonceSize], mk)
}

func (s *SealedStore) Save(ctx context.Context, alias string, material []byte) error {
	mk, err := s.master(ctx, true)
	if err != nil {
		return err
	}

	ct, nonce, err := cryptox.SealBytes(material, mk)
	if err != nil {
		return fmt.Errorf("seal key: %w", err)
	}

	blob := make([]byte, 0, len(nonce)+len(ct))
	blob = append(blob, nonce...)
	blob = append(blob, ct...)

	if err := s.kv.Set(ctx, entryPrefix+alias, blob); err != nil {
		return fmt.Errorf("write sealed key: %w", err)
	}
	return nil
}

// master derives (once) the wrapping key. With create set, a missing salt
// is generated and stored.
func (s *SealedStore) master(ctx context.Context, create bool) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.masterKey != nil {
		return s.masterKey, nil
	}

	salt, err := s.kv.Get(ctx, saltKey)
	if err != nil {
		return nil, fmt.Errorf("read salt: %w", err)
	}
	if salt == nil {
		if !create {
			return nil, errors.New("sealed key present but salt missing")
		}
		salt, err = cryptox.RandomBytes(saltSize)
		if err != nil {
			return nil, err
		}
		if err := s.kv.Set(ctx, saltKey, salt); err != nil {
			return nil, fmt.Errorf("write salt: %w", err)
		}
	}

	s.masterKey = cryptox.DeriveMasterKey(s.passphrase, salt)
	return s.masterKey, nil
}
