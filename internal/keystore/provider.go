// Package keystore obtains the symmetric key that protects offline audio.
//
// A Provider looks the key up under a fixed alias in a Store and creates it
// on first use. Lookup failures other than "not found" are reported as
// ErrKeyUnavailable: generating a replacement key would strand every
// artifact sealed under the old one.
package keystore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/bankwiser/internal/cryptox"
)

// DefaultAlias names the audio key in the secure store.
const DefaultAlias = "bankwiser_audio_key"

var (
	ErrNotFound       = errors.New("key not found")
	ErrKeyUnavailable = errors.New("key unavailable")
)

// Store persists raw key material under an alias.
//
// Load must return ErrNotFound (possibly wrapped) when nothing is stored
// under alias; any other error is treated as the store being unreadable.
type Store interface {
	Load(ctx context.Context, alias string) ([]byte, error)
	Save(ctx context.Context, alias string, material []byte) error
}

// Provider implements cryptox.KeyProvider on top of a Store. It is safe for
// concurrent use; the key is cached after the first successful lookup.
type Provider struct {
	store Store
	alias string

	mu  sync.Mutex
	key *cryptox.Key
}

var _ cryptox.KeyProvider = (*Provider)(nil)

func NewProvider(store Store, alias string) *Provider {
	if alias == "" {
		alias = DefaultAlias
	}
	return &Provider{store: store, alias: alias}
}

// GetOrCreateKey returns the key stored under the provider's alias,
// generating and saving a new 256-bit key if none exists yet.
func (p *Provider) GetOrCreateKey(ctx context.Context) (*cryptox.Key, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.key != nil {
		return p.key, nil
	}

	material, err := p.store.Load(ctx, p.alias)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		material, err = p.create(ctx)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: load %q: %v", ErrKeyUnavailable, p.alias, err)
	}

	key, err := cryptox.NewKey(p.alias, material)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}

	p.key = key
	return key, nil
}

func (p *Provider) create(ctx context.Context) ([]byte, error) {
	material, err := cryptox.RandomBytes(cryptox.KeySize)
	if err != nil {
		return nil, fmt.Errorf("%w: generate: %v", ErrKeyUnavailable, err)
	}
	if err := p.store.Save(ctx, p.alias, material); err != nil {
		return nil, fmt.Errorf("%w: save %q: %v", ErrKeyUnavailable, p.alias, err)
	}
	return material, nil
}
