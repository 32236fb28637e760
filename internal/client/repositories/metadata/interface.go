// Package metadata is the key/value table behind the preference store and
// the sealed key store.
package metadata

import (
	"context"
)

// Repository is a byte-valued key/value store. Get returns (nil, nil) for a
// missing key. Prefix operations match keys literally; '_' and '%' carry no
// wildcard meaning.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) (map[string][]byte, error)
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
	Clear(ctx context.Context) error
}
