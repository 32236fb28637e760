// Package cryptox holds the cryptographic building blocks of the client:
// the opaque key handle, the chunked AES-GCM cipher adapter, the streaming
// file encryption engine and a few one-shot helpers used to wrap secrets.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// NonceSize is the GCM nonce length written at the head of every artifact.
	NonceSize = 12
	// TagSize is the GCM authentication tag length (128 bits).
	TagSize = 16
)

// DeriveMasterKey stretches a passphrase into a 32-byte key with argon2id.
func DeriveMasterKey(password []byte, salt []byte) []byte {
	x := argon2.IDKey(password, salt, 1, 64*1024, 4, KeySize)
	return x
}

// RandomBytes returns n bytes from crypto/rand.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("read random: %w", err)
	}
	return b, nil
}

// SealBytes encrypts plaintext with AES-GCM under key using a fresh random
// 12-byte nonce. The ciphertext and nonce are returned separately.
//
// The key must be a valid AES key length (16, 24, or 32 bytes).
func SealBytes(plaintext, key []byte) (ciphertext, nonce []byte, err error) {
	nonce, err = RandomBytes(NonceSize)
	if err != nil {
		return nil, nil, err
	}

	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	ciphertext = aesgcm.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nonce, nil
}

// OpenBytes reverses SealBytes. Any authentication failure is reported as
// ErrIntegrity.
func OpenBytes(ciphertext, nonce, key []byte) ([]byte, error) {
	if len(nonce) != NonceSize {
		return nil, ErrInvalidNonce
	}

	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrIntegrity
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	aesgcm, err := cipher.NewGCMWithTagSize(block, TagSize)
	if err != nil {
		return nil, err
	}
	return aesgcm, nil
}
