package cryptox

import "errors"

var (
	// ErrTruncated means the input ended before a full nonce could be read.
	ErrTruncated = errors.New("ciphertext truncated")

	// ErrIntegrity covers every authentication failure on decrypt: wrong key,
	// corrupted data, tampering and truncation at a chunk boundary all look
	// the same to GCM.
	ErrIntegrity = errors.New("ciphertext authentication failed")

	ErrInvalidNonce = errors.New("invalid nonce length")
	ErrInvalidKey   = errors.New("invalid key")
	ErrCipherState  = errors.New("cipher used in wrong mode or after final chunk")
)
