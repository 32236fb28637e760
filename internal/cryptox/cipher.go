package cryptox

import (
	"context"
	"crypto/cipher"
	"encoding/binary"
	"fmt"
	"math"
)

// Mode selects the direction a Cipher is bound to.
type Mode int

const (
	ModeEncrypt Mode = iota
	ModeDecrypt
)

func (m Mode) String() string {
	switch m {
	case ModeEncrypt:
		return "encrypt"
	case ModeDecrypt:
		return "decrypt"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

var (
	adMiddle = []byte{0x00}
	adFinal  = []byte{0x01}
)

// Cipher is AES-256-GCM bound to one direction and one base nonce.
//
// cipher.AEAD only works on whole messages, so the stream is cut into
// chunks. Chunk i is sealed under the base nonce with its last four bytes
// XORed with i, and the additional data records whether the chunk is the
// final one. Reordering, dropping or truncating chunks therefore fails
// authentication.
type Cipher struct {
	mode    Mode
	aead    cipher.AEAD
	nonce   [NonceSize]byte
	counter uint32
	done    bool
}

// NewCipher obtains the key from provider and returns a cipher for mode
// using nonce as the base nonce.
func NewCipher(ctx context.Context, provider KeyProvider, mode Mode, nonce []byte) (*Cipher, error) {
	if len(nonce) != NonceSize {
		return nil, ErrInvalidNonce
	}

	key, err := provider.GetOrCreateKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("get key: %w", err)
	}

	aead, err := key.aead()
	if err != nil {
		return nil, err
	}

	c := &Cipher{mode: mode, aead: aead}
	copy(c.nonce[:], nonce)
	return c, nil
}

// Mode reports the direction the cipher was created for.
func (c *Cipher) Mode() Mode {
	return c.mode
}

// Overhead is the number of bytes Seal adds to every chunk.
func (c *Cipher) Overhead() int {
	return c.aead.Overhead()
}

// Seal encrypts one chunk and appends the result to dst.
func (c *Cipher) Seal(dst, chunk []byte, last bool) ([]byte, error) {
	if c.mode != ModeEncrypt {
		return nil, ErrCipherState
	}
	nonce, ad, err := c.next(last)
	if err != nil {
		return nil, err
	}
	return c.aead.Seal(dst, nonce, chunk, ad), nil
}

// Open authenticates and decrypts one sealed chunk, appending to dst.
func (c *Cipher) Open(dst, sealed []byte, last bool) ([]byte, error) {
	if c.mode != ModeDecrypt {
		return nil, ErrCipherState
	}
	nonce, ad, err := c.next(last)
	if err != nil {
		return nil, err
	}
	out, err := c.aead.Open(dst, nonce, sealed, ad)
	if err != nil {
		return nil, ErrIntegrity
	}
	return out, nil
}

func (c *Cipher) next(last bool) ([]byte, []byte, error) {
	if c.done {
		return nil, nil, ErrCipherState
	}
	if c.counter == math.MaxUint32 && !last {
		return nil, nil, fmt.Errorf("%w: chunk counter overflow", ErrCipherState)
	}

	nonce := make([]byte, NonceSize)
	copy(nonce, c.nonce[:])
	ctr := binary.BigEndian.Uint32(nonce[NonceSize-4:]) ^ c.counter
	binary.BigEndian.PutUint32(nonce[NonceSize-4:], ctr)

	c.counter++
	ad := adMiddle
	if last {
		ad = adFinal
		c.done = true
	}
	return nonce, ad, nil
}
