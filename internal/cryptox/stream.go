package cryptox

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

// ChunkSize is the plaintext size of every chunk but the last.
const ChunkSize = 8 * 1024

// Engine encrypts and decrypts byte streams into the on-disk artifact
// format:
//
//	nonce(12) || chunk_0 || ... || chunk_n
//	chunk_i = ciphertext(<= ChunkSize) || tag(16)
//
// A plaintext that fits into one chunk therefore produces exactly
// nonce || ciphertext || tag. Memory use is bounded by one chunk.
type Engine struct {
	keys KeyProvider
}

func NewEngine(keys KeyProvider) *Engine {
	return &Engine{keys: keys}
}

// Encrypt reads in until EOF and writes the artifact to out. A fresh nonce
// is generated on every call. Both streams are closed before returning,
// whatever the outcome.
func (e *Engine) Encrypt(ctx context.Context, in io.ReadCloser, out io.WriteCloser) (err error) {
	defer func() {
		_ = in.Close()
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close output: %w", cerr)
		}
	}()

	nonce, err := RandomBytes(NonceSize)
	if err != nil {
		return err
	}

	c, err := NewCipher(ctx, e.keys, ModeEncrypt, nonce)
	if err != nil {
		return err
	}

	if _, err := out.Write(nonce); err != nil {
		return fmt.Errorf("write nonce: %w", err)
	}

	br := bufio.NewReaderSize(in, ChunkSize)
	buf := make([]byte, ChunkSize)
	sealed := make([]byte, 0, ChunkSize+TagSize)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, last, err := readChunk(br, buf)
		if err != nil {
			return fmt.Errorf("read plaintext: %w", err)
		}

		sealed, err = c.Seal(sealed[:0], buf[:n], last)
		if err != nil {
			return err
		}

		if _, err := out.Write(sealed); err != nil {
			return fmt.Errorf("write ciphertext: %w", err)
		}

		if last {
			return nil
		}
	}
}

// Decrypt reads an artifact from in and writes the plaintext to out.
// Input shorter than a nonce fails with ErrTruncated; every authentication
// problem fails with ErrIntegrity. Plaintext of a chunk is written only
// after the chunk authenticates. Both streams are closed before returning.
func (e *Engine) Decrypt(ctx context.Context, in io.ReadCloser, out io.WriteCloser) (err error) {
	defer func() {
		_ = in.Close()
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close output: %w", cerr)
		}
	}()

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(in, nonce); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return ErrTruncated
		}
		return fmt.Errorf("read nonce: %w", err)
	}

	c, err := NewCipher(ctx, e.keys, ModeDecrypt, nonce)
	if err != nil {
		return err
	}

	br := bufio.NewReaderSize(in, ChunkSize+TagSize)
	buf := make([]byte, ChunkSize+TagSize)
	plain := make([]byte, 0, ChunkSize)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, last, err := readChunk(br, buf)
		if err != nil {
			return fmt.Errorf("read ciphertext: %w", err)
		}
		if n < TagSize {
			return ErrIntegrity
		}

		plain, err = c.Open(plain[:0], buf[:n], last)
		if err != nil {
			return err
		}

		if _, err := out.Write(plain); err != nil {
			return fmt.Errorf("write plaintext: %w", err)
		}

		if last {
			return nil
		}
	}
}

// EncryptFile encrypts src into dst. dst is removed when encryption fails.
func (e *Engine) EncryptFile(ctx context.Context, src, dst string) error {
	return e.transformFile(ctx, src, dst, e.Encrypt)
}

// DecryptFile decrypts src into dst. dst is removed when decryption fails.
func (e *Engine) DecryptFile(ctx context.Context, src, dst string) error {
	return e.transformFile(ctx, src, dst, e.Decrypt)
}

func (e *Engine) transformFile(ctx context.Context, src, dst string,
	fn func(context.Context, io.ReadCloser, io.WriteCloser) error) error {

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		_ = in.Close()
		return fmt.Errorf("create %s: %w", dst, err)
	}

	if err := fn(ctx, in, out); err != nil {
		_ = os.Remove(dst)
		return err
	}
	return nil
}

// readChunk fills buf as far as the stream allows and reports whether the
// stream is exhausted afterwards. An empty stream yields (0, true, nil).
// Only a bare io.EOF ends the stream; any other error, io.ErrUnexpectedEOF
// from a cut-off network body included, is returned.
func readChunk(br *bufio.Reader, buf []byte) (int, bool, error) {
	n := 0
	for n < len(buf) {
		m, err := br.Read(buf[n:])
		n += m
		if err == io.EOF {
			return n, true, nil
		}
		if err != nil {
			return n, false, err
		}
	}

	if _, err := br.Peek(1); err != nil {
		if err == io.EOF {
			return n, true, nil
		}
		return n, false, err
	}
	return n, false, nil
}
