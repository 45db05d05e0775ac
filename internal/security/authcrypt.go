package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

// ErrDecrypt is returned when a sealed blob cannot be opened: wrong key, tag
// mismatch, or malformed envelope. Callers must treat the credentials as
// unusable and force re-linking.
var ErrDecrypt = errors.New("auth blob decryption failed")

// BlobCrypter seals and opens opaque credential blobs with AES-256-GCM.
// The envelope layout is nonce (12 bytes) | tag+ciphertext as produced by GCM.
// A nil key means plaintext mode, which config only permits behind an explicit
// opt-in; Seal and Open then pass data through unchanged.
type BlobCrypter struct {
	aead cipher.AEAD
}

// NewBlobCrypter returns a BlobCrypter for the given 32-byte key.
// key may be nil for plaintext mode; any other length is an error.
func NewBlobCrypter(key []byte) (*BlobCrypter, error) {
	if key == nil {
		return &BlobCrypter{}, nil
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("auth encryption key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &BlobCrypter{aead: aead}, nil
}

// Encrypted reports whether the crypter seals blobs, or passes them through in
// plaintext mode.
func (c *BlobCrypter) Encrypted() bool {
	return c != nil && c.aead != nil
}

// Seal encrypts plaintext with a fresh random nonce and returns the envelope.
func (c *BlobCrypter) Seal(plaintext []byte) ([]byte, error) {
	if !c.Encrypted() {
		out := make([]byte, len(plaintext))
		copy(out, plaintext)
		return out, nil
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open verifies and decrypts an envelope produced by Seal.
// Returns ErrDecrypt for any envelope that does not authenticate.
func (c *BlobCrypter) Open(envelope []byte) ([]byte, error) {
	if !c.Encrypted() {
		out := make([]byte, len(envelope))
		copy(out, envelope)
		return out, nil
	}
	if len(envelope) < c.aead.NonceSize() {
		return nil, ErrDecrypt
	}
	nonce, ciphertext := envelope[:c.aead.NonceSize()], envelope[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}
