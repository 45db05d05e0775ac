package authstate

import (
	"encoding/json"
	"fmt"

	"watrack/backend/internal/security"
)

// Codec turns a State into a storable blob and back. The State is marshaled as
// JSON and sealed with the configured BlobCrypter; decoding any blob that was
// sealed under a different key fails with security.ErrDecrypt.
type Codec struct {
	crypter *security.BlobCrypter
}

// NewCodec creates a Codec over the given crypter.
func NewCodec(crypter *security.BlobCrypter) *Codec {
	return &Codec{crypter: crypter}
}

// Encrypted reports whether encoded blobs are sealed.
func (c *Codec) Encrypted() bool {
	return c.crypter.Encrypted()
}

// Encode serializes and seals the state.
func (c *Codec) Encode(st *State) ([]byte, error) {
	if st == nil {
		return nil, fmt.Errorf("encode auth state: nil state")
	}
	plain, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("encode auth state: %w", err)
	}
	return c.crypter.Seal(plain)
}

// Decode opens and deserializes a blob produced by Encode. A blob sealed with
// a different key, or tampered with, returns security.ErrDecrypt.
func (c *Codec) Decode(blob []byte) (*State, error) {
	plain, err := c.crypter.Open(blob)
	if err != nil {
		return nil, err
	}
	st := &State{}
	if err := json.Unmarshal(plain, st); err != nil {
		return nil, fmt.Errorf("decode auth state: %w", err)
	}
	return st, nil
}
