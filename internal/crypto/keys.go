package crypto

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// ErrInvalidCredential is returned when the password is unusable for key
// derivation
var ErrInvalidCredential = errors.New("invalid credential input")

const keyLength = 32

// hkdfInfo binds derived keys to their purpose. Changing it invalidates all
// previously produced ciphertexts.
var hkdfInfo = []byte("encryption")

// KeyDeriver derives symmetric keys from passwords using HKDF-SHA256 with a
// process-wide salt. Derivation is deterministic: the same (password, salt)
// pair always yields the same key, so decryption never needs a stored key.
type KeyDeriver struct {
	salt []byte
}

// NewKeyDeriver creates a key deriver with the configured salt
func NewKeyDeriver(salt string) *KeyDeriver {
	return &KeyDeriver{salt: []byte(salt)}
}

// DeriveKey derives a 256-bit key from the password
func (d *KeyDeriver) DeriveKey(password string) ([]byte, error) {
	if password == "" {
		return nil, fmt.Errorf("%w: password must not be empty", ErrInvalidCredential)
	}

	r := hkdf.New(sha256.New, []byte(password), d.salt, hkdfInfo)
	key := make([]byte, keyLength)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("hkdf expand failed: %w", err)
	}
	return key, nil
}
