package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// ErrAuthenticationFailed is returned when a ciphertext cannot be
// authenticated. Wrong password, corruption and tampering are deliberately
// indistinguishable.
var ErrAuthenticationFailed = errors.New("authentication failed")

const nonceSize = 12

// Seal encrypts plaintext with AES-256-GCM under the given 32-byte key,
// using a fresh random nonce per call. Output is base64(nonce || ciphertext),
// where the ciphertext carries the GCM authentication tag.
func Seal(key []byte, plaintext []byte) (string, error) {
	aead, err := newGCM(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce generation failed: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a payload produced by Seal. Any failure to decode or
// authenticate surfaces as ErrAuthenticationFailed.
func Open(key []byte, encoded string) ([]byte, error) {
	combined, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	if len(combined) < nonceSize {
		return nil, ErrAuthenticationFailed
	}

	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, combined[:nonceSize], combined[nonceSize:], nil)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != keyLength {
		return nil, fmt.Errorf("encryption key must be exactly %d bytes (got %d)", keyLength, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
