// Package crypto implements the password-based authenticated encryption used
// by the gateway: HKDF-SHA256 key derivation over a configured salt, and
// AES-256-GCM with a random 96-bit nonce per encryption.
package crypto

// Encryptor combines key derivation and the AEAD into the operation surface
// used by the crypto service.
type Encryptor struct {
	deriver *KeyDeriver
}

// NewEncryptor creates an encryptor with the configured salt
func NewEncryptor(salt string) *Encryptor {
	return &Encryptor{deriver: NewKeyDeriver(salt)}
}

// Encrypt derives a key from the password and seals the data
func (e *Encryptor) Encrypt(data []byte, password string) (string, error) {
	key, err := e.deriver.DeriveKey(password)
	if err != nil {
		return "", err
	}
	return Seal(key, data)
}

// Decrypt derives a key from the password and opens the sealed payload
func (e *Encryptor) Decrypt(encoded string, password string) ([]byte, error) {
	key, err := e.deriver.DeriveKey(password)
	if err != nil {
		return nil, err
	}
	return Open(key, encoded)
}
