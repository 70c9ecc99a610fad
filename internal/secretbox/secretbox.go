// Package secretbox is the encrypt/decrypt capability for stored secret
// values. The secret store itself never touches plaintext; callers seal
// before writing and unseal after reading when the encrypted flag is set.
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// Box seals and opens secret values with AES-GCM. The key is derived from a
// passphrase so deployments can configure it through the environment.
type Box struct {
	aead cipher.AEAD
}

// New derives a Box from a passphrase.
func New(passphrase string) (*Box, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("secretbox passphrase cannot be empty")
	}
	key := sha256.Sum256([]byte(passphrase))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create AEAD: %w", err)
	}
	return &Box{aead: aead}, nil
}

// Seal encrypts a secret value and returns it base64-encoded with the nonce
// prepended, suitable for storing in the secret table.
func (b *Box) Seal(value string) (string, error) {
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := b.aead.Seal(nonce, nonce, []byte(value), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal.
func (b *Box) Open(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("decode sealed value: %w", err)
	}
	nonceSize := b.aead.NonceSize()
	if len(raw) < nonceSize {
		return "", fmt.Errorf("sealed value too short")
	}
	plain, err := b.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("open sealed value: %w", err)
	}
	return string(plain), nil
}
