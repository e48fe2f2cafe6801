// Package vault encrypts provider credentials at rest with AES-256-GCM.
//
// Plaintext credentials exist only in memory: the database stores the
// base64-encoded nonce||ciphertext, API responses and logs carry masked
// forms only.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// ErrInvalidKey indicates the configured secret key is not a valid
// base64url-encoded 32-byte key.
var ErrInvalidKey = errors.New("vault: secret key must be base64url-encoded 32 bytes")

// ErrDecrypt indicates a ciphertext could not be authenticated or decoded.
// Wrong key and corrupted data are indistinguishable on purpose.
var ErrDecrypt = errors.New("vault: decryption failed")

// Vault seals and opens credential strings with a single symmetric key.
type Vault struct {
	aead cipher.AEAD
}

// New creates a vault from a base64url-encoded 32-byte key, as produced by
// GenerateKey.
func New(encodedKey string) (*Vault, error) {
	key, err := base64.URLEncoding.DecodeString(encodedKey)
	if err != nil || len(key) != KeySize {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}

	return &Vault{aead: aead}, nil
}

// GenerateKey returns a fresh random key in the encoding New accepts.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("vault: failed to generate key: %w", err)
	}
	return base64.URLEncoding.EncodeToString(key), nil
}

// Encrypt seals a plaintext credential. The result is
// base64(nonce || ciphertext) with a fresh random nonce per call, so
// encrypting the same credential twice yields different outputs.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("vault: failed to generate nonce: %w", err)
	}

	sealed := v.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt.
func (v *Vault) Decrypt(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrDecrypt
	}

	ns := v.aead.NonceSize()
	if len(sealed) < ns {
		return "", ErrDecrypt
	}

	plaintext, err := v.aead.Open(nil, sealed[:ns], sealed[ns:], nil)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plaintext), nil
}

// Mask returns the display form of a credential: first four and last four
// characters with an ellipsis between. Credentials shorter than eight
// characters are fully masked; an empty credential masks to the empty
// string.
func Mask(credential string) string {
	switch {
	case credential == "":
		return ""
	case len(credential) < 8:
		return "****"
	default:
		return credential[:4] + "..." + credential[len(credential)-4:]
	}
}
