// Package authn implements the gateway's credential handling: session
// tokens, API keys, and symmetric encryption for third-party provider
// credentials (spec §4.6).
package authn

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 100000
	pbkdf2KeyLen     = 32
	gcmNonceSize     = 12
)

// kdfSalt is fixed, matching the source system this gateway's crypto is
// grounded on. A per-deployment salt would be stronger but would break
// compatibility with existing ciphertext; left as-is deliberately.
var kdfSalt = []byte("rampart-key-salt")

// CredentialCipher encrypts and decrypts provider credentials at rest
// using AES-GCM with a key derived from a process secret via
// PBKDF2-HMAC-SHA256.
type CredentialCipher struct {
	gcm cipher.AEAD
}

// NewCredentialCipher derives the AEAD key from secret and constructs the
// GCM instance once; secret should come from configuration, never
// hard-coded.
func NewCredentialCipher(secret string) (*CredentialCipher, error) {
	if secret == "" {
		return nil, errors.New("key encryption secret must not be empty")
	}
	key := pbkdf2.Key([]byte(secret), kdfSalt, pbkdf2Iterations, pbkdf2KeyLen, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("constructing AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("constructing GCM: %w", err)
	}
	return &CredentialCipher{gcm: gcm}, nil
}

// Encrypt returns the base64-encoded blob `nonce(12) || ciphertext`, and
// the last 4 characters of plaintext for display purposes.
func (c *CredentialCipher) Encrypt(plaintext string) (encrypted string, last4 string, err error) {
	if plaintext == "" {
		return "", "", errors.New("credential plaintext must not be empty")
	}

	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", "", fmt.Errorf("generating nonce: %w", err)
	}

	sealed := c.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	encrypted = base64.StdEncoding.EncodeToString(sealed)

	last4 = plaintext
	if len(plaintext) >= 4 {
		last4 = plaintext[len(plaintext)-4:]
	}
	return encrypted, last4, nil
}

// Decrypt reverses Encrypt. It never logs its input or output.
func (c *CredentialCipher) Decrypt(encrypted string) (string, error) {
	if encrypted == "" {
		return "", errors.New("encrypted credential must not be empty")
	}

	raw, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("decoding credential: %w", err)
	}
	if len(raw) < gcmNonceSize {
		return "", errors.New("encrypted credential too short")
	}

	nonce, ciphertext := raw[:gcmNonceSize], raw[gcmNonceSize:]
	plaintext, err := c.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypting credential: %w", err)
	}
	return string(plaintext), nil
}

// MaskProviderKey builds a non-sensitive display form like "sk-****abcd"
// or "sk-ant-****abcd" from the stored last-4 characters.
func MaskProviderKey(last4 string, provider string) string {
	switch provider {
	case "openai":
		return "sk-****" + last4
	case "anthropic":
		return "sk-ant-****" + last4
	default:
		return "****" + last4
	}
}
