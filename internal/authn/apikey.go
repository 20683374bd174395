package authn

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// APIKeyPrefix is prepended to every generated API key.
	APIKeyPrefix = "rmp_live_"
	// apiKeyRandomBytes is the amount of entropy encoded after the prefix;
	// base64 URL-safe encoding of 32 bytes yields 43 characters.
	apiKeyRandomBytes = 32
	// BcryptCost is the minimum hashing cost required by spec §4.6.
	BcryptCost = 12
)

// GenerateAPIKey produces a new plaintext key in the form
// rmp_live_<43 url-safe base64 chars> along with its bcrypt hash and its
// 12+4 char display preview. The plaintext is returned to the caller
// exactly once by whoever invokes this and must not be persisted.
func GenerateAPIKey() (plaintext string, hash string, preview string, err error) {
	buf := make([]byte, apiKeyRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", "", fmt.Errorf("generating key material: %w", err)
	}

	token := base64.RawURLEncoding.EncodeToString(buf)
	plaintext = APIKeyPrefix + token

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), BcryptCost)
	if err != nil {
		return "", "", "", fmt.Errorf("hashing key: %w", err)
	}

	return plaintext, string(hashed), KeyPreview(plaintext), nil
}

// KeyPreview returns the non-sensitive "first 12 + last 4" display form of
// a plaintext API key.
func KeyPreview(plaintext string) string {
	if len(plaintext) < 16 {
		return plaintext
	}
	return plaintext[:12] + "****" + plaintext[len(plaintext)-4:]
}

// VerifyAPIKey reports whether plaintext matches hash. Callers are
// expected to short-circuit on the first matching row sharing the same
// prefix, per spec §4.6.
func VerifyAPIKey(plaintext, hash string) bool {
	if plaintext == "" || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// LooksLikeAPIKey performs the cheap structural pre-check spec §4.6
// mandates before the expensive bcrypt path: presence, minimum length,
// and the rmp_ prefix heuristic used by the unified bearer gate.
func LooksLikeAPIKey(token string) bool {
	return strings.HasPrefix(token, APIKeyPrefix) || strings.HasPrefix(token, "rmp_")
}

// ErrMalformedBearer is returned by the gate when the Authorization header
// is present but does not look like "Bearer <token>" of plausible length.
var ErrMalformedBearer = errors.New("malformed bearer token")
