package authn

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// sessionAlg is the only signing algorithm this gateway will ever accept.
// A token claiming any other algorithm (including "none") is rejected
// before signature verification runs.
const sessionAlg = "HS256"

// SessionClaims is the payload signed into a session token.
type SessionClaims struct {
	Subject   string    `json:"sub"`
	Email     string    `json:"email"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

// SessionSigner mints and verifies short-lived interactive session tokens.
type SessionSigner struct {
	secret []byte
	ttl    time.Duration
}

func NewSessionSigner(secret string, ttl time.Duration) (*SessionSigner, error) {
	if secret == "" {
		return nil, errors.New("jwt secret key must not be empty")
	}
	if ttl <= 0 || ttl > 30*time.Minute {
		return nil, errors.New("session ttl must be in (0, 30m]")
	}
	return &SessionSigner{secret: []byte(secret), ttl: ttl}, nil
}

// header is a minimal JOSE-style header carrying only the pinned algorithm,
// serialized the same way the body is: base64url(json).
type header struct {
	Alg string `json:"alg"`
}

// Mint produces a token of the form base64url(header).base64url(claims).base64url(signature),
// signed over "header.claims" with HMAC-SHA256.
func (s *SessionSigner) Mint(subject, email string) (string, error) {
	now := time.Now().UTC()
	claims := SessionClaims{
		Subject:   subject,
		Email:     email,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}

	headerJSON, err := json.Marshal(header{Alg: sessionAlg})
	if err != nil {
		return "", fmt.Errorf("encoding header: %w", err)
	}
	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("encoding claims: %w", err)
	}

	headerPart := base64.RawURLEncoding.EncodeToString(headerJSON)
	claimsPart := base64.RawURLEncoding.EncodeToString(claimsJSON)
	signingInput := headerPart + "." + claimsPart

	sig := s.sign(signingInput)
	return signingInput + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

func (s *SessionSigner) sign(signingInput string) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(signingInput))
	return mac.Sum(nil)
}

// Verify decodes and validates tok, rejecting any algorithm other than
// HS256, any tampered signature, and any expired claim set.
func (s *SessionSigner) Verify(tok string) (*SessionClaims, error) {
	parts := strings.Split(tok, ".")
	if len(parts) != 3 {
		return nil, errors.New("malformed session token")
	}

	headerJSON, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, errors.New("malformed session token header")
	}
	var h header
	if err := json.Unmarshal(headerJSON, &h); err != nil {
		return nil, errors.New("malformed session token header")
	}
	if h.Alg != sessionAlg {
		return nil, fmt.Errorf("rejected signing algorithm %q", h.Alg)
	}

	signingInput := parts[0] + "." + parts[1]
	wantSig := s.sign(signingInput)
	gotSig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, errors.New("malformed session token signature")
	}
	if subtle.ConstantTimeCompare(wantSig, gotSig) != 1 {
		return nil, errors.New("session token signature mismatch")
	}

	claimsJSON, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, errors.New("malformed session token claims")
	}
	var claims SessionClaims
	if err := json.Unmarshal(claimsJSON, &claims); err != nil {
		return nil, errors.New("malformed session token claims")
	}

	if time.Now().UTC().After(claims.ExpiresAt) {
		return nil, errors.New("session token expired")
	}

	return &claims, nil
}
