package authn

import (
	"strings"
	"testing"
	"time"
)

func TestAPIKeyRoundTrip(t *testing.T) {
	plaintext, hash, preview, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	if !strings.HasPrefix(plaintext, APIKeyPrefix) {
		t.Fatalf("expected prefix %q, got %q", APIKeyPrefix, plaintext)
	}
	if !strings.HasPrefix(preview, plaintext[:12]) || !strings.HasSuffix(preview, plaintext[len(plaintext)-4:]) {
		t.Fatalf("preview %q does not match plaintext %q", preview, plaintext)
	}
	if !VerifyAPIKey(plaintext, hash) {
		t.Fatalf("expected plaintext to verify against its own hash")
	}

	tampered := plaintext[:len(plaintext)-1] + "x"
	if tampered == plaintext {
		tampered = plaintext[:len(plaintext)-1] + "y"
	}
	if VerifyAPIKey(tampered, hash) {
		t.Fatalf("expected tampered key to fail verification")
	}
}

func TestCredentialCipherRoundTrip(t *testing.T) {
	c, err := NewCredentialCipher("test-secret-value")
	if err != nil {
		t.Fatalf("NewCredentialCipher: %v", err)
	}

	plaintext := "sk-abcdef0123456789"
	encrypted, last4, err := c.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if last4 != plaintext[len(plaintext)-4:] {
		t.Fatalf("unexpected last4 %q", last4)
	}

	decrypted, err := c.Decrypt(encrypted)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if decrypted != plaintext {
		t.Fatalf("decrypt(encrypt(x)) = %q, want %q", decrypted, plaintext)
	}
}

func TestSessionSignerRejectsTamperAndNoneAlg(t *testing.T) {
	signer, err := NewSessionSigner("super-secret", 30*time.Minute)
	if err != nil {
		t.Fatalf("NewSessionSigner: %v", err)
	}

	tok, err := signer.Mint("user-1", "user@example.com")
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	claims, err := signer.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != "user-1" || claims.Email != "user@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	parts := strings.Split(tok, ".")
	tamperedSig := parts[0] + "." + parts[1] + "." + "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	if _, err := signer.Verify(tamperedSig); err == nil {
		t.Fatalf("expected tampered signature to fail verification")
	}

	noneHeader := "eyJhbGciOiJub25lIn0"
	forged := noneHeader + "." + parts[1] + "." + ""
	if _, err := signer.Verify(forged); err == nil {
		t.Fatalf("expected alg=none token to be rejected")
	}
}

func TestSessionSignerExpiry(t *testing.T) {
	signer, err := NewSessionSigner("super-secret", time.Millisecond)
	if err != nil {
		t.Fatalf("NewSessionSigner: %v", err)
	}
	tok, err := signer.Mint("user-1", "user@example.com")
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := signer.Verify(tok); err == nil {
		t.Fatalf("expected expired token to fail verification")
	}
}
