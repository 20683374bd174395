package router

import (
	"fmt"
	"os"
	"testing"

	"rampart/internal/config"
)

type stubCredSource struct {
	keys map[string]string
}

func (s stubCredSource) UserProviderKey(ownerUserID, provider string) (string, bool, error) {
	key, ok := s.keys[ownerUserID+":"+provider]
	return key, ok, nil
}

func testProviders() map[string]config.Provider {
	return map[string]config.Provider{
		"openai": {BaseURL: "https://api.openai.com/v1", APIKeyEnv: "TEST_OPENAI_KEY"},
	}
}

func TestResolveUsesCallerCredentialWhenOnFile(t *testing.T) {
	creds := stubCredSource{keys: map[string]string{"user-1:openai": "user-key"}}
	r := New(testProviders(), creds)

	resolved, err := r.Resolve("user-1", "openai")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.APIKey != "user-key" {
		t.Fatalf("expected caller's own credential, got %q", resolved.APIKey)
	}
}

func TestResolveFallsBackToSystemKey(t *testing.T) {
	os.Setenv("TEST_OPENAI_KEY", "system-key")
	defer os.Unsetenv("TEST_OPENAI_KEY")

	r := New(testProviders(), stubCredSource{keys: map[string]string{}})
	resolved, err := r.Resolve("user-1", "openai")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.APIKey != "system-key" {
		t.Fatalf("expected system fallback key, got %q", resolved.APIKey)
	}
}

func TestResolveUnknownProvider(t *testing.T) {
	r := New(testProviders(), stubCredSource{})
	if _, err := r.Resolve("user-1", "unknown"); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestResolveNoCredentialAnywhere(t *testing.T) {
	os.Unsetenv("TEST_OPENAI_KEY")
	r := New(testProviders(), stubCredSource{keys: map[string]string{}})
	if _, err := r.Resolve("user-1", "openai"); err == nil {
		t.Fatalf("expected error when neither caller nor system credential is available")
	}
}

func TestResolveFailsFastAfterMarkUnhealthy(t *testing.T) {
	os.Setenv("TEST_OPENAI_KEY", "system-key")
	defer os.Unsetenv("TEST_OPENAI_KEY")

	r := New(testProviders(), stubCredSource{keys: map[string]string{}})
	r.MarkUnhealthy("openai")

	_, err := r.Resolve("user-1", "openai")
	if err == nil {
		t.Fatalf("expected resolve to fail fast while provider is in cooldown")
	}
	want := fmt.Sprintf("provider %q is in cooldown after recent failures", "openai")
	if err.Error() != want {
		t.Fatalf("expected cooldown error %q, got %q", want, err.Error())
	}
}
