// Package router resolves which LLM provider backend a /llm/complete
// request should hit and which credential to use, generalizing this
// codebase's multi-backend router (originally model/path/header-based
// backend selection) down to the supplemented proxy feature's simpler
// need: one named provider per request, a caller-owned credential if on
// file, else a system fallback key from config.
package router

import (
	"fmt"
	"os"
	"time"

	"rampart/internal/config"
)

// CredentialSource looks up a decrypted provider credential owned by a
// user, if one exists. Implemented by a thin wrapper around
// internal/store + internal/authn in the HTTP layer.
type CredentialSource interface {
	UserProviderKey(ownerUserID, provider string) (string, bool, error)
}

// Router picks an API key and base URL for a given provider and
// principal.
type Router struct {
	providers map[string]config.Provider
	creds     CredentialSource
	health    *healthTracker
}

// New builds a Router from the configured providers map (spec §D "system-
// level fallback key from config").
func New(providers map[string]config.Provider, creds CredentialSource) *Router {
	return &Router{providers: providers, creds: creds, health: newHealthTracker(30 * time.Second)}
}

// MarkUnhealthy puts provider into a cooldown window after a caller
// observes a server-side failure calling it, so subsequent Resolve
// calls fail fast instead of dispatching into the same outage.
func (r *Router) MarkUnhealthy(provider string) {
	r.health.MarkUnhealthy(provider)
}

// Resolved is what the LLM client needs to place a call.
type Resolved struct {
	Provider string
	BaseURL  string
	APIKey   string
}

// Resolve picks the caller's own provider credential if they have one on
// file, falling back to the system-level key named by the provider's
// configured environment variable.
func (r *Router) Resolve(ownerUserID, provider string) (*Resolved, error) {
	cfg, ok := r.providers[provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
	if !r.health.Healthy(provider) {
		return nil, fmt.Errorf("provider %q is in cooldown after recent failures", provider)
	}

	if key, found, err := r.creds.UserProviderKey(ownerUserID, provider); err != nil {
		return nil, fmt.Errorf("looking up provider credential: %w", err)
	} else if found {
		return &Resolved{Provider: provider, BaseURL: cfg.BaseURL, APIKey: key}, nil
	}

	systemKey := os.Getenv(cfg.APIKeyEnv)
	if systemKey == "" {
		return nil, fmt.Errorf("no credential on file and no system fallback key configured for provider %q", provider)
	}
	return &Resolved{Provider: provider, BaseURL: cfg.BaseURL, APIKey: systemKey}, nil
}
