package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"rampart/internal/apierr"
	"rampart/internal/authn"
)

// writeJSON writes v as a JSON body with status, matching this codebase's
// existing control-API response shape.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding response failed", "error", err)
	}
}

// errorEnvelope is the uniform error body shape from spec §7.
type errorEnvelope struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// writeAPIErr renders err as the spec's error envelope, deriving the
// status from its Kind (or 500 if err is not a tagged *apierr.Error).
func writeAPIErr(w http.ResponseWriter, err error) {
	e, ok := apierr.As(err)
	if !ok {
		e = apierr.Internal("unexpected error", err)
	}
	writeJSON(w, e.Status(), errorEnvelope{Error: e.Detail, Kind: string(e.Kind)})
}

func authenticationErr() error  { return apierr.Authentication() }
func quotaExceededErr() error   { return apierr.QuotaExceeded("rate limit exceeded") }
func notFoundErr(what string) error { return apierr.NotFound(what + " not found") }

// ownerFromRequest extracts the authenticated principal's user ID from
// r's context, used by every handler below the bearer gate to scope
// storage lookups to the calling tenant.
func ownerFromRequest(r *http.Request) (string, error) {
	p, ok := authn.PrincipalFrom(r.Context())
	if !ok || p.UserID == "" {
		return "", apierr.Authentication()
	}
	return p.UserID, nil
}

// requireSession rejects requests authenticated via API key, for the
// handlers spec §4.6 restricts to interactive session-token auth only
// (policy management, rampart-key management, provider-credential
// management). An API key must never be usable to mint or revoke other
// credentials.
func requireSession(r *http.Request) error {
	p, ok := authn.PrincipalFrom(r.Context())
	if !ok {
		return apierr.Authentication()
	}
	if p.APIKeyID != "" {
		return apierr.Authorization("this endpoint requires an interactive session, not an API key")
	}
	return nil
}
