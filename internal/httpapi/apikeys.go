package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"rampart/internal/apierr"
	"rampart/internal/authn"
	"rampart/internal/store"
	"rampart/internal/usage"
)

func (s *Server) handleAPIKeysList(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFromRequest(r)
	if err != nil {
		writeAPIErr(w, err)
		return
	}
	if err := requireSession(r); err != nil {
		writeAPIErr(w, err)
		return
	}
	keys, err := s.store.ListAPIKeys(owner)
	if err != nil {
		writeAPIErr(w, apierr.Internal("listing api keys", err))
		return
	}
	for i := range keys {
		keys[i].Hash = ""
	}
	writeJSON(w, http.StatusOK, keys)
}

type createAPIKeyRequest struct {
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
	ExpiresInDays int    `json:"expires_in_days,omitempty"`
}

// handleAPIKeysCreate mints a new rampart API key, enforcing the
// per-owner active-key ceiling and the closed permission vocabulary from
// spec §3/§4.6. The plaintext key is returned exactly once.
func (s *Server) handleAPIKeysCreate(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFromRequest(r)
	if err != nil {
		writeAPIErr(w, err)
		return
	}
	if err := requireSession(r); err != nil {
		writeAPIErr(w, err)
		return
	}
	var req createAPIKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeAPIErr(w, apierr.Validation("name is required"))
		return
	}
	for _, p := range req.Permissions {
		if _, ok := store.ValidPermissions[p]; !ok {
			writeAPIErr(w, apierr.Validation("unrecognized permission: "+p))
			return
		}
	}

	active, err := s.store.CountActiveAPIKeys(owner)
	if err != nil {
		writeAPIErr(w, apierr.Internal("counting active keys", err))
		return
	}
	if active >= store.MaxActiveAPIKeysPerUser {
		writeAPIErr(w, apierr.Validation("active api key limit reached"))
		return
	}

	plaintext, hash, preview, err := authn.GenerateAPIKey()
	if err != nil {
		writeAPIErr(w, apierr.Internal("generating api key", err))
		return
	}

	var expiresAt *time.Time
	if req.ExpiresInDays > 0 {
		t := time.Now().UTC().AddDate(0, 0, req.ExpiresInDays)
		expiresAt = &t
	}

	k := &store.APIKey{
		ID:               uuid.NewString(),
		OwnerUserID:      owner,
		Name:             req.Name,
		Prefix:           PrefixOf(plaintext),
		Hash:             hash,
		Preview:          preview,
		Permissions:      req.Permissions,
		RateLimitPerMin:  60,
		RateLimitPerHour: 1000,
		Active:           true,
		ExpiresAt:        expiresAt,
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.store.CreateAPIKey(k); err != nil {
		writeAPIErr(w, apierr.Internal("creating api key", err))
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":      k.ID,
		"key":     plaintext,
		"preview": preview,
		"name":    k.Name,
	})
}

func (s *Server) handleAPIKeyDelete(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFromRequest(r)
	if err != nil {
		writeAPIErr(w, err)
		return
	}
	if err := requireSession(r); err != nil {
		writeAPIErr(w, err)
		return
	}
	if err := s.store.DeactivateAPIKey(owner, r.PathValue("id")); err != nil {
		writeNotFoundOr500(w, err, "api key")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAPIKeyUsage returns the usage buckets recorded for one of the
// caller's own keys over an optional [from, to] date range (spec §4.7).
func (s *Server) handleAPIKeyUsage(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFromRequest(r)
	if err != nil {
		writeAPIErr(w, err)
		return
	}
	if err := requireSession(r); err != nil {
		writeAPIErr(w, err)
		return
	}

	keyID := r.PathValue("id")
	keys, err := s.store.ListAPIKeys(owner)
	if err != nil {
		writeAPIErr(w, apierr.Internal("listing api keys", err))
		return
	}
	owns := false
	for _, k := range keys {
		if k.ID == keyID {
			owns = true
			break
		}
	}
	if !owns {
		writeAPIErr(w, notFoundErr("api key"))
		return
	}

	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	buckets, err := usage.QueryRange(r.Context(), s.store.DB(), keyID, from, to)
	if err != nil {
		writeAPIErr(w, apierr.Internal("querying usage", err))
		return
	}
	requests, tokens, cost := usage.Totals(buckets)

	writeJSON(w, http.StatusOK, map[string]any{
		"buckets":       buckets,
		"total_requests": requests,
		"total_tokens":   tokens,
		"total_cost":     cost,
	})
}
