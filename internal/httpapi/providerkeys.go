package httpapi

import (
	"encoding/json"
	"net/http"

	"rampart/internal/apierr"
	"rampart/internal/authn"
	"rampart/internal/store"
)

// CredentialSource implements router.CredentialSource by decrypting a
// caller's stored provider credential, if any is on file. It is
// constructed independently of Server so router.New can be wired before
// the Server (which itself depends on a *router.Router) is built.
type CredentialSource struct {
	store  *store.Store
	cipher *authn.CredentialCipher
}

func NewCredentialSource(st *store.Store, cipher *authn.CredentialCipher) *CredentialSource {
	return &CredentialSource{store: st, cipher: cipher}
}

func (c *CredentialSource) UserProviderKey(ownerUserID, provider string) (string, bool, error) {
	pk, err := c.store.GetProviderKey(ownerUserID, provider)
	if err != nil {
		return "", false, nil
	}
	plaintext, err := c.cipher.Decrypt(pk.Encrypted)
	if err != nil {
		return "", false, err
	}
	return plaintext, true, nil
}

func (s *Server) handleProviderKeyGet(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFromRequest(r)
	if err != nil {
		writeAPIErr(w, err)
		return
	}
	if err := requireSession(r); err != nil {
		writeAPIErr(w, err)
		return
	}
	provider := r.PathValue("provider")
	pk, err := s.store.GetProviderKey(owner, provider)
	if err != nil {
		writeNotFoundOr500(w, err, "provider key")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"provider": pk.Provider,
		"masked":   authn.MaskProviderKey(pk.Last4, pk.Provider),
		"status":   pk.Status,
	})
}

type putProviderKeyRequest struct {
	APIKey string `json:"api_key"`
}

func (s *Server) handleProviderKeyPut(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFromRequest(r)
	if err != nil {
		writeAPIErr(w, err)
		return
	}
	if err := requireSession(r); err != nil {
		writeAPIErr(w, err)
		return
	}
	var req putProviderKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.APIKey == "" {
		writeAPIErr(w, apierr.Validation("api_key is required"))
		return
	}

	provider := r.PathValue("provider")
	encrypted, last4, err := s.cipher.Encrypt(req.APIKey)
	if err != nil {
		writeAPIErr(w, apierr.Internal("encrypting provider key", err))
		return
	}

	pk, err := s.store.UpsertProviderKey(owner, provider, encrypted, last4)
	if err != nil {
		writeAPIErr(w, apierr.Internal("storing provider key", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"provider": pk.Provider,
		"masked":   authn.MaskProviderKey(pk.Last4, pk.Provider),
		"status":   pk.Status,
	})
}

func (s *Server) handleProviderKeyDelete(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFromRequest(r)
	if err != nil {
		writeAPIErr(w, err)
		return
	}
	if err := requireSession(r); err != nil {
		writeAPIErr(w, err)
		return
	}
	if err := s.store.DeleteProviderKey(owner, r.PathValue("provider")); err != nil {
		writeNotFoundOr500(w, err, "provider key")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
