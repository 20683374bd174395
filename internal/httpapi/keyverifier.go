package httpapi

import (
	"context"
	"fmt"

	"rampart/internal/authn"
	"rampart/internal/store"
)

// prefixLen is how much of the plaintext key is stored unhashed
// ("rmp_live_" plus the first few characters of entropy) so lookups can
// narrow to a small candidate set before paying for bcrypt.
const prefixLen = 16

// StoreKeyVerifier implements authn.KeyVerifier against *store.Store,
// short-circuiting on the first prefix-sharing row whose bcrypt hash
// matches, per spec §4.6.
type StoreKeyVerifier struct {
	store *store.Store
}

func NewStoreKeyVerifier(s *store.Store) *StoreKeyVerifier {
	return &StoreKeyVerifier{store: s}
}

// PrefixOf returns the stored lookup prefix for plaintext, used both when
// persisting a newly generated key and when verifying a presented one.
func PrefixOf(plaintext string) string {
	if len(plaintext) > prefixLen {
		return plaintext[:prefixLen]
	}
	return plaintext
}

func (v *StoreKeyVerifier) VerifyAPIKey(ctx context.Context, plaintext string) (authn.Principal, string, bool, error) {
	candidates, err := v.store.FindActiveByPrefix(PrefixOf(plaintext))
	if err != nil {
		return authn.Principal{}, "", false, fmt.Errorf("looking up api key candidates: %w", err)
	}

	for _, k := range candidates {
		if !authn.VerifyAPIKey(plaintext, k.Hash) {
			continue
		}
		if err := v.store.TouchAPIKeyLastUsed(k.ID); err != nil {
			return authn.Principal{}, "", false, fmt.Errorf("touching api key: %w", err)
		}
		return authn.Principal{UserID: k.OwnerUserID}, k.ID, true, nil
	}
	return authn.Principal{}, "", false, nil
}
