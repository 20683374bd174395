package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ProviderKey mirrors the Provider Credential entity in spec §3. Plaintext
// is never stored; Encrypted is the AES-GCM blob from internal/authn.
type ProviderKey struct {
	ID          string
	OwnerUserID string
	Provider    string
	Encrypted   string
	Last4       string
	Status      string
	CreatedAt   time.Time
}

// UpsertProviderKey enforces "≤1 active per (user, provider)" by
// overwriting on conflict, per spec §3's "Created/overwritten on upsert"
// lifecycle.
func (s *Store) UpsertProviderKey(ownerUserID, provider, encrypted, last4 string) (*ProviderKey, error) {
	pk := &ProviderKey{
		ID:          uuid.NewString(),
		OwnerUserID: ownerUserID,
		Provider:    provider,
		Encrypted:   encrypted,
		Last4:       last4,
		Status:      "active",
		CreatedAt:   nowUTC(),
	}

	_, err := s.db.Exec(`
		INSERT INTO provider_keys (id, owner_user_id, provider, encrypted, last4, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_user_id, provider) DO UPDATE SET
			encrypted = excluded.encrypted,
			last4 = excluded.last4,
			status = excluded.status,
			created_at = excluded.created_at`,
		pk.ID, pk.OwnerUserID, pk.Provider, pk.Encrypted, pk.Last4, pk.Status, pk.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upserting provider key: %w", err)
	}
	return pk, nil
}

func (s *Store) GetProviderKey(ownerUserID, provider string) (*ProviderKey, error) {
	row := s.db.QueryRow(`
		SELECT id, owner_user_id, provider, encrypted, last4, status, created_at
		FROM provider_keys WHERE owner_user_id = ? AND provider = ?`, ownerUserID, provider)

	var pk ProviderKey
	err := row.Scan(&pk.ID, &pk.OwnerUserID, &pk.Provider, &pk.Encrypted, &pk.Last4, &pk.Status, &pk.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting provider key: %w", err)
	}
	return &pk, nil
}

func (s *Store) DeleteProviderKey(ownerUserID, provider string) error {
	res, err := s.db.Exec(`DELETE FROM provider_keys WHERE owner_user_id = ? AND provider = ?`, ownerUserID, provider)
	if err != nil {
		return fmt.Errorf("deleting provider key: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
