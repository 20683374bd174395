package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// MaxActiveAPIKeysPerUser is the ceiling enforced by spec §3 / §4.6.
const MaxActiveAPIKeysPerUser = 10

// APIKey mirrors the API Key entity in spec §3. Plaintext is never
// persisted; Hash is the bcrypt digest.
type APIKey struct {
	ID                string
	OwnerUserID       string
	Name              string
	Prefix            string
	Hash              string
	Preview           string
	Permissions       []string
	RateLimitPerMin   int
	RateLimitPerHour  int
	Active            bool
	ExpiresAt         *time.Time
	LastUsedAt        *time.Time
	CreatedAt         time.Time
}

// ValidPermissions is the closed permission vocabulary from the source
// this gateway's key-management endpoints were grounded on.
var ValidPermissions = map[string]struct{}{
	"security:analyze": {}, "security:batch": {}, "filter:pii": {},
	"filter:toxicity": {}, "llm:chat": {}, "llm:stream": {},
	"analytics:read": {}, "test:run": {},
}

func (s *Store) CountActiveAPIKeys(ownerUserID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM rampart_api_keys WHERE owner_user_id = ? AND active = 1`, ownerUserID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting active keys: %w", err)
	}
	return n, nil
}

func (s *Store) CreateAPIKey(k *APIKey) error {
	permissions := strings.Join(k.Permissions, ",")
	_, err := s.db.Exec(`
		INSERT INTO rampart_api_keys
		(id, owner_user_id, name, prefix, hash, preview, permissions, rate_limit_per_minute, rate_limit_per_hour, active, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		k.ID, k.OwnerUserID, k.Name, k.Prefix, k.Hash, k.Preview, permissions,
		k.RateLimitPerMin, k.RateLimitPerHour, boolToInt(k.Active), k.ExpiresAt, k.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating api key: %w", err)
	}
	return nil
}

func (s *Store) ListAPIKeys(ownerUserID string) ([]APIKey, error) {
	rows, err := s.db.Query(`
		SELECT id, owner_user_id, name, prefix, hash, preview, permissions, rate_limit_per_minute, rate_limit_per_hour, active, expires_at, last_used_at, created_at
		FROM rampart_api_keys WHERE owner_user_id = ? ORDER BY created_at DESC`, ownerUserID)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}
	defer rows.Close()

	var out []APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning api key: %w", err)
		}
		out = append(out, *k)
	}
	return out, rows.Err()
}

// FindActiveByPrefix returns every active, non-expired key sharing prefix,
// for the gate's short-circuiting bcrypt verification loop.
func (s *Store) FindActiveByPrefix(prefix string) ([]APIKey, error) {
	rows, err := s.db.Query(`
		SELECT id, owner_user_id, name, prefix, hash, preview, permissions, rate_limit_per_minute, rate_limit_per_hour, active, expires_at, last_used_at, created_at
		FROM rampart_api_keys WHERE prefix = ? AND active = 1`, prefix)
	if err != nil {
		return nil, fmt.Errorf("finding api keys by prefix: %w", err)
	}
	defer rows.Close()

	var out []APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning api key: %w", err)
		}
		if k.ExpiresAt != nil && k.ExpiresAt.Before(nowUTC()) {
			continue
		}
		out = append(out, *k)
	}
	return out, rows.Err()
}

func (s *Store) TouchAPIKeyLastUsed(id string) error {
	_, err := s.db.Exec(`UPDATE rampart_api_keys SET last_used_at = ? WHERE id = ?`, nowUTC(), id)
	if err != nil {
		return fmt.Errorf("touching api key: %w", err)
	}
	return nil
}

func (s *Store) DeactivateAPIKey(ownerUserID, id string) error {
	res, err := s.db.Exec(`UPDATE rampart_api_keys SET active = 0 WHERE id = ? AND owner_user_id = ?`, id, ownerUserID)
	if err != nil {
		return fmt.Errorf("deactivating api key: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAPIKey(rows *sql.Rows) (*APIKey, error) {
	var k APIKey
	var active int
	var permissions string
	var expiresAt, lastUsedAt sql.NullTime
	if err := rows.Scan(&k.ID, &k.OwnerUserID, &k.Name, &k.Prefix, &k.Hash, &k.Preview, &permissions,
		&k.RateLimitPerMin, &k.RateLimitPerHour, &active, &expiresAt, &lastUsedAt, &k.CreatedAt); err != nil {
		return nil, err
	}
	k.Active = active != 0
	if permissions != "" {
		k.Permissions = strings.Split(permissions, ",")
	}
	if expiresAt.Valid {
		k.ExpiresAt = &expiresAt.Time
	}
	if lastUsedAt.Valid {
		k.LastUsedAt = &lastUsedAt.Time
	}
	return &k, nil
}
