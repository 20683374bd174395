package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by lookups that find no matching row.
var ErrNotFound = errors.New("not found")

// User mirrors the User entity in spec §3.
type User struct {
	ID        string
	Email     string
	Active    bool
	CreatedAt time.Time
}

// GetOrCreateUserByEmail implements "created on first successful identity
// verification; never hard-deleted" from spec §3. Email is treated as
// unique, case-insensitively.
func (s *Store) GetOrCreateUserByEmail(email string) (*User, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))

	row := s.db.QueryRow(`SELECT id, email, active, created_at FROM users WHERE lower(email) = ?`, normalized)
	u, err := scanUser(row)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	u = &User{ID: uuid.NewString(), Email: normalized, Active: true, CreatedAt: nowUTC()}
	_, err = s.db.Exec(`INSERT INTO users (id, email, active, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Email, boolToInt(u.Active), u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return u, nil
}

func (s *Store) GetUser(id string) (*User, error) {
	row := s.db.QueryRow(`SELECT id, email, active, created_at FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

func (s *Store) DeactivateUser(id string) error {
	_, err := s.db.Exec(`UPDATE users SET active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deactivating user: %w", err)
	}
	return nil
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	var active int
	if err := row.Scan(&u.ID, &u.Email, &active, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Active = active != 0
	return &u, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
