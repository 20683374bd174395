package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Action is one of the closed policy-rule actions from spec §3/§4.5.
type Action string

const (
	ActionAllow  Action = "ALLOW"
	ActionBlock  Action = "BLOCK"
	ActionRedact Action = "REDACT"
	ActionFlag   Action = "FLAG"
	ActionAlert  Action = "ALERT"
)

// Condition is one of the closed rule-condition tags from spec §4.5.
type Condition string

const (
	ConditionContainsPII            Condition = "contains_pii"
	ConditionContainsPHI            Condition = "contains_phi"
	ConditionProfanity              Condition = "profanity"
	ConditionDataRetentionExceeded  Condition = "data_retention_exceeded"
	ConditionUnauthorizedAccess     Condition = "unauthorized_access"
	ConditionAuditLogRequired       Condition = "audit_log_required"
	ConditionEncryptionRequired     Condition = "encryption_required"
)

// Rule is a single policy rule (spec §3: "embedded in policy; no
// independent identity").
type Rule struct {
	Condition Condition         `json:"condition"`
	Action    Action            `json:"action"`
	Priority  int               `json:"priority"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Policy mirrors the Policy entity in spec §3.
type Policy struct {
	ID          string    `json:"id"`
	OwnerUserID string    `json:"owner_user_id"`
	Type        string    `json:"type"`
	Rules       []Rule    `json:"rules"`
	Enabled     bool      `json:"enabled"`
	Version     int       `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (s *Store) CreatePolicy(ownerUserID, typ string, rules []Rule) (*Policy, error) {
	now := nowUTC()
	p := &Policy{
		ID: uuid.NewString(), OwnerUserID: ownerUserID, Type: typ, Rules: rules,
		Enabled: true, Version: 1, CreatedAt: now, UpdatedAt: now,
	}
	rulesJSON, err := json.Marshal(p.Rules)
	if err != nil {
		return nil, fmt.Errorf("encoding rules: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO policies (id, owner_user_id, type, rules, enabled, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.OwnerUserID, p.Type, string(rulesJSON), boolToInt(p.Enabled), p.Version, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating policy: %w", err)
	}
	return p, nil
}

func (s *Store) ListPolicies(ownerUserID string) ([]Policy, error) {
	rows, err := s.db.Query(`
		SELECT id, owner_user_id, type, rules, enabled, version, created_at, updated_at
		FROM policies WHERE owner_user_id = ? ORDER BY created_at DESC`, ownerUserID)
	if err != nil {
		return nil, fmt.Errorf("listing policies: %w", err)
	}
	defer rows.Close()

	var out []Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning policy: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// GetPolicyForOwner returns 404-equivalent ErrNotFound both when the
// policy does not exist and when it exists but is owned by someone else,
// so cross-tenant probing cannot distinguish the two (spec §8 invariant).
func (s *Store) GetPolicyForOwner(ownerUserID, id string) (*Policy, error) {
	row := s.db.QueryRow(`
		SELECT id, owner_user_id, type, rules, enabled, version, created_at, updated_at
		FROM policies WHERE id = ? AND owner_user_id = ?`, id, ownerUserID)
	p, err := scanPolicyRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting policy: %w", err)
	}
	return p, nil
}

func (s *Store) UpdatePolicy(ownerUserID, id string, rules []Rule, enabled bool) (*Policy, error) {
	existing, err := s.GetPolicyForOwner(ownerUserID, id)
	if err != nil {
		return nil, err
	}
	rulesJSON, err := json.Marshal(rules)
	if err != nil {
		return nil, fmt.Errorf("encoding rules: %w", err)
	}
	existing.Rules = rules
	existing.Enabled = enabled
	existing.Version++
	existing.UpdatedAt = nowUTC()

	_, err = s.db.Exec(`
		UPDATE policies SET rules = ?, enabled = ?, version = ?, updated_at = ?
		WHERE id = ? AND owner_user_id = ?`,
		string(rulesJSON), boolToInt(existing.Enabled), existing.Version, existing.UpdatedAt, id, ownerUserID)
	if err != nil {
		return nil, fmt.Errorf("updating policy: %w", err)
	}
	return existing, nil
}

func (s *Store) DeletePolicy(ownerUserID, id string) error {
	res, err := s.db.Exec(`DELETE FROM policies WHERE id = ? AND owner_user_id = ?`, id, ownerUserID)
	if err != nil {
		return fmt.Errorf("deleting policy: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanPolicy(rows *sql.Rows) (*Policy, error) {
	var p Policy
	var enabled int
	var rulesJSON string
	if err := rows.Scan(&p.ID, &p.OwnerUserID, &p.Type, &rulesJSON, &enabled, &p.Version, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Enabled = enabled != 0
	if err := json.Unmarshal([]byte(rulesJSON), &p.Rules); err != nil {
		return nil, fmt.Errorf("decoding rules: %w", err)
	}
	return &p, nil
}

func scanPolicyRow(row *sql.Row) (*Policy, error) {
	var p Policy
	var enabled int
	var rulesJSON string
	if err := row.Scan(&p.ID, &p.OwnerUserID, &p.Type, &rulesJSON, &enabled, &p.Version, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Enabled = enabled != 0
	if err := json.Unmarshal([]byte(rulesJSON), &p.Rules); err != nil {
		return nil, fmt.Errorf("decoding rules: %w", err)
	}
	return &p, nil
}

// PolicyTemplate is a seed rule set for one compliance registry entry
// (spec §4.5 "Templates").
type PolicyTemplate struct {
	Name  string
	Rules []Rule
}

// builtinPolicyTemplates is the seed data written into policy_defaults
// the first time a database is opened. The table, not this map, is the
// source of truth at runtime: PolicyTemplateByName always reads back
// through SQL so an operator can edit a template's rules in place
// without a code change.
var builtinPolicyTemplates = map[string]PolicyTemplate{
	"GDPR": {Name: "GDPR", Rules: []Rule{
		{Condition: ConditionContainsPII, Action: ActionRedact, Priority: 100},
		{Condition: ConditionDataRetentionExceeded, Action: ActionAlert, Priority: 90},
		{Condition: ConditionAuditLogRequired, Action: ActionFlag, Priority: 50},
	}},
	"HIPAA": {Name: "HIPAA", Rules: []Rule{
		{Condition: ConditionContainsPHI, Action: ActionBlock, Priority: 100},
		{Condition: ConditionUnauthorizedAccess, Action: ActionBlock, Priority: 95},
		{Condition: ConditionEncryptionRequired, Action: ActionFlag, Priority: 60},
	}},
	"SOC2": {Name: "SOC2", Rules: []Rule{
		{Condition: ConditionAuditLogRequired, Action: ActionFlag, Priority: 100},
		{Condition: ConditionUnauthorizedAccess, Action: ActionBlock, Priority: 90},
	}},
	"PCI-DSS": {Name: "PCI-DSS", Rules: []Rule{
		{Condition: ConditionContainsPII, Action: ActionRedact, Priority: 100},
		{Condition: ConditionEncryptionRequired, Action: ActionBlock, Priority: 95},
	}},
	"CCPA": {Name: "CCPA", Rules: []Rule{
		{Condition: ConditionContainsPII, Action: ActionRedact, Priority: 100},
		{Condition: ConditionDataRetentionExceeded, Action: ActionAlert, Priority: 80},
	}},
}

// seedPolicyDefaults writes builtinPolicyTemplates into policy_defaults,
// skipping any key already present so an operator's edits survive
// restarts (spec §4.5: reseeded idempotently at startup).
func (s *Store) seedPolicyDefaults() error {
	for name, tpl := range builtinPolicyTemplates {
		encoded, err := json.Marshal(tpl)
		if err != nil {
			return fmt.Errorf("encoding policy template %s: %w", name, err)
		}
		if _, err := s.db.Exec(
			`INSERT OR IGNORE INTO policy_defaults (key, json) VALUES (?, ?)`,
			name, string(encoded),
		); err != nil {
			return fmt.Errorf("seeding policy template %s: %w", name, err)
		}
	}
	return nil
}

// PolicyTemplateByName returns the seed rule set for tpl from
// policy_defaults, or false if tpl is not a recognized template name.
func (s *Store) PolicyTemplateByName(tpl string) (PolicyTemplate, bool) {
	row := s.db.QueryRow(`SELECT json FROM policy_defaults WHERE key = ?`, tpl)
	var encoded string
	if err := row.Scan(&encoded); err != nil {
		return PolicyTemplate{}, false
	}
	var t PolicyTemplate
	if err := json.Unmarshal([]byte(encoded), &t); err != nil {
		return PolicyTemplate{}, false
	}
	return t, true
}
