package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// IncidentStatus is one of the closed status values from spec §3.
type IncidentStatus string

const (
	IncidentOpen          IncidentStatus = "open"
	IncidentInvestigating IncidentStatus = "investigating"
	IncidentResolved      IncidentStatus = "resolved"
	IncidentFalsePositive IncidentStatus = "false_positive"
)

// allowedTransitions enumerates which status values an incident may move
// to from its current one, per spec §3 "status transitions only within
// allowed set".
var allowedTransitions = map[IncidentStatus]map[IncidentStatus]bool{
	IncidentOpen:          {IncidentInvestigating: true, IncidentResolved: true, IncidentFalsePositive: true},
	IncidentInvestigating: {IncidentResolved: true, IncidentFalsePositive: true},
	IncidentResolved:      {},
	IncidentFalsePositive: {},
}

// Incident mirrors the Incident entity in spec §3.
type Incident struct {
	ID             string
	OwnerUserID    string
	ThreatType     string
	Severity       string
	ContentPreview string
	Status         IncidentStatus
	DetectedAt     time.Time
}

func (s *Store) CreateIncident(ownerUserID, threatType, severity, preview string) (*Incident, error) {
	inc := &Incident{
		ID: uuid.NewString(), OwnerUserID: ownerUserID, ThreatType: threatType,
		Severity: severity, ContentPreview: preview, Status: IncidentOpen, DetectedAt: nowUTC(),
	}
	_, err := s.db.Exec(`
		INSERT INTO incidents (id, owner_user_id, threat_type, severity, content_preview, status, detected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		inc.ID, inc.OwnerUserID, inc.ThreatType, inc.Severity, inc.ContentPreview, string(inc.Status), inc.DetectedAt)
	if err != nil {
		return nil, fmt.Errorf("creating incident: %w", err)
	}
	return inc, nil
}

func (s *Store) ListIncidents(ownerUserID string) ([]Incident, error) {
	rows, err := s.db.Query(`
		SELECT id, owner_user_id, threat_type, severity, content_preview, status, detected_at
		FROM incidents WHERE owner_user_id = ? ORDER BY detected_at DESC`, ownerUserID)
	if err != nil {
		return nil, fmt.Errorf("listing incidents: %w", err)
	}
	defer rows.Close()

	var out []Incident
	for rows.Next() {
		var inc Incident
		var status string
		if err := rows.Scan(&inc.ID, &inc.OwnerUserID, &inc.ThreatType, &inc.Severity, &inc.ContentPreview, &status, &inc.DetectedAt); err != nil {
			return nil, fmt.Errorf("scanning incident: %w", err)
		}
		inc.Status = IncidentStatus(status)
		out = append(out, inc)
	}
	return out, rows.Err()
}

// TransitionIncident moves an incident owned by ownerUserID to newStatus,
// rejecting transitions not present in allowedTransitions.
func (s *Store) TransitionIncident(ownerUserID, id string, newStatus IncidentStatus) error {
	row := s.db.QueryRow(`SELECT status FROM incidents WHERE id = ? AND owner_user_id = ?`, id, ownerUserID)
	var current string
	if err := row.Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("looking up incident: %w", err)
	}

	if !allowedTransitions[IncidentStatus(current)][newStatus] {
		return fmt.Errorf("invalid incident status transition %s -> %s", current, newStatus)
	}

	_, err := s.db.Exec(`UPDATE incidents SET status = ? WHERE id = ? AND owner_user_id = ?`, string(newStatus), id, ownerUserID)
	if err != nil {
		return fmt.Errorf("updating incident: %w", err)
	}
	return nil
}
