package httpapi

import (
	"encoding/json"
	"net/http"
	"regexp"

	"rampart/internal/apierr"
	"rampart/internal/detect/pii"
)

type piiRequest struct {
	Text           string            `json:"text"`
	CustomPatterns map[string]string `json:"custom_patterns,omitempty"`
}

// compileCustomPatterns turns the request's label→regex map into the
// detector's CustomPattern slice, rejecting any pattern that does not
// compile rather than silently dropping it.
func compileCustomPatterns(raw map[string]string) ([]pii.CustomPattern, error) {
	out := make([]pii.CustomPattern, 0, len(raw))
	for label, pattern := range raw {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, apierr.Validation("invalid custom pattern for " + label + ": " + err.Error())
		}
		out = append(out, pii.CustomPattern{Label: label, Pattern: re})
	}
	return out, nil
}

// handlePIIDetect returns every PII entity found in text without
// modifying it, per spec §4.3.
func (s *Server) handlePIIDetect(w http.ResponseWriter, r *http.Request) {
	var req piiRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		writeAPIErr(w, apierr.Validation("text is required"))
		return
	}

	custom, err := compileCustomPatterns(req.CustomPatterns)
	if err != nil {
		writeAPIErr(w, err)
		return
	}
	entities, err := s.piiDetector.Detect(req.Text, custom)
	if err != nil {
		writeAPIErr(w, apierr.Internal("detecting PII", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entities": entities,
		"count":    len(entities),
	})
}

// handlePIIRedact detects and replaces every PII entity found in text.
func (s *Server) handlePIIRedact(w http.ResponseWriter, r *http.Request) {
	var req piiRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		writeAPIErr(w, apierr.Validation("text is required"))
		return
	}

	custom, err := compileCustomPatterns(req.CustomPatterns)
	if err != nil {
		writeAPIErr(w, err)
		return
	}
	entities, err := s.piiDetector.Detect(req.Text, custom)
	if err != nil {
		writeAPIErr(w, apierr.Internal("detecting PII", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"redacted_text": pii.Redact(req.Text, entities),
		"entities":      entities,
	})
}
