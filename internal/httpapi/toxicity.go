package httpapi

import (
	"encoding/json"
	"net/http"

	"rampart/internal/apierr"
	"rampart/internal/toxicity"
)

type toxicityRequest struct {
	Text      string  `json:"text"`
	Threshold float64 `json:"threshold,omitempty"`
}

// handleToxicityAnalyze scores text for toxicity against the configured
// (or request-supplied) threshold.
func (s *Server) handleToxicityAnalyze(w http.ResponseWriter, r *http.Request) {
	var req toxicityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		writeAPIErr(w, apierr.Validation("text is required"))
		return
	}

	threshold := s.toxThreshold
	if req.Threshold > 0 {
		threshold = req.Threshold
	}

	result := toxicity.Analyze(s.toxScorer, req.Text, threshold)
	writeJSON(w, http.StatusOK, result)
}
