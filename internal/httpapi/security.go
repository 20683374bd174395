package httpapi

import (
	"encoding/json"
	"net/http"

	"rampart/internal/apierr"
	"rampart/internal/decision"
	"rampart/internal/detect/pii"
	"rampart/internal/telemetry"
	"rampart/internal/toxicity"
)

type analyzeRequest struct {
	Content string `json:"content"`
	Context string `json:"context,omitempty"` // "input" (default), "output", or "system_prompt"
}

func contextTypeOf(raw string) decision.ContextType {
	switch decision.ContextType(raw) {
	case decision.ContextOutput:
		return decision.ContextOutput
	case decision.ContextSystemPrompt:
		return decision.ContextSystemPrompt
	default:
		return decision.ContextInput
	}
}

// handleSecurityAnalyze runs the combined detector pipeline (spec §4.4)
// over arbitrary content and, when the result is unsafe, opens an
// incident (spec §4.8) for the calling principal.
func (s *Server) handleSecurityAnalyze(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFromRequest(r)
	if err != nil {
		writeAPIErr(w, err)
		return
	}

	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" {
		writeAPIErr(w, apierr.Validation("content is required"))
		return
	}

	ctx, span := s.telemetry.StartPhaseSpan(r.Context(), "detectors")
	result := s.combiner.Analyze(req.Content, contextTypeOf(req.Context))
	span.End()
	telemetry.RecordDecision(ctx, recommendationOf(result), result.Risk)

	if !result.Safe && len(result.Threats) > 0 {
		top := result.Threats[0]
		preview := s.redactor.Redact(previewOf(req.Content))
		if _, err := s.store.CreateIncident(owner, top.Type, string(top.Severity), preview); err != nil {
			writeAPIErr(w, apierr.Internal("recording incident", err))
			return
		}
	}

	writeJSON(w, http.StatusOK, result)
}

func recommendationOf(r decision.Result) string {
	if r.Safe {
		return "allow"
	}
	if len(r.Threats) > 0 {
		return r.Threats[0].RecommendedAction
	}
	return "flag"
}

func previewOf(content string) string {
	const maxPreview = 256
	if len(content) <= maxPreview {
		return content
	}
	return content[:maxPreview]
}

type filterRequest struct {
	Content        string            `json:"content"`
	Filters        []string          `json:"filters,omitempty"` // "pii", "toxicity"; both run when omitted
	Redact         bool              `json:"redact,omitempty"`
	CustomPatterns map[string]string `json:"custom_patterns,omitempty"`
	Threshold      float64           `json:"threshold,omitempty"`
}

type filterResponse struct {
	FilteredContent string            `json:"filtered_content"`
	Entities        []pii.Entity      `json:"entities"`
	Toxicity        *toxicity.Result  `json:"toxicity,omitempty"`
}

func wantsFilter(filters []string, name string) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if f == name {
			return true
		}
	}
	return false
}

// handleFilter runs PII detection and toxicity scoring over content and,
// when requested, redacts the detected PII entities in place — spec
// §4.4's "PII + toxicity + optional redaction" contract. Unlike
// /security/analyze, it never touches the injection/exfiltration
// combiner or the policy engine; those remain scoped to /security/analyze
// and /policies/evaluate.
func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	if _, err := ownerFromRequest(r); err != nil {
		writeAPIErr(w, err)
		return
	}

	var req filterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" {
		writeAPIErr(w, apierr.Validation("content is required"))
		return
	}

	resp := filterResponse{FilteredContent: req.Content, Entities: []pii.Entity{}}

	if wantsFilter(req.Filters, "pii") {
		custom, err := compileCustomPatterns(req.CustomPatterns)
		if err != nil {
			writeAPIErr(w, err)
			return
		}
		entities, err := s.piiDetector.Detect(req.Content, custom)
		if err != nil {
			writeAPIErr(w, apierr.Internal("detecting PII", err))
			return
		}
		resp.Entities = entities
		if req.Redact {
			resp.FilteredContent = pii.Redact(req.Content, entities)
		}
	}

	if wantsFilter(req.Filters, "toxicity") {
		threshold := s.toxThreshold
		if req.Threshold > 0 {
			threshold = req.Threshold
		}
		result := toxicity.Analyze(s.toxScorer, req.Content, threshold)
		resp.Toxicity = &result
	}

	writeJSON(w, http.StatusOK, resp)
}
