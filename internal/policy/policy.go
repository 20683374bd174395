// Package policy implements the gateway's user-scoped policy engine
// (spec §4.5): ordered rule sets evaluated against content, each rule
// keyed by a condition tag from a closed vocabulary and mapped to one
// of ALLOW/BLOCK/REDACT/FLAG/ALERT. Evaluation order, redaction, and
// the allowed/blocked combination rule follow this gateway's existing
// content-policy evaluator; the condition vocabulary keeps that
// evaluator's substring-match semantics rather than routing through
// the dedicated detectors, per spec §10's note that this is a known
// limitation to preserve rather than silently fix.
package policy

import (
	"log/slog"
	"sort"
	"strings"

	"rampart/internal/store"
)

// conditionKeywords maps each closed condition tag to the substrings
// whose presence (case-insensitive) triggers it. Four of the seven
// vocabulary entries — data_retention_exceeded, unauthorized_access,
// audit_log_required, encryption_required — have no keyword mapping in
// the source this was grounded on; they are accepted by policies and
// templates but never fire from content alone, same as upstream.
var conditionKeywords = map[store.Condition][]string{
	store.ConditionContainsPII: {"ssn", "social security", "credit card"},
	store.ConditionContainsPHI: {"patient", "diagnosis", "medical record"},
	store.ConditionProfanity:   {},
}

// RedactionSentinel is the fixed replacement text for REDACT actions,
// matching the single-sentinel behavior spec §4.5 requires ("REDACT
// replaces content with a single sentinel").
const RedactionSentinel = "[REDACTED]"

// Violation records one rule firing during evaluation.
type Violation struct {
	PolicyID   string        `json:"policy_id"`
	PolicyType string        `json:"policy_type"`
	Condition  store.Condition `json:"condition"`
	Action     store.Action  `json:"action"`
	Priority   int           `json:"priority"`
	Reason     string        `json:"reason"`
}

// Result is the outcome of Evaluate.
type Result struct {
	Allowed         bool        `json:"allowed"`
	Violations      []Violation `json:"violations"`
	ActionsTaken    []string    `json:"actions_taken"`
	ModifiedContent *string     `json:"modified_content,omitempty"`
}

// PolicySource loads the policies to evaluate for a principal, either a
// specific subset (policyIDs non-empty) or every enabled policy they own.
type PolicySource interface {
	ListPolicies(ownerUserID string) ([]store.Policy, error)
	GetPolicyForOwner(ownerUserID, id string) (*store.Policy, error)
}

// Engine evaluates content against a principal's policies.
type Engine struct {
	source PolicySource
}

// NewEngine builds an Engine backed by source, typically *store.Store.
func NewEngine(source PolicySource) *Engine {
	return &Engine{source: source}
}

// Evaluate runs content through every enabled policy owned by
// ownerUserID (or just policyIDs, if given), in descending rule
// priority order, per spec §4.5.
func (e *Engine) Evaluate(ownerUserID, content string, policyIDs []string) (*Result, error) {
	policies, err := e.resolvePolicies(ownerUserID, policyIDs)
	if err != nil {
		return nil, err
	}

	result := &Result{Allowed: true}
	modified := content
	blocked := false
	lower := strings.ToLower(content)

	for _, p := range policies {
		if !p.Enabled {
			continue
		}
		rules := append([]store.Rule(nil), p.Rules...)
		sort.SliceStable(rules, func(i, j int) bool { return rules[i].Priority > rules[j].Priority })

		for _, rule := range rules {
			if !conditionMatches(rule.Condition, lower) {
				continue
			}

			v := Violation{
				PolicyID:   p.ID,
				PolicyType: p.Type,
				Condition:  rule.Condition,
				Action:     rule.Action,
				Priority:   rule.Priority,
				Reason:     "rule condition '" + string(rule.Condition) + "' triggered",
			}
			result.Violations = append(result.Violations, v)
			result.ActionsTaken = append(result.ActionsTaken, p.Type+": "+string(rule.Action))

			switch rule.Action {
			case store.ActionRedact:
				modified = RedactionSentinel
			case store.ActionBlock:
				blocked = true
			case store.ActionAlert:
				slog.Warn("policy alert", "policy_id", p.ID, "condition", rule.Condition, "owner", ownerUserID)
			}
		}
	}

	result.Allowed = !blocked
	if blocked {
		result.ModifiedContent = nil
	} else if modified != content {
		result.ModifiedContent = &modified
	}
	return result, nil
}

func (e *Engine) resolvePolicies(ownerUserID string, policyIDs []string) ([]store.Policy, error) {
	if len(policyIDs) == 0 {
		return e.source.ListPolicies(ownerUserID)
	}

	var out []store.Policy
	for _, id := range policyIDs {
		p, err := e.source.GetPolicyForOwner(ownerUserID, id)
		if err != nil {
			if err == store.ErrNotFound {
				continue
			}
			return nil, err
		}
		if p.Enabled {
			out = append(out, *p)
		}
	}
	return out, nil
}

func conditionMatches(c store.Condition, lowerContent string) bool {
	keywords, ok := conditionKeywords[c]
	if !ok || len(keywords) == 0 {
		return false
	}
	for _, kw := range keywords {
		if strings.Contains(lowerContent, kw) {
			return true
		}
	}
	return false
}
