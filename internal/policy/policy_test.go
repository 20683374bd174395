package policy

import (
	"testing"

	"rampart/internal/store"
)

type fakeSource struct {
	byOwner map[string][]store.Policy
}

func (f *fakeSource) ListPolicies(ownerUserID string) ([]store.Policy, error) {
	return f.byOwner[ownerUserID], nil
}

func (f *fakeSource) GetPolicyForOwner(ownerUserID, id string) (*store.Policy, error) {
	for _, p := range f.byOwner[ownerUserID] {
		if p.ID == id {
			cp := p
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func TestEvaluateBlockTakesPrecedenceOverAllowed(t *testing.T) {
	src := &fakeSource{byOwner: map[string][]store.Policy{
		"user-1": {{
			ID: "p1", OwnerUserID: "user-1", Type: "custom", Enabled: true,
			Rules: []store.Rule{{Condition: store.ConditionContainsPII, Action: store.ActionBlock, Priority: 10}},
		}},
	}}
	eng := NewEngine(src)

	result, err := eng.Evaluate("user-1", "my ssn is 123-45-6789", nil)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if result.Allowed {
		t.Fatalf("expected blocked content to be disallowed")
	}
	if result.ModifiedContent != nil {
		t.Fatalf("expected no modified content on block")
	}
	if len(result.Violations) != 1 {
		t.Fatalf("expected 1 violation, got %d", len(result.Violations))
	}
}

func TestEvaluateRedactReplacesWithSentinel(t *testing.T) {
	src := &fakeSource{byOwner: map[string][]store.Policy{
		"user-1": {{
			ID: "p1", OwnerUserID: "user-1", Type: "GDPR", Enabled: true,
			Rules: []store.Rule{{Condition: store.ConditionContainsPII, Action: store.ActionRedact, Priority: 10}},
		}},
	}}
	eng := NewEngine(src)

	result, err := eng.Evaluate("user-1", "please store this credit card number", nil)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !result.Allowed {
		t.Fatalf("REDACT must not block")
	}
	if result.ModifiedContent == nil || *result.ModifiedContent != RedactionSentinel {
		t.Fatalf("expected redaction sentinel, got %+v", result.ModifiedContent)
	}
}

func TestEvaluateDisabledPolicyIsSkipped(t *testing.T) {
	src := &fakeSource{byOwner: map[string][]store.Policy{
		"user-1": {{
			ID: "p1", OwnerUserID: "user-1", Type: "custom", Enabled: false,
			Rules: []store.Rule{{Condition: store.ConditionContainsPII, Action: store.ActionBlock, Priority: 10}},
		}},
	}}
	eng := NewEngine(src)

	result, err := eng.Evaluate("user-1", "my ssn is 123-45-6789", nil)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !result.Allowed || len(result.Violations) != 0 {
		t.Fatalf("expected disabled policy to contribute no violations, got %+v", result)
	}
}

func TestEvaluateUnmappedConditionsNeverFire(t *testing.T) {
	src := &fakeSource{byOwner: map[string][]store.Policy{
		"user-1": {{
			ID: "p1", OwnerUserID: "user-1", Type: "custom", Enabled: true,
			Rules: []store.Rule{{Condition: store.ConditionDataRetentionExceeded, Action: store.ActionBlock, Priority: 10}},
		}},
	}}
	eng := NewEngine(src)

	result, err := eng.Evaluate("user-1", "this content has been retained far too long", nil)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !result.Allowed || len(result.Violations) != 0 {
		t.Fatalf("data_retention_exceeded has no keyword mapping and must never fire, got %+v", result)
	}
}

func TestEvaluateRespectsPolicyIDSubset(t *testing.T) {
	src := &fakeSource{byOwner: map[string][]store.Policy{
		"user-1": {
			{ID: "p1", OwnerUserID: "user-1", Type: "custom", Enabled: true,
				Rules: []store.Rule{{Condition: store.ConditionContainsPII, Action: store.ActionBlock, Priority: 10}}},
			{ID: "p2", OwnerUserID: "user-1", Type: "custom", Enabled: true,
				Rules: []store.Rule{{Condition: store.ConditionContainsPHI, Action: store.ActionBlock, Priority: 10}}},
		},
	}}
	eng := NewEngine(src)

	result, err := eng.Evaluate("user-1", "patient diagnosis notes and my ssn", []string{"p2"})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(result.Violations) != 1 || result.Violations[0].PolicyID != "p2" {
		t.Fatalf("expected only p2's rule to run, got %+v", result.Violations)
	}
}
