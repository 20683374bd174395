package store

import (
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "rampart_test.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetOrCreateUserByEmailIsCaseInsensitiveAndIdempotent(t *testing.T) {
	s := newTestStore(t)

	u1, err := s.GetOrCreateUserByEmail("Person@Example.com")
	if err != nil {
		t.Fatalf("GetOrCreateUserByEmail: %v", err)
	}
	u2, err := s.GetOrCreateUserByEmail("person@example.com")
	if err != nil {
		t.Fatalf("GetOrCreateUserByEmail: %v", err)
	}
	if u1.ID != u2.ID {
		t.Fatalf("expected same user id, got %q and %q", u1.ID, u2.ID)
	}
}

func TestPolicyCrossTenantIsolation(t *testing.T) {
	s := newTestStore(t)
	userA, _ := s.GetOrCreateUserByEmail("a@example.com")
	userB, _ := s.GetOrCreateUserByEmail("b@example.com")

	p, err := s.CreatePolicy(userA.ID, "custom", []Rule{{Condition: ConditionContainsPII, Action: ActionFlag, Priority: 1}})
	if err != nil {
		t.Fatalf("CreatePolicy: %v", err)
	}

	if _, err := s.GetPolicyForOwner(userB.ID, p.ID); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for cross-tenant access, got %v", err)
	}

	list, err := s.ListPolicies(userB.ID)
	if err != nil {
		t.Fatalf("ListPolicies: %v", err)
	}
	for _, lp := range list {
		if lp.ID == p.ID {
			t.Fatalf("user B's policy list must not include user A's policy")
		}
	}
}

func TestPolicyVersionIncrementsOnUpdate(t *testing.T) {
	s := newTestStore(t)
	user, _ := s.GetOrCreateUserByEmail("c@example.com")

	p, err := s.CreatePolicy(user.ID, "custom", nil)
	if err != nil {
		t.Fatalf("CreatePolicy: %v", err)
	}
	if p.Version != 1 {
		t.Fatalf("expected initial version 1, got %d", p.Version)
	}

	updated, err := s.UpdatePolicy(user.ID, p.ID, []Rule{{Condition: ConditionProfanity, Action: ActionBlock, Priority: 10}}, true)
	if err != nil {
		t.Fatalf("UpdatePolicy: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("expected version to increment to 2, got %d", updated.Version)
	}
}

func TestMaxActiveAPIKeysEnforcedByCaller(t *testing.T) {
	s := newTestStore(t)
	user, _ := s.GetOrCreateUserByEmail("d@example.com")

	for i := 0; i < MaxActiveAPIKeysPerUser; i++ {
		err := s.CreateAPIKey(&APIKey{
			ID: "key-" + string(rune('a'+i)), OwnerUserID: user.ID, Name: "k",
			Prefix: "rmp_live_", Hash: "hash", Preview: "preview", Active: true,
			RateLimitPerMin: 60, RateLimitPerHour: 1000, CreatedAt: nowUTC(),
		})
		if err != nil {
			t.Fatalf("CreateAPIKey: %v", err)
		}
	}

	count, err := s.CountActiveAPIKeys(user.ID)
	if err != nil {
		t.Fatalf("CountActiveAPIKeys: %v", err)
	}
	if count != MaxActiveAPIKeysPerUser {
		t.Fatalf("expected %d active keys, got %d", MaxActiveAPIKeysPerUser, count)
	}
}

func TestIncidentStatusTransitions(t *testing.T) {
	s := newTestStore(t)
	user, _ := s.GetOrCreateUserByEmail("e@example.com")

	inc, err := s.CreateIncident(user.ID, "prompt_injection", "CRITICAL", "preview text")
	if err != nil {
		t.Fatalf("CreateIncident: %v", err)
	}
	if inc.Status != IncidentOpen {
		t.Fatalf("expected open status, got %v", inc.Status)
	}

	if err := s.TransitionIncident(user.ID, inc.ID, IncidentResolved); err != nil {
		t.Fatalf("TransitionIncident open->resolved: %v", err)
	}
	if err := s.TransitionIncident(user.ID, inc.ID, IncidentInvestigating); err == nil {
		t.Fatalf("expected resolved->investigating to be rejected")
	}
}

func TestProviderKeyUpsertEnforcesOnePerProvider(t *testing.T) {
	s := newTestStore(t)
	user, _ := s.GetOrCreateUserByEmail("f@example.com")

	if _, err := s.UpsertProviderKey(user.ID, "openai", "blob-1", "abcd"); err != nil {
		t.Fatalf("UpsertProviderKey: %v", err)
	}
	if _, err := s.UpsertProviderKey(user.ID, "openai", "blob-2", "wxyz"); err != nil {
		t.Fatalf("UpsertProviderKey overwrite: %v", err)
	}

	pk, err := s.GetProviderKey(user.ID, "openai")
	if err != nil {
		t.Fatalf("GetProviderKey: %v", err)
	}
	if pk.Encrypted != "blob-2" || pk.Last4 != "wxyz" {
		t.Fatalf("expected overwritten values, got %+v", pk)
	}
}
