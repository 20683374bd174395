package httpapi

import (
	"encoding/json"
	"net/http"

	"rampart/internal/apierr"
	"rampart/internal/store"
)

func (s *Server) handlePoliciesList(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFromRequest(r)
	if err != nil {
		writeAPIErr(w, err)
		return
	}
	if err := requireSession(r); err != nil {
		writeAPIErr(w, err)
		return
	}
	policies, err := s.store.ListPolicies(owner)
	if err != nil {
		writeAPIErr(w, apierr.Internal("listing policies", err))
		return
	}
	writeJSON(w, http.StatusOK, policies)
}

type createPolicyRequest struct {
	Type  string       `json:"type"`
	Rules []store.Rule `json:"rules"`
}

func (s *Server) handlePoliciesCreate(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFromRequest(r)
	if err != nil {
		writeAPIErr(w, err)
		return
	}
	if err := requireSession(r); err != nil {
		writeAPIErr(w, err)
		return
	}
	var req createPolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Type == "" {
		writeAPIErr(w, apierr.Validation("type is required"))
		return
	}
	if err := validateRules(req.Rules); err != nil {
		writeAPIErr(w, err)
		return
	}

	p, err := s.store.CreatePolicy(owner, req.Type, req.Rules)
	if err != nil {
		writeAPIErr(w, apierr.Internal("creating policy", err))
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handlePolicyGet(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFromRequest(r)
	if err != nil {
		writeAPIErr(w, err)
		return
	}
	if err := requireSession(r); err != nil {
		writeAPIErr(w, err)
		return
	}
	p, err := s.store.GetPolicyForOwner(owner, r.PathValue("id"))
	if err != nil {
		writeNotFoundOr500(w, err, "policy")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type updatePolicyRequest struct {
	Rules   []store.Rule `json:"rules"`
	Enabled bool         `json:"enabled"`
}

func (s *Server) handlePolicyUpdate(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFromRequest(r)
	if err != nil {
		writeAPIErr(w, err)
		return
	}
	if err := requireSession(r); err != nil {
		writeAPIErr(w, err)
		return
	}
	var req updatePolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErr(w, apierr.Validation("invalid request body"))
		return
	}
	if err := validateRules(req.Rules); err != nil {
		writeAPIErr(w, err)
		return
	}

	p, err := s.store.UpdatePolicy(owner, r.PathValue("id"), req.Rules, req.Enabled)
	if err != nil {
		writeNotFoundOr500(w, err, "policy")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handlePolicyDelete(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFromRequest(r)
	if err != nil {
		writeAPIErr(w, err)
		return
	}
	if err := requireSession(r); err != nil {
		writeAPIErr(w, err)
		return
	}
	if err := s.store.DeletePolicy(owner, r.PathValue("id")); err != nil {
		writeNotFoundOr500(w, err, "policy")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePolicyTemplate(w http.ResponseWriter, r *http.Request) {
	if _, err := ownerFromRequest(r); err != nil {
		writeAPIErr(w, err)
		return
	}
	if err := requireSession(r); err != nil {
		writeAPIErr(w, err)
		return
	}
	tpl, ok := s.store.PolicyTemplateByName(r.PathValue("tpl"))
	if !ok {
		writeAPIErr(w, notFoundErr("template"))
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

type evaluateRequest struct {
	Content   string   `json:"content"`
	PolicyIDs []string `json:"policy_ids,omitempty"`
}

func (s *Server) handlePolicyEvaluate(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFromRequest(r)
	if err != nil {
		writeAPIErr(w, err)
		return
	}
	if err := requireSession(r); err != nil {
		writeAPIErr(w, err)
		return
	}
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" {
		writeAPIErr(w, apierr.Validation("content is required"))
		return
	}

	result, err := s.policyEngine.Evaluate(owner, req.Content, req.PolicyIDs)
	if err != nil {
		writeAPIErr(w, apierr.Internal("evaluating policies", err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// validateRules rejects any rule whose condition or action falls outside
// the closed vocabularies from spec §3/§4.5.
func validateRules(rules []store.Rule) error {
	for _, rule := range rules {
		switch rule.Condition {
		case store.ConditionContainsPII, store.ConditionContainsPHI, store.ConditionProfanity,
			store.ConditionDataRetentionExceeded, store.ConditionUnauthorizedAccess,
			store.ConditionAuditLogRequired, store.ConditionEncryptionRequired:
		default:
			return apierr.Validation("unrecognized rule condition: " + string(rule.Condition))
		}
		switch rule.Action {
		case store.ActionAllow, store.ActionBlock, store.ActionRedact, store.ActionFlag, store.ActionAlert:
		default:
			return apierr.Validation("unrecognized rule action: " + string(rule.Action))
		}
	}
	return nil
}

func writeNotFoundOr500(w http.ResponseWriter, err error, what string) {
	if err == store.ErrNotFound {
		writeAPIErr(w, notFoundErr(what))
		return
	}
	writeAPIErr(w, apierr.Internal("storage error", err))
}
