// Package httpapi wires the gateway's HTTP surface (SPEC_FULL.md §E):
// routing, the auth gate, rate limiting, security headers, and the
// error envelope, in front of the detectors, decision combiner, policy
// engine, usage writer, and the supplemented LLM-proxy path. It follows
// this codebase's existing control-API handler shape (a single
// http.ServeMux, one method per route, a writeJSON helper) generalized
// from a dashboard-control surface to this gateway's public API.
package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"rampart/internal/authn"
	"rampart/internal/decision"
	"rampart/internal/detect/exfiltration"
	"rampart/internal/detect/pii"
	"rampart/internal/llmclient"
	"rampart/internal/policy"
	"rampart/internal/ratelimit"
	"rampart/internal/redaction"
	"rampart/internal/router"
	"rampart/internal/store"
	"rampart/internal/telemetry"
	"rampart/internal/toxicity"
	"rampart/internal/usage"
)

// authProfilePrefixes names the route prefixes billed against the
// stricter rate-limit profile (spec's "authentication-adjacent
// endpoints"): key/credential management, not ordinary inspection
// traffic.
var authProfilePrefixes = []string{
	"/api/v1/rampart-keys",
	"/api/v1/providers/keys",
}

// Server holds every dependency the HTTP handlers need.
type Server struct {
	store        *store.Store
	gate         *authn.Gate
	cipher       *authn.CredentialCipher
	limiter      ratelimit.Checker
	combiner     *decision.Combiner
	piiDetector  *pii.Detector
	exfilMonitor *exfiltration.Monitor
	toxScorer    toxicity.Scorer
	toxThreshold float64
	policyEngine *policy.Engine
	usageWriter  *usage.Writer
	router       *router.Router
	llmFactory   func(resolved *router.Resolved) *llmclient.Client
	telemetry    *telemetry.Provider
	redactor     *redaction.PatternRedactor
	corsOrigin   string
	mux          *http.ServeMux
}

// Deps bundles every collaborator New needs.
type Deps struct {
	Store        *store.Store
	Gate         *authn.Gate
	Cipher       *authn.CredentialCipher
	Limiter      ratelimit.Checker
	Combiner     *decision.Combiner
	PIIDetector  *pii.Detector
	ExfilMonitor *exfiltration.Monitor
	ToxScorer    toxicity.Scorer
	ToxThreshold float64
	PolicyEngine *policy.Engine
	UsageWriter  *usage.Writer
	Router       *router.Router
	LLMFactory   func(resolved *router.Resolved) *llmclient.Client
	Telemetry    *telemetry.Provider
	Redactor     *redaction.PatternRedactor
	CORSOrigin   string
}

// New builds the Server and registers every route.
func New(d Deps) *Server {
	corsOrigin := d.CORSOrigin
	if corsOrigin == "" {
		corsOrigin = "*"
	}
	llmFactory := d.LLMFactory
	if llmFactory == nil {
		llmFactory = func(r *router.Resolved) *llmclient.Client {
			return llmclient.New(r.Provider, r.BaseURL, r.APIKey)
		}
	}
	redactor := d.Redactor
	if redactor == nil {
		redactor = redaction.NewPatternRedactor()
	}

	s := &Server{
		store:        d.Store,
		gate:         d.Gate,
		cipher:       d.Cipher,
		limiter:      d.Limiter,
		combiner:     d.Combiner,
		piiDetector:  d.PIIDetector,
		exfilMonitor: d.ExfilMonitor,
		toxScorer:    d.ToxScorer,
		toxThreshold: d.ToxThreshold,
		policyEngine: d.PolicyEngine,
		usageWriter:  d.UsageWriter,
		router:       d.Router,
		llmFactory:   llmFactory,
		telemetry:    d.Telemetry,
		redactor:     redactor,
		corsOrigin:   corsOrigin,
		mux:          http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/v1/health/ready", s.handleHealthReady)
	s.mux.HandleFunc("GET /api/v1/health/live", s.handleHealth)
	s.mux.HandleFunc("GET /api/v1/metrics", s.handleMetrics)

	s.mux.HandleFunc("POST /api/v1/security/analyze", s.handleSecurityAnalyze)
	s.mux.HandleFunc("POST /api/v1/filter", s.handleFilter)
	s.mux.HandleFunc("POST /api/v1/pii/detect", s.handlePIIDetect)
	s.mux.HandleFunc("POST /api/v1/pii/redact", s.handlePIIRedact)
	s.mux.HandleFunc("POST /api/v1/toxicity/analyze", s.handleToxicityAnalyze)

	s.mux.HandleFunc("GET /api/v1/policies", s.handlePoliciesList)
	s.mux.HandleFunc("POST /api/v1/policies", s.handlePoliciesCreate)
	s.mux.HandleFunc("GET /api/v1/policies/templates/{tpl}", s.handlePolicyTemplate)
	s.mux.HandleFunc("POST /api/v1/policies/evaluate", s.handlePolicyEvaluate)
	s.mux.HandleFunc("GET /api/v1/policies/{id}", s.handlePolicyGet)
	s.mux.HandleFunc("PUT /api/v1/policies/{id}", s.handlePolicyUpdate)
	s.mux.HandleFunc("DELETE /api/v1/policies/{id}", s.handlePolicyDelete)

	s.mux.HandleFunc("GET /api/v1/rampart-keys", s.handleAPIKeysList)
	s.mux.HandleFunc("POST /api/v1/rampart-keys", s.handleAPIKeysCreate)
	s.mux.HandleFunc("DELETE /api/v1/rampart-keys/{id}", s.handleAPIKeyDelete)
	s.mux.HandleFunc("GET /api/v1/rampart-keys/{id}/usage", s.handleAPIKeyUsage)

	s.mux.HandleFunc("GET /api/v1/providers/keys/{provider}", s.handleProviderKeyGet)
	s.mux.HandleFunc("PUT /api/v1/providers/keys/{provider}", s.handleProviderKeyPut)
	s.mux.HandleFunc("DELETE /api/v1/providers/keys/{provider}", s.handleProviderKeyDelete)

	s.mux.HandleFunc("POST /api/v1/llm/complete", s.handleLLMComplete)
}

// ServeHTTP applies security headers, the unified bearer gate, and rate
// limiting, in that order, before delegating to the route mux — spec
// §4's "authN → rate-limit → pre-detection" phase ordering. Public
// paths (health checks, metrics) skip rate limiting the same way they
// skip authentication, since both allowlists describe the same
// unauthenticated monitoring traffic.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.applySecurityHeaders(w)

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	principal, public, err := s.gate.Authenticate(r)
	if err != nil {
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeAPIErr(w, authenticationErr())
		return
	}
	if !public {
		r = r.WithContext(authn.WithPrincipal(r.Context(), principal))
	}

	if !public {
		key := ratelimit.ClientKey(r.Header.Get("X-Forwarded-For"), r.Header.Get("X-Real-IP"), r.RemoteAddr)
		profile := ratelimit.ProfileGeneral
		for _, prefix := range authProfilePrefixes {
			if strings.HasPrefix(r.URL.Path, prefix) {
				profile = ratelimit.ProfileAuth
				break
			}
		}
		rl := s.limiter.Check(key, profile)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(rl.Remaining))
		if !rl.Allowed {
			w.Header().Set("Retry-After", ratelimit.RetryAfterHeader(rl))
			writeAPIErr(w, quotaExceededErr())
			return
		}
	}

	ctx, span := s.telemetry.StartRequestSpan(r.Context(), principal.UserID, r.Method, r.URL.Path)
	r = r.WithContext(ctx)
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)
	s.telemetry.EndRequestSpan(span, rec.status, nil)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) applySecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
}
