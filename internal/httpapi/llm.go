package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"rampart/internal/apierr"
	"rampart/internal/detect/exfiltration"
	"rampart/internal/detect/injection"
	"rampart/internal/llmclient"
	"rampart/internal/streamproxy"
	"rampart/internal/telemetry"
	"rampart/internal/usage"
)

// injectionBlockThreshold is the LLM-proxy's own pre-flight block
// threshold (0.75), transcribed as-is from the source this path is
// grounded on. It is deliberately stricter than the gateway-wide 0.5
// decision threshold used elsewhere (internal/decision) — the
// discrepancy exists in the source this was distilled from and is
// preserved rather than reconciled.
const injectionBlockThreshold = 0.75

type llmCompleteRequest struct {
	Provider  string              `json:"provider"`
	Model     string              `json:"model"`
	Messages  []llmclient.Message `json:"messages"`
	MaxTokens int                 `json:"max_tokens,omitempty"`
	Stream    bool                `json:"stream,omitempty"`
}

// handleLLMComplete implements the supplemented LLM-proxy pass-through
// (SPEC_FULL.md §D): pre-flight injection screening, the actual
// provider call using the caller's own credential or a system fallback,
// post-flight exfiltration screening of the response, and cost/usage
// accounting.
func (s *Server) handleLLMComplete(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFromRequest(r)
	if err != nil {
		writeAPIErr(w, err)
		return
	}

	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		writeAPIErr(w, apierr.Validation("reading request body"))
		return
	}
	var req llmCompleteRequest
	if err := json.Unmarshal(rawBody, &req); err != nil || req.Provider == "" || req.Model == "" || len(req.Messages) == 0 {
		writeAPIErr(w, apierr.Validation("provider, model, and messages are required"))
		return
	}
	if requested := llmclient.RequestedToolCalls(rawBody); len(requested) > 0 {
		slog.Debug("llm request declares tool calls", "owner", owner, "count", len(requested))
	}

	lastUserMessage := latestUserContent(req.Messages)
	verdict := injection.Result{}
	if lastUserMessage != "" {
		_, span := s.telemetry.StartPhaseSpan(r.Context(), "pre_flight_injection")
		verdict = checkInjection(s, lastUserMessage)
		span.End()
	}
	if verdict.Confidence >= injectionBlockThreshold {
		writeAPIErr(w, apierr.Authorization("request blocked: prompt injection risk too high"))
		return
	}

	resolved, err := s.router.Resolve(owner, req.Provider)
	if err != nil {
		writeAPIErr(w, apierr.Validation(err.Error()))
		return
	}
	client := s.llmFactory(resolved)
	completionReq := llmclient.CompletionRequest{
		Model:     req.Model,
		Messages:  req.Messages,
		MaxTokens: req.MaxTokens,
	}

	if req.Stream {
		s.handleLLMCompleteStream(w, r, owner, req, client, completionReq)
		return
	}

	completion, err := client.Complete(r.Context(), completionReq)
	if err != nil {
		if llmclient.IsServerFailure(err) {
			s.router.MarkUnhealthy(req.Provider)
		}
		writeAPIErr(w, apierr.Upstream("llm provider call failed", err))
		return
	}

	_, span := s.telemetry.StartPhaseSpan(r.Context(), "post_flight_exfiltration")
	exfil := s.exfilMonitor.Scan(completion.Content)
	span.End()

	responseContent := completion.Content
	switch exfil.Recommendation {
	case exfiltration.RecommendBlock:
		responseContent = ""
	case exfiltration.RecommendRedact:
		responseContent = exfiltration.Redact(completion.Content)
	}

	cost := llmclient.Cost(completion.Model, completion.TokensUsed)
	s.recordLLMUsage(r.Context(), owner, req.Provider, req.Model, completion.TokensUsed, cost)

	writeJSON(w, http.StatusOK, map[string]any{
		"content":             responseContent,
		"model":               completion.Model,
		"tokens_used":         completion.TokensUsed,
		"cost":                cost,
		"exfiltration_action": exfil.Recommendation,
		"tool_calls":          completion.ToolCalls,
	})
}

// handleLLMCompleteStream relays the completion over a WebSocket
// connection (spec §D "when stream=true"), scanning each chunk
// incrementally rather than waiting for the full buffered body.
func (s *Server) handleLLMCompleteStream(w http.ResponseWriter, r *http.Request, owner string, req llmCompleteRequest, client *llmclient.Client, completionReq llmclient.CompletionRequest) {
	_, span := s.telemetry.StartPhaseSpan(r.Context(), "post_flight_exfiltration")
	defer span.End()

	completion, err := streamproxy.Relay(r.Context(), w, r, client, completionReq, s.exfilMonitor, llmclient.Cost)
	if err != nil {
		slog.Error("llm stream relay failed", "owner", owner, "provider", req.Provider, "error", err)
		return
	}

	cost := llmclient.Cost(completion.Model, completion.TokensUsed)
	s.recordLLMUsage(r.Context(), owner, req.Provider, req.Model, completion.TokensUsed, cost)
}

func (s *Server) recordLLMUsage(ctx context.Context, owner, provider, model string, tokens int64, cost float64) {
	telemetry.RecordLLMCall(ctx, provider, model, tokens, cost)
	if s.usageWriter != nil {
		s.usageWriter.Record(usage.Delta{
			APIKeyID: owner,
			Endpoint: "/api/v1/llm/complete",
			Tokens:   tokens,
			Cost:     cost,
		})
	}
}

func latestUserContent(messages []llmclient.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}

func checkInjection(s *Server, text string) injection.Result {
	if s.combiner == nil || s.combiner.Injection == nil {
		return injection.Result{}
	}
	return s.combiner.Injection.Detect(text)
}
