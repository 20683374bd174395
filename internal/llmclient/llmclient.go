// Package llmclient implements outbound calls to LLM providers for the
// supplemented LLM proxy pass-through feature (SPEC_FULL.md §D). It is
// grounded on original_source/backend/integrations/llm_proxy.py's
// provider dispatch and cost table, translated into Go HTTP calls with
// retry/backoff around transient failures the way this codebase favors
// a battle-tested library over a hand-rolled retry loop.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Message is one chat turn, mirroring the {role, content} shape every
// provider this gateway talks to accepts.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is what callers of Client.Complete supply.
type CompletionRequest struct {
	Model    string
	Messages []Message
	MaxTokens int
}

// CompletionResponse is the provider-agnostic result.
type CompletionResponse struct {
	Content    string
	TokensUsed int64
	Model      string
	ToolCalls  []ToolCallInfo
}

// pricingPerThousandTokens mirrors llm_proxy.py's _calculate_cost table.
// Models absent from this map are billed at the gpt-3.5-turbo rate, same
// as the source's default fallback.
var pricingPerThousandTokens = map[string]float64{
	"gpt-4":            0.03,
	"gpt-3.5-turbo":    0.002,
	"claude-3-opus":    0.015,
	"claude-3-sonnet":  0.003,
}

const defaultPricePerThousand = 0.002

// Cost computes the dollar cost of a completion the way llm_proxy.py does:
// a flat per-1000-token rate keyed by model name.
func Cost(model string, tokens int64) float64 {
	price, ok := pricingPerThousandTokens[model]
	if !ok {
		price = defaultPricePerThousand
	}
	return (float64(tokens) / 1000.0) * price
}

// Client calls a single configured provider (openai or anthropic).
type Client struct {
	Provider string
	BaseURL  string
	APIKey   string
	HTTP     *http.Client
}

// New builds a Client for provider, talking to baseURL with apiKey.
func New(provider, baseURL, apiKey string) *Client {
	return &Client{
		Provider: provider,
		BaseURL:  baseURL,
		APIKey:   apiKey,
		HTTP:     &http.Client{Timeout: 60 * time.Second},
	}
}

// Complete dispatches to the provider-specific request shape, retrying
// transient failures (5xx, timeouts) with exponential backoff.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	operation := func() (*CompletionResponse, error) {
		var resp *CompletionResponse
		var err error
		switch c.Provider {
		case "anthropic":
			resp, err = c.callAnthropic(ctx, req)
		default:
			resp, err = c.callOpenAI(ctx, req)
		}
		if err != nil {
			if httpErr, ok := err.(*statusError); ok {
				if ft := httpErr.failureType(); ft == failureServerError || ft == failureRateLimit {
					return nil, err
				}
				return nil, backoff.Permanent(err)
			}
			if ft := classifyFailure(err); ft == failureTimeout || ft == failureConnection {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		return resp, nil
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(3),
	)
}

type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Body)
}

func (c *Client) callOpenAI(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	body := map[string]any{
		"model":    req.Model,
		"messages": req.Messages,
	}
	if req.MaxTokens > 0 {
		body["max_tokens"] = req.MaxTokens
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding openai request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building openai request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)

	raw, status, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &statusError{StatusCode: status, Body: string(raw)}
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			TotalTokens int64 `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decoding openai response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return nil, fmt.Errorf("openai response had no choices")
	}
	return &CompletionResponse{
		Content:    decoded.Choices[0].Message.Content,
		TokensUsed: decoded.Usage.TotalTokens,
		Model:      req.Model,
		ToolCalls:  extractToolCallsFromResponse(raw),
	}, nil
}

func (c *Client) callAnthropic(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	var system string
	var messages []Message
	for _, m := range req.Messages {
		if m.Role == "system" {
			system = m.Content
			continue
		}
		messages = append(messages, m)
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	body := map[string]any{
		"model":      req.Model,
		"max_tokens": maxTokens,
		"messages":   messages,
	}
	if system != "" {
		body["system"] = system
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding anthropic request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building anthropic request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	raw, status, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &statusError{StatusCode: status, Body: string(raw)}
	}

	var decoded struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int64 `json:"input_tokens"`
			OutputTokens int64 `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decoding anthropic response: %w", err)
	}
	if len(decoded.Content) == 0 {
		return nil, fmt.Errorf("anthropic response had no content")
	}
	return &CompletionResponse{
		Content:    decoded.Content[0].Text,
		TokensUsed: decoded.Usage.InputTokens + decoded.Usage.OutputTokens,
		Model:      req.Model,
		ToolCalls:  extractToolCallsFromResponse(raw),
	}, nil
}

func (c *Client) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("calling %s: %w", c.Provider, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("reading %s response: %w", c.Provider, err)
	}
	return raw, resp.StatusCode, nil
}
