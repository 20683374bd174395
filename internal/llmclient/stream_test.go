package llmclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCompleteStreamOpenAI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		events := []string{
			`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
			`data: {"choices":[{"delta":{"content":"lo"}}]}`,
			`data: {"choices":[{"delta":{}}],"usage":{"total_tokens":7}}`,
			`data: [DONE]`,
		}
		for _, e := range events {
			w.Write([]byte(e + "\n\n"))
		}
	}))
	defer srv.Close()

	client := New("openai", srv.URL, "test-key")
	var chunks []string
	resp, err := client.CompleteStream(context.Background(), CompletionRequest{
		Model:    "gpt-4",
		Messages: []Message{{Role: "user", Content: "hi"}},
	}, func(chunk string) error {
		chunks = append(chunks, chunk)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "Hello" {
		t.Fatalf("expected accumulated content %q, got %q", "Hello", resp.Content)
	}
	if resp.TokensUsed != 7 {
		t.Fatalf("expected reported usage of 7 tokens, got %d", resp.TokensUsed)
	}
	if len(chunks) != 2 || chunks[0] != "Hel" || chunks[1] != "lo" {
		t.Fatalf("unexpected chunk sequence: %+v", chunks)
	}
}

func TestCompleteStreamOpenAIEstimatesTokensWhenUsageMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`data: {"choices":[{"delta":{"content":"test"}}]}` + "\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	client := New("openai", srv.URL, "test-key")
	resp, err := client.CompleteStream(context.Background(), CompletionRequest{
		Model:    "gpt-4",
		Messages: []Message{{Role: "user", Content: "hi"}},
	}, func(string) error { return nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.TokensUsed != estimateTokens("test") {
		t.Fatalf("expected estimated token count, got %d", resp.TokensUsed)
	}
}

func TestCompleteStreamAnthropic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		events := []string{
			`data: {"type":"message_start","message":{"usage":{"input_tokens":10}}}`,
			`data: {"type":"content_block_delta","delta":{"text":"Hi "}}`,
			`data: {"type":"content_block_delta","delta":{"text":"there"}}`,
			`data: {"type":"message_delta","usage":{"output_tokens":5}}`,
		}
		for _, e := range events {
			w.Write([]byte(e + "\n\n"))
		}
	}))
	defer srv.Close()

	client := New("anthropic", srv.URL, "test-key")
	var chunks []string
	resp, err := client.CompleteStream(context.Background(), CompletionRequest{
		Model:    "claude-3-opus",
		Messages: []Message{{Role: "user", Content: "hi"}},
	}, func(chunk string) error {
		chunks = append(chunks, chunk)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "Hi there" {
		t.Fatalf("expected accumulated content %q, got %q", "Hi there", resp.Content)
	}
	if resp.TokensUsed != 15 {
		t.Fatalf("expected 10 input + 5 output tokens, got %d", resp.TokensUsed)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 content chunks, got %+v", chunks)
	}
}

func TestCompleteStreamPropagatesOnChunkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`data: {"choices":[{"delta":{"content":"hi"}}]}` + "\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	client := New("openai", srv.URL, "test-key")
	wantErr := context.Canceled
	_, err := client.CompleteStream(context.Background(), CompletionRequest{
		Model:    "gpt-4",
		Messages: []Message{{Role: "user", Content: "hi"}},
	}, func(string) error { return wantErr })
	if err != wantErr {
		t.Fatalf("expected onChunk error to propagate, got %v", err)
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := estimateTokens(""); got != 0 {
		t.Fatalf("expected 0 tokens for empty text, got %d", got)
	}
	if got := estimateTokens("abcd"); got != 2 {
		t.Fatalf("expected 2 tokens for 4 chars, got %d", got)
	}
}
