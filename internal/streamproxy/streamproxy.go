// Package streamproxy relays a streaming LLM completion over a
// WebSocket-framed connection instead of a single buffered HTTP
// response, feeding each delta through an overlap-buffered exfiltration
// scan before it reaches the client. It gives the teacher's websocket
// framing and connection-handling patterns a concrete, exercised home
// in the supplemented LLM-proxy path (SPEC_FULL.md §D).
package streamproxy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/coder/websocket"

	"rampart/internal/detect/exfiltration"
	"rampart/internal/llmclient"
)

// overlapSize is how many trailing bytes of already-scanned output are
// retained across chunk boundaries so a secret split across two chunks
// is still caught.
const overlapSize = 64

// ChunkEvent is one JSON message relayed to the client over the stream:
// either a content delta (possibly redacted), a terminal block action,
// or the final usage summary.
type ChunkEvent struct {
	Content    string `json:"content,omitempty"`
	Action     string `json:"action,omitempty"`
	Done       bool   `json:"done,omitempty"`
	TokensUsed int64  `json:"tokens_used,omitempty"`
	Cost       float64 `json:"cost,omitempty"`
}

// Relay upgrades r to a WebSocket connection and streams one completion
// over it, scanning every delta for exfiltration risk as it arrives. It
// returns the assembled completion so the caller can still record usage
// and telemetry the same way the non-streaming path does.
func Relay(ctx context.Context, w http.ResponseWriter, r *http.Request, client *llmclient.Client, req llmclient.CompletionRequest, monitor *exfiltration.Monitor, costFn func(model string, tokens int64) float64) (*llmclient.CompletionResponse, error) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{})
	if err != nil {
		return nil, fmt.Errorf("accepting stream connection: %w", err)
	}
	defer conn.CloseNow()

	scanner := exfiltration.NewStreamScanner(monitor, overlapSize)
	blocked := false

	completion, err := client.CompleteStream(ctx, req, func(delta string) error {
		if blocked {
			return nil
		}
		result := scanner.Feed(delta)
		event := ChunkEvent{Content: delta}
		switch result.Recommendation {
		case exfiltration.RecommendBlock:
			blocked = true
			event = ChunkEvent{Action: string(exfiltration.RecommendBlock)}
		case exfiltration.RecommendRedact:
			event.Content = exfiltration.Redact(delta)
			event.Action = string(exfiltration.RecommendRedact)
		}
		payload, merr := json.Marshal(event)
		if merr != nil {
			return merr
		}
		return conn.Write(ctx, websocket.MessageText, payload)
	})
	if err != nil {
		conn.Close(websocket.StatusInternalError, "stream failed")
		return nil, err
	}

	if final := scanner.Finalize(); final.Recommendation == exfiltration.RecommendBlock {
		blocked = true
	}

	cost := costFn(completion.Model, completion.TokensUsed)
	donePayload, err := json.Marshal(ChunkEvent{Done: true, TokensUsed: completion.TokensUsed, Cost: cost})
	if err == nil {
		_ = conn.Write(ctx, websocket.MessageText, donePayload)
	}
	conn.Close(websocket.StatusNormalClosure, "completion finished")

	if blocked {
		completion.Content = ""
	}
	return completion, nil
}
