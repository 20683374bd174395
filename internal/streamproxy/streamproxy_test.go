package streamproxy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"

	"rampart/internal/detect/exfiltration"
	"rampart/internal/llmclient"
)

func newSSEBackend(t *testing.T, events []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, e := range events {
			w.Write([]byte(e + "\n\n"))
		}
	}))
}

func readChunkEvents(t *testing.T, conn *websocket.Conn) []ChunkEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var events []ChunkEvent
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			break
		}
		var ev ChunkEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("unmarshaling chunk event: %v", err)
		}
		events = append(events, ev)
		if ev.Done {
			break
		}
	}
	return events
}

func TestRelayStreamsBenignDeltas(t *testing.T) {
	backend := newSSEBackend(t, []string{
		`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
		`data: {"choices":[{"delta":{"content":"lo"}}]}`,
		`data: {"choices":[{"delta":{}}],"usage":{"total_tokens":3}}`,
		`data: [DONE]`,
	})
	defer backend.Close()

	client := llmclient.New("openai", backend.URL, "test-key")
	monitor := exfiltration.NewMonitor()

	relayServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := Relay(r.Context(), w, r, client, llmclient.CompletionRequest{
			Model:    "gpt-4",
			Messages: []llmclient.Message{{Role: "user", Content: "hi"}},
		}, monitor, llmclient.Cost)
		if err != nil {
			t.Errorf("relay failed: %v", err)
		}
	}))
	defer relayServer.Close()

	wsURL := "ws" + relayServer.URL[len("http"):]
	conn, _, err := websocket.Dial(context.Background(), wsURL, nil)
	if err != nil {
		t.Fatalf("dialing relay: %v", err)
	}
	defer conn.CloseNow()

	events := readChunkEvents(t, conn)
	if len(events) < 3 {
		t.Fatalf("expected at least 2 content chunks and a done event, got %+v", events)
	}

	var content string
	for _, e := range events {
		content += e.Content
	}
	if content != "Hello" {
		t.Fatalf("expected relayed content %q, got %q", "Hello", content)
	}

	final := events[len(events)-1]
	if !final.Done {
		t.Fatalf("expected last event to be the done event, got %+v", final)
	}
	if final.TokensUsed != 3 {
		t.Fatalf("expected final usage of 3 tokens, got %d", final.TokensUsed)
	}
}

func TestRelayBlocksOnExfiltratedSecret(t *testing.T) {
	backend := newSSEBackend(t, []string{
		`data: {"choices":[{"delta":{"content":"the key is sk-abc123xyz456def789"}}]}`,
		`data: {"choices":[{"delta":{"content":" more text after"}}]}`,
		`data: [DONE]`,
	})
	defer backend.Close()

	client := llmclient.New("openai", backend.URL, "test-key")
	monitor := exfiltration.NewMonitor()

	relayServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := Relay(r.Context(), w, r, client, llmclient.CompletionRequest{
			Model:    "gpt-4",
			Messages: []llmclient.Message{{Role: "user", Content: "hi"}},
		}, monitor, llmclient.Cost)
		if err != nil {
			t.Errorf("relay failed: %v", err)
		}
	}))
	defer relayServer.Close()

	wsURL := "ws" + relayServer.URL[len("http"):]
	conn, _, err := websocket.Dial(context.Background(), wsURL, nil)
	if err != nil {
		t.Fatalf("dialing relay: %v", err)
	}
	defer conn.CloseNow()

	events := readChunkEvents(t, conn)

	var sawBlock bool
	for _, e := range events {
		if e.Action == string(exfiltration.RecommendBlock) {
			sawBlock = true
		}
	}
	if !sawBlock {
		t.Fatalf("expected a block action event when a secret is streamed, got %+v", events)
	}
}
