package llmclient

import "testing"

func TestExtractToolCallsFromResponseOpenAI(t *testing.T) {
	body := []byte(`{"choices":[{"message":{"tool_calls":[{"id":"call_1","type":"function","function":{"name":"get_weather"}}]}}]}`)
	calls := extractToolCallsFromResponse(body)
	if len(calls) != 1 || calls[0].Name != "get_weather" || calls[0].ID != "call_1" {
		t.Fatalf("unexpected tool calls: %+v", calls)
	}
}

func TestExtractToolCallsFromResponseAnthropic(t *testing.T) {
	body := []byte(`{"content":[{"type":"text","text":"hi"},{"type":"tool_use","id":"toolu_1","name":"lookup"}]}`)
	calls := extractToolCallsFromResponse(body)
	if len(calls) != 1 || calls[0].Name != "lookup" || calls[0].Type != "tool_use" {
		t.Fatalf("unexpected tool calls: %+v", calls)
	}
}

func TestExtractToolCallsFromResponseNone(t *testing.T) {
	body := []byte(`{"choices":[{"message":{"content":"hello"}}]}`)
	if calls := extractToolCallsFromResponse(body); len(calls) != 0 {
		t.Fatalf("expected no tool calls, got %+v", calls)
	}
}

func TestExtractToolCallsFromResponseEmptyBody(t *testing.T) {
	if calls := extractToolCallsFromResponse(nil); calls != nil {
		t.Fatalf("expected nil for empty body, got %+v", calls)
	}
}

func TestRequestedToolCallsOpenAIRequest(t *testing.T) {
	body := []byte(`{"messages":[{"role":"assistant","tool_calls":[{"id":"call_9","type":"function","function":{"name":"search"}}]}]}`)
	calls := RequestedToolCalls(body)
	if len(calls) != 1 || calls[0].Name != "search" {
		t.Fatalf("unexpected requested tool calls: %+v", calls)
	}
}

func TestRequestedToolCallsGenericFallback(t *testing.T) {
	body := []byte(`{"tools":[{"type":"function","function":{"name":"convert_currency"}}]}`)
	calls := RequestedToolCalls(body)
	if len(calls) != 1 || calls[0].Name != "convert_currency" {
		t.Fatalf("expected generic fallback to find convert_currency, got %+v", calls)
	}
}
