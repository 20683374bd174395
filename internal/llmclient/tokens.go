package llmclient

import (
	"encoding/json"
	"strings"
)

// ToolCallInfo describes one tool/function invocation surfaced by a
// provider response, independent of which provider's wire shape it
// came from.
type ToolCallInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
}

// extractToolCallsFromResponse recognizes the OpenAI tool_calls and
// Anthropic tool_use response shapes and normalizes both into
// ToolCallInfo, so a caller that only cares "did the model try to call
// something" doesn't need to know which provider answered.
func extractToolCallsFromResponse(body []byte) []ToolCallInfo {
	if len(body) == 0 {
		return nil
	}

	var result []ToolCallInfo

	var openaiResp struct {
		Choices []struct {
			Message struct {
				ToolCalls []struct {
					ID       string `json:"id"`
					Type     string `json:"type"`
					Function struct {
						Name string `json:"name"`
					} `json:"function"`
				} `json:"tool_calls"`
			} `json:"message"`
		} `json:"choices"`
	}
	if json.Unmarshal(body, &openaiResp) == nil {
		for _, choice := range openaiResp.Choices {
			for _, tc := range choice.Message.ToolCalls {
				if tc.Function.Name != "" {
					result = append(result, ToolCallInfo{Name: tc.Function.Name, Type: tc.Type, ID: tc.ID})
				}
			}
		}
		if len(result) > 0 {
			return result
		}
	}

	var anthropicResp struct {
		Content []struct {
			Type string `json:"type"`
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"content"`
	}
	if json.Unmarshal(body, &anthropicResp) == nil {
		for _, block := range anthropicResp.Content {
			if block.Type == "tool_use" && block.Name != "" {
				result = append(result, ToolCallInfo{Name: block.Name, Type: "tool_use", ID: block.ID})
			}
		}
	}

	return result
}

// RequestedToolCalls reports any tool/function calls a caller's raw
// request body already attached to its messages, so the gateway can log
// or audit what a client asked a model to invoke independent of what
// the model's response ends up doing.
func RequestedToolCalls(body []byte) []ToolCallInfo {
	return extractToolCallsFromRequest(body)
}

// extractToolCallsFromRequest mirrors extractToolCallsFromResponse but
// reads the tool_calls a caller attached to its own request messages,
// plus a generic fallback for shapes that are neither exactly OpenAI
// nor exactly Anthropic but still mention "function"/"tool_calls".
func extractToolCallsFromRequest(body []byte) []ToolCallInfo {
	if len(body) == 0 {
		return nil
	}

	var result []ToolCallInfo

	var openaiToolReq struct {
		Messages []struct {
			ToolCalls []struct {
				ID       string `json:"id"`
				Type     string `json:"type"`
				Function struct {
					Name string `json:"name"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"messages"`
	}
	if json.Unmarshal(body, &openaiToolReq) == nil {
		for _, msg := range openaiToolReq.Messages {
			for _, tc := range msg.ToolCalls {
				if tc.Function.Name != "" {
					result = append(result, ToolCallInfo{Name: tc.Function.Name, Type: tc.Type, ID: tc.ID})
				}
			}
		}
		if len(result) > 0 {
			return result
		}
	}

	bodyStr := string(body)
	if strings.Contains(bodyStr, `"function"`) || strings.Contains(bodyStr, `"tool_calls"`) {
		var generic map[string]interface{}
		if json.Unmarshal(body, &generic) == nil {
			extractToolsRecursive(generic, &result)
		}
	}

	return result
}

func extractToolsRecursive(data interface{}, result *[]ToolCallInfo) {
	switch v := data.(type) {
	case map[string]interface{}:
		if funcDef, ok := v["function"].(map[string]interface{}); ok {
			if name, ok := funcDef["name"].(string); ok {
				*result = append(*result, ToolCallInfo{Name: name, Type: "function"})
			}
		}
		for _, child := range v {
			extractToolsRecursive(child, result)
		}
	case []interface{}:
		for _, item := range v {
			extractToolsRecursive(item, result)
		}
	}
}
