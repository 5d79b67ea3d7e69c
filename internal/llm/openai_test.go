package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gwi.com/agenda/internal/tools"
)

const toolCallCompletion = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1,
  "model": "gpt-4o",
  "choices": [{
    "index": 0,
    "finish_reason": "tool_calls",
    "logprobs": null,
    "message": {
      "role": "assistant",
      "content": null,
      "refusal": null,
      "tool_calls": [{
        "id": "call_1",
        "type": "function",
        "function": {"name": "query_contacts", "arguments": "{\"expression\":\"[].nombre\"}"}
      }]
    }
  }]
}`

func testDefinitions() []tools.Definition {
	return []tools.Definition{{
		Name:        "query_contacts",
		Description: "Runs a JMESPath query.",
		Parameters:  tools.Object("", map[string]*tools.Schema{"expression": tools.String("Expression.")}, "expression"),
	}}
}

func TestOpenAIClientGenerate(t *testing.T) {
	var gotBody map[string]any
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(toolCallCompletion))
	}))
	defer server.Close()

	client := NewOpenAIClient(Options{
		APIKey:       "test-key",
		BaseURL:      server.URL + "/",
		SystemPrompt: "be brief",
	}, zerolog.Nop())

	history := []Message{
		{Role: RoleUser, Content: "who lives in Lima?"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "call_0", Name: "query_contacts", Arguments: `{"expression":"[]"}`}}},
		{Role: RoleTool, ToolResult: &ToolResult{ToolCallID: "call_0", ToolName: "query_contacts", Content: `[]`}},
	}
	resp, err := client.Generate(context.Background(), history, testDefinitions())
	require.NoError(t, err)

	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "gpt-4o", gotBody["model"])
	assert.Equal(t, "auto", gotBody["tool_choice"])

	messages := gotBody["messages"].([]any)
	require.Len(t, messages, 4)
	roles := make([]string, 0, len(messages))
	for _, m := range messages {
		roles = append(roles, m.(map[string]any)["role"].(string))
	}
	assert.Equal(t, []string{"system", "user", "assistant", "tool"}, roles)
	assert.Equal(t, "call_0", messages[3].(map[string]any)["tool_call_id"])

	toolsSent := gotBody["tools"].([]any)
	require.Len(t, toolsSent, 1)
	fn := toolsSent[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, "query_contacts", fn["name"])
	assert.Equal(t, false, fn["parameters"].(map[string]any)["additionalProperties"])

	assert.Equal(t, RoleAssistant, resp.Role)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, ToolCall{ID: "call_1", Name: "query_contacts", Arguments: `{"expression":"[].nombre"}`}, resp.ToolCalls[0])
}

func TestOpenAIClientUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(Options{APIKey: "k", BaseURL: server.URL + "/"}, zerolog.Nop())
	_, err := client.Generate(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil)
	assert.Error(t, err)
}

func TestOpenAIClientWithoutKey(t *testing.T) {
	client := NewOpenAIClient(Options{}, zerolog.Nop())
	_, err := client.Generate(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil)

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "OPENAI_API_KEY", cfgErr.Setting)
}

func TestNewClientUnknownProvider(t *testing.T) {
	_, err := NewClient(context.Background(), Options{Provider: "llama"}, zerolog.Nop())
	assert.Error(t, err)
}
