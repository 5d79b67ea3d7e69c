// Package llm adapts chat-completion providers with function calling to one
// provider-neutral message model.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gwi.com/agenda/internal/tools"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a model-requested invocation. Arguments is the JSON-encoded
// argument object exactly as the model produced it.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	ToolName   string `json:"tool_name"` // Gemini matches responses by name
	Content    string `json:"content"`
}

type Message struct {
	Role       Role        `json:"role"`
	Content    string      `json:"content"`
	ToolCalls  []ToolCall  `json:"tool_calls,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`
}

// Client sends a conversation plus the tool catalog to a model and returns
// its next message: either text or one or more tool calls.
type Client interface {
	Generate(ctx context.Context, messages []Message, defs []tools.Definition) (*Message, error)
	Close() error
}

// ConfigurationError reports a provider that cannot be used because a
// required setting is missing. It surfaces on first use, not at startup.
type ConfigurationError struct {
	Setting string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("the %s environment variable is not configured", e.Setting)
}

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	DefaultOpenAIModel = "gpt-4o"
	DefaultGeminiModel = "gemini-1.5-flash-latest"
)

// DefaultSystemPrompt tells the model how the directory is shaped so its
// query expressions hit real field names.
const DefaultSystemPrompt = "You are the assistant of a phone directory. " +
	"Contacts are JSON objects with the fields id (integer), nombre (name), telefono (phone), email, " +
	"direccion (address), ciudad (city), pais (country) and fecha_nacimiento (birth date, YYYY-MM-DD). " +
	"query_contacts evaluates a JMESPath expression against the array of all contacts, " +
	"for example [?ciudad=='Madrid'].nombre. Look contacts up before updating them, " +
	"and answer in the language of the user."

type Options struct {
	Provider     string
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	MaxRetries   int
	Timeout      time.Duration
}

// NewClient builds the client for opts.Provider. A missing API key does not
// fail here; the returned client reports a ConfigurationError when used.
func NewClient(ctx context.Context, opts Options, log zerolog.Logger) (Client, error) {
	switch opts.Provider {
	case ProviderOpenAI, "":
		return NewOpenAIClient(opts, log), nil
	case ProviderGemini:
		client, err := NewGeminiClient(ctx, opts)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", opts.Provider)
	}
}
