package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/option"
	"gwi.com/agenda/internal/tools"
)

type GeminiClient struct {
	client       *genai.Client
	model        string
	systemPrompt string
}

// NewGeminiClient creates the GenAI client when a key is configured. Without
// a key the client is returned unconnected and Generate reports a
// ConfigurationError.
func NewGeminiClient(ctx context.Context, opts Options) (*GeminiClient, error) {
	model := opts.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	c := &GeminiClient{
		model:        model,
		systemPrompt: opts.SystemPrompt,
	}
	if opts.APIKey == "" {
		return c, nil
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(opts.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	c.client = client
	return c, nil
}

func (c *GeminiClient) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *GeminiClient) Generate(ctx context.Context, messages []Message, defs []tools.Definition) (*Message, error) {
	if c.client == nil {
		return nil, &ConfigurationError{Setting: "GEMINI_API_KEY"}
	}

	model := c.client.GenerativeModel(c.model)
	if c.systemPrompt != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(c.systemPrompt)},
		}
	}
	if len(defs) > 0 {
		model.Tools = []*genai.Tool{{FunctionDeclarations: toGeminiDeclarations(defs)}}
		model.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingAuto},
		}
	}

	contents, err := toGeminiContents(messages)
	if err != nil {
		return nil, err
	}
	if len(contents) == 0 {
		return nil, errors.New("conversation history is empty")
	}
	last := contents[len(contents)-1]
	if last.Role != "user" {
		return nil, fmt.Errorf("last message in history is from %q, expected user", last.Role)
	}

	chatSession := model.StartChat()
	chatSession.History = contents[:len(contents)-1]

	resp, err := chatSession.SendMessage(ctx, last.Parts...)
	if err != nil {
		return nil, fmt.Errorf("gemini chat SendMessage failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New("gemini returned no candidates")
	}
	return messageFromParts(resp.Candidates[0].Content.Parts)
}

// messageFromParts turns a Gemini candidate into a Message. Gemini does not
// assign ids to function calls, so one is generated per call.
func messageFromParts(parts []genai.Part) (*Message, error) {
	out := &Message{Role: RoleAssistant}
	for _, part := range parts {
		switch p := part.(type) {
		case genai.Text:
			out.Content += string(p)
		case genai.FunctionCall:
			args, err := json.Marshal(p.Args)
			if err != nil {
				return nil, fmt.Errorf("failed to encode arguments of %s: %w", p.Name, err)
			}
			if p.Args == nil {
				args = []byte("{}")
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        "call_" + uuid.NewString(),
				Name:      p.Name,
				Arguments: string(args),
			})
		}
	}
	return out, nil
}

// toGeminiContents maps history onto Gemini roles. Consecutive tool results
// are grouped into one user turn of function responses.
func toGeminiContents(messages []Message) ([]*genai.Content, error) {
	var contents []*genai.Content
	var pendingResponses *genai.Content

	flush := func() {
		if pendingResponses != nil {
			contents = append(contents, pendingResponses)
			pendingResponses = nil
		}
	}

	for _, msg := range messages {
		if msg.Role == RoleTool {
			if msg.ToolResult == nil {
				continue
			}
			if pendingResponses == nil {
				pendingResponses = &genai.Content{Role: "user"}
			}
			pendingResponses.Parts = append(pendingResponses.Parts, genai.FunctionResponse{
				Name:     msg.ToolResult.ToolName,
				Response: functionResponsePayload(msg.ToolResult.Content),
			})
			continue
		}
		flush()

		switch msg.Role {
		case RoleUser:
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []genai.Part{genai.Text(msg.Content)},
			})
		case RoleAssistant:
			content := &genai.Content{Role: "model"}
			if msg.Content != "" {
				content.Parts = append(content.Parts, genai.Text(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				var args map[string]any
				if tc.Arguments != "" {
					if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
						return nil, fmt.Errorf("failed to decode arguments of %s: %w", tc.Name, err)
					}
				}
				content.Parts = append(content.Parts, genai.FunctionCall{Name: tc.Name, Args: args})
			}
			contents = append(contents, content)
		}
	}
	flush()
	return contents, nil
}

// functionResponsePayload wraps a JSON tool result in the object Gemini
// expects; non-object results go under "result".
func functionResponsePayload(content string) map[string]any {
	var value any
	if err := json.Unmarshal([]byte(content), &value); err != nil {
		return map[string]any{"result": content}
	}
	if obj, ok := value.(map[string]any); ok {
		return obj
	}
	return map[string]any{"result": value}
}

func toGeminiDeclarations(defs []tools.Definition) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(defs))
	for _, def := range defs {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  toGeminiSchema(def.Parameters),
		})
	}
	return decls
}

// toGeminiSchema converts a parameter schema. Gemini has no notion of
// additionalProperties, so that constraint is dropped.
func toGeminiSchema(s *tools.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        geminiType(s.Type),
		Description: s.Description,
		Required:    s.Required,
	}
	if len(s.Enum) > 0 {
		out.Format = "enum"
		out.Enum = s.Enum
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toGeminiSchema(prop)
		}
	}
	return out
}

func geminiType(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeUnspecified
	}
}
