package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared/constant"
	"github.com/rs/zerolog"
	"gwi.com/agenda/internal/tools"
)

type OpenAIClient struct {
	api          openai.Client
	apiKey       string
	model        string
	systemPrompt string
}

func NewOpenAIClient(opts Options, log zerolog.Logger) *OpenAIClient {
	model := opts.Model
	if model == "" {
		model = DefaultOpenAIModel
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(opts.MaxRetries),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(opts.Timeout))
	}
	reqOpts = append(reqOpts, option.WithMiddleware(requestTraceMiddleware(log)))

	return &OpenAIClient{
		api:          openai.NewClient(reqOpts...),
		apiKey:       opts.APIKey,
		model:        model,
		systemPrompt: opts.SystemPrompt,
	}
}

func (c *OpenAIClient) Close() error {
	return nil
}

func (c *OpenAIClient) Generate(ctx context.Context, messages []Message, defs []tools.Definition) (*Message, error) {
	if c.apiKey == "" {
		return nil, &ConfigurationError{Setting: "OPENAI_API_KEY"}
	}

	params := openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: toOpenAIMessages(c.systemPrompt, messages),
	}
	if len(defs) > 0 {
		toolParams, err := toOpenAITools(defs)
		if err != nil {
			return nil, err
		}
		params.Tools = toolParams
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
			OfAuto: openai.String("auto"),
		}
	}

	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, errors.New("openai returned no choices")
	}

	msg := resp.Choices[0].Message
	out := &Message{
		Role:    RoleAssistant,
		Content: msg.Content,
	}
	for _, call := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        call.ID,
			Name:      strings.TrimSpace(call.Function.Name),
			Arguments: call.Function.Arguments,
		})
	}
	return out, nil
}

func toOpenAIMessages(systemPrompt string, messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)+1)
	if systemPrompt != "" {
		out = append(out, openai.SystemMessage(systemPrompt))
	}
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case RoleUser:
			out = append(out, openai.UserMessage(msg.Content))
		case RoleAssistant:
			assistant := openai.ChatCompletionAssistantMessageParam{}
			if msg.Content != "" {
				assistant.Content.OfString = openai.String(msg.Content)
			}
			for _, tc := range msg.ToolCalls {
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.Name,
							Arguments: tc.Arguments,
						},
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case RoleTool:
			if msg.ToolResult != nil {
				out = append(out, openai.ToolMessage(msg.ToolResult.Content, msg.ToolResult.ToolCallID))
			}
		}
	}
	return out
}

func toOpenAITools(defs []tools.Definition) ([]openai.ChatCompletionToolUnionParam, error) {
	result := make([]openai.ChatCompletionToolUnionParam, 0, len(defs))
	for _, def := range defs {
		function := openai.FunctionDefinitionParam{
			Name: def.Name,
		}
		if def.Parameters != nil {
			params, err := def.Parameters.Map()
			if err != nil {
				return nil, fmt.Errorf("tool %s: %w", def.Name, err)
			}
			function.Parameters = params
		}
		if def.Description != "" {
			function.Description = openai.String(def.Description)
		}
		result = append(result, openai.ChatCompletionToolUnionParam{
			OfFunction: &openai.ChatCompletionFunctionToolParam{
				Function: function,
				Type:     constant.ValueOf[constant.Function](),
			},
		})
	}
	return result, nil
}

func requestTraceMiddleware(log zerolog.Logger) option.Middleware {
	traceLog := log.With().Str("component", "openai_http").Logger()
	return func(req *http.Request, next option.MiddlewareNext) (*http.Response, error) {
		start := time.Now()
		requestID := strings.TrimSpace(req.Header.Get("x-request-id"))
		if requestID == "" {
			requestID = uuid.NewString()
			req.Header.Set("x-request-id", requestID)
		}

		resp, err := next(req)

		evt := traceLog.Debug().
			Str("request_id", requestID).
			Str("method", req.Method).
			Str("host", req.URL.Host).
			Str("path", req.URL.Path).
			Dur("duration", time.Since(start))
		if err != nil {
			evt.Err(err).Msg("openai request failed")
			return resp, err
		}
		evt.Int("status", resp.StatusCode).Msg("openai request")
		return resp, nil
	}
}
