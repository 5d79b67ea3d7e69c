package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gwi.com/agenda/internal/llm"
	"gwi.com/agenda/internal/tools"
)

const DefaultMaxTurns = 8

// UpstreamError wraps a failed call to an outside service.
type UpstreamError struct {
	Step string
	Err  error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s call failed: %v", e.Step, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// MaxTurnsError is returned when the model is still asking for tools after
// the allowed number of calls.
type MaxTurnsError struct {
	Turns int
}

func (e *MaxTurnsError) Error() string {
	return fmt.Sprintf("model did not produce an answer within %d turns", e.Turns)
}

type ChatService struct {
	client   llm.Client
	registry *tools.Registry
	maxTurns int
}

func NewChatService(client llm.Client, registry *tools.Registry, maxTurns int) *ChatService {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &ChatService{
		client:   client,
		registry: registry,
		maxTurns: maxTurns,
	}
}

func (s *ChatService) Tools() []tools.Definition {
	return s.registry.Definitions()
}

// Chat answers prompt, running every tool the model asks for and feeding the
// results back until it replies with text. A failed tool ends the exchange.
func (s *ChatService) Chat(ctx context.Context, prompt string) (*llm.Message, error) {
	log := zerolog.Ctx(ctx)
	defs := s.registry.Definitions()
	history := []llm.Message{{Role: llm.RoleUser, Content: prompt}}

	for turn := 1; turn <= s.maxTurns; turn++ {
		resp, err := s.client.Generate(ctx, history, defs)
		if err != nil {
			var cfgErr *llm.ConfigurationError
			if errors.As(err, &cfgErr) {
				return nil, err
			}
			return nil, &UpstreamError{Step: "model", Err: err}
		}

		if len(resp.ToolCalls) == 0 {
			log.Debug().Int("turns", turn).Msg("Model answered")
			return resp, nil
		}

		history = append(history, *resp)
		for _, call := range resp.ToolCalls {
			log.Info().Str("tool", call.Name).Str("tool_call_id", call.ID).Int("turn", turn).Msg("Running tool")
			result, err := s.registry.Invoke(ctx, call.Name, call.Arguments)
			if err != nil {
				log.Error().Err(err).Str("tool", call.Name).Msg("Tool call aborted the conversation")
				return nil, err
			}
			history = append(history, llm.Message{
				Role: llm.RoleTool,
				ToolResult: &llm.ToolResult{
					ToolCallID: call.ID,
					ToolName:   call.Name,
					Content:    result,
				},
			})
		}
	}

	return nil, &MaxTurnsError{Turns: s.maxTurns}
}
