package core

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gwi.com/agenda/internal/llm"
	"gwi.com/agenda/internal/mail"
	"gwi.com/agenda/internal/tools"
)

// scriptedClient replays canned responses and records what it was sent.
type scriptedClient struct {
	responses []*llm.Message
	err       error
	calls     [][]llm.Message
	defs      []tools.Definition
}

func (c *scriptedClient) Generate(ctx context.Context, messages []llm.Message, defs []tools.Definition) (*llm.Message, error) {
	c.calls = append(c.calls, slices.Clone(messages))
	c.defs = defs
	if c.err != nil {
		return nil, c.err
	}
	if len(c.calls) > len(c.responses) {
		return nil, errors.New("script exhausted")
	}
	return c.responses[len(c.calls)-1], nil
}

func (c *scriptedClient) Close() error { return nil }

type stubHoroscope struct {
	result any
}

func (h stubHoroscope) Get(ctx context.Context, timeframe, sign, day string) any {
	return h.result
}

func newTestChat(t *testing.T, client llm.Client, maxTurns int) (*ChatService, *ContactService) {
	t.Helper()
	contacts, _ := newTestContacts(t)
	registry := NewToolRegistry(contacts, NewQueryService(contacts), stubHoroscope{result: map[string]any{"data": "sunny"}}, mail.LogSender{})
	return NewChatService(client, registry, maxTurns), contacts
}

func toolCallMessage(calls ...llm.ToolCall) *llm.Message {
	return &llm.Message{Role: llm.RoleAssistant, ToolCalls: calls}
}

func TestChatWithoutToolCallsMakesOneModelCall(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Message{
		{Role: llm.RoleAssistant, Content: "Hola"},
	}}
	chat, _ := newTestChat(t, client, 0)

	answer, err := chat.Chat(context.Background(), "hola")
	require.NoError(t, err)

	assert.Equal(t, "Hola", answer.Content)
	require.Len(t, client.calls, 1)
	assert.Equal(t, []llm.Message{{Role: llm.RoleUser, Content: "hola"}}, client.calls[0])

	names := make([]string, 0, len(client.defs))
	for _, d := range client.defs {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{ToolQueryContacts, ToolUpdateContact, ToolSendEmail, ToolGetHoroscope}, names)
}

func TestChatWithOneToolCallMakesTwoModelCalls(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Message{
		toolCallMessage(llm.ToolCall{ID: "call_1", Name: ToolQueryContacts, Arguments: `{"expression":"[].nombre"}`}),
		{Role: llm.RoleAssistant, Content: "Tienes a Ana."},
	}}
	chat, contacts := newTestChat(t, client, 0)
	_, err := contacts.Create(context.Background(), map[string]any{"nombre": "Ana", "telefono": "1"})
	require.NoError(t, err)

	answer, err := chat.Chat(context.Background(), "who do I know?")
	require.NoError(t, err)
	assert.Equal(t, "Tienes a Ana.", answer.Content)

	require.Len(t, client.calls, 2)
	second := client.calls[1]
	require.Len(t, second, 3)
	assert.Equal(t, llm.RoleAssistant, second[1].Role)
	assert.Equal(t, llm.RoleTool, second[2].Role)
	assert.Equal(t, &llm.ToolResult{ToolCallID: "call_1", ToolName: ToolQueryContacts, Content: `["Ana"]`}, second[2].ToolResult)
}

func TestChatRunsToolCallsInOrder(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Message{
		toolCallMessage(
			llm.ToolCall{ID: "a", Name: ToolUpdateContact, Arguments: `{"contact_id":1,"new_fields":{"ciudad":"Lima"}}`},
			llm.ToolCall{ID: "b", Name: ToolQueryContacts, Arguments: `{"expression":"[0].ciudad"}`},
			llm.ToolCall{ID: "c", Name: ToolGetHoroscope, Arguments: `{"timeframe":"daily","sign":"leo"}`},
		),
		{Role: llm.RoleAssistant, Content: "done"},
	}}
	chat, contacts := newTestChat(t, client, 0)
	_, err := contacts.Create(context.Background(), map[string]any{"nombre": "Ana", "telefono": "1"})
	require.NoError(t, err)

	_, err = chat.Chat(context.Background(), "move Ana to Lima")
	require.NoError(t, err)

	second := client.calls[1]
	require.Len(t, second, 5)
	assert.Equal(t, "true", second[2].ToolResult.Content)
	assert.Equal(t, `"Lima"`, second[3].ToolResult.Content)
	assert.JSONEq(t, `{"data":"sunny"}`, second[4].ToolResult.Content)
	assert.Equal(t, []string{"a", "b", "c"}, []string{
		second[2].ToolResult.ToolCallID, second[3].ToolResult.ToolCallID, second[4].ToolResult.ToolCallID,
	})
}

func TestChatUnknownToolAborts(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Message{
		toolCallMessage(llm.ToolCall{ID: "x", Name: "delete_everything", Arguments: `{}`}),
	}}
	chat, _ := newTestChat(t, client, 0)

	_, err := chat.Chat(context.Background(), "hi")
	var notFound *tools.ToolNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "delete_everything", notFound.Name)
	assert.Len(t, client.calls, 1)
}

func TestChatToolFailureAborts(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Message{
		toolCallMessage(llm.ToolCall{ID: "x", Name: ToolQueryContacts, Arguments: `{"expression":""}`}),
	}}
	chat, _ := newTestChat(t, client, 0)

	_, err := chat.Chat(context.Background(), "hi")
	var execErr *tools.ToolExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, ToolQueryContacts, execErr.Name)
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestChatStopsAtMaxTurns(t *testing.T) {
	loop := toolCallMessage(llm.ToolCall{ID: "x", Name: ToolQueryContacts, Arguments: `{"expression":"length(@)"}`})
	client := &scriptedClient{responses: []*llm.Message{loop, loop, loop, loop}}
	chat, _ := newTestChat(t, client, 3)

	_, err := chat.Chat(context.Background(), "hi")
	var maxTurns *MaxTurnsError
	require.ErrorAs(t, err, &maxTurns)
	assert.Equal(t, 3, maxTurns.Turns)
	assert.Len(t, client.calls, 3)
}

func TestChatModelErrors(t *testing.T) {
	cfgClient := &scriptedClient{err: &llm.ConfigurationError{Setting: "OPENAI_API_KEY"}}
	chat, _ := newTestChat(t, cfgClient, 0)
	_, err := chat.Chat(context.Background(), "hi")
	var cfgErr *llm.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	var upstream *UpstreamError
	assert.False(t, errors.As(err, &upstream))

	boom := errors.New("connection reset")
	chat, _ = newTestChat(t, &scriptedClient{err: boom}, 0)
	_, err = chat.Chat(context.Background(), "hi")
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, "model", upstream.Step)
	assert.ErrorIs(t, err, boom)
}
