package main

import (
	"context"
	"encoding/json"
	"testing"

	"llmcore/llm"
	"llmcore/message"
	"llmcore/schema"
	"llmcore/toolstack"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedClient is a fake llm.ProviderClient whose GenerateResponse calls
// are scripted in order.
type scriptedClient struct {
	responses []llm.Output
	calls     int
	seenTools []llm.ToolChoice
}

func (c *scriptedClient) GenerateResponse(ctx context.Context, req llm.Request) (llm.Output, error) {
	c.seenTools = append(c.seenTools, req.ToolChoice)
	i := c.calls
	if i >= len(c.responses) {
		i = len(c.responses) - 1
	}
	c.calls++
	return c.responses[i], nil
}

func (c *scriptedClient) GenerateResponseStream(ctx context.Context, req llm.Request) (<-chan llm.StreamEvent, error) {
	ch := make(chan llm.StreamEvent)
	close(ch)
	return ch, nil
}

func (c *scriptedClient) GenerateStructured(ctx context.Context, req llm.Request, sch schema.Schema, maxRetries int) (json.RawMessage, error) {
	return nil, nil
}

func (c *scriptedClient) FormatUserMessageWithFile(ctx context.Context, opts llm.FileMessageOptions) (message.Message, error) {
	return message.User(opts.PromptText), nil
}

func newNoteTool(t *testing.T) toolstack.ToolProvider {
	t.Helper()
	p := toolstack.NewLocalProvider()
	require.NoError(t, p.Register("add_note", "adds a note", map[string]any{"type": "object"},
		func(ctx context.Context, args json.RawMessage) (any, error) {
			return "noted", nil
		}))
	return p
}

// One tool-call round trip: the model asks for add_note, then returns
// plain text once it sees the tool result.
func TestRunTurn_ToolCallThenFinalAnswer(t *testing.T) {
	tc, err := message.NewToolCall("c1", "add_note", map[string]any{"title": "x"})
	require.NoError(t, err)

	client := &scriptedClient{responses: []llm.Output{
		{ToolCalls: []message.ToolCall{tc}},
		{Content: "Done, I added the note."},
	}}

	result, err := runTurn(context.Background(), client, newNoteTool(t),
		[]message.Message{message.User("add a note")}, 5)
	require.NoError(t, err)
	assert.Equal(t, "Done, I added the note.", result.Content)
	require.Len(t, result.ExecutedTools, 1)
	assert.Equal(t, "add_note", result.ExecutedTools[0].Name)
	assert.Equal(t, "noted", result.ExecutedTools[0].Response)
}

// No tool calls at all: the loop exits on the first iteration.
func TestRunTurn_NoToolCalls(t *testing.T) {
	client := &scriptedClient{responses: []llm.Output{{Content: "hi there"}}}
	result, err := runTurn(context.Background(), client, newNoteTool(t),
		[]message.Message{message.User("hello")}, 5)
	require.NoError(t, err)
	assert.Equal(t, "hi there", result.Content)
	assert.Empty(t, result.ExecutedTools)
	assert.Equal(t, 1, client.calls)
}

// Hitting maxIterations appends the depth-limit note.
func TestRunTurn_MaxIterationsAppendsNote(t *testing.T) {
	tc, err := message.NewToolCall("c1", "add_note", map[string]any{"title": "x"})
	require.NoError(t, err)

	client := &scriptedClient{responses: []llm.Output{
		{Content: "still working", ToolCalls: []message.ToolCall{tc}},
	}}

	result, err := runTurn(context.Background(), client, newNoteTool(t),
		[]message.Message{message.User("loop forever")}, 2)
	require.NoError(t, err)
	assert.Contains(t, result.Content, "Reached maximum processing depth")
	assert.Equal(t, 2, client.calls)
	assert.Equal(t, llm.ToolChoiceNone, client.seenTools[1].Kind, "tool_choice must be forced to none on the final iteration")
}

func TestRunTurn_UnknownToolReportsErrorToModel(t *testing.T) {
	tc, err := message.NewToolCall("c1", "no_such_tool", map[string]any{})
	require.NoError(t, err)

	client := &scriptedClient{responses: []llm.Output{
		{ToolCalls: []message.ToolCall{tc}},
		{Content: "ok"},
	}}

	result, err := runTurn(context.Background(), client, newNoteTool(t),
		[]message.Message{message.User("call a bad tool")}, 5)
	require.NoError(t, err)
	require.Len(t, result.ExecutedTools, 1)
	assert.Contains(t, result.ExecutedTools[0].Response, "Error:")
}
