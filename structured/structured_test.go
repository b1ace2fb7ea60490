package structured

import (
	"context"
	"encoding/json"
	"testing"

	"llmcore/llm"
	"llmcore/message"
	"llmcore/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nameSchema() schema.Schema {
	return schema.New("Named", map[string]any{
		"type":       "object",
		"required":   []any{"name"},
		"properties": map[string]any{"name": map[string]any{"type": "string"}},
	})
}

func TestStructuredOutputRetriesThenSucceeds(t *testing.T) {
	responses := []string{
		`{name: 1}`,              // invalid JSON
		`{"other":"x"}`,          // schema-invalid
		`{"name":"ok"}`,          // valid
	}
	calls := 0
	gen := func(ctx context.Context, msgs []message.Message) (llm.Output, error) {
		resp := responses[calls]
		calls++
		return llm.Output{Content: resp}, nil
	}

	e := Engine{Provider: "test", Model: "test-model"}
	out, err := e.Run(context.Background(), gen, []message.Message{message.User("give me a name")}, nameSchema(), 2)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, "ok", decoded["name"])
}

func TestStructuredOutputExhaustsRetries(t *testing.T) {
	calls := 0
	gen := func(ctx context.Context, msgs []message.Message) (llm.Output, error) {
		calls++
		return llm.Output{Content: `{"wrong":"shape"}`}, nil
	}

	e := Engine{Provider: "test", Model: "test-model"}
	_, err := e.Run(context.Background(), gen, []message.Message{message.User("x")}, nameSchema(), 2)
	require.Error(t, err)
	var soErr *llm.StructuredOutputError
	require.ErrorAs(t, err, &soErr)
	assert.Equal(t, 3, calls) // 1 initial + 2 retries
}

func TestStructuredOutputNonRetriableBypassesLoop(t *testing.T) {
	calls := 0
	gen := func(ctx context.Context, msgs []message.Message) (llm.Output, error) {
		calls++
		return llm.Output{}, llm.NewError(llm.KindContextLength, "test", "m", nil)
	}
	e := Engine{Provider: "test", Model: "test-model"}
	_, err := e.Run(context.Background(), gen, []message.Message{message.User("x")}, nameSchema(), 2)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
