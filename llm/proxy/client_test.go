package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"llmcore/config"
	"llmcore/llm"
	"llmcore/message"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateResponse_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Hello"}}]}`))
	}))
	t.Cleanup(srv.Close)

	c := New(config.ProviderConfig{APIKey: "test", APIBase: srv.URL, Model: "local-llama"}, srv.Client())
	out, err := c.GenerateResponse(context.Background(), llm.Request{
		Messages: []message.Message{message.System("s"), message.User("Hi")},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello", out.Content)
	assert.Empty(t, out.ToolCalls)
}

// Pre-flight validation, same contract as llm/openai.
func TestGenerateResponse_EmptyUserMessageRejected(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	t.Cleanup(srv.Close)

	c := New(config.ProviderConfig{APIKey: "test", APIBase: srv.URL, Model: "local-llama"}, srv.Client())
	_, err := c.GenerateResponse(context.Background(), llm.Request{
		Messages: []message.Message{message.User("")},
	})
	require.Error(t, err)
	var lerr *llm.Error
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, llm.KindInvalidRequest, lerr.Kind)
	assert.False(t, called)
}

func TestGenerateResponse_ToolCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"","tool_calls":[{"id":"c1","type":"function","function":{"name":"search","arguments":"{\"q\":\"x\"}"}}]}}]}`))
	}))
	t.Cleanup(srv.Close)

	c := New(config.ProviderConfig{APIKey: "test", APIBase: srv.URL, Model: "local-llama"}, srv.Client())
	out, err := c.GenerateResponse(context.Background(), llm.Request{
		Messages: []message.Message{message.User("search x")},
	})
	require.NoError(t, err)
	require.Len(t, out.ToolCalls, 1)
	assert.Equal(t, "c1", out.ToolCalls[0].ID)
	assert.Equal(t, "search", out.ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"q":"x"}`, out.ToolCalls[0].Function.Arguments)
}

func TestGenerateResponse_ErrorMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limit exceeded"}}`))
	}))
	t.Cleanup(srv.Close)

	c := New(config.ProviderConfig{APIKey: "test", APIBase: srv.URL, Model: "local-llama"}, srv.Client())
	_, err := c.GenerateResponse(context.Background(), llm.Request{
		Messages: []message.Message{message.User("hi")},
	})
	require.Error(t, err)
	var lerr *llm.Error
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, llm.KindRateLimit, lerr.Kind)
	assert.True(t, llm.Retriable(err))
}

// The proxy family hoists a `reasoning` kwarg subkey out to its own
// top-level request field instead of leaving it nested, unlike the native
// OpenAI client.
func TestBuildParams_HoistsReasoningSubkey(t *testing.T) {
	c := New(config.ProviderConfig{
		Model:         "local-llama",
		DefaultKwargs: map[string]any{"reasoning": map[string]any{"effort": "high"}},
	}, nil)
	params := c.buildParams(llm.Request{Messages: []message.Message{message.User("hi")}})
	b, err := json.Marshal(params)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Contains(t, decoded, "reasoning")
}

func TestFormatUserMessageWithFile_TextAttachmentTruncatedToMaxTextLength(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/notes.txt"
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o600))

	c := New(config.ProviderConfig{Model: "local-llama"}, nil)
	msg, err := c.FormatUserMessageWithFile(context.Background(), llm.FileMessageOptions{
		FilePath: path, MimeType: "text/plain", PromptText: "read this", MaxTextLength: 4,
	})
	require.NoError(t, err)
	require.Len(t, msg.Parts, 2)
	assert.Equal(t, "0123\n...[truncated]", msg.Parts[1].Text)
}

func TestFormatUserMessageWithFile_ImageBecomesImageURLPart(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/pic.png"
	require.NoError(t, os.WriteFile(path, []byte("fakepng"), 0o600))

	c := New(config.ProviderConfig{Model: "local-llama"}, nil)
	msg, err := c.FormatUserMessageWithFile(context.Background(), llm.FileMessageOptions{
		FilePath: path, MimeType: "image/png", PromptText: "describe this",
	})
	require.NoError(t, err)
	require.Len(t, msg.Parts, 2)
	assert.Equal(t, message.PartImageURL, msg.Parts[1].Kind)
}
