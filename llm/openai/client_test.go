package openai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"llmcore/config"
	"llmcore/llm"
	"llmcore/message"
	"llmcore/reqbuffer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Unary success with no tools configured.
func TestGenerateResponse_Success(t *testing.T) {
	reqbuffer.Reset()
	t.Cleanup(reqbuffer.Reset)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Hello"}}]}`))
	}))
	t.Cleanup(srv.Close)

	c := New(config.ProviderConfig{APIKey: "test", APIBase: srv.URL, Model: "gpt-4o"}, srv.Client())
	out, err := c.GenerateResponse(context.Background(), llm.Request{
		Messages: []message.Message{message.System("s"), message.User("Hi")},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello", out.Content)
	assert.Empty(t, out.ToolCalls)

	recent := reqbuffer.Global(100).GetRecent(10, nil)
	require.Len(t, recent, 1)
	assert.Empty(t, recent[0].Error)
}

// Pre-flight validation: an empty last user message must fail
// before any vendor round trip is attempted.
func TestGenerateResponse_EmptyUserMessageRejected(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	t.Cleanup(srv.Close)

	c := New(config.ProviderConfig{APIKey: "test", APIBase: srv.URL, Model: "gpt-4o"}, srv.Client())
	_, err := c.GenerateResponse(context.Background(), llm.Request{
		Messages: []message.Message{message.System("s"), message.User("")},
	})
	require.Error(t, err)
	var lerr *llm.Error
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, llm.KindInvalidRequest, lerr.Kind)
	assert.False(t, called, "vendor must not be reached on invalid input")
}

func TestGenerateResponse_ToolCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"","tool_calls":[{"id":"c1","type":"function","function":{"name":"add_or_update_note","arguments":"{\"title\":\"t\"}"}}]}}]}`))
	}))
	t.Cleanup(srv.Close)

	c := New(config.ProviderConfig{APIKey: "test", APIBase: srv.URL, Model: "gpt-4o"}, srv.Client())
	out, err := c.GenerateResponse(context.Background(), llm.Request{
		Messages: []message.Message{message.User("add note")},
	})
	require.NoError(t, err)
	require.Len(t, out.ToolCalls, 1)
	assert.Equal(t, "c1", out.ToolCalls[0].ID)
	assert.Equal(t, "add_or_update_note", out.ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"title":"t"}`, out.ToolCalls[0].Function.Arguments)
}

func TestGenerateResponse_ErrorMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limit exceeded"}}`))
	}))
	t.Cleanup(srv.Close)

	c := New(config.ProviderConfig{APIKey: "test", APIBase: srv.URL, Model: "gpt-4o"}, srv.Client())
	_, err := c.GenerateResponse(context.Background(), llm.Request{
		Messages: []message.Message{message.User("hi")},
	})
	require.Error(t, err)
	var lerr *llm.Error
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, llm.KindRateLimit, lerr.Kind)
	assert.True(t, llm.Retriable(err))
}

func TestGenerateResponseStream_ToolCallDeltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		chunks := []string{
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"c1","function":{"name":"search"}}]}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"q\":"}}]}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"x\"}"}}]}}]}`,
			`{"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
		}
		for _, c := range chunks {
			_, _ = w.Write([]byte("data: " + c + "\n\n"))
			if flusher != nil {
				flusher.Flush()
			}
		}
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
		if flusher != nil {
			flusher.Flush()
		}
	}))
	t.Cleanup(srv.Close)

	c := New(config.ProviderConfig{APIKey: "test", APIBase: srv.URL, Model: "gpt-4o"}, srv.Client())
	events, err := c.GenerateResponseStream(context.Background(), llm.Request{
		Messages: []message.Message{message.User("search for x")},
	})
	require.NoError(t, err)

	var toolCalls []message.ToolCall
	sawDone := false
	for ev := range events {
		switch ev.Kind {
		case llm.EventToolCall:
			toolCalls = append(toolCalls, ev.ToolCall)
		case llm.EventDone:
			sawDone = true
		case llm.EventError:
			t.Fatalf("unexpected error event: %v", ev.Err)
		}
	}
	require.True(t, sawDone, "stream must terminate with exactly one Done event")
	require.Len(t, toolCalls, 1)
	assert.Equal(t, "search", toolCalls[0].Function.Name)
	assert.JSONEq(t, `{"q":"x"}`, toolCalls[0].Function.Arguments)
}

// OpenAI has no native document block, so a PDF attachment falls back to a
// file_placeholder part instead of being dropped.
func TestFormatUserMessageWithFile_PDFFallsBackToFilePlaceholder(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/doc.pdf"
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o600))

	c := New(config.ProviderConfig{APIKey: "k", Model: "gpt-4o-mini"}, nil)
	msg, err := c.FormatUserMessageWithFile(context.Background(), llm.FileMessageOptions{
		FilePath: path, MimeType: "application/pdf", PromptText: "summarize this",
	})
	require.NoError(t, err)
	require.Len(t, msg.Parts, 2)
	assert.Equal(t, message.PartFilePlaceholder, msg.Parts[1].Kind)
}

func TestFormatUserMessageWithFile_TextAttachmentTruncatedToMaxTextLength(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/notes.txt"
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o600))

	c := New(config.ProviderConfig{APIKey: "k", Model: "gpt-4o-mini"}, nil)
	msg, err := c.FormatUserMessageWithFile(context.Background(), llm.FileMessageOptions{
		FilePath: path, MimeType: "text/plain", PromptText: "read this", MaxTextLength: 4,
	})
	require.NoError(t, err)
	require.Len(t, msg.Parts, 2)
	assert.Equal(t, "0123\n...[truncated]", msg.Parts[1].Text)
}
