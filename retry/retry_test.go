package retry

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

// scriptedClient is a fake llm.ProviderClient whose GenerateResponse calls
// are scripted in order: each call pops one entry off responses (or, once
// exhausted, repeats the last entry).
type scriptedClient struct {
	name      string
	responses []scriptedResponse
	calls     int
}

type scriptedResponse struct {
	out llm.Output
	err error
}

func (c *scriptedClient) GenerateResponse(ctx context.Context, req llm.Request) (llm.Output, error) {
	i := c.calls
	if i >= len(c.responses) {
		i = len(c.responses) - 1
	}
	c.calls++
	r := c.responses[i]
	return r.out, r.err
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

func rateLimitErr(provider string) error {
	return llm.NewError(llm.KindRateLimit, provider, "m", nil)
}

func contextLengthErr(provider string) error {
	return llm.NewError(llm.KindContextLength, provider, "m", nil)
}

// Primary raises RateLimit twice, fallback returns "fallback-ok".
func TestRetryThenFallbackSucceeds(t *testing.T) {
	primary := &scriptedClient{responses: []scriptedResponse{
		{err: rateLimitErr("primary")},
		{err: rateLimitErr("primary")},
	}}
	fallback := &scriptedClient{responses: []scriptedResponse{
		{out: llm.Output{Content: "fallback-ok"}},
	}}

	w := New(primary, fallback, Config{PrimaryModelID: "primary-model", FallbackModelID: "fallback-model"})
	out, err := w.GenerateResponse(context.Background(), llm.Request{Model: "primary-model"})
	require.NoError(t, err)
	assert.Equal(t, "fallback-ok", out.Content)
	assert.Equal(t, 2, primary.calls)
	assert.Equal(t, 1, fallback.calls)
}

// A retriable primary failure makes exactly three vendor calls total
// (2 primary + 1 fallback), returning the original primary error.
func TestRetriableFailsThenFallbackFails(t *testing.T) {
	primaryErr := rateLimitErr("primary")
	primary := &scriptedClient{responses: []scriptedResponse{
		{err: primaryErr},
		{err: primaryErr},
	}}
	fallback := &scriptedClient{responses: []scriptedResponse{
		{err: rateLimitErr("fallback")},
	}}

	w := New(primary, fallback, Config{PrimaryModelID: "primary-model", FallbackModelID: "fallback-model"})
	_, err := w.GenerateResponse(context.Background(), llm.Request{Model: "primary-model"})
	require.Error(t, err)
	assert.Equal(t, 2, primary.calls)
	assert.Equal(t, 1, fallback.calls)

	var e *llm.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "primary", e.Provider)
}

// On a non-retriable primary error, exactly two total calls are made
// (1 primary + 1 fallback), no primary retry.
func TestNonRetriableSkipsRetrySkipsStraightToFallback(t *testing.T) {
	primary := &scriptedClient{responses: []scriptedResponse{
		{err: contextLengthErr("primary")},
	}}
	fallback := &scriptedClient{responses: []scriptedResponse{
		{err: contextLengthErr("fallback")},
	}}

	w := New(primary, fallback, Config{PrimaryModelID: "primary-model", FallbackModelID: "fallback-model"})
	_, err := w.GenerateResponse(context.Background(), llm.Request{Model: "primary-model"})
	require.Error(t, err)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, fallback.calls)
}

func TestNoFallbackConfiguredReturnsPrimaryError(t *testing.T) {
	primary := &scriptedClient{responses: []scriptedResponse{
		{err: rateLimitErr("primary")},
		{err: rateLimitErr("primary")},
	}}
	w := New(primary, nil, Config{PrimaryModelID: "primary-model"})
	_, err := w.GenerateResponse(context.Background(), llm.Request{Model: "primary-model"})
	require.Error(t, err)
	assert.Equal(t, 2, primary.calls)
}

// A fallback configured with the same model id as the primary is never
// attempted, even if a fallback client is wired.
func TestFallbackSameModelAsPrimaryIsSkipped(t *testing.T) {
	primary := &scriptedClient{responses: []scriptedResponse{
		{err: rateLimitErr("primary")},
		{err: rateLimitErr("primary")},
	}}
	fallback := &scriptedClient{responses: []scriptedResponse{
		{out: llm.Output{Content: "should never be reached"}},
	}}
	w := New(primary, fallback, Config{PrimaryModelID: "same-model", FallbackModelID: "same-model"})
	_, err := w.GenerateResponse(context.Background(), llm.Request{Model: "same-model"})
	require.Error(t, err)
	assert.Equal(t, 0, fallback.calls)
}

// A structurally successful but empty Output triggers the same
// retry/fallback schedule as a RateLimit error.
func TestEmptyResponseTreatedAsRetriable(t *testing.T) {
	primary := &scriptedClient{responses: []scriptedResponse{
		{out: llm.Output{}},
		{out: llm.Output{}},
	}}
	fallback := &scriptedClient{responses: []scriptedResponse{
		{out: llm.Output{Content: "fallback-ok"}},
	}}
	w := New(primary, fallback, Config{PrimaryModelID: "primary-model", FallbackModelID: "fallback-model"})
	out, err := w.GenerateResponse(context.Background(), llm.Request{Model: "primary-model"})
	require.NoError(t, err)
	assert.Equal(t, "fallback-ok", out.Content)
}

func TestPrimarySucceedsNoRetryNoFallback(t *testing.T) {
	primary := &scriptedClient{responses: []scriptedResponse{
		{out: llm.Output{Content: "primary-ok"}},
	}}
	fallback := &scriptedClient{responses: []scriptedResponse{
		{out: llm.Output{Content: "should never be reached"}},
	}}
	w := New(primary, fallback, Config{PrimaryModelID: "primary-model", FallbackModelID: "fallback-model"})
	out, err := w.GenerateResponse(context.Background(), llm.Request{Model: "primary-model"})
	require.NoError(t, err)
	assert.Equal(t, "primary-ok", out.Content)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 0, fallback.calls)
}

func TestFormatUserMessageWithFileDelegatesToPrimary(t *testing.T) {
	primary := &scriptedClient{}
	w := New(primary, nil, Config{PrimaryModelID: "primary-model"})
	msg, err := w.FormatUserMessageWithFile(context.Background(), llm.FileMessageOptions{PromptText: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Content)
}

// --- streaming ---

type streamingClient struct {
	events []llm.StreamEvent
	err    error
	calls  int
}

func (c *streamingClient) GenerateResponse(ctx context.Context, req llm.Request) (llm.Output, error) {
	return llm.Output{}, nil
}

func (c *streamingClient) GenerateResponseStream(ctx context.Context, req llm.Request) (<-chan llm.StreamEvent, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	ch := make(chan llm.StreamEvent, len(c.events))
	for _, e := range c.events {
		ch <- e
	}
	close(ch)
	return ch, nil
}

func (c *streamingClient) GenerateStructured(ctx context.Context, req llm.Request, sch schema.Schema, maxRetries int) (json.RawMessage, error) {
	return nil, nil
}

func (c *streamingClient) FormatUserMessageWithFile(ctx context.Context, opts llm.FileMessageOptions) (message.Message, error) {
	return message.Message{}, nil
}

func drain(ch <-chan llm.StreamEvent) []llm.StreamEvent {
	var out []llm.StreamEvent
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func TestStreamFallsBackWhenPrimaryYieldsNoEvents(t *testing.T) {
	primary := &streamingClient{err: rateLimitErr("primary")}
	fallback := &streamingClient{events: []llm.StreamEvent{
		llm.ContentEvent("fallback content"),
		llm.DoneEvent(nil),
	}}
	w := New(primary, fallback, Config{PrimaryModelID: "primary-model", FallbackModelID: "fallback-model"})
	ch, err := w.GenerateResponseStream(context.Background(), llm.Request{Model: "primary-model"})
	require.NoError(t, err)

	events := drain(ch)
	require.Len(t, events, 2)
	assert.Equal(t, llm.EventContent, events[0].Kind)
	assert.Equal(t, "fallback content", events[0].Content)
	assert.Equal(t, llm.EventDone, events[1].Kind)
	// Retriable pre-yield failure: primary is attempted twice before the
	// fallback stream starts.
	assert.Equal(t, 2, primary.calls)
	assert.Equal(t, 1, fallback.calls)
}

// The streaming counterpart of TestRetriableFailsThenFallbackFails: when
// the fallback stream also fails to open, the forwarded Error event must
// carry the primary's error, not the fallback's.
func TestStreamFallbackAlsoFailsReRaisesPrimaryError(t *testing.T) {
	primary := &streamingClient{err: rateLimitErr("primary")}
	fallback := &streamingClient{err: contextLengthErr("fallback")}
	w := New(primary, fallback, Config{PrimaryModelID: "primary-model", FallbackModelID: "fallback-model"})
	ch, err := w.GenerateResponseStream(context.Background(), llm.Request{Model: "primary-model"})
	require.NoError(t, err)

	events := drain(ch)
	require.Len(t, events, 1)
	require.Equal(t, llm.EventError, events[0].Kind)
	require.NotNil(t, events[0].Err)
	assert.Equal(t, "primary", events[0].Err.Provider)
	assert.Equal(t, llm.KindRateLimit, events[0].Err.Kind)
	assert.Equal(t, 2, primary.calls)
	assert.Equal(t, 1, fallback.calls)
}

func TestStreamNonRetriableGoesStraightToFallback(t *testing.T) {
	primary := &streamingClient{err: contextLengthErr("primary")}
	fallback := &streamingClient{events: []llm.StreamEvent{
		llm.ContentEvent("fallback content"),
		llm.DoneEvent(nil),
	}}
	w := New(primary, fallback, Config{PrimaryModelID: "primary-model", FallbackModelID: "fallback-model"})
	ch, err := w.GenerateResponseStream(context.Background(), llm.Request{Model: "primary-model"})
	require.NoError(t, err)

	events := drain(ch)
	require.Len(t, events, 2)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, fallback.calls)
}

func TestStreamDoesNotFallBackAfterFirstEventYielded(t *testing.T) {
	primary := &streamingClient{events: []llm.StreamEvent{
		llm.ContentEvent("partial"),
		llm.ErrorEvent(llm.NewError(llm.KindProviderConnection, "primary", "m", nil)),
	}}
	fallback := &streamingClient{events: []llm.StreamEvent{
		llm.ContentEvent("should never be reached"),
	}}
	w := New(primary, fallback, Config{PrimaryModelID: "primary-model", FallbackModelID: "fallback-model"})
	ch, err := w.GenerateResponseStream(context.Background(), llm.Request{Model: "primary-model"})
	require.NoError(t, err)

	events := drain(ch)
	require.Len(t, events, 2)
	assert.Equal(t, llm.EventContent, events[0].Kind)
	assert.Equal(t, llm.EventError, events[1].Kind)
}
