package recorder

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"llmcore/llm"
	"llmcore/message"
	"llmcore/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	out llm.Output
	err error
}

func (f *fakeClient) GenerateResponse(ctx context.Context, req llm.Request) (llm.Output, error) {
	return f.out, f.err
}

func (f *fakeClient) GenerateResponseStream(ctx context.Context, req llm.Request) (<-chan llm.StreamEvent, error) {
	ch := make(chan llm.StreamEvent)
	close(ch)
	return ch, nil
}

func (f *fakeClient) GenerateStructured(ctx context.Context, req llm.Request, sch schema.Schema, maxRetries int) (json.RawMessage, error) {
	return json.RawMessage(`{"name":"ok"}`), nil
}

func (f *fakeClient) FormatUserMessageWithFile(ctx context.Context, opts llm.FileMessageOptions) (message.Message, error) {
	return message.User(opts.PromptText), nil
}

func TestRecordThenPlaybackRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journal.jsonl")

	rec, err := Open(path, &fakeClient{out: llm.Output{Content: "hello there"}}, "test-model")
	require.NoError(t, err)

	req := llm.Request{
		Model:      "test-model",
		Messages:   []message.Message{message.User("hi")},
		ToolChoice: llm.AutoToolChoice(),
	}
	out, err := rec.GenerateResponse(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "hello there", out.Content)
	require.NoError(t, rec.Close())

	player, err := Load(path)
	require.NoError(t, err)

	replayed, err := player.GenerateResponse(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "hello there", replayed.Content)
}

func TestPlayerLookupMissReturnsLookupError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journal.jsonl")

	rec, err := Open(path, &fakeClient{out: llm.Output{Content: "x"}}, "test-model")
	require.NoError(t, err)
	_, err = rec.GenerateResponse(context.Background(), llm.Request{
		Model:      "test-model",
		Messages:   []message.Message{message.User("recorded question")},
		ToolChoice: llm.AutoToolChoice(),
	})
	require.NoError(t, err)
	require.NoError(t, rec.Close())

	player, err := Load(path)
	require.NoError(t, err)

	_, err = player.GenerateResponse(context.Background(), llm.Request{
		Model:      "test-model",
		Messages:   []message.Message{message.User("a different question")},
		ToolChoice: llm.AutoToolChoice(),
	})
	require.Error(t, err)
	var lerr *LookupError
	require.ErrorAs(t, err, &lerr)
}

func TestLoadSkipsMalformedLinesAndFailsIfNoneValid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journal.jsonl")

	rec, err := Open(path, &fakeClient{out: llm.Output{Content: "ok"}}, "m")
	require.NoError(t, err)
	_, err = rec.GenerateResponse(context.Background(), llm.Request{
		Model:      "m",
		Messages:   []message.Message{message.User("q")},
		ToolChoice: llm.AutoToolChoice(),
	})
	require.NoError(t, err)
	require.NoError(t, rec.Close())

	appendRaw(t, path, "not json at all\n")

	player, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, player.byKey, 1)
}

func TestStreamingSynthesizedFromNonStreamingRecord(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journal.jsonl")

	tc, err := message.NewToolCall("call-1", "lookup", map[string]any{"q": "x"})
	require.NoError(t, err)

	rec, err := Open(path, &fakeClient{out: llm.Output{Content: "partial text", ToolCalls: []message.ToolCall{tc}}}, "m")
	require.NoError(t, err)
	req := llm.Request{Model: "m", Messages: []message.Message{message.User("q")}, ToolChoice: llm.AutoToolChoice()}
	_, err = rec.GenerateResponse(context.Background(), req)
	require.NoError(t, err)
	require.NoError(t, rec.Close())

	player, err := Load(path)
	require.NoError(t, err)

	ch, err := player.GenerateResponseStream(context.Background(), req)
	require.NoError(t, err)

	var events []llm.StreamEvent
	for ev := range ch {
		events = append(events, ev)
	}
	require.Len(t, events, 3)
	assert.Equal(t, llm.EventContent, events[0].Kind)
	assert.Equal(t, llm.EventToolCall, events[1].Kind)
	assert.Equal(t, "lookup", events[1].ToolCall.Function.Name)
	assert.Equal(t, llm.EventDone, events[2].Kind)
}

type fileClient struct {
	fakeClient
}

func (f *fileClient) FormatUserMessageWithFile(ctx context.Context, opts llm.FileMessageOptions) (message.Message, error) {
	return message.UserParts(
		message.TextPart(opts.PromptText),
		message.ImageURLPart("data:image/png;base64,AAAA"),
	), nil
}

// TestRecordThenPlaybackPreservesContentParts guards against the Recorder
// flattening a multimodal FormatUserMessageWithFile output (e.g. an
// image part built by attachments.FileParts) to plain text
// before journaling it: the journaled-then-replayed message must still
// carry the image content part, not just its (empty) Content string.
func TestRecordThenPlaybackPreservesContentParts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journal.jsonl")

	rec, err := Open(path, &fileClient{}, "test-model")
	require.NoError(t, err)

	opts := llm.FileMessageOptions{PromptText: "see attached", FilePath: "/tmp/x.png", MimeType: "image/png"}
	out, err := rec.FormatUserMessageWithFile(context.Background(), opts)
	require.NoError(t, err)
	require.Len(t, out.Parts, 2)
	require.NoError(t, rec.Close())

	player, err := Load(path)
	require.NoError(t, err)

	replayed, err := player.FormatUserMessageWithFile(context.Background(), opts)
	require.NoError(t, err)
	require.Len(t, replayed.Parts, 2)
	assert.Equal(t, message.PartImageURL, replayed.Parts[1].Kind)
	assert.Equal(t, "data:image/png;base64,AAAA", replayed.Parts[1].ImageURL)
}

func appendRaw(t *testing.T, path, s string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteString(s)
	require.NoError(t, err)
}
