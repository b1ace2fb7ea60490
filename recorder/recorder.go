// Package recorder implements the Recorder/Player interaction journal: a
// JSON-lines, append-only trace of every unary provider-client call, and
// a playback decorator that replays those calls by exact
// structural-equality match instead of touching the vendor.
package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"llmcore/llm"
	"llmcore/message"
	"llmcore/schema"

	"github.com/rs/zerolog/log"
)

// entryInput is the neutral, canonical representation of one call's
// arguments, keyed by method name. Field presence varies by method; only
// the fields relevant to the invoked method are populated.
type entryInput struct {
	Method     string                   `json:"method"`
	Model      string                   `json:"model,omitempty"`
	Messages   []json.RawMessage        `json:"messages,omitempty"`
	Tools      []message.ToolDefinition `json:"tools,omitempty"`
	ToolChoice *llm.ToolChoice          `json:"tool_choice,omitempty"`
	SchemaName string                   `json:"schema_name,omitempty"`
	Schema     map[string]any           `json:"schema,omitempty"`
	MaxRetries int                      `json:"max_retries,omitempty"`
	PromptText string                   `json:"prompt_text,omitempty"`
	FilePath   string                   `json:"file_path,omitempty"`
	MimeType   string                   `json:"mime_type,omitempty"`
}

// entryOutput is the recorded result of a call. Exactly one of the
// operation-specific shapes is populated, matching which method produced
// it.
type entryOutput struct {
	Content          string             `json:"content,omitempty"`
	ToolCalls        []message.ToolCall `json:"tool_calls,omitempty"`
	ReasoningInfo    map[string]any     `json:"reasoning_info,omitempty"`
	ProviderMetadata json.RawMessage    `json:"provider_metadata,omitempty"`

	// Structured-output calls record {model_name, model_data} so the
	// player can reconstruct the instance.
	ModelName string          `json:"model_name,omitempty"`
	ModelData json.RawMessage `json:"model_data,omitempty"`

	// FormatUserMessageWithFile's result.
	Message json.RawMessage `json:"message,omitempty"`
}

type journalLine struct {
	Input  entryInput  `json:"input"`
	Output entryOutput `json:"output"`
}

func inputFor(method, model string, msgs []message.Message) (entryInput, error) {
	raw := make([]json.RawMessage, len(msgs))
	for i, m := range msgs {
		b, err := m.ToJSON()
		if err != nil {
			return entryInput{}, err
		}
		raw[i] = b
	}
	return entryInput{Method: method, Model: model, Messages: raw}, nil
}

func canonicalKey(in entryInput) (string, error) {
	b, err := json.Marshal(in)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func outputFromResponse(out llm.Output) (entryOutput, error) {
	var pmRaw json.RawMessage
	if out.ProviderMetadata != nil {
		b, err := json.Marshal(out.ProviderMetadata)
		if err != nil {
			return entryOutput{}, err
		}
		pmRaw = b
	}
	return entryOutput{
		Content:          out.Content,
		ToolCalls:        out.ToolCalls,
		ReasoningInfo:    out.ReasoningInfo,
		ProviderMetadata: pmRaw,
	}, nil
}

func responseFromOutput(o entryOutput) (llm.Output, error) {
	var pm *message.ProviderMetadata
	if len(o.ProviderMetadata) > 0 {
		pm = &message.ProviderMetadata{}
		if err := json.Unmarshal(o.ProviderMetadata, pm); err != nil {
			return llm.Output{}, err
		}
	}
	return llm.Output{
		Content:          o.Content,
		ToolCalls:        o.ToolCalls,
		ReasoningInfo:    o.ReasoningInfo,
		ProviderMetadata: pm,
	}, nil
}

// Recorder wraps a provider client, appending a journal line for every
// GenerateResponse/GenerateStructured/FormatUserMessageWithFile call.
// Streaming calls pass through unrecorded.
type Recorder struct {
	Wrapped llm.ProviderClient
	Model   string

	mu   sync.Mutex
	file *os.File
}

// Open creates a Recorder appending to path (created if absent).
func Open(path string, wrapped llm.ProviderClient, model string) (*Recorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("recorder: open %s: %w", path, err)
	}
	return &Recorder{Wrapped: wrapped, Model: model, file: f}, nil
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file.Close()
}

func (r *Recorder) append(line journalLine) error {
	b, err := json.Marshal(line)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err = r.file.Write(b)
	return err
}

// GenerateResponse calls through to Wrapped and journals {input, output}.
// Calls cancelled or failed before completion are not committed: any error
// from the wrapped call skips the journal write entirely.
func (r *Recorder) GenerateResponse(ctx context.Context, req llm.Request) (llm.Output, error) {
	out, err := r.Wrapped.GenerateResponse(ctx, req)
	if err != nil {
		return out, err
	}
	in, ierr := inputFor("generate_response", req.Model, req.Messages)
	if ierr != nil {
		log.Ctx(ctx).Warn().Err(ierr).Msg("recorder: failed to canonicalize input, skipping journal write")
		return out, nil
	}
	in.Tools = req.Tools
	tc := req.ToolChoice
	in.ToolChoice = &tc
	eo, oerr := outputFromResponse(out)
	if oerr != nil {
		log.Ctx(ctx).Warn().Err(oerr).Msg("recorder: failed to canonicalize output, skipping journal write")
		return out, nil
	}
	if werr := r.append(journalLine{Input: in, Output: eo}); werr != nil {
		log.Ctx(ctx).Warn().Err(werr).Msg("recorder: journal write failed")
	}
	return out, nil
}

// GenerateResponseStream passes through unrecorded.
func (r *Recorder) GenerateResponseStream(ctx context.Context, req llm.Request) (<-chan llm.StreamEvent, error) {
	return r.Wrapped.GenerateResponseStream(ctx, req)
}

func (r *Recorder) GenerateStructured(ctx context.Context, req llm.Request, sch schema.Schema, maxRetries int) (json.RawMessage, error) {
	out, err := r.Wrapped.GenerateStructured(ctx, req, sch, maxRetries)
	if err != nil {
		return out, err
	}
	in, ierr := inputFor("generate_structured", req.Model, req.Messages)
	if ierr != nil {
		log.Ctx(ctx).Warn().Err(ierr).Msg("recorder: failed to canonicalize input, skipping journal write")
		return out, nil
	}
	in.SchemaName = sch.Name
	in.Schema = sch.Raw
	in.MaxRetries = maxRetries
	eo := entryOutput{ModelName: sch.Name, ModelData: out}
	if werr := r.append(journalLine{Input: in, Output: eo}); werr != nil {
		log.Ctx(ctx).Warn().Err(werr).Msg("recorder: journal write failed")
	}
	return out, nil
}

func (r *Recorder) FormatUserMessageWithFile(ctx context.Context, opts llm.FileMessageOptions) (message.Message, error) {
	msg, err := r.Wrapped.FormatUserMessageWithFile(ctx, opts)
	if err != nil {
		return msg, err
	}
	in := entryInput{
		Method:     "format_user_message_with_file",
		PromptText: opts.PromptText,
		FilePath:   opts.FilePath,
		MimeType:   opts.MimeType,
	}
	b, merr := msg.ToJSON()
	if merr != nil {
		log.Ctx(ctx).Warn().Err(merr).Msg("recorder: failed to canonicalize output, skipping journal write")
		return msg, nil
	}
	if werr := r.append(journalLine{Input: in, Output: entryOutput{Message: b}}); werr != nil {
		log.Ctx(ctx).Warn().Err(werr).Msg("recorder: journal write failed")
	}
	return msg, nil
}
