package recorder

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"llmcore/llm"
	"llmcore/message"
	"llmcore/schema"

	"github.com/rs/zerolog/log"
)

// LookupError reports a Player call with no matching recorded input. The
// unmatched input is logged at lookup time for debugging.
type LookupError struct {
	Method string
	Input  string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("recorder: no matching recorded call for method %q", e.Method)
}

// Player replays a Recorder's journal by exact structural-equality
// matching on the canonical input representation. It never contacts a
// vendor. Exact matching places correctness on whoever generated the
// trace: inputs must be canonical.
type Player struct {
	byKey map[string]journalLine
}

// Load reads path, indexing every well-formed line by its canonical input
// key. Malformed lines are skipped with a warning; if zero valid records
// remain, Load fails.
func Load(path string) (*Player, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("recorder: open %s: %w", path, err)
	}
	defer f.Close()

	p := &Player{byKey: make(map[string]journalLine)}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var jl journalLine
		if err := json.Unmarshal(line, &jl); err != nil {
			log.Warn().Err(err).Int("line", lineNo).Msg("recorder: skipping malformed journal line")
			continue
		}
		key, kerr := canonicalKey(jl.Input)
		if kerr != nil {
			log.Warn().Err(kerr).Int("line", lineNo).Msg("recorder: skipping journal line with non-canonicalizable input")
			continue
		}
		p.byKey[key] = jl
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("recorder: reading %s: %w", path, err)
	}
	if len(p.byKey) == 0 {
		return nil, fmt.Errorf("recorder: no valid records found in %s", path)
	}
	return p, nil
}

func (p *Player) lookup(ctx context.Context, in entryInput) (entryOutput, error) {
	key, err := canonicalKey(in)
	if err != nil {
		return entryOutput{}, err
	}
	jl, ok := p.byKey[key]
	if !ok {
		log.Ctx(ctx).Warn().Str("method", in.Method).Str("input", key).Msg("recorder: player lookup miss")
		return entryOutput{}, &LookupError{Method: in.Method, Input: key}
	}
	return jl.Output, nil
}

func (p *Player) GenerateResponse(ctx context.Context, req llm.Request) (llm.Output, error) {
	in, err := inputFor("generate_response", req.Model, req.Messages)
	if err != nil {
		return llm.Output{}, err
	}
	in.Tools = req.Tools
	tc := req.ToolChoice
	in.ToolChoice = &tc

	out, err := p.lookup(ctx, in)
	if err != nil {
		return llm.Output{}, err
	}
	return responseFromOutput(out)
}

// GenerateResponseStream satisfies a streaming call by matching the
// non-streaming equivalent and synthesizing events: Content, then one
// ToolCall event per recorded tool call, then Done.
func (p *Player) GenerateResponseStream(ctx context.Context, req llm.Request) (<-chan llm.StreamEvent, error) {
	out, err := p.GenerateResponse(ctx, req)
	if err != nil {
		ch := make(chan llm.StreamEvent, 1)
		ch <- llm.ErrorEvent(llm.NewError(llm.KindProviderConnection, "player", req.Model, err))
		close(ch)
		return ch, nil
	}

	ch := make(chan llm.StreamEvent, len(out.ToolCalls)+2)
	if out.Content != "" {
		ch <- llm.ContentEvent(out.Content)
	}
	for _, tc := range out.ToolCalls {
		ch <- llm.ToolCallEvent(tc)
	}
	ch <- llm.DoneEvent(nil)
	close(ch)
	return ch, nil
}

func (p *Player) GenerateStructured(ctx context.Context, req llm.Request, sch schema.Schema, maxRetries int) (json.RawMessage, error) {
	in, err := inputFor("generate_structured", req.Model, req.Messages)
	if err != nil {
		return nil, err
	}
	in.SchemaName = sch.Name
	in.Schema = sch.Raw
	in.MaxRetries = maxRetries

	out, err := p.lookup(ctx, in)
	if err != nil {
		return nil, err
	}
	return out.ModelData, nil
}

func (p *Player) FormatUserMessageWithFile(ctx context.Context, opts llm.FileMessageOptions) (message.Message, error) {
	in := entryInput{
		Method:     "format_user_message_with_file",
		PromptText: opts.PromptText,
		FilePath:   opts.FilePath,
		MimeType:   opts.MimeType,
	}
	out, err := p.lookup(ctx, in)
	if err != nil {
		return message.Message{}, err
	}
	return message.FromJSON(out.Message)
}
