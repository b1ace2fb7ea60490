package llm

import (
	"sort"
	"sync"

	"llmcore/message"
)

// StreamEventKind discriminates the StreamEvent tagged union.
type StreamEventKind string

const (
	EventContent    StreamEventKind = "content"
	EventToolCall   StreamEventKind = "tool_call"
	EventToolResult StreamEventKind = "tool_result"
	EventError      StreamEventKind = "error"
	EventDone       StreamEventKind = "done"
)

// ToolResultEvent is present only in playback/synthetic streams.
type ToolResultEvent struct {
	ToolCallID string
	Result     string
}

// StreamEvent is a single unit emitted by a streaming completion. Exactly
// one of Done or Error terminates a stream; never both.
type StreamEvent struct {
	Kind       StreamEventKind
	Content    string
	ToolCall   message.ToolCall
	ToolResult ToolResultEvent
	Err        *Error
	Metadata   map[string]any
}

func ContentEvent(chunk string) StreamEvent { return StreamEvent{Kind: EventContent, Content: chunk} }

func ToolCallEvent(tc message.ToolCall) StreamEvent {
	return StreamEvent{Kind: EventToolCall, ToolCall: tc}
}

func ToolResultStreamEvent(toolCallID, result string) StreamEvent {
	return StreamEvent{Kind: EventToolResult, ToolResult: ToolResultEvent{ToolCallID: toolCallID, Result: result}}
}

func ErrorEvent(err *Error) StreamEvent { return StreamEvent{Kind: EventError, Err: err} }

func DoneEvent(metadata map[string]any) StreamEvent {
	return StreamEvent{Kind: EventDone, Metadata: metadata}
}

// ToolCallAccumulator assembles tool calls from indexed argument-string
// deltas as vendors stream them: fragments are keyed by index and argument
// deltas concatenated in arrival order, with the assembled call emitted
// only when the block (or the stream) ends.
type ToolCallAccumulator struct {
	mu      sync.Mutex
	order   []int
	entries map[int]*accumulatorEntry
}

type accumulatorEntry struct {
	id           string
	name         string
	args         string
	gotFirstArgs bool
	metadata     *message.ProviderMetadata
}

func NewToolCallAccumulator() *ToolCallAccumulator {
	return &ToolCallAccumulator{entries: make(map[int]*accumulatorEntry)}
}

// Start records the initial (possibly partial) tool-call header at index.
func (a *ToolCallAccumulator) Start(index int, id, name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.entries[index]; !ok {
		a.order = append(a.order, index)
		a.entries[index] = &accumulatorEntry{}
	}
	e := a.entries[index]
	if id != "" {
		e.id = id
	}
	if name != "" {
		e.name = name
	}
}

// AppendArgs concatenates an arguments-string delta in arrival order.
// Start records no arguments, so the first delta for an index begins the
// arguments string and each later delta is appended to it; a block-start
// placeholder such as "{}" is never fed in here by the provider clients.
func (a *ToolCallAccumulator) AppendArgs(index int, delta string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.entries[index]
	if !ok {
		e = &accumulatorEntry{}
		a.entries[index] = e
		a.order = append(a.order, index)
	}
	if !e.gotFirstArgs {
		e.args = delta
		e.gotFirstArgs = true
		return
	}
	e.args += delta
}

// SetMetadata attaches provider-opaque metadata (e.g. a Gemini thought
// signature) observed for the tool call at index.
func (a *ToolCallAccumulator) SetMetadata(index int, pm *message.ProviderMetadata) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.entries[index]
	if !ok {
		e = &accumulatorEntry{}
		a.entries[index] = e
		a.order = append(a.order, index)
	}
	e.metadata = pm
}

// Finish returns fully assembled ToolCalls in index order, to be emitted
// once the stream ends the tool-call block (or the stream ends).
func (a *ToolCallAccumulator) Finish() []message.ToolCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	indices := append([]int(nil), a.order...)
	sort.Ints(indices)
	out := make([]message.ToolCall, 0, len(indices))
	for _, idx := range indices {
		e := a.entries[idx]
		if e.name == "" {
			continue
		}
		args := e.args
		if args == "" {
			args = "{}"
		}
		out = append(out, message.ToolCall{
			ID:               e.id,
			Type:             "function",
			Function:         message.ToolCallFunction{Name: e.name, Arguments: args},
			ProviderMetadata: e.metadata,
		})
	}
	return out
}

// Len reports the number of tool calls tracked so far.
func (a *ToolCallAccumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}
