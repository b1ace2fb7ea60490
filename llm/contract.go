package llm

import (
	"context"
	"encoding/json"

	"llmcore/message"
	"llmcore/schema"
)

// ToolChoiceKind is one of: auto, none, required/any, or a specific tool
// name. Each provider translates this to its native representation.
type ToolChoiceKind string

const (
	ToolChoiceAuto     ToolChoiceKind = "auto"
	ToolChoiceNone     ToolChoiceKind = "none"
	ToolChoiceRequired ToolChoiceKind = "required"
	ToolChoiceName     ToolChoiceKind = "name"
)

type ToolChoice struct {
	Kind ToolChoiceKind
	Name string // meaningful only when Kind == ToolChoiceName
}

func AutoToolChoice() ToolChoice     { return ToolChoice{Kind: ToolChoiceAuto} }
func NoneToolChoice() ToolChoice     { return ToolChoice{Kind: ToolChoiceNone} }
func RequiredToolChoice() ToolChoice { return ToolChoice{Kind: ToolChoiceRequired} }
func NamedToolChoice(name string) ToolChoice {
	return ToolChoice{Kind: ToolChoiceName, Name: name}
}

// Request is the caller-supplied input to every unary/streaming/structured
// provider call.
type Request struct {
	Model      string
	Messages   []message.Message
	Tools      []message.ToolDefinition
	ToolChoice ToolChoice
}

// Output is the unary response of GenerateResponse.
type Output struct {
	Content          string
	ToolCalls        []message.ToolCall
	ReasoningInfo    map[string]any
	ProviderMetadata *message.ProviderMetadata
}

// FileMessageOptions parameterizes FormatUserMessageWithFile.
type FileMessageOptions struct {
	PromptText    string
	FilePath      string
	MimeType      string
	MaxTextLength int
}

// ProviderClient is the four-operation contract every vendor family (and
// every decorator: retry, recorder, player) implements.
type ProviderClient interface {
	GenerateResponse(ctx context.Context, req Request) (Output, error)
	GenerateResponseStream(ctx context.Context, req Request) (<-chan StreamEvent, error)
	GenerateStructured(ctx context.Context, req Request, sch schema.Schema, maxRetries int) (json.RawMessage, error)
	FormatUserMessageWithFile(ctx context.Context, opts FileMessageOptions) (message.Message, error)
}

// SupportsMultimodalTools reports whether provider natively accepts
// image/document content blocks inside a tool-result message.
// Anthropic and Gemini: true. OpenAI-family and the generic proxy: false.
func SupportsMultimodalTools(provider string) bool {
	switch provider {
	case "anthropic", "google":
		return true
	default:
		return false
	}
}
