// Package message defines the neutral conversational message model shared
// by every provider client. Provider clients translate to and from this
// model at their own boundary; the model itself carries no translation
// knowledge (see DESIGN.md).
package message

import "encoding/json"

// Role identifies which of the five message variants a Message carries.
// Dynamic dispatch on a message happens via an exhaustive switch on Role at
// each provider translation boundary, never via virtual methods on Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleError     Role = "error"
)

// ContentPartKind discriminates the ContentPart sum type.
type ContentPartKind string

const (
	PartText            ContentPartKind = "text"
	PartImageURL        ContentPartKind = "image_url"
	PartAttachmentRef   ContentPartKind = "attachment_ref"
	PartFilePlaceholder ContentPartKind = "file_placeholder"
	// PartDocument carries a PDF as a data URI (Anthropic `type:"document"`,
	// Gemini `inline_data` with application/pdf). Kept distinct from
	// PartImageURL so a provider translation switch can pick the right
	// native constructor.
	PartDocument ContentPartKind = "document"
)

// ContentPart is a sum of {Text}, {ImageURL}, {AttachmentRef},
// {FilePlaceholder}, {Document}. Only the field matching Kind is meaningful.
type ContentPart struct {
	Kind ContentPartKind `json:"kind"`

	Text string `json:"text,omitempty"`

	ImageURL string `json:"image_url,omitempty"`

	AttachmentID string `json:"attachment_id,omitempty"`

	FileReference string `json:"file_reference,omitempty"`

	// DocumentURL is a "data:application/pdf;base64,..." URI, meaningful
	// only when Kind == PartDocument.
	DocumentURL string `json:"document_url,omitempty"`
}

func TextPart(text string) ContentPart { return ContentPart{Kind: PartText, Text: text} }

func ImageURLPart(url string) ContentPart { return ContentPart{Kind: PartImageURL, ImageURL: url} }

func AttachmentRefPart(attachmentID string) ContentPart {
	return ContentPart{Kind: PartAttachmentRef, AttachmentID: attachmentID}
}

func FilePlaceholderPart(reference string) ContentPart {
	return ContentPart{Kind: PartFilePlaceholder, FileReference: reference}
}

func DocumentPart(dataURI string) ContentPart {
	return ContentPart{Kind: PartDocument, DocumentURL: dataURI}
}

// ToolCallFunction is the function payload of a ToolCall.
type ToolCallFunction struct {
	Name string `json:"name"`
	// Arguments is always a serializable JSON string on the wire. Callers
	// may construct a ToolCall with structured Go data via NewToolCall,
	// which normalizes it to a string immediately.
	Arguments string `json:"arguments"`
}

// ToolCall represents the model's request to invoke a named function.
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"` // always "function" today
	Function ToolCallFunction `json:"function"`

	// ProviderMetadata carries provider-opaque data (e.g. a Gemini thought
	// signature) attached to this specific tool call. Nil for providers
	// that don't produce any.
	ProviderMetadata *ProviderMetadata `json:"provider_metadata,omitempty"`
}

// NewToolCall builds a ToolCall, normalizing args (a string or any
// JSON-marshalable value) to a JSON string so record equality stays stable
// regardless of how the caller supplied them.
func NewToolCall(id, name string, args any) (ToolCall, error) {
	tc := ToolCall{ID: id, Type: "function", Function: ToolCallFunction{Name: name}}
	switch v := args.(type) {
	case string:
		tc.Function.Arguments = v
	case json.RawMessage:
		tc.Function.Arguments = string(v)
	case nil:
		tc.Function.Arguments = "{}"
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ToolCall{}, err
		}
		tc.Function.Arguments = string(b)
	}
	return tc, nil
}

// ProviderMetadataKind discriminates the ProviderMetadata sum type: Gemini's
// opaque thought signature and Anthropic's extended-thinking block data
// (JSON-encoded {signature,thinking} pairs stored in ThoughtSignature) both
// round-trip through this same opaque-bytes carrier.
type ProviderMetadataKind string

const (
	MetadataGemini           ProviderMetadataKind = "gemini"
	MetadataAnthropicThinking ProviderMetadataKind = "anthropic_thinking"
)

// ProviderMetadata is an extensible sum tagged by Provider. For Gemini,
// ThoughtSignature is an opaque, uninterpreted byte string that must be
// passed back byte-identical on subsequent turns; no operation other than
// store/load/pass-through is permitted on it at this layer.
type ProviderMetadata struct {
	Provider ProviderMetadataKind `json:"provider"`

	ThoughtSignature []byte `json:"-"`
	InteractionID    string `json:"interaction_id,omitempty"`
}

// Attachment describes a binary/textual blob as seen by the core. Content
// may be unresolved (path-only / URL-only); resolving it into inline bytes
// is the provider client's responsibility, not the attachment's.
type Attachment struct {
	AttachmentID string `json:"attachment_id"`
	MimeType     string `json:"mime_type"`
	Size         int64  `json:"size,omitempty"`
	Description  string `json:"description,omitempty"`

	// Exactly one of these should be populated.
	Bytes    []byte `json:"-"`
	FilePath string `json:"file_path,omitempty"`
	URL      string `json:"url,omitempty"`
}

// AttachmentRef is the persisted, non-transient stand-in for an Attachment
// once its transient bytes have been stripped.
type AttachmentRef struct {
	AttachmentID string `json:"attachment_id"`
	MimeType     string `json:"mime_type"`
	Size         int64  `json:"size,omitempty"`
	Description  string `json:"description,omitempty"`
}

// ToolDefinition describes a callable tool: {name, description, parameters}.
// Parameters is a JSON-Schema subset; each provider strips what it can't
// represent at its own translation boundary (never mutating this value).
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Message is the tagged union of conversational message variants. Which
// fields are meaningful is determined entirely by Role.
type Message struct {
	Role Role `json:"role"`

	// Content holds plain text for System/Error, and may hold plain text
	// for User/Assistant/Tool when Parts is empty.
	Content string `json:"content,omitempty"`

	// Parts carries structured content for User/Tool messages. When
	// non-empty it takes precedence over Content for wire translation.
	Parts []ContentPart `json:"parts,omitempty"`

	// Assistant-only.
	ToolCalls        []ToolCall        `json:"tool_calls,omitempty"`
	ProviderMetadata *ProviderMetadata `json:"provider_metadata,omitempty"`

	// Tool-only.
	ToolCallID string `json:"tool_call_id,omitempty"`
	Name       string `json:"name,omitempty"`

	// Tool/Error shared.
	ErrorTraceback string `json:"error_traceback,omitempty"`

	// Tool-only, transient: in-memory attachments carried across exactly
	// one call boundary. Never serialized; AttachmentRefs is the
	// persisted stand-in.
	Attachments    []Attachment    `json:"-"`
	AttachmentRefs []AttachmentRef `json:"attachment_refs,omitempty"`
}

func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

func User(content string) Message { return Message{Role: RoleUser, Content: content} }

func UserParts(parts ...ContentPart) Message { return Message{Role: RoleUser, Parts: parts} }

func Assistant(content string, toolCalls ...ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: toolCalls}
}

func Tool(toolCallID, name, content string) Message {
	return Message{Role: RoleTool, ToolCallID: toolCallID, Name: name, Content: content}
}

func ErrorMessage(content, traceback string) Message {
	return Message{Role: RoleError, Content: content, ErrorTraceback: traceback}
}

// Valid reports whether m satisfies the structural invariants that are
// checkable without looking at the rest of the conversation (the
// tool_call_id back-reference requires the full history and is checked by
// ValidateConversation).
func (m Message) Valid() bool {
	switch m.Role {
	case RoleAssistant:
		return m.Content != "" || len(m.ToolCalls) > 0
	case RoleTool:
		return m.ToolCallID != "" && m.Name != ""
	case RoleSystem, RoleError:
		return m.Content != ""
	case RoleUser:
		return m.Content != "" || len(m.Parts) > 0
	default:
		return false
	}
}

// ValidateConversation checks that every Tool message's ToolCallID matches
// a ToolCall id from a preceding Assistant message.
func ValidateConversation(msgs []Message) error {
	seen := map[string]bool{}
	for _, m := range msgs {
		if m.Role == RoleAssistant {
			for _, tc := range m.ToolCalls {
				seen[tc.ID] = true
			}
		}
		if m.Role == RoleTool && !seen[m.ToolCallID] {
			return &UnmatchedToolCallError{ToolCallID: m.ToolCallID}
		}
	}
	return nil
}

// UnmatchedToolCallError reports a Tool message whose ToolCallID does not
// match any preceding Assistant ToolCall.
type UnmatchedToolCallError struct {
	ToolCallID string
}

func (e *UnmatchedToolCallError) Error() string {
	return "tool message references unknown tool_call_id " + e.ToolCallID
}

// LastUserContentNonEmpty reports whether msgs' last User message (if any)
// carries non-empty textual or structured content. Provider clients use
// this as their pre-flight input validation.
func LastUserContentNonEmpty(msgs []Message) bool {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role != RoleUser {
			continue
		}
		m := msgs[i]
		if m.Content != "" {
			return true
		}
		for _, p := range m.Parts {
			if p.Kind == PartText && p.Text == "" {
				continue
			}
			return true
		}
		return false
	}
	return true // no user message at all is not this invariant's concern
}
