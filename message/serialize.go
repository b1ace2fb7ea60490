package message

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

// wireMessage is the JSON shape persisted/sent for a Message. Only the
// truly transient fields (in-memory Attachments, the original tool_result)
// are omitted; Parts is the ContentPart[] form of User/Tool content and is
// part of the required, persisted payload, so it round-trips alongside
// Content rather than being flattened away. ProviderMetadata's opaque
// bytes are base64-encoded for durable storage.
type wireMessage struct {
	Role             Role            `json:"role"`
	Content          string          `json:"content,omitempty"`
	Parts            []ContentPart   `json:"parts,omitempty"`
	ToolCalls        []wireToolCall  `json:"tool_calls,omitempty"`
	ProviderMetadata *wireMetadata   `json:"provider_metadata,omitempty"`
	ToolCallID       string          `json:"tool_call_id,omitempty"`
	Name             string          `json:"name,omitempty"`
	ErrorTraceback   string          `json:"error_traceback,omitempty"`
	AttachmentRefs   []AttachmentRef `json:"attachment_refs,omitempty"`
}

type wireToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ToolCallFunction `json:"function"`
	Metadata *wireMetadata    `json:"provider_metadata,omitempty"`
}

type wireMetadata struct {
	Provider         ProviderMetadataKind `json:"provider"`
	ThoughtSignature string               `json:"thought_signature,omitempty"`
	InteractionID    string               `json:"interaction_id,omitempty"`
}

func toWireMetadata(pm *ProviderMetadata) *wireMetadata {
	if pm == nil {
		return nil
	}
	return &wireMetadata{
		Provider:         pm.Provider,
		ThoughtSignature: EncodeThoughtSignature(pm.ThoughtSignature),
		InteractionID:    pm.InteractionID,
	}
}

func fromWireMetadata(w *wireMetadata) (*ProviderMetadata, error) {
	if w == nil {
		return nil, nil
	}
	sig, err := DecodeThoughtSignature(w.ThoughtSignature)
	if err != nil {
		return nil, err
	}
	return &ProviderMetadata{
		Provider:         w.Provider,
		ThoughtSignature: sig,
		InteractionID:    w.InteractionID,
	}, nil
}

// EncodeThoughtSignature renders an opaque thought-signature byte string
// as a durable base64 string. It must round-trip byte-identical through
// DecodeThoughtSignature; losing or mutating bytes breaks the originating
// provider's next turn.
func EncodeThoughtSignature(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeThoughtSignature reverses EncodeThoughtSignature. It rejects
// strings containing the Unicode replacement character, which indicates
// the value was corrupted by a lossy text round-trip upstream, and falls
// back to treating the string as raw bytes if it isn't valid base64
// (backward compatibility with values stored before base64 encoding was
// added).
func DecodeThoughtSignature(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	if strings.ContainsRune(s, '�') {
		return nil, &CorruptThoughtSignatureError{}
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return []byte(s), nil
}

// CorruptThoughtSignatureError is returned when a stored thought signature
// contains the Unicode replacement character, indicating upstream mangling.
type CorruptThoughtSignatureError struct{}

func (e *CorruptThoughtSignatureError) Error() string {
	return "thought signature contains replacement characters; treating as corrupt"
}

// ToJSON serializes m to its persisted/wire JSON form, carrying Content
// and Parts through unchanged and dropping the transient Attachments.
func (m Message) ToJSON() ([]byte, error) {
	w := wireMessage{
		Role:             m.Role,
		Content:          m.Content,
		Parts:            m.Parts,
		ProviderMetadata: toWireMetadata(m.ProviderMetadata),
		ToolCallID:       m.ToolCallID,
		Name:             m.Name,
		ErrorTraceback:   m.ErrorTraceback,
		AttachmentRefs:   m.AttachmentRefs,
	}
	for _, tc := range m.ToolCalls {
		w.ToolCalls = append(w.ToolCalls, wireToolCall{
			ID: tc.ID, Type: tc.Type, Function: tc.Function,
			Metadata: toWireMetadata(tc.ProviderMetadata),
		})
	}
	return json.Marshal(w)
}

// FromJSON reverses ToJSON. The resulting Message never carries the
// truly transient Attachments (never present on the wire); Parts, when
// present, is restored alongside Content.
func FromJSON(data []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return Message{}, err
	}
	pm, err := fromWireMetadata(w.ProviderMetadata)
	if err != nil {
		return Message{}, err
	}
	m := Message{
		Role:             w.Role,
		Content:          w.Content,
		Parts:            w.Parts,
		ProviderMetadata: pm,
		ToolCallID:       w.ToolCallID,
		Name:             w.Name,
		ErrorTraceback:   w.ErrorTraceback,
		AttachmentRefs:   w.AttachmentRefs,
	}
	for _, tc := range w.ToolCalls {
		tcMeta, err := fromWireMetadata(tc.Metadata)
		if err != nil {
			return Message{}, err
		}
		m.ToolCalls = append(m.ToolCalls, ToolCall{
			ID: tc.ID, Type: tc.Type, Function: tc.Function, ProviderMetadata: tcMeta,
		})
	}
	return m, nil
}
