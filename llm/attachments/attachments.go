// Package attachments handles multimodal tool-result injection: rewriting
// a Tool message's transient Attachments into either native content blocks
// (when the provider accepts multimodal tool results) or a textual marker
// plus synthetic "[System: ...]" User messages (when it does not). The
// synthetic messages are a model-context device the end user never sees;
// the consistent "[System: ...]" prefix lets the model recognize the
// pattern across turns.
package attachments

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"llmcore/message"
)

// smallThreshold is the 10 KiB inline-vs-summary boundary. A policy, not a
// correctness guarantee; above it, schema inference plus an external query
// tool is expected to be enough for the model.
const smallThreshold = 10 * 1024

type category int

const (
	categoryInline category = iota
	categoryLargeSummary
	categoryImage
	categoryPDF
	categoryDescriptionOnly
)

func classify(a message.Attachment) category {
	mt := strings.ToLower(strings.TrimSpace(a.MimeType))
	switch {
	case strings.HasPrefix(mt, "image/"):
		return categoryImage
	case mt == "application/pdf":
		return categoryPDF
	case mt == "application/json", strings.HasPrefix(mt, "text/"):
		if len(a.Bytes) == 0 {
			return categoryDescriptionOnly
		}
		if isSmall(a) {
			return categoryInline
		}
		return categoryLargeSummary
	default:
		return categoryDescriptionOnly
	}
}

func attachmentSize(a message.Attachment) int64 {
	if a.Size > 0 {
		return a.Size
	}
	return int64(len(a.Bytes))
}

func isSmall(a message.Attachment) bool {
	return len(a.Bytes) > 0 && attachmentSize(a) <= smallThreshold
}

// resolveText decodes an attachment's inline bytes as text, reporting
// whether it had any bytes to decode at all. An attachment whose content
// is unresolved (path-only/URL-only) has no bytes here; materializing it
// is the caller's job, not this package's.
func resolveText(a message.Attachment) (string, bool) {
	if len(a.Bytes) == 0 {
		return "", false
	}
	return string(a.Bytes), true
}

func dataURI(a message.Attachment) (string, bool) {
	if len(a.Bytes) == 0 {
		return "", false
	}
	return fmt.Sprintf("data:%s;base64,%s", a.MimeType, base64.StdEncoding.EncodeToString(a.Bytes)), true
}

// inferSchema walks a decoded JSON value and produces a minimal JSON Schema
// describing its shape, used to give the model something to query a large
// JSON attachment by instead of inlining it.
func inferSchema(v any) map[string]any {
	switch val := v.(type) {
	case map[string]any:
		props := make(map[string]any, len(val))
		for k, vv := range val {
			props[k] = inferSchema(vv)
		}
		return map[string]any{"type": "object", "properties": props}
	case []any:
		if len(val) == 0 {
			return map[string]any{"type": "array"}
		}
		return map[string]any{"type": "array", "items": inferSchema(val[0])}
	case string:
		return map[string]any{"type": "string"}
	case bool:
		return map[string]any{"type": "boolean"}
	case float64:
		return map[string]any{"type": "number"}
	case nil:
		return map[string]any{"type": "null"}
	default:
		return map[string]any{"type": "string"}
	}
}

func describeLarge(a message.Attachment) string {
	if a.MimeType == "application/json" {
		if text, ok := resolveText(a); ok {
			var v any
			if err := json.Unmarshal([]byte(text), &v); err == nil {
				sch, _ := json.MarshalIndent(inferSchema(v), "", "  ")
				return fmt.Sprintf("attachment %s is %d bytes of JSON, too large to inline. Schema:\n%s\nQuery specific fields with a jq-style tool rather than asking for the full body.", a.AttachmentID, attachmentSize(a), string(sch))
			}
		}
	}
	return fmt.Sprintf("attachment %s (%s, %d bytes) is too large to inline; this is a metadata summary only.", a.AttachmentID, a.MimeType, attachmentSize(a))
}

func describeOnly(a message.Attachment) string {
	desc := strings.TrimSpace(a.Description)
	if desc == "" {
		desc = "(no description provided)"
	}
	return fmt.Sprintf("attachment %s (%s): %s", a.AttachmentID, a.MimeType, desc)
}

// Expand rewrites every Tool message carrying transient Attachments. When
// multimodal is true (Anthropic, Gemini; see llm.SupportsMultimodalTools),
// the attachments become native content parts on the same Tool message.
// When false (OpenAI-family, generic proxy), the Tool message's text is
// augmented with a "[File content in following message]" marker and one
// synthetic User message is appended per attachment. Messages without Tool
// attachments pass through unchanged; the input slice is never mutated.
func Expand(msgs []message.Message, multimodal bool) []message.Message {
	hasWork := false
	for _, m := range msgs {
		if m.Role == message.RoleTool && len(m.Attachments) > 0 {
			hasWork = true
			break
		}
	}
	if !hasWork {
		return msgs
	}

	out := make([]message.Message, 0, len(msgs)+4)
	for _, m := range msgs {
		if m.Role != message.RoleTool || len(m.Attachments) == 0 {
			out = append(out, m)
			continue
		}
		if multimodal {
			out = append(out, expandInline(m))
			continue
		}
		tool, synthetic := expandSynthetic(m)
		out = append(out, tool)
		out = append(out, synthetic...)
	}
	return out
}

// expandInline attaches native content parts to the Tool message itself,
// mixing the textual tool output with image/document blocks. The provider
// client's own Tool-role translation reads these Parts alongside Content.
func expandInline(m message.Message) message.Message {
	out := m
	var parts []message.ContentPart
	for _, a := range m.Attachments {
		switch classify(a) {
		case categoryImage:
			if uri, ok := dataURI(a); ok {
				parts = append(parts, message.ImageURLPart(uri))
			} else {
				parts = append(parts, message.TextPart(fmt.Sprintf("[attachment %s: %s, content unavailable]", a.AttachmentID, a.MimeType)))
			}
		case categoryPDF:
			if uri, ok := dataURI(a); ok {
				parts = append(parts, message.DocumentPart(uri))
			} else {
				parts = append(parts, message.TextPart(fmt.Sprintf("[attachment %s: %s, content unavailable]", a.AttachmentID, a.MimeType)))
			}
		case categoryInline:
			text, _ := resolveText(a)
			parts = append(parts, message.TextPart(fmt.Sprintf("[attachment %s (%s)]\n%s", a.AttachmentID, a.MimeType, text)))
		case categoryLargeSummary:
			parts = append(parts, message.TextPart(describeLarge(a)))
		default:
			parts = append(parts, message.TextPart(describeOnly(a)))
		}
	}
	out.Parts = parts
	out.Attachments = nil
	return out
}

// expandSynthetic augments the Tool message's text with a follow-up marker
// and returns one synthetic "[System: ...]" User message per attachment.
// Images materialize as a native image_url part (every provider
// translation already handles PartImageURL on a User message); everything
// else is text.
func expandSynthetic(m message.Message) (message.Message, []message.Message) {
	tool := m
	switch n := len(m.Attachments); {
	case n == 1:
		tool.Content = strings.TrimRight(tool.Content, "\n") + "\n[File content in following message]"
	case n > 1:
		tool.Content = strings.TrimRight(tool.Content, "\n") + fmt.Sprintf("\n[%d file(s) content in following message(s)]", n)
	}
	tool.Attachments = nil

	synthetic := make([]message.Message, 0, len(m.Attachments))
	for _, a := range m.Attachments {
		synthetic = append(synthetic, syntheticUserMessage(a))
	}
	return tool, synthetic
}

// FileParts builds the content parts for FormatUserMessageWithFile: a
// native image data URI, a native document block, or truncated inline
// text, per the file's mime type. supportsDocument should be
// llm.SupportsMultimodalTools(provider), since native PDF document blocks
// exist only for the same two providers that accept multimodal tool
// results.
func FileParts(mimeType string, data []byte, maxTextLength int, supportsDocument bool) []message.ContentPart {
	dataURI := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.HasPrefix(mt, "image/"):
		return []message.ContentPart{message.ImageURLPart(dataURI)}
	case mt == "application/pdf" && supportsDocument:
		return []message.ContentPart{message.DocumentPart(dataURI)}
	case mt == "application/pdf":
		return []message.ContentPart{message.FilePlaceholderPart(dataURI)}
	case mt == "application/json", strings.HasPrefix(mt, "text/"):
		text := string(data)
		if maxTextLength > 0 && len(text) > maxTextLength {
			text = text[:maxTextLength] + "\n...[truncated]"
		}
		return []message.ContentPart{message.TextPart(text)}
	default:
		return []message.ContentPart{message.FilePlaceholderPart(dataURI)}
	}
}

func syntheticUserMessage(a message.Attachment) message.Message {
	header := fmt.Sprintf("[System: attachment %s, %s]", a.AttachmentID, a.MimeType)
	switch classify(a) {
	case categoryInline:
		text, _ := resolveText(a)
		return message.User(header + "\n" + text)
	case categoryLargeSummary:
		return message.User("[System: " + describeLarge(a) + "]")
	case categoryImage:
		if uri, ok := dataURI(a); ok {
			return message.UserParts(message.TextPart(header), message.ImageURLPart(uri))
		}
		return message.User("[System: " + describeOnly(a) + "]")
	default:
		// PDF and anything else without a non-multimodal native
		// representation gets a description only.
		return message.User("[System: " + describeOnly(a) + "]")
	}
}
