package llm

import (
	"llmcore/message"
)

// ValidateRequest applies the common pre-flight input validation: the
// last User message (if any) must carry non-empty textual or non-text
// content, otherwise the call fails with InvalidRequest before reaching
// the vendor at all. Every provider client calls this at the top of
// GenerateResponse, GenerateResponseStream, and GenerateStructured.
func ValidateRequest(provider, model string, messages []message.Message) error {
	if !message.LastUserContentNonEmpty(messages) {
		return NewErrorf(KindInvalidRequest, provider, model, "last user message has empty content")
	}
	return nil
}
