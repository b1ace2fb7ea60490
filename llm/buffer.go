package llm

import (
	"context"
	"encoding/json"
	"time"

	"llmcore/message"
	"llmcore/observability"
	"llmcore/reqbuffer"

	"github.com/rs/zerolog/log"
)

// defaultBufferMaxSize is the default ring size; callers that want a
// different size call reqbuffer.Global with their own value before any
// provider client runs (Global only honors maxSize on first call).
const defaultBufferMaxSize = 100

// toolChoiceLabel renders a ToolChoice the way it is recorded in a
// request-buffer entry's ToolChoice field.
func toolChoiceLabel(tc ToolChoice) string {
	if tc.Kind == ToolChoiceName {
		return tc.Name
	}
	return string(tc.Kind)
}

// RecordBuffer appends one request-buffer entry for a unary call, on both
// success and failure. Record failures (marshal errors) are logged and
// swallowed so they never mask the underlying call outcome.
func RecordBuffer(ctx context.Context, provider, model string, messages []message.Message, tools []message.ToolDefinition, toolChoice ToolChoice, out *Output, callErr error, start time.Time) {
	msgsJSON, err := json.Marshal(messages)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("provider", provider).Msg("reqbuffer_marshal_messages_failed")
		return
	}
	var toolsJSON json.RawMessage
	if len(tools) > 0 {
		toolsJSON, err = json.Marshal(tools)
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("provider", provider).Msg("reqbuffer_marshal_tools_failed")
			return
		}
	}

	rec := reqbuffer.NewRecord(start, model, msgsJSON, toolsJSON, toolChoiceLabel(toolChoice))
	if requestID, ok := observability.RequestIDFromContext(ctx); ok {
		rec.RequestID = requestID
	}
	rec.DurationMS = float64(time.Since(start)) / float64(time.Millisecond)

	if callErr != nil {
		rec.Error = callErr.Error()
	} else if out != nil {
		respJSON, err := json.Marshal(out)
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("provider", provider).Msg("reqbuffer_marshal_response_failed")
			return
		}
		rec.Response = respJSON
	}

	reqbuffer.Global(defaultBufferMaxSize).Add(rec)
}
