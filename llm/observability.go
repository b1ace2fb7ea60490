package llm

import (
	"context"
	"encoding/json"
	"sync"

	"llmcore/observability"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-wide debug-payload-logging toggle plus lazily-initialized OTel
// token counters.
var (
	mu            sync.RWMutex
	logPayloads   = false
	truncateBytes = 0

	tokenOnce         sync.Once
	promptCounter     otelmetric.Int64Counter
	completionCounter otelmetric.Int64Counter
)

// ConfigureLogging toggles DEBUG_LLM_MESSAGES-style payload logging.
func ConfigureLogging(enable bool, truncate int) {
	mu.Lock()
	defer mu.Unlock()
	logPayloads = enable
	truncateBytes = truncate
}

func shouldLog() (bool, int) {
	mu.RLock()
	defer mu.RUnlock()
	return logPayloads, truncateBytes
}

func ensureTokenInstruments() {
	tokenOnce.Do(func() {
		m := otel.Meter("llmcore/llm")
		promptCounter, _ = m.Int64Counter("llm.prompt_tokens", otelmetric.WithDescription("Cumulative prompt tokens by model"))
		completionCounter, _ = m.Int64Counter("llm.completion_tokens", otelmetric.WithDescription("Cumulative completion tokens by model"))
	})
}

// RecordTokenMetrics records prompt/completion token usage for model as
// OTel counters, attributed by model id.
func RecordTokenMetrics(ctx context.Context, model string, promptTokens, completionTokens int) {
	if model == "" || (promptTokens == 0 && completionTokens == 0) {
		return
	}
	ensureTokenInstruments()
	attrs := otelmetric.WithAttributes(attribute.String("llm.model", model))
	if promptCounter != nil && promptTokens > 0 {
		promptCounter.Add(ctx, int64(promptTokens), attrs)
	}
	if completionCounter != nil && completionTokens > 0 {
		completionCounter.Add(ctx, int64(completionTokens), attrs)
	}
}

// StartRequestSpan starts a tracer span for a provider call and sets the
// common attributes every provider client's Generate* methods record. The
// generated request id is both set as a span attribute and stamped onto
// the returned ctx (observability.WithRequestID), so a log line emitted
// for this call and the request-buffer record RecordBuffer later appends
// for the same call share one correlatable id.
func StartRequestSpan(ctx context.Context, operation, model string, tools, messages int) (context.Context, trace.Span) {
	ctx, span := otel.Tracer("llmcore/llm").Start(ctx, operation)
	requestID := uuid.NewString()
	span.SetAttributes(
		attribute.String("llm.model", model),
		attribute.Int("llm.tools", tools),
		attribute.Int("llm.messages", messages),
		attribute.String("llm.request_id", requestID),
	)
	ctx = observability.WithRequestID(ctx, requestID)
	return ctx, span
}

// RecordTokenAttributes sets token-count attributes on span.
func RecordTokenAttributes(span trace.Span, prompt, completion, total int) {
	if span == nil {
		return
	}
	span.SetAttributes(
		attribute.Int("llm.prompt_tokens", prompt),
		attribute.Int("llm.completion_tokens", completion),
		attribute.Int("llm.total_tokens", total),
	)
}

// LogRedactedPrompt debug-logs a redacted copy of the outgoing prompt,
// gated by ConfigureLogging.
func LogRedactedPrompt(ctx context.Context, v any) {
	logRedacted(ctx, "llm_request", "prompt", v)
}

// LogRedactedResponse debug-logs a redacted copy of a response payload.
func LogRedactedResponse(ctx context.Context, v any) {
	logRedacted(ctx, "llm_response", "response", v)
}

func logRedacted(ctx context.Context, event, field string, v any) {
	ok, t := shouldLog()
	if !ok {
		return
	}
	log := observability.LoggerWithTrace(ctx)
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	red := observability.RedactJSON(b)
	if t > 0 && len(red) > t {
		red = red[:t]
	}
	tmp := log.With().RawJSON(field, red).Logger()
	tmp.Debug().Msg(event)
}
