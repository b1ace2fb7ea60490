// Package structured implements the structured output engine:
// schema-driven JSON extraction with a bounded validation-retry feedback
// loop. Candidates that fail to parse go through a best-effort repair
// (github.com/kaptinlin/jsonrepair) before the loop gives up on them.
package structured

import (
	"context"
	"encoding/json"
	"fmt"

	"llmcore/llm"
	"llmcore/message"
	"llmcore/schema"

	"github.com/kaptinlin/jsonrepair"
)

// GenerateFunc is the unary call the engine drives: a provider client's
// GenerateResponse, or an equivalent, over an evolving message sequence.
type GenerateFunc func(ctx context.Context, msgs []message.Message) (llm.Output, error)

// Engine runs the non-native instruction-and-parse fallback path. Native
// structured output support (OpenAI response_format, Anthropic tool-use)
// is invoked by the provider client itself before falling back to
// Engine.Run; see each provider's GenerateStructured.
type Engine struct {
	Provider string
	Model    string
}

// Run prepends the schema instruction to the conversation and drives up to
// maxRetries+1 attempts, feeding each invalid response back to the model
// with the validation error. maxRetries defaults to 2 if <= 0.
func (e Engine) Run(ctx context.Context, generate GenerateFunc, initial []message.Message, sch schema.Schema, maxRetries int) (json.RawMessage, error) {
	if maxRetries <= 0 {
		maxRetries = 2
	}

	msgs := withSchemaInstruction(initial, sch)
	var lastRaw string
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		out, err := generate(ctx, msgs)
		if err != nil {
			if llm.NonRetriableProviderError(err) {
				return nil, err
			}
			// Provider error, not a bad response: retry with the same
			// conversation rather than feeding an empty turn back.
			lastErr = err
			continue
		}

		lastRaw = out.Content
		candidate, ok := schema.ExtractJSONCandidate(out.Content)
		if !ok {
			repaired, rerr := jsonrepair.JSONRepair(out.Content)
			if rerr != nil {
				lastErr = fmt.Errorf("no JSON found in response and repair failed: %w", rerr)
				msgs = append(msgs, message.Assistant(out.Content), retryMessage(lastErr.Error()))
				continue
			}
			candidate = repaired
		}

		if verr := sch.Validate(json.RawMessage(candidate)); verr != nil {
			if repaired, rerr := jsonrepair.JSONRepair(candidate); rerr == nil {
				if verr2 := sch.Validate(json.RawMessage(repaired)); verr2 == nil {
					return json.RawMessage(repaired), nil
				}
			}
			lastErr = verr
			msgs = append(msgs, message.Assistant(out.Content), retryMessage(verr.Error()))
			continue
		}

		return json.RawMessage(candidate), nil
	}

	return nil, &llm.StructuredOutputError{
		Provider:        e.Provider,
		Model:           e.Model,
		LastRawResponse: lastRaw,
		ValidationErr:   lastErr,
	}
}

func withSchemaInstruction(msgs []message.Message, sch schema.Schema) []message.Message {
	schemaJSON, _ := json.Marshal(sch.Raw)
	instruction := fmt.Sprintf("You must respond with valid JSON matching this schema: %s", schemaJSON)

	out := make([]message.Message, len(msgs))
	copy(out, msgs)
	for i, m := range out {
		if m.Role == message.RoleSystem {
			out[i].Content = m.Content + "\n\n" + instruction
			return out
		}
	}
	return append([]message.Message{message.System(instruction)}, out...)
}

func retryMessage(validationErr string) message.Message {
	return message.User(fmt.Sprintf(
		"Your response was not valid JSON matching the schema. Error: %s. Please retry.", validationErr))
}
