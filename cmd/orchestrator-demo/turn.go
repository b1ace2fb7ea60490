package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"llmcore/llm"
	"llmcore/message"
	"llmcore/toolstack"
)

// TurnResult is the outcome of runTurn: the final assistant text plus the
// tool calls executed along the way.
type TurnResult struct {
	Content       string
	ExecutedTools []ExecutedTool
	ReasoningInfo map[string]any
}

// ExecutedTool records one tool invocation's id, name, arguments and the
// text handed back to the model.
type ExecutedTool struct {
	ToolCallID string
	Name       string
	Arguments  json.RawMessage
	Response   string
}

// runTurn drives the tool-call loop for a single user turn: it calls
// client.GenerateResponse, executes any requested tool calls against
// tools, appends the tool results, and repeats until the model stops
// requesting tools or maxIterations is reached. tool_choice is forced to
// "none" on the final allowed iteration rather than left "auto" forever,
// so the loop is guaranteed to terminate with a text response.
func runTurn(ctx context.Context, client llm.ProviderClient, tools toolstack.ToolProvider, history []message.Message, maxIterations int) (TurnResult, error) {
	defs, err := tools.GetDefinitions(ctx)
	if err != nil {
		return TurnResult{}, fmt.Errorf("list tool definitions: %w", err)
	}

	msgs := append([]message.Message(nil), history...)
	var result TurnResult

	for iteration := 1; iteration <= maxIterations; iteration++ {
		toolChoice := llm.NoneToolChoice()
		if len(defs) > 0 && iteration < maxIterations {
			toolChoice = llm.AutoToolChoice()
		}

		out, err := client.GenerateResponse(ctx, llm.Request{
			Messages:   msgs,
			Tools:      defs,
			ToolChoice: toolChoice,
		})
		if err != nil {
			return TurnResult{}, fmt.Errorf("iteration %d: %w", iteration, err)
		}

		result.Content = out.Content
		result.ReasoningInfo = out.ReasoningInfo

		if len(out.ToolCalls) == 0 {
			log.Debug().Int("iteration", iteration).Msg("no further tool calls requested")
			return result, nil
		}

		log.Info().Int("iteration", iteration).Int("tool_calls", len(out.ToolCalls)).Msg("executing requested tool calls")
		msgs = append(msgs, message.Assistant(out.Content, out.ToolCalls...))

		for _, tc := range out.ToolCalls {
			response := executeOne(ctx, tools, tc)
			result.ExecutedTools = append(result.ExecutedTools, ExecutedTool{
				ToolCallID: tc.ID,
				Name:       tc.Function.Name,
				Arguments:  json.RawMessage(tc.Function.Arguments),
				Response:   response,
			})
			msgs = append(msgs, message.Tool(tc.ID, tc.Function.Name, response))
		}
	}

	result.Content += "\n\n(Note: Reached maximum processing depth.)"
	return result, nil
}

// executeOne runs a single tool call, turning any execution error
// (including "tool not found") into the text handed back to the model
// rather than aborting the turn.
func executeOne(ctx context.Context, tools toolstack.ToolProvider, tc message.ToolCall) string {
	res, err := tools.Execute(ctx, tc.Function.Name, json.RawMessage(tc.Function.Arguments))
	if err != nil {
		log.Error().Err(err).Str("tool", tc.Function.Name).Msg("tool execution failed")
		return fmt.Sprintf("Error: %s", err)
	}
	if res.Text != "" {
		return res.Text
	}
	if res.StructuredData != nil {
		b, err := json.Marshal(res.StructuredData)
		if err == nil {
			return string(b)
		}
	}
	return ""
}
