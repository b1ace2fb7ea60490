// Package openai implements the OpenAI-family llm.ProviderClient: chat
// completions, tool calls, native JSON-schema structured output, and
// image attachments as data-URI content parts.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"

	"llmcore/config"
	"llmcore/llm"
	"llmcore/llm/attachments"
	"llmcore/message"
	"llmcore/schema"
	"llmcore/structured"

	"github.com/rs/zerolog/log"
)

// Client is the OpenAI-family provider client (`provider: "openai"` or
// model-id inference via gpt-/o1-/o3- prefixes).
type Client struct {
	sdk   sdk.Client
	model string
	extra map[string]any
	cfg   config.ProviderConfig
}

func New(cfg config.ProviderConfig, httpClient *http.Client) *Client {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.APIBase != "" {
		opts = append(opts, option.WithBaseURL(cfg.APIBase))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return &Client{sdk: sdk.NewClient(opts...), model: cfg.Model, extra: cfg.DefaultKwargs, cfg: cfg}
}

// translateMessages maps the neutral model onto OpenAI wire roles: system
// → {role:"system"}, user/assistant/tool pass through with tool_calls
// carrying a JSON-string arguments payload.
func translateMessages(msgs []message.Message) ([]sdk.ChatCompletionMessageParamUnion, error) {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case message.RoleSystem:
			out = append(out, sdk.SystemMessage(m.Content))
		case message.RoleUser:
			content, err := userContent(m)
			if err != nil {
				return nil, err
			}
			out = append(out, content)
		case message.RoleAssistant:
			if len(m.ToolCalls) == 0 {
				out = append(out, sdk.AssistantMessage(m.Content))
				continue
			}
			var asst sdk.ChatCompletionAssistantMessageParam
			asst.Content.OfString = sdk.String(m.Content)
			for _, tc := range m.ToolCalls {
				fn := sdk.ChatCompletionMessageFunctionToolCallParam{
					ID: tc.ID,
					Function: sdk.ChatCompletionMessageFunctionToolCallFunctionParam{
						Arguments: tc.Function.Arguments,
						Name:      tc.Function.Name,
					},
				}
				asst.ToolCalls = append(asst.ToolCalls, sdk.ChatCompletionMessageToolCallUnionParam{OfFunction: &fn})
			}
			out = append(out, sdk.ChatCompletionMessageParamUnion{OfAssistant: &asst})
		case message.RoleTool:
			content := m.Content
			if content == "" {
				content = `{"error":"empty tool response"}`
			}
			out = append(out, sdk.ToolMessage(content, m.ToolCallID))
		case message.RoleError:
			out = append(out, sdk.UserMessage(fmt.Sprintf("[error] %s", m.Content)))
		}
	}
	return out, nil
}

func userContent(m message.Message) (sdk.ChatCompletionMessageParamUnion, error) {
	if len(m.Parts) == 0 {
		return sdk.UserMessage(m.Content), nil
	}
	var parts []sdk.ChatCompletionContentPartUnionParam
	for _, p := range m.Parts {
		switch p.Kind {
		case message.PartText:
			parts = append(parts, sdk.TextContentPart(p.Text))
		case message.PartImageURL:
			parts = append(parts, sdk.ImageContentPart(sdk.ChatCompletionContentPartImageImageURLParam{URL: p.ImageURL}))
		case message.PartDocument:
			parts = append(parts, sdk.TextContentPart("[document attachment not inlined for this provider; ask the user for a summary]"))
		case message.PartFilePlaceholder:
			parts = append(parts, sdk.TextContentPart(fmt.Sprintf("[file: %s]", p.FileReference)))
		}
	}
	return sdk.UserMessage(parts), nil
}

func translateTools(tools []message.ToolDefinition) []sdk.ChatCompletionToolUnionParam {
	out := make([]sdk.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		params := schema.StripUnsupportedFormats(t.Parameters)
		def := sdk.FunctionDefinitionParam{
			Name:        t.Name,
			Description: sdk.String(t.Description),
			Parameters:  params,
		}
		out = append(out, sdk.ChatCompletionFunctionTool(def))
	}
	return out
}

// translateToolChoice maps ToolChoice onto the OpenAI tool_choice field.
func translateToolChoice(tc llm.ToolChoice) sdk.ChatCompletionToolChoiceOptionUnionParam {
	switch tc.Kind {
	case llm.ToolChoiceNone:
		return sdk.ChatCompletionToolChoiceOptionUnionParam{OfAuto: sdk.String("none")}
	case llm.ToolChoiceRequired:
		return sdk.ChatCompletionToolChoiceOptionUnionParam{OfAuto: sdk.String("required")}
	case llm.ToolChoiceName:
		return sdk.ChatCompletionToolChoiceOptionUnionParam{
			OfFunctionToolChoice: &sdk.ChatCompletionNamedToolChoiceParam{
				Function: sdk.ChatCompletionNamedToolChoiceFunctionParam{Name: tc.Name},
			},
		}
	default:
		return sdk.ChatCompletionToolChoiceOptionUnionParam{OfAuto: sdk.String("auto")}
	}
}

func (c *Client) buildParams(req llm.Request) (sdk.ChatCompletionNewParams, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	msgs, err := translateMessages(attachments.Expand(req.Messages, llm.SupportsMultimodalTools("openai")))
	if err != nil {
		return sdk.ChatCompletionNewParams{}, err
	}
	params := sdk.ChatCompletionNewParams{Model: sdk.ChatModel(model), Messages: msgs}
	if len(req.Tools) > 0 {
		params.Tools = translateTools(req.Tools)
		params.ToolChoice = translateToolChoice(req.ToolChoice)
	}
	kwargs, _ := config.ResolveModelParameters(model, c.extra, c.cfg.ModelParameters, false)
	if len(kwargs) > 0 {
		params.SetExtraFields(kwargs)
	}
	return params, nil
}

func (c *Client) GenerateResponse(ctx context.Context, req llm.Request) (llm.Output, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	if err := llm.ValidateRequest("openai", model, req.Messages); err != nil {
		return llm.Output{}, err
	}
	params, err := c.buildParams(req)
	if err != nil {
		return llm.Output{}, err
	}
	ctx, span := llm.StartRequestSpan(ctx, "openai.GenerateResponse", string(params.Model), len(req.Tools), len(req.Messages))
	defer span.End()
	llm.LogRedactedPrompt(ctx, req.Messages)

	start := time.Now()
	comp, err := c.sdk.Chat.Completions.New(ctx, params)
	dur := time.Since(start)
	if err != nil {
		span.RecordError(err)
		callErr := translateError(err, string(params.Model))
		llm.RecordBuffer(ctx, "openai", string(params.Model), req.Messages, req.Tools, req.ToolChoice, nil, callErr, start)
		return llm.Output{}, callErr
	}
	if len(comp.Choices) == 0 {
		out := llm.Output{}
		llm.RecordBuffer(ctx, "openai", string(params.Model), req.Messages, req.Tools, req.ToolChoice, &out, nil, start)
		return out, nil
	}
	msg := comp.Choices[0].Message
	out := llm.Output{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		fn, ok := tc.AsAny().(sdk.ChatCompletionMessageFunctionToolCall)
		if !ok {
			continue
		}
		out.ToolCalls = append(out.ToolCalls, message.ToolCall{
			ID: fn.ID, Type: "function",
			Function: message.ToolCallFunction{Name: fn.Function.Name, Arguments: fn.Function.Arguments},
		})
	}
	llm.RecordTokenAttributes(span, int(comp.Usage.PromptTokens), int(comp.Usage.CompletionTokens), int(comp.Usage.TotalTokens))
	llm.RecordTokenMetrics(ctx, string(params.Model), int(comp.Usage.PromptTokens), int(comp.Usage.CompletionTokens))
	llm.LogRedactedResponse(ctx, comp.Choices)
	log.Ctx(ctx).Debug().Str("model", string(params.Model)).Dur("duration", dur).Msg("openai_chat_completion_ok")
	llm.RecordBuffer(ctx, "openai", string(params.Model), req.Messages, req.Tools, req.ToolChoice, &out, nil, start)
	return out, nil
}

func (c *Client) GenerateResponseStream(ctx context.Context, req llm.Request) (<-chan llm.StreamEvent, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	if err := llm.ValidateRequest("openai", model, req.Messages); err != nil {
		return nil, err
	}
	params, err := c.buildParams(req)
	if err != nil {
		return nil, err
	}
	params.StreamOptions.IncludeUsage = sdk.Bool(true)

	out := make(chan llm.StreamEvent)
	go func() {
		defer close(out)
		ctx, span := llm.StartRequestSpan(ctx, "openai.GenerateResponseStream", string(params.Model), len(req.Tools), len(req.Messages))
		defer span.End()
		llm.LogRedactedPrompt(ctx, req.Messages)

		stream := c.sdk.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		acc := llm.NewToolCallAccumulator()
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta
			if delta.Content != "" {
				out <- llm.ContentEvent(delta.Content)
			}
			for _, tc := range delta.ToolCalls {
				idx := int(tc.Index)
				acc.Start(idx, tc.ID, tc.Function.Name)
				if tc.Function.Arguments != "" {
					acc.AppendArgs(idx, tc.Function.Arguments)
				}
			}
			if chunk.Choices[0].FinishReason != "" {
				for _, tc := range acc.Finish() {
					out <- llm.ToolCallEvent(tc)
				}
			}
		}
		if err := stream.Err(); err != nil {
			span.RecordError(err)
			out <- llm.ErrorEvent(translateError(err, string(params.Model)))
			return
		}
		out <- llm.DoneEvent(nil)
	}()
	return out, nil
}

// GenerateStructured tries OpenAI's native JSON-schema response_format
// first; on failure it falls back to structured.Engine's extract/repair/
// retry loop.
func (c *Client) GenerateStructured(ctx context.Context, req llm.Request, sch schema.Schema, maxRetries int) (json.RawMessage, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	if err := llm.ValidateRequest("openai", model, req.Messages); err != nil {
		return nil, err
	}
	params, err := c.buildParams(req)
	if err != nil {
		return nil, err
	}
	strictSchema := schema.EnsureStrictAdditionalPropertiesFalse(schema.StripUnsupportedFormats(sch.Raw))
	params.ResponseFormat = sdk.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
			JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
				Name:   sch.Name,
				Schema: strictSchema,
				Strict: sdk.Bool(true),
			},
		},
	}
	comp, err := c.sdk.Chat.Completions.New(ctx, params)
	if err == nil && len(comp.Choices) > 0 {
		candidate := comp.Choices[0].Message.Content
		if verr := sch.Validate(json.RawMessage(candidate)); verr == nil {
			return json.RawMessage(candidate), nil
		}
	}

	engine := structured.Engine{Provider: "openai", Model: string(params.Model)}
	return engine.Run(ctx, func(ctx context.Context, msgs []message.Message) (llm.Output, error) {
		return c.GenerateResponse(ctx, llm.Request{Model: req.Model, Messages: msgs, Tools: req.Tools, ToolChoice: req.ToolChoice})
	}, req.Messages, sch, maxRetries)
}

// FormatUserMessageWithFile reads the file at opts.FilePath and embeds it
// as a data-URI image content part, as truncated inline text for text/*
// and JSON, or, for PDFs and any other mime type, a file placeholder part
// (the chat-completions API has no first-class document part).
func (c *Client) FormatUserMessageWithFile(ctx context.Context, opts llm.FileMessageOptions) (message.Message, error) {
	data, err := os.ReadFile(opts.FilePath)
	if err != nil {
		return message.Message{}, llm.NewError(llm.KindInvalidRequest, "openai", "", err)
	}
	parts := append([]message.ContentPart{message.TextPart(opts.PromptText)},
		attachments.FileParts(opts.MimeType, data, opts.MaxTextLength, llm.SupportsMultimodalTools("openai"))...)
	return message.UserParts(parts...), nil
}

func translateError(err error, model string) *llm.Error {
	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "401") || strings.Contains(lower, "authentication"):
		return llm.NewError(llm.KindAuthentication, "openai", model, err)
	case strings.Contains(lower, "429") || strings.Contains(lower, "rate limit"):
		return llm.NewError(llm.KindRateLimit, "openai", model, err)
	case strings.Contains(lower, "context_length") || strings.Contains(lower, "maximum context"):
		return llm.NewError(llm.KindContextLength, "openai", model, err)
	case strings.Contains(lower, "model_not_found") || strings.Contains(lower, "does not exist"):
		return llm.NewError(llm.KindModelNotFound, "openai", model, err)
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		return llm.NewError(llm.KindProviderTimeout, "openai", model, err)
	case strings.Contains(lower, "connection") || strings.Contains(lower, "eof"):
		return llm.NewError(llm.KindProviderConnection, "openai", model, err)
	case strings.Contains(lower, "503") || strings.Contains(lower, "unavailable"):
		return llm.NewError(llm.KindServiceUnavailable, "openai", model, err)
	case strings.Contains(lower, "400") || strings.Contains(lower, "invalid"):
		return llm.NewError(llm.KindInvalidRequest, "openai", model, err)
	default:
		return llm.NewError(llm.KindProviderConnection, "openai", model, err)
	}
}
