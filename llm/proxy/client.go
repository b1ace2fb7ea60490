// Package proxy implements the generic/LiteLLM-style proxy provider
// client, the family-inference fallback when a model id carries no known
// vendor prefix and no explicit `provider` field. It speaks the OpenAI
// chat-completions wire format against a caller-supplied api_base, and
// differs from llm/openai in two respects: the `reasoning` model-parameter
// subkey is hoisted out and sent as its own top-level field, a proxy-only
// convention native OpenAI requests never use; and GenerateStructured
// always uses the instruction-and-parse engine, never a native
// response_format.
package proxy

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

	"llmcore/config"
	"llmcore/llm"
	"llmcore/llm/attachments"
	"llmcore/message"
	"llmcore/schema"
	"llmcore/structured"
)

type Client struct {
	sdk   sdk.Client
	model string
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
	return &Client{sdk: sdk.NewClient(opts...), model: cfg.Model, cfg: cfg}
}

func translateMessages(msgs []message.Message) []sdk.ChatCompletionMessageParamUnion {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case message.RoleSystem:
			out = append(out, sdk.SystemMessage(m.Content))
		case message.RoleUser:
			out = append(out, userContent(m))
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
	return out
}

// userContent mirrors llm/openai's userContent: a synthetic "[System: ...]"
// attachment message built by llm/attachments carries image Parts that
// this OpenAI-wire-format proxy can render the same way native OpenAI
// does.
func userContent(m message.Message) sdk.ChatCompletionMessageParamUnion {
	if len(m.Parts) == 0 {
		return sdk.UserMessage(m.Content)
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
	return sdk.UserMessage(parts)
}

func translateTools(tools []message.ToolDefinition) []sdk.ChatCompletionToolUnionParam {
	out := make([]sdk.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		def := sdk.FunctionDefinitionParam{
			Name:        t.Name,
			Description: sdk.String(t.Description),
			Parameters:  schema.StripUnsupportedFormats(t.Parameters),
		}
		out = append(out, sdk.ChatCompletionFunctionTool(def))
	}
	return out
}

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

func (c *Client) pickModel(model string) string {
	if model != "" {
		return model
	}
	return c.model
}

func (c *Client) buildParams(req llm.Request) sdk.ChatCompletionNewParams {
	model := c.pickModel(req.Model)
	params := sdk.ChatCompletionNewParams{Model: sdk.ChatModel(model), Messages: translateMessages(attachments.Expand(req.Messages, llm.SupportsMultimodalTools("proxy")))}
	if len(req.Tools) > 0 {
		params.Tools = translateTools(req.Tools)
		params.ToolChoice = translateToolChoice(req.ToolChoice)
	}
	// isProxy=true: `reasoning` is hoisted out of the merged kwargs and
	// resent as its own top-level field. Proxies such as LiteLLM/OpenRouter
	// route it to the underlying vendor themselves; native provider clients
	// never see this subkey at all.
	kwargs, reasoning := config.ResolveModelParameters(model, c.cfg.DefaultKwargs, c.cfg.ModelParameters, true)
	if reasoning != nil {
		if kwargs == nil {
			kwargs = map[string]any{}
		}
		kwargs["reasoning"] = reasoning
	}
	if len(kwargs) > 0 {
		params.SetExtraFields(kwargs)
	}
	return params
}

func (c *Client) GenerateResponse(ctx context.Context, req llm.Request) (llm.Output, error) {
	if err := llm.ValidateRequest("proxy", c.pickModel(req.Model), req.Messages); err != nil {
		return llm.Output{}, err
	}
	params := c.buildParams(req)
	ctx, span := llm.StartRequestSpan(ctx, "proxy.GenerateResponse", string(params.Model), len(req.Tools), len(req.Messages))
	defer span.End()
	llm.LogRedactedPrompt(ctx, req.Messages)

	start := time.Now()
	comp, err := c.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		span.RecordError(err)
		callErr := translateError(err, string(params.Model))
		llm.RecordBuffer(ctx, "proxy", string(params.Model), req.Messages, req.Tools, req.ToolChoice, nil, callErr, start)
		return llm.Output{}, callErr
	}
	if len(comp.Choices) == 0 {
		out := llm.Output{}
		llm.RecordBuffer(ctx, "proxy", string(params.Model), req.Messages, req.Tools, req.ToolChoice, &out, nil, start)
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
	llm.RecordBuffer(ctx, "proxy", string(params.Model), req.Messages, req.Tools, req.ToolChoice, &out, nil, start)
	return out, nil
}

func (c *Client) GenerateResponseStream(ctx context.Context, req llm.Request) (<-chan llm.StreamEvent, error) {
	if err := llm.ValidateRequest("proxy", c.pickModel(req.Model), req.Messages); err != nil {
		return nil, err
	}
	params := c.buildParams(req)
	params.StreamOptions.IncludeUsage = sdk.Bool(true)

	out := make(chan llm.StreamEvent)
	go func() {
		defer close(out)
		ctx, span := llm.StartRequestSpan(ctx, "proxy.GenerateResponseStream", string(params.Model), len(req.Tools), len(req.Messages))
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

func (c *Client) GenerateStructured(ctx context.Context, req llm.Request, sch schema.Schema, maxRetries int) (json.RawMessage, error) {
	if err := llm.ValidateRequest("proxy", c.pickModel(req.Model), req.Messages); err != nil {
		return nil, err
	}
	engine := structured.Engine{Provider: "proxy", Model: c.pickModel(req.Model)}
	return engine.Run(ctx, func(ctx context.Context, msgs []message.Message) (llm.Output, error) {
		return c.GenerateResponse(ctx, llm.Request{Model: req.Model, Messages: msgs, Tools: req.Tools, ToolChoice: req.ToolChoice})
	}, req.Messages, sch, maxRetries)
}

// FormatUserMessageWithFile assumes the OpenAI-compatible image content
// part convention, same as llm/openai; the generic proxy family is
// defined by "speaks the OpenAI wire format against a different base URL",
// not by a distinct multimodal convention.
func (c *Client) FormatUserMessageWithFile(ctx context.Context, opts llm.FileMessageOptions) (message.Message, error) {
	data, err := os.ReadFile(opts.FilePath)
	if err != nil {
		return message.Message{}, llm.NewError(llm.KindInvalidRequest, "proxy", "", err)
	}
	parts := append([]message.ContentPart{message.TextPart(opts.PromptText)},
		attachments.FileParts(opts.MimeType, data, opts.MaxTextLength, llm.SupportsMultimodalTools("proxy"))...)
	return message.UserParts(parts...), nil
}

func translateError(err error, model string) *llm.Error {
	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "401") || strings.Contains(lower, "authentication"):
		return llm.NewError(llm.KindAuthentication, "proxy", model, err)
	case strings.Contains(lower, "429") || strings.Contains(lower, "rate limit"):
		return llm.NewError(llm.KindRateLimit, "proxy", model, err)
	case strings.Contains(lower, "context_length") || strings.Contains(lower, "maximum context"):
		return llm.NewError(llm.KindContextLength, "proxy", model, err)
	case strings.Contains(lower, "model_not_found") || strings.Contains(lower, "does not exist"):
		return llm.NewError(llm.KindModelNotFound, "proxy", model, err)
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		return llm.NewError(llm.KindProviderTimeout, "proxy", model, err)
	case strings.Contains(lower, "connection") || strings.Contains(lower, "eof"):
		return llm.NewError(llm.KindProviderConnection, "proxy", model, err)
	case strings.Contains(lower, "503") || strings.Contains(lower, "unavailable"):
		return llm.NewError(llm.KindServiceUnavailable, "proxy", model, err)
	case strings.Contains(lower, "400") || strings.Contains(lower, "invalid"):
		return llm.NewError(llm.KindInvalidRequest, "proxy", model, err)
	default:
		return llm.NewError(llm.KindProviderConnection, "proxy", model, err)
	}
}
