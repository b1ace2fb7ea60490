// Package anthropic implements the Anthropic-family llm.ProviderClient:
// Messages API chat, tool_use blocks, tool_result content blocks
// (including multimodal tool results), extended-thinking block
// preservation across turns, and prompt-cache-control annotation.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"llmcore/config"
	"llmcore/llm"
	"llmcore/llm/attachments"
	"llmcore/message"
	"llmcore/schema"
	"llmcore/structured"

	"github.com/rs/zerolog/log"
)

const defaultMaxTokens int64 = 4096

// thinkingBlock mirrors one extended-thinking content block, round-tripped
// through message.ProviderMetadata.ThoughtSignature as JSON (the same
// opaque-bytes carrier Gemini thought signatures use, reused rather than
// inventing a second metadata field for this provider).
type thinkingBlock struct {
	Signature string `json:"signature"`
	Thinking  string `json:"thinking"`
}

type Client struct {
	sdk       anthropic.Client
	model     string
	maxTokens int64
	cacheCfg  config.AnthropicPromptCacheConfig
	extra     map[string]any
	cfg       config.ProviderConfig
}

func New(cfg config.ProviderConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithHTTPClient(httpClient),
	}
	if base := strings.TrimSpace(cfg.APIBase); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}

	cacheCfg := cfg.AnthropicPromptCache
	if cacheCfg.Enabled && !cacheCfg.CacheSystem && !cacheCfg.CacheTools {
		cacheCfg.CacheSystem = true
		cacheCfg.CacheTools = true
	}

	return &Client{
		sdk:       anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: defaultMaxTokens,
		cacheCfg:  cacheCfg,
		extra:     cfg.DefaultKwargs,
		cfg:       cfg,
	}
}

func (c *Client) pickModel(model string) string {
	if m := strings.TrimSpace(model); m != "" {
		return m
	}
	return c.model
}

// shouldIncludeThinking restricts extended thinking to the Claude model
// families that support it, conservatively, to avoid 400s on older models.
func shouldIncludeThinking(model string) bool {
	m := strings.ToLower(strings.TrimSpace(model))
	if idx := strings.LastIndex(m, "/"); idx != -1 {
		m = m[idx+1:]
	}
	supports := []string{"claude-sonnet-4", "claude-haiku-4", "claude-opus-4"}
	for _, s := range supports {
		if strings.Contains(m, s) {
			return true
		}
	}
	return false
}

func (c *Client) buildParams(req llm.Request) (anthropic.MessageNewParams, error) {
	sys, converted, err := adaptMessages(attachments.Expand(req.Messages, llm.SupportsMultimodalTools("anthropic")), c.cacheCfg)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}
	toolDefs, err := adaptTools(req.Tools, c.cacheCfg)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}
	model := c.pickModel(req.Model)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  converted,
		System:    sys,
		Tools:     toolDefs,
		MaxTokens: c.maxTokens,
	}
	if len(req.Tools) > 0 {
		params.ToolChoice = adaptToolChoice(req.ToolChoice)
	}
	if shouldIncludeThinking(model) {
		const budget int64 = 1024
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(budget)
		if params.MaxTokens <= budget {
			params.MaxTokens = budget + 1024
		}
	}
	kwargs, _ := config.ResolveModelParameters(model, c.extra, c.cfg.ModelParameters, false)
	if len(kwargs) > 0 {
		params.SetExtraFields(kwargs)
	}
	return params, nil
}

func adaptToolChoice(tc llm.ToolChoice) anthropic.ToolChoiceUnionParam {
	switch tc.Kind {
	case llm.ToolChoiceNone:
		return anthropic.ToolChoiceUnionParam{OfNone: &anthropic.ToolChoiceNoneParam{}}
	case llm.ToolChoiceRequired:
		return anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
	case llm.ToolChoiceName:
		return anthropic.ToolChoiceUnionParam{OfTool: &anthropic.ToolChoiceToolParam{Name: tc.Name}}
	default:
		return anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
	}
}

func (c *Client) GenerateResponse(ctx context.Context, req llm.Request) (llm.Output, error) {
	if err := llm.ValidateRequest("anthropic", c.pickModel(req.Model), req.Messages); err != nil {
		return llm.Output{}, err
	}
	params, err := c.buildParams(req)
	if err != nil {
		return llm.Output{}, err
	}
	ctx, span := llm.StartRequestSpan(ctx, "anthropic.GenerateResponse", string(params.Model), len(req.Tools), len(req.Messages))
	defer span.End()
	llm.LogRedactedPrompt(ctx, req.Messages)

	start := time.Now()
	resp, err := c.sdk.Messages.New(ctx, params)
	dur := time.Since(start)
	if err != nil {
		span.RecordError(err)
		callErr := translateError(err, string(params.Model))
		llm.RecordBuffer(ctx, "anthropic", string(params.Model), req.Messages, req.Tools, req.ToolChoice, nil, callErr, start)
		return llm.Output{}, callErr
	}
	llm.LogRedactedResponse(ctx, resp)

	out := outputFromResponse(resp)
	prompt := int(resp.Usage.CacheCreationInputTokens + resp.Usage.CacheReadInputTokens + resp.Usage.InputTokens)
	completion := int(resp.Usage.OutputTokens)
	llm.RecordTokenAttributes(span, prompt, completion, prompt+completion)
	llm.RecordTokenMetrics(ctx, string(params.Model), prompt, completion)
	log.Ctx(ctx).Debug().Str("model", string(params.Model)).Dur("duration", dur).Msg("anthropic_message_ok")
	llm.RecordBuffer(ctx, "anthropic", string(params.Model), req.Messages, req.Tools, req.ToolChoice, &out, nil, start)
	return out, nil
}

func (c *Client) GenerateResponseStream(ctx context.Context, req llm.Request) (<-chan llm.StreamEvent, error) {
	if err := llm.ValidateRequest("anthropic", c.pickModel(req.Model), req.Messages); err != nil {
		return nil, err
	}
	params, err := c.buildParams(req)
	if err != nil {
		return nil, err
	}

	out := make(chan llm.StreamEvent)
	go func() {
		defer close(out)
		ctx, span := llm.StartRequestSpan(ctx, "anthropic.GenerateResponseStream", string(params.Model), len(req.Tools), len(req.Messages))
		defer span.End()
		llm.LogRedactedPrompt(ctx, req.Messages)

		stream := c.sdk.Messages.NewStreaming(ctx, params)
		defer func() { _ = stream.Close() }()

		acc := llm.NewToolCallAccumulator()
		thinking := map[int64]*strings.Builder{}
		var usage anthropic.MessageDeltaUsage

		for stream.Next() {
			event := stream.Current()
			switch ev := event.AsAny().(type) {
			case anthropic.ContentBlockStartEvent:
				switch block := ev.ContentBlock.AsAny().(type) {
				case anthropic.ThinkingBlock:
					b := &strings.Builder{}
					b.WriteString(block.Thinking)
					thinking[ev.Index] = b
				case anthropic.ToolUseBlock:
					id := strings.TrimSpace(block.ID)
					if id == "" {
						id = fmt.Sprintf("call-%d", acc.Len()+1)
					}
					acc.Start(int(ev.Index), id, block.Name)
				}
			case anthropic.ContentBlockDeltaEvent:
				switch delta := ev.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					if delta.Text != "" {
						out <- llm.ContentEvent(delta.Text)
					}
				case anthropic.InputJSONDelta:
					if delta.PartialJSON != "" {
						acc.AppendArgs(int(ev.Index), delta.PartialJSON)
					}
				case anthropic.ThinkingDelta:
					if delta.Thinking != "" {
						b := thinking[ev.Index]
						if b == nil {
							b = &strings.Builder{}
							thinking[ev.Index] = b
						}
						b.WriteString(delta.Thinking)
					}
				}
			case anthropic.MessageDeltaEvent:
				usage = ev.Usage
			}
		}

		if err := stream.Err(); err != nil {
			span.RecordError(err)
			out <- llm.ErrorEvent(translateError(err, string(params.Model)))
			return
		}

		for _, tc := range acc.Finish() {
			out <- llm.ToolCallEvent(tc)
		}

		prompt := int(usage.CacheCreationInputTokens + usage.CacheReadInputTokens + usage.InputTokens)
		completion := int(usage.OutputTokens)
		llm.RecordTokenAttributes(span, prompt, completion, prompt+completion)
		llm.RecordTokenMetrics(ctx, string(params.Model), prompt, completion)

		meta := map[string]any{}
		if len(thinking) > 0 {
			meta["thought_signature"] = encodeThinking(thinking)
		}
		out <- llm.DoneEvent(meta)
	}()
	return out, nil
}

func encodeThinking(blocks map[int64]*strings.Builder) string {
	indices := make([]int64, 0, len(blocks))
	for idx := range blocks {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })
	var out []thinkingBlock
	for _, idx := range indices {
		out = append(out, thinkingBlock{Thinking: blocks[idx].String()})
	}
	b, _ := json.Marshal(out)
	return string(b)
}

// GenerateStructured uses Anthropic's tool-use forcing as the native
// structured-output path: a single synthetic tool named after the schema,
// with tool_choice forced to it, sidesteps free-text JSON drift entirely.
// Falls back to structured.Engine on any failure.
func (c *Client) GenerateStructured(ctx context.Context, req llm.Request, sch schema.Schema, maxRetries int) (json.RawMessage, error) {
	if err := llm.ValidateRequest("anthropic", c.pickModel(req.Model), req.Messages); err != nil {
		return nil, err
	}
	toolName := sch.Name
	if toolName == "" {
		toolName = "emit_result"
	}
	synthetic := append(append([]message.ToolDefinition{}, req.Tools...), message.ToolDefinition{
		Name:        toolName,
		Description: "Emit the final structured result matching the required schema.",
		Parameters:  sch.Raw,
	})
	params, err := c.buildParams(llm.Request{Model: req.Model, Messages: req.Messages, Tools: synthetic, ToolChoice: llm.NamedToolChoice(toolName)})
	if err == nil {
		resp, rerr := c.sdk.Messages.New(ctx, params)
		if rerr == nil {
			out := outputFromResponse(resp)
			for _, tc := range out.ToolCalls {
				if tc.Function.Name == toolName {
					candidate := json.RawMessage(tc.Function.Arguments)
					if verr := sch.Validate(candidate); verr == nil {
						return candidate, nil
					}
				}
			}
		}
	}

	engine := structured.Engine{Provider: "anthropic", Model: c.pickModel(req.Model)}
	return engine.Run(ctx, func(ctx context.Context, msgs []message.Message) (llm.Output, error) {
		return c.GenerateResponse(ctx, llm.Request{Model: req.Model, Messages: msgs, Tools: req.Tools, ToolChoice: req.ToolChoice})
	}, req.Messages, sch, maxRetries)
}

// FormatUserMessageWithFile embeds an image or PDF as an image or document
// content part; Anthropic natively accepts both inline via base64 source
// blocks, unlike the OpenAI-family chat API. text/* and JSON files become
// truncated inline text, and any other mime type a file placeholder part.
func (c *Client) FormatUserMessageWithFile(ctx context.Context, opts llm.FileMessageOptions) (message.Message, error) {
	data, err := os.ReadFile(opts.FilePath)
	if err != nil {
		return message.Message{}, llm.NewError(llm.KindInvalidRequest, "anthropic", "", err)
	}
	parts := append([]message.ContentPart{message.TextPart(opts.PromptText)},
		attachments.FileParts(opts.MimeType, data, opts.MaxTextLength, llm.SupportsMultimodalTools("anthropic"))...)
	return message.UserParts(parts...), nil
}

func adaptTools(tools []message.ToolDefinition, cacheCfg config.AnthropicPromptCacheConfig) ([]anthropic.ToolUnionParam, error) {
	if len(tools) == 0 {
		return nil, nil
	}
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	cacheTools := cacheCfg.Enabled && cacheCfg.CacheTools
	cacheControl := anthropic.CacheControlEphemeralParam{TTL: anthropic.CacheControlEphemeralTTLTTL5m}
	for _, t := range tools {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			return nil, fmt.Errorf("anthropic provider: tool name required")
		}
		inputSchema := anthropic.ToolInputSchemaParam{Type: constant.ValueOf[constant.Object]()}
		extras := map[string]any{}
		for k, v := range t.Parameters {
			extras[k] = v
		}
		if props, ok := extras["properties"]; ok {
			inputSchema.Properties = props
			delete(extras, "properties")
		}
		if req, ok := extras["required"]; ok {
			delete(extras, "required")
			switch v := req.(type) {
			case []string:
				inputSchema.Required = v
			case []any:
				for _, item := range v {
					if s, ok := item.(string); ok {
						inputSchema.Required = append(inputSchema.Required, s)
					}
				}
			}
		}
		delete(extras, "type")
		if len(extras) > 0 {
			inputSchema.ExtraFields = extras
		}

		param := anthropic.ToolParam{Name: name, InputSchema: inputSchema}
		if cacheTools {
			param.CacheControl = cacheControl
		}
		if desc := strings.TrimSpace(t.Description); desc != "" {
			param.Description = anthropic.String(desc)
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &param})
	}
	return out, nil
}

// adaptMessages maps the neutral model onto Anthropic wire shapes: system
// content hoists into the top-level System field, tool results are user-role
// tool_result blocks, and assistant messages prepend any preserved
// thinking blocks ahead of text/tool_use content (Anthropic requires
// extended-thinking messages to start with their thinking blocks).
func adaptMessages(msgs []message.Message, cacheCfg config.AnthropicPromptCacheConfig) ([]anthropic.TextBlockParam, []anthropic.MessageParam, error) {
	var system []anthropic.TextBlockParam
	out := make([]anthropic.MessageParam, 0, len(msgs))
	toolResultCount := 0
	cacheSystem := cacheCfg.Enabled && cacheCfg.CacheSystem
	cacheControl := anthropic.CacheControlEphemeralParam{TTL: anthropic.CacheControlEphemeralTTLTTL5m}

	for _, m := range msgs {
		switch m.Role {
		case message.RoleSystem:
			if strings.TrimSpace(m.Content) != "" {
				if cacheSystem {
					system = append(system, anthropic.TextBlockParam{Text: m.Content, CacheControl: cacheControl})
				} else {
					system = append(system, anthropic.TextBlockParam{Text: m.Content})
				}
			}
		case message.RoleUser:
			blocks, err := userBlocks(m)
			if err != nil {
				return nil, nil, err
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewUserMessage(blocks...))
			}
		case message.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if m.ProviderMetadata != nil && m.ProviderMetadata.Provider == message.MetadataAnthropicThinking {
				var saved []thinkingBlock
				if err := json.Unmarshal(m.ProviderMetadata.ThoughtSignature, &saved); err == nil {
					for _, tb := range saved {
						blocks = append(blocks, anthropic.NewThinkingBlock(tb.Signature, tb.Thinking))
					}
				}
			}
			if strings.TrimSpace(m.Content) != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for i, tc := range m.ToolCalls {
				id := strings.TrimSpace(tc.ID)
				if id == "" {
					id = fmt.Sprintf("call-%d", i+1)
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(id, decodeArgs(tc.Function.Arguments), tc.Function.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		case message.RoleTool:
			id := strings.TrimSpace(m.ToolCallID)
			if id == "" {
				toolResultCount++
				id = fmt.Sprintf("tool-result-%d", toolResultCount)
			}
			blocks, err := toolResultBlocks(m, id)
			if err != nil {
				return nil, nil, err
			}
			out = append(out, anthropic.NewUserMessage(blocks...))
		case message.RoleError:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock("[error] "+m.Content)))
		default:
			return nil, nil, fmt.Errorf("unsupported role for anthropic provider: %s", m.Role)
		}
	}
	return system, mergeConsecutiveRoles(out), nil
}

// mergeConsecutiveRoles enforces Anthropic's strict user/assistant
// alternation by concatenating the content block lists of adjacent
// messages that translated to the same wire role. User and Tool neutral
// messages both map to Anthropic's "user" role, so a Tool result
// immediately followed by a synthetic User attachment message merges into
// one message here, same as two consecutive User turns.
func mergeConsecutiveRoles(msgs []anthropic.MessageParam) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		if n := len(out); n > 0 && out[n-1].Role == m.Role {
			out[n-1].Content = append(out[n-1].Content, m.Content...)
			continue
		}
		out = append(out, m)
	}
	return out
}

func userBlocks(m message.Message) ([]anthropic.ContentBlockParamUnion, error) {
	var blocks []anthropic.ContentBlockParamUnion
	if len(m.Parts) == 0 {
		if strings.TrimSpace(m.Content) != "" {
			blocks = append(blocks, anthropic.NewTextBlock(m.Content))
		}
		return blocks, nil
	}
	for _, p := range m.Parts {
		switch p.Kind {
		case message.PartText:
			if p.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(p.Text))
			}
		case message.PartImageURL:
			blocks = append(blocks, anthropic.NewImageBlock(anthropic.Base64ImageSourceParam{
				Data:      dataURIPayload(p.ImageURL),
				MediaType: anthropic.Base64ImageSourceMediaType(dataURIMediaType(p.ImageURL)),
			}))
		case message.PartDocument:
			blocks = append(blocks, anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{
				Data:      dataURIPayload(p.DocumentURL),
				MediaType: "application/pdf",
			}))
		case message.PartFilePlaceholder:
			blocks = append(blocks, anthropic.NewTextBlock("[file: "+p.FileReference+"]"))
		}
	}
	return blocks, nil
}

// toolResultBlocks builds the tool_result content list for a Tool message.
// When llm/attachments has attached native image/document Parts, they ride
// alongside the tool_result block as sibling content blocks in the same
// user turn, the documented Anthropic pattern for giving the model binary
// content produced by a tool call. Plain-text tool results (the common
// case) stay a single NewToolResultBlock.
func toolResultBlocks(m message.Message, id string) ([]anthropic.ContentBlockParamUnion, error) {
	if len(m.Parts) == 0 {
		return []anthropic.ContentBlockParamUnion{anthropic.NewToolResultBlock(id, m.Content, false)}, nil
	}

	var text strings.Builder
	text.WriteString(m.Content)
	var extra []anthropic.ContentBlockParamUnion
	for _, p := range m.Parts {
		switch p.Kind {
		case message.PartText:
			if text.Len() > 0 {
				text.WriteString("\n")
			}
			text.WriteString(p.Text)
		case message.PartImageURL:
			extra = append(extra, anthropic.NewImageBlock(anthropic.Base64ImageSourceParam{
				Data:      dataURIPayload(p.ImageURL),
				MediaType: anthropic.Base64ImageSourceMediaType(dataURIMediaType(p.ImageURL)),
			}))
		case message.PartDocument:
			extra = append(extra, anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{
				Data:      dataURIPayload(p.DocumentURL),
				MediaType: "application/pdf",
			}))
		case message.PartFilePlaceholder:
			if text.Len() > 0 {
				text.WriteString("\n")
			}
			text.WriteString("[file: " + p.FileReference + "]")
		}
	}
	blocks := []anthropic.ContentBlockParamUnion{anthropic.NewToolResultBlock(id, text.String(), false)}
	return append(blocks, extra...), nil
}

// dataURIMediaType/dataURIPayload split a "data:<mime>;base64,<payload>"
// string produced by a provider's own FormatUserMessageWithFile (or an
// upstream caller building message.Parts directly) back into the two
// fields Anthropic's Base64ImageSourceParam wants separately.
func dataURIMediaType(uri string) string {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "image/png"
	}
	if i := strings.Index(rest, ";"); i >= 0 {
		return rest[:i]
	}
	return "image/png"
}

func dataURIPayload(uri string) string {
	if i := strings.Index(uri, ","); i >= 0 {
		return uri[i+1:]
	}
	return uri
}

func decodeArgs(raw string) any {
	if raw == "" {
		return map[string]any{}
	}
	var v map[string]any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return map[string]any{}
}

func outputFromResponse(resp *anthropic.Message) llm.Output {
	if resp == nil {
		return llm.Output{}
	}
	var sb strings.Builder
	var calls []message.ToolCall
	var blocks []thinkingBlock
	idx := 0

	for _, block := range resp.Content {
		switch v := block.AsAny().(type) {
		case anthropic.ThinkingBlock:
			blocks = append(blocks, thinkingBlock{Signature: v.Signature, Thinking: v.Thinking})
		case anthropic.TextBlock:
			sb.WriteString(v.Text)
		case anthropic.ToolUseBlock:
			idx++
			id := strings.TrimSpace(v.ID)
			if id == "" {
				id = fmt.Sprintf("call-%d", idx)
			}
			args := v.Input
			if len(args) == 0 {
				args = json.RawMessage("{}")
			}
			calls = append(calls, message.ToolCall{
				ID: id, Type: "function",
				Function: message.ToolCallFunction{Name: v.Name, Arguments: string(args)},
			})
		}
	}

	out := llm.Output{Content: sb.String(), ToolCalls: calls}
	if len(blocks) > 0 {
		if encoded, err := json.Marshal(blocks); err == nil {
			out.ProviderMetadata = &message.ProviderMetadata{
				Provider:         message.MetadataAnthropicThinking,
				ThoughtSignature: encoded,
			}
		}
	}
	return out
}

func translateError(err error, model string) *llm.Error {
	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "401") || strings.Contains(lower, "authentication"):
		return llm.NewError(llm.KindAuthentication, "anthropic", model, err)
	case strings.Contains(lower, "429") || strings.Contains(lower, "rate limit") || strings.Contains(lower, "overloaded"):
		return llm.NewError(llm.KindRateLimit, "anthropic", model, err)
	case strings.Contains(lower, "context") && strings.Contains(lower, "too long"):
		return llm.NewError(llm.KindContextLength, "anthropic", model, err)
	case strings.Contains(lower, "not_found_error") || strings.Contains(lower, "model:"):
		return llm.NewError(llm.KindModelNotFound, "anthropic", model, err)
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		return llm.NewError(llm.KindProviderTimeout, "anthropic", model, err)
	case strings.Contains(lower, "529") || strings.Contains(lower, "unavailable"):
		return llm.NewError(llm.KindServiceUnavailable, "anthropic", model, err)
	case strings.Contains(lower, "400") || strings.Contains(lower, "invalid_request"):
		return llm.NewError(llm.KindInvalidRequest, "anthropic", model, err)
	default:
		return llm.NewError(llm.KindProviderConnection, "anthropic", model, err)
	}
}
