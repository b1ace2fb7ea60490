// Package google implements the Gemini-family llm.ProviderClient:
// genai.Content role mapping, function calls/responses, system
// instructions, and thought-signature pass-through via
// message.ProviderMetadata.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	genai "google.golang.org/genai"

	"llmcore/config"
	"llmcore/llm"
	"llmcore/llm/attachments"
	"llmcore/message"
	"llmcore/schema"
	"llmcore/structured"
)

type Client struct {
	client *genai.Client
	model  string
	cfg    config.ProviderConfig
}

func New(ctx context.Context, cfg config.ProviderConfig, httpClient *http.Client) (*Client, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-1.5-flash"
	}
	httpOpts := genai.HTTPOptions{}
	if base := strings.TrimSuffix(cfg.APIBase, "/"); base != "" {
		httpOpts.BaseURL = base + "/"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		HTTPClient:  httpClient,
		HTTPOptions: httpOpts,
	})
	if err != nil {
		return nil, fmt.Errorf("google provider: init client: %w", err)
	}
	return &Client{client: client, model: model, cfg: cfg}, nil
}

func (c *Client) pickModel(model string) string {
	if model != "" {
		return model
	}
	return c.model
}

func (c *Client) buildConfig(system string, tools []*genai.Tool, toolCfg *genai.ToolConfig, extra map[string]any) *genai.GenerateContentConfig {
	gcfg := &genai.GenerateContentConfig{Tools: tools, ToolConfig: toolCfg}
	if len(extra) > 0 {
		if b, err := json.Marshal(extra); err == nil {
			_ = json.Unmarshal(b, gcfg)
		}
	}
	if system != "" {
		gcfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	return gcfg
}

func (c *Client) GenerateResponse(ctx context.Context, req llm.Request) (llm.Output, error) {
	model := c.pickModel(req.Model)
	if err := llm.ValidateRequest("google", model, req.Messages); err != nil {
		return llm.Output{}, err
	}
	ctx, span := llm.StartRequestSpan(ctx, "google.GenerateResponse", model, len(req.Tools), len(req.Messages))
	defer span.End()
	llm.LogRedactedPrompt(ctx, req.Messages)

	system, contents, err := toContents(attachments.Expand(req.Messages, llm.SupportsMultimodalTools("google")))
	if err != nil {
		return llm.Output{}, err
	}
	toolDecls, toolCfg, err := adaptTools(req.Tools, req.ToolChoice)
	if err != nil {
		return llm.Output{}, err
	}
	kwargs, _ := config.ResolveModelParameters(model, c.cfg.DefaultKwargs, c.cfg.ModelParameters, false)

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, model, contents, c.buildConfig(system, toolDecls, toolCfg, kwargs))
	if err != nil {
		span.RecordError(err)
		callErr := translateError(err, model)
		llm.RecordBuffer(ctx, "google", model, req.Messages, req.Tools, req.ToolChoice, nil, callErr, start)
		return llm.Output{}, callErr
	}
	out, err := outputFromResponse(resp)
	if err != nil {
		callErr := llm.NewError(llm.KindInvalidRequest, "google", model, err)
		llm.RecordBuffer(ctx, "google", model, req.Messages, req.Tools, req.ToolChoice, nil, callErr, start)
		return llm.Output{}, callErr
	}
	llm.LogRedactedResponse(ctx, resp)
	if resp.UsageMetadata != nil {
		llm.RecordTokenAttributes(span, int(resp.UsageMetadata.PromptTokenCount), int(resp.UsageMetadata.CandidatesTokenCount), int(resp.UsageMetadata.TotalTokenCount))
		llm.RecordTokenMetrics(ctx, model, int(resp.UsageMetadata.PromptTokenCount), int(resp.UsageMetadata.CandidatesTokenCount))
	}
	llm.RecordBuffer(ctx, "google", model, req.Messages, req.Tools, req.ToolChoice, &out, nil, start)
	return out, nil
}

func (c *Client) GenerateResponseStream(ctx context.Context, req llm.Request) (<-chan llm.StreamEvent, error) {
	model := c.pickModel(req.Model)
	if err := llm.ValidateRequest("google", model, req.Messages); err != nil {
		return nil, err
	}
	system, contents, err := toContents(attachments.Expand(req.Messages, llm.SupportsMultimodalTools("google")))
	if err != nil {
		return nil, err
	}
	toolDecls, toolCfg, err := adaptTools(req.Tools, req.ToolChoice)
	if err != nil {
		return nil, err
	}
	kwargs, _ := config.ResolveModelParameters(model, c.cfg.DefaultKwargs, c.cfg.ModelParameters, false)

	out := make(chan llm.StreamEvent)
	go func() {
		defer close(out)
		ctx, span := llm.StartRequestSpan(ctx, "google.GenerateResponseStream", model, len(req.Tools), len(req.Messages))
		defer span.End()
		llm.LogRedactedPrompt(ctx, req.Messages)

		stream := c.client.Models.GenerateContentStream(ctx, model, contents, c.buildConfig(system, toolDecls, toolCfg, kwargs))
		callIdx := 0
		for resp, err := range stream {
			if err != nil {
				span.RecordError(err)
				out <- llm.ErrorEvent(translateError(err, model))
				return
			}
			if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
				continue
			}
			for _, part := range resp.Candidates[0].Content.Parts {
				if part == nil || part.Thought {
					continue
				}
				if part.Text != "" {
					out <- llm.ContentEvent(part.Text)
				}
				if part.FunctionCall != nil {
					callIdx++
					tc, err := toolCallFromPart(part, callIdx)
					if err != nil {
						continue
					}
					out <- llm.ToolCallEvent(tc)
				}
			}
		}
		out <- llm.DoneEvent(nil)
	}()
	return out, nil
}

// GenerateStructured uses Gemini's native JSON-schema response mode,
// falling back to structured.Engine on parse/validation failure.
func (c *Client) GenerateStructured(ctx context.Context, req llm.Request, sch schema.Schema, maxRetries int) (json.RawMessage, error) {
	model := c.pickModel(req.Model)
	if err := llm.ValidateRequest("google", model, req.Messages); err != nil {
		return nil, err
	}
	system, contents, err := toContents(attachments.Expand(req.Messages, llm.SupportsMultimodalTools("google")))
	if err == nil {
		// ResponseJsonSchema accepts a raw JSON-Schema map directly, the same
		// convention genai.FunctionDeclaration.ParametersJsonSchema uses.
		gcfg := &genai.GenerateContentConfig{
			ResponseMIMEType:   "application/json",
			ResponseJsonSchema: sch.Raw,
		}
		if system != "" {
			gcfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
		}
		resp, rerr := c.client.Models.GenerateContent(ctx, model, contents, gcfg)
		if rerr == nil {
			out, operr := outputFromResponse(resp)
			if operr == nil {
				candidate := json.RawMessage(out.Content)
				if verr := sch.Validate(candidate); verr == nil {
					return candidate, nil
				}
			}
		}
	}

	engine := structured.Engine{Provider: "google", Model: model}
	return engine.Run(ctx, func(ctx context.Context, msgs []message.Message) (llm.Output, error) {
		return c.GenerateResponse(ctx, llm.Request{Model: req.Model, Messages: msgs, Tools: req.Tools, ToolChoice: req.ToolChoice})
	}, req.Messages, sch, maxRetries)
}

// FormatUserMessageWithFile reads the file and appends the parts built by
// attachments.FileParts: an image or PDF document part as a data URI,
// truncated inline text for text/* and JSON, or a file placeholder for any
// other mime type. Gemini's native inline_data representation is
// reconstructed from the data URIs at the translation boundary in
// toContents/userParts.
func (c *Client) FormatUserMessageWithFile(ctx context.Context, opts llm.FileMessageOptions) (message.Message, error) {
	data, err := os.ReadFile(opts.FilePath)
	if err != nil {
		return message.Message{}, llm.NewError(llm.KindInvalidRequest, "google", "", err)
	}
	parts := append([]message.ContentPart{message.TextPart(opts.PromptText)},
		attachments.FileParts(opts.MimeType, data, opts.MaxTextLength, llm.SupportsMultimodalTools("google"))...)
	return message.UserParts(parts...), nil
}

// toContents maps the neutral model onto Gemini wire shapes: system
// messages concatenate into the returned system-instruction string,
// assistant becomes genai.RoleModel, tool becomes a user-role
// FunctionResponse part.
func toContents(msgs []message.Message) (string, []*genai.Content, error) {
	toolNamesByID := map[string]string{}
	var lastFuncName string
	var system []string
	contents := make([]*genai.Content, 0, len(msgs))

	for _, m := range msgs {
		switch m.Role {
		case message.RoleSystem:
			if strings.TrimSpace(m.Content) != "" {
				system = append(system, m.Content)
			}
		case message.RoleUser, message.RoleError:
			text := m.Content
			if m.Role == message.RoleError {
				text = "[error] " + text
			}
			parts, err := userParts(m, text)
			if err != nil {
				return "", nil, err
			}
			if len(parts) > 0 {
				contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: parts})
			}
		case message.RoleAssistant:
			for _, tc := range m.ToolCalls {
				if tc.ID != "" && tc.Function.Name != "" {
					toolNamesByID[tc.ID] = tc.Function.Name
				}
				if tc.Function.Name != "" {
					lastFuncName = tc.Function.Name
				}
			}

			var parts []*genai.Part
			if strings.TrimSpace(m.Content) != "" {
				textPart := &genai.Part{Text: m.Content}
				if m.ProviderMetadata != nil && m.ProviderMetadata.Provider == message.MetadataGemini {
					textPart.ThoughtSignature = m.ProviderMetadata.ThoughtSignature
				}
				parts = append(parts, textPart)
			}
			for _, tc := range m.ToolCalls {
				var args map[string]any
				if tc.Function.Arguments != "" {
					_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
				}
				if args == nil {
					args = map[string]any{}
				}
				p := genai.NewPartFromFunctionCall(tc.Function.Name, args)
				if tc.ProviderMetadata != nil && tc.ProviderMetadata.Provider == message.MetadataGemini {
					p.ThoughtSignature = tc.ProviderMetadata.ThoughtSignature
				}
				parts = append(parts, p)
			}
			if len(parts) > 0 {
				contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: parts})
			}
		case message.RoleTool:
			name := toolNamesByID[m.ToolCallID]
			if name == "" {
				name = lastFuncName
			}
			if name == "" {
				name = "tool_response"
			}
			respMap := map[string]any{}
			if trimmed := strings.TrimSpace(m.Content); trimmed != "" {
				if err := json.Unmarshal([]byte(trimmed), &respMap); err != nil {
					respMap = map[string]any{"output": m.Content}
				}
			}
			part := genai.NewPartFromFunctionResponse(name, respMap)
			part.FunctionResponse.ID = m.ToolCallID
			toolParts := []*genai.Part{part}
			// Inline attachments expanded by llm/attachments ride alongside
			// the function_response part in the same user-role Content.
			for _, p := range m.Parts {
				switch p.Kind {
				case message.PartImageURL:
					mime, payload := splitDataURI(p.ImageURL)
					if data, err := fromBase64(payload); err == nil {
						toolParts = append(toolParts, genai.NewPartFromBytes(data, mime))
					}
				case message.PartDocument:
					mime, payload := splitDataURI(p.DocumentURL)
					if data, err := fromBase64(payload); err == nil {
						toolParts = append(toolParts, genai.NewPartFromBytes(data, mime))
					}
				case message.PartText:
					if p.Text != "" {
						toolParts = append(toolParts, &genai.Part{Text: p.Text})
					}
				}
			}
			contents = append(contents, genai.NewContentFromParts(toolParts, genai.RoleUser))
		default:
			return "", nil, fmt.Errorf("unsupported role for google provider: %s", m.Role)
		}
	}
	return strings.Join(system, "\n\n"), contents, nil
}

func userParts(m message.Message, text string) ([]*genai.Part, error) {
	var parts []*genai.Part
	if len(m.Parts) == 0 {
		if strings.TrimSpace(text) != "" {
			parts = append(parts, &genai.Part{Text: text})
		}
		return parts, nil
	}
	for _, p := range m.Parts {
		switch p.Kind {
		case message.PartText:
			if p.Text != "" {
				parts = append(parts, &genai.Part{Text: p.Text})
			}
		case message.PartImageURL:
			mime, payload := splitDataURI(p.ImageURL)
			data, err := fromBase64(payload)
			if err != nil {
				return nil, fmt.Errorf("google provider: decoding inline image: %w", err)
			}
			parts = append(parts, genai.NewPartFromBytes(data, mime))
		case message.PartDocument:
			mime, payload := splitDataURI(p.DocumentURL)
			data, err := fromBase64(payload)
			if err != nil {
				return nil, fmt.Errorf("google provider: decoding inline document: %w", err)
			}
			parts = append(parts, genai.NewPartFromBytes(data, mime))
		case message.PartFilePlaceholder:
			parts = append(parts, &genai.Part{Text: "[file: " + p.FileReference + "]"})
		}
	}
	return parts, nil
}

func toolCallFromPart(part *genai.Part, idx int) (message.ToolCall, error) {
	args, err := json.Marshal(part.FunctionCall.Args)
	if err != nil {
		return message.ToolCall{}, err
	}
	id := part.FunctionCall.ID
	if id == "" {
		id = "call-" + strconv.Itoa(idx)
	}
	tc := message.ToolCall{
		ID: id, Type: "function",
		Function: message.ToolCallFunction{Name: part.FunctionCall.Name, Arguments: string(args)},
	}
	if len(part.ThoughtSignature) > 0 {
		tc.ProviderMetadata = &message.ProviderMetadata{Provider: message.MetadataGemini, ThoughtSignature: part.ThoughtSignature}
	}
	return tc, nil
}

func outputFromResponse(resp *genai.GenerateContentResponse) (llm.Output, error) {
	if resp == nil {
		return llm.Output{}, fmt.Errorf("nil response from google provider")
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return llm.Output{}, fmt.Errorf("request blocked by google: %s", resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return llm.Output{}, fmt.Errorf("no candidates in google response")
	}
	candidate := resp.Candidates[0]
	switch candidate.FinishReason {
	case genai.FinishReasonSafety:
		return llm.Output{}, fmt.Errorf("response blocked by safety filters")
	case genai.FinishReasonRecitation:
		return llm.Output{}, fmt.Errorf("response blocked due to recitation")
	case genai.FinishReasonMalformedFunctionCall:
		return llm.Output{}, fmt.Errorf("malformed function call generated by model")
	}
	if candidate.Content == nil {
		return llm.Output{}, nil
	}

	var sb strings.Builder
	var calls []message.ToolCall
	var textSig []byte
	idx := 0
	for _, part := range candidate.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		if part.FunctionCall == nil && len(part.ThoughtSignature) > 0 && textSig == nil {
			textSig = part.ThoughtSignature
		}
		if part.Text != "" {
			sb.WriteString(part.Text)
		}
		if part.FunctionCall != nil {
			idx++
			tc, err := toolCallFromPart(part, idx)
			if err != nil {
				return llm.Output{}, err
			}
			calls = append(calls, tc)
		}
	}

	out := llm.Output{Content: sb.String(), ToolCalls: calls}
	if textSig != nil {
		out.ProviderMetadata = &message.ProviderMetadata{Provider: message.MetadataGemini, ThoughtSignature: textSig}
	}
	return out, nil
}

// adaptTools builds the genai tool declarations and function-calling
// config. A "none" choice omits the tools entirely and sets mode NONE; a
// named choice restricts allowed function names under mode ANY.
func adaptTools(tools []message.ToolDefinition, choice llm.ToolChoice) ([]*genai.Tool, *genai.ToolConfig, error) {
	if len(tools) == 0 {
		return nil, nil, nil
	}
	if choice.Kind == llm.ToolChoiceNone {
		return nil, &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeNone},
		}, nil
	}
	fd := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		if strings.TrimSpace(t.Name) == "" {
			return nil, nil, fmt.Errorf("google provider: tool name required")
		}
		fd = append(fd, &genai.FunctionDeclaration{
			Name:                 t.Name,
			Description:          t.Description,
			ParametersJsonSchema: t.Parameters,
		})
	}
	fcc := &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeAuto}
	switch choice.Kind {
	case llm.ToolChoiceRequired:
		fcc.Mode = genai.FunctionCallingConfigModeAny
	case llm.ToolChoiceName:
		fcc.Mode = genai.FunctionCallingConfigModeAny
		fcc.AllowedFunctionNames = []string{choice.Name}
	}
	return []*genai.Tool{{FunctionDeclarations: fd}}, &genai.ToolConfig{FunctionCallingConfig: fcc}, nil
}

func translateError(err error, model string) *llm.Error {
	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "401") || strings.Contains(lower, "api key"):
		return llm.NewError(llm.KindAuthentication, "google", model, err)
	case strings.Contains(lower, "429") || strings.Contains(lower, "quota") || strings.Contains(lower, "rate"):
		return llm.NewError(llm.KindRateLimit, "google", model, err)
	case strings.Contains(lower, "too long") || strings.Contains(lower, "token"):
		return llm.NewError(llm.KindContextLength, "google", model, err)
	case strings.Contains(lower, "not found") || strings.Contains(lower, "404"):
		return llm.NewError(llm.KindModelNotFound, "google", model, err)
	case strings.Contains(lower, "deadline") || strings.Contains(lower, "timeout"):
		return llm.NewError(llm.KindProviderTimeout, "google", model, err)
	case strings.Contains(lower, "503") || strings.Contains(lower, "unavailable"):
		return llm.NewError(llm.KindServiceUnavailable, "google", model, err)
	case strings.Contains(lower, "400") || strings.Contains(lower, "invalid"):
		return llm.NewError(llm.KindInvalidRequest, "google", model, err)
	default:
		return llm.NewError(llm.KindProviderConnection, "google", model, err)
	}
}
