// Package toolstack implements the tool provider stack's core-facing
// contract: a single ToolProvider interface with LocalProvider,
// RemoteProvider (MCP-backed), CompositeProvider, FilteredProvider, and
// ConfirmingProvider decorators. LocalProvider's argument validation
// reuses llmcore/schema, the same package that sanitizes tool schemas at
// the provider boundary.
package toolstack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"llmcore/llm"
	"llmcore/message"
	"llmcore/schema"
)

// ToolResult is a tool's execution outcome: plain text, optional
// attachments, and optional structured data.
type ToolResult struct {
	Text           string
	Attachments    []message.Attachment
	StructuredData any
}

// ConfirmationCallback asks the human user whether tool execution should
// proceed. promptText describes the action in human terms.
type ConfirmationCallback func(ctx context.Context, promptText, toolName string, args json.RawMessage) (bool, error)

// ToolProvider is the single interface the orchestrator sees.
type ToolProvider interface {
	GetDefinitions(ctx context.Context) ([]message.ToolDefinition, error)
	Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error)
}

// ToolFunc implements a single local tool. It may return a string (taken
// as ToolResult.Text) or a ToolResult directly.
type ToolFunc func(ctx context.Context, args json.RawMessage) (any, error)

func toToolResult(v any) ToolResult {
	switch r := v.(type) {
	case ToolResult:
		return r
	case string:
		return ToolResult{Text: r}
	default:
		return ToolResult{StructuredData: v}
	}
}

type localTool struct {
	def schema.Schema // Name/Raw reused as {tool name, parameters schema}
	doc string
	fn  ToolFunc
}

// LocalProvider is a name-to-function registry. Registration rejects
// duplicate names; Execute validates args against the tool's parameter
// schema before calling the function.
type LocalProvider struct {
	mu    sync.Mutex
	tools map[string]localTool
	order []string
}

func NewLocalProvider() *LocalProvider {
	return &LocalProvider{tools: make(map[string]localTool)}
}

// Register adds a tool. It errors if name is already registered.
func (p *LocalProvider) Register(name, description string, parameters map[string]any, fn ToolFunc) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.tools[name]; exists {
		return fmt.Errorf("toolstack: duplicate tool name %q", name)
	}
	p.tools[name] = localTool{def: schema.New(name, parameters), doc: description, fn: fn}
	p.order = append(p.order, name)
	return nil
}

func (p *LocalProvider) GetDefinitions(ctx context.Context) ([]message.ToolDefinition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]message.ToolDefinition, 0, len(p.order))
	for _, name := range p.order {
		t := p.tools[name]
		out = append(out, message.ToolDefinition{Name: name, Description: t.doc, Parameters: t.def.Raw})
	}
	return out, nil
}

func (p *LocalProvider) Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error) {
	p.mu.Lock()
	t, ok := p.tools[name]
	p.mu.Unlock()
	if !ok {
		return ToolResult{}, llm.NewErrorf(llm.KindToolNotFound, "toolstack", "", "tool %q not found", name)
	}
	if len(t.def.Raw) > 0 {
		if err := t.def.Validate(args); err != nil {
			return ToolResult{}, llm.NewErrorf(llm.KindInvalidRequest, "toolstack", "", "tool %q argument validation failed: %v", name, err)
		}
	}
	out, err := t.fn(ctx, args)
	if err != nil {
		return ToolResult{}, err
	}
	return toToolResult(out), nil
}

// CompositeProvider concatenates an ordered list of sub-providers.
// GetDefinitions verifies globally unique names on first call and caches
// the result; Execute tries each provider in order, suppressing
// ToolNotFound from all but the last.
type CompositeProvider struct {
	Providers []ToolProvider

	once      sync.Once
	cached    []message.ToolDefinition
	cachedErr error
}

func NewCompositeProvider(providers ...ToolProvider) *CompositeProvider {
	return &CompositeProvider{Providers: providers}
}

func (c *CompositeProvider) GetDefinitions(ctx context.Context) ([]message.ToolDefinition, error) {
	c.once.Do(func() {
		seen := make(map[string]bool)
		var all []message.ToolDefinition
		for _, p := range c.Providers {
			defs, err := p.GetDefinitions(ctx)
			if err != nil {
				c.cachedErr = err
				return
			}
			for _, d := range defs {
				if seen[d.Name] {
					c.cachedErr = fmt.Errorf("toolstack: duplicate tool name %q across composed providers", d.Name)
					return
				}
				seen[d.Name] = true
				all = append(all, d)
			}
		}
		c.cached = all
	})
	return c.cached, c.cachedErr
}

func (c *CompositeProvider) Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error) {
	var lastNotFound error
	for _, p := range c.Providers {
		res, err := p.Execute(ctx, name, args)
		if err == nil {
			return res, nil
		}
		if isToolNotFound(err) {
			lastNotFound = err
			continue
		}
		return ToolResult{}, err
	}
	if lastNotFound != nil {
		return ToolResult{}, lastNotFound
	}
	return ToolResult{}, llm.NewErrorf(llm.KindToolNotFound, "toolstack", "", "tool %q not found in any composed provider", name)
}

func isToolNotFound(err error) bool {
	var e *llm.Error
	return errors.As(err, &e) && e.Kind == llm.KindToolNotFound
}

// FilteredProvider restricts GetDefinitions/Execute to a permit-list of
// tool names.
type FilteredProvider struct {
	Wrapped ToolProvider
	Allowed map[string]bool
}

func NewFilteredProvider(wrapped ToolProvider, allowedNames ...string) *FilteredProvider {
	allowed := make(map[string]bool, len(allowedNames))
	for _, n := range allowedNames {
		allowed[n] = true
	}
	return &FilteredProvider{Wrapped: wrapped, Allowed: allowed}
}

func (f *FilteredProvider) GetDefinitions(ctx context.Context) ([]message.ToolDefinition, error) {
	defs, err := f.Wrapped.GetDefinitions(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]message.ToolDefinition, 0, len(defs))
	for _, d := range defs {
		if f.Allowed[d.Name] {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *FilteredProvider) Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error) {
	if !f.Allowed[name] {
		return ToolResult{}, llm.NewErrorf(llm.KindToolNotFound, "toolstack", "", "tool %q not permitted", name)
	}
	return f.Wrapped.Execute(ctx, name, args)
}

// ConfirmingProvider wraps a provider with a set of tools requiring human
// confirmation before execution.
type ConfirmingProvider struct {
	Wrapped              ToolProvider
	RequiresConfirmation map[string]bool
	Callback             ConfirmationCallback
}

func NewConfirmingProvider(wrapped ToolProvider, callback ConfirmationCallback, requireNames ...string) *ConfirmingProvider {
	requires := make(map[string]bool, len(requireNames))
	for _, n := range requireNames {
		requires[n] = true
	}
	return &ConfirmingProvider{Wrapped: wrapped, RequiresConfirmation: requires, Callback: callback}
}

func (c *ConfirmingProvider) GetDefinitions(ctx context.Context) ([]message.ToolDefinition, error) {
	return c.Wrapped.GetDefinitions(ctx)
}

// Execute invokes Callback synchronously for tools requiring confirmation;
// the callback may block arbitrarily long on a human response, so it takes
// ctx and a cancelled turn unblocks it. If no Callback is configured,
// Execute surfaces ConfirmationRequired directly, so the orchestrator can
// yield control to the chat interface.
func (c *ConfirmingProvider) Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error) {
	if c.RequiresConfirmation[name] {
		if c.Callback == nil {
			return ToolResult{}, llm.NewErrorf(llm.KindConfirmationRequired, "toolstack", "", "tool %q requires confirmation", name)
		}
		ok, err := c.Callback(ctx, fmt.Sprintf("Allow tool %q to run?", name), name, args)
		if err != nil {
			return ToolResult{}, err
		}
		if !ok {
			return ToolResult{}, llm.NewErrorf(llm.KindConfirmationFailed, "toolstack", "", "tool %q execution declined by user", name)
		}
	}
	return c.Wrapped.Execute(ctx, name, args)
}
