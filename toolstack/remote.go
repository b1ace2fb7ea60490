package toolstack

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"os"
	"os/exec"
	"strings"
	"sync"

	"llmcore/config"
	"llmcore/llm"
	"llmcore/message"

	mcppkg "github.com/modelcontextprotocol/go-sdk/mcp"
)

// remoteSession is the subset of *mcppkg.ClientSession RemoteProvider
// depends on, narrowed for testability (fakes implement this instead of
// standing up a real MCP server).
type remoteSession interface {
	Tools(ctx context.Context, params *mcppkg.ListToolsParams) iter.Seq2[*mcppkg.Tool, error]
	CallTool(ctx context.Context, params *mcppkg.CallToolParams) (*mcppkg.CallToolResult, error)
	Close() error
}

// RemoteProvider fetches tool definitions from an external MCP session and
// forwards calls transparently, exposing each remote tool under a
// "<server>_<tool>" qualified name. Each RemoteProvider owns exactly one
// logical tool namespace; callers compose several via CompositeProvider.
type RemoteProvider struct {
	serverName string
	session    remoteSession

	mu    sync.Mutex
	tools map[string]*mcppkg.Tool
}

// Dial starts (or connects to) one MCP server per cfg and returns a
// RemoteProvider over it, plus a close function.
func Dial(ctx context.Context, cfg config.MCPServerConfig, clientVersion string) (*RemoteProvider, func() error, error) {
	client := mcppkg.NewClient(&mcppkg.Implementation{Name: "llmcore", Version: clientVersion}, nil)
	cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)
	if len(cfg.Env) > 0 {
		env := os.Environ()
		for k, v := range cfg.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		cmd.Env = env
	}
	session, err := client.Connect(ctx, &mcppkg.CommandTransport{Command: cmd}, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("toolstack: connecting to MCP server %q: %w", cfg.Name, err)
	}
	return NewRemoteProvider(cfg.Name, session), session.Close, nil
}

// NewRemoteProvider wraps an already-connected session (primarily for
// tests, which supply a fake remoteSession).
func NewRemoteProvider(serverName string, session remoteSession) *RemoteProvider {
	return &RemoteProvider{serverName: serverName, session: session, tools: make(map[string]*mcppkg.Tool)}
}

func (r *RemoteProvider) qualifiedName(toolName string) string {
	return sanitizeName(r.serverName + "_" + toolName)
}

func sanitizeName(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, ":", "_")
	return s
}

func (r *RemoteProvider) GetDefinitions(ctx context.Context) ([]message.ToolDefinition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var defs []message.ToolDefinition
	for tool, err := range r.session.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("toolstack: listing tools on %s: %w", r.serverName, err)
		}
		qname := r.qualifiedName(tool.Name)
		r.tools[qname] = tool
		defs = append(defs, message.ToolDefinition{
			Name:        qname,
			Description: tool.Description,
			Parameters:  inputSchemaToParams(tool.InputSchema),
		})
	}
	return defs, nil
}

// inputSchemaToParams normalizes an MCP tool's JSON-schema-shaped
// InputSchema into the {type:"object", properties:{}} minimum every
// provider client's sanitizer expects.
func inputSchemaToParams(inputSchema any) map[string]any {
	params := map[string]any{"type": "object", "properties": map[string]any{}}
	if inputSchema == nil {
		return params
	}
	b, err := json.Marshal(inputSchema)
	if err != nil {
		return params
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil || m == nil {
		return params
	}
	for k, v := range m {
		params[k] = v
	}
	if params["type"] != "object" {
		params["type"] = "object"
	}
	if _, ok := params["properties"].(map[string]any); !ok {
		params["properties"] = map[string]any{}
	}
	return params
}

func (r *RemoteProvider) Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error) {
	r.mu.Lock()
	tool, ok := r.tools[name]
	r.mu.Unlock()
	if !ok {
		return ToolResult{}, llm.NewErrorf(llm.KindToolNotFound, r.serverName, "", "tool %q not found", name)
	}

	var parsedArgs any
	if len(args) > 0 {
		_ = json.Unmarshal(args, &parsedArgs)
	}
	if parsedArgs == nil {
		parsedArgs = map[string]any{}
	}

	res, err := r.session.CallTool(ctx, &mcppkg.CallToolParams{Name: tool.Name, Arguments: parsedArgs})
	if err != nil {
		return ToolResult{}, llm.NewError(llm.KindProviderConnection, r.serverName, "", err)
	}

	var sb strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(*mcppkg.TextContent); ok {
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(tc.Text)
		}
	}
	if res.IsError {
		return ToolResult{Text: sb.String()}, fmt.Errorf("toolstack: tool %q reported an error: %s", name, sb.String())
	}
	return ToolResult{Text: sb.String(), StructuredData: res.StructuredContent}, nil
}

func (r *RemoteProvider) Close() error {
	return r.session.Close()
}
