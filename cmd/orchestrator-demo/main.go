// Command orchestrator-demo wires the orchestration core's pieces together
// end to end: a configured provider client, a retry/fallback wrapper, and
// a small local tool stack, driving one turn of the tool-call loop. It is
// a wiring demo, not a new core abstraction; the orchestration loop itself
// lives in turn.go, local to this command.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"llmcore/config"
	"llmcore/llm"
	"llmcore/llm/providers"
	"llmcore/message"
	"llmcore/observability"
	"llmcore/retry"
	"llmcore/toolstack"
)

func main() {
	configPath := flag.String("config", "orchestrator.yaml", "path to the provider/tool-stack configuration document")
	prompt := flag.String("prompt", "What time is it, and can you add a note saying I called?", "user message to process")
	flag.Parse()

	if err := run(*configPath, *prompt); err != nil {
		log.Error().Err(err).Msg("orchestrator-demo failed")
		os.Exit(1)
	}
}

func run(configPath, prompt string) error {
	_ = config.LoadDotEnv("")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	observability.InitLogger(cfg.Observability.LogPath, cfg.Observability.LogLevel)

	ctx := context.Background()

	primaryCfg, ok := cfg.Providers["primary"]
	if !ok {
		return fmt.Errorf("config %s: no \"primary\" provider configured", configPath)
	}
	primaryCfg.APIKey = config.ResolveAPIKey(primaryCfg.Family, primaryCfg)
	primary, err := providers.Build(ctx, primaryCfg, observability.NewHTTPClient(nil, string(primaryCfg.Family)))
	if err != nil {
		return fmt.Errorf("build primary provider: %w", err)
	}

	var client llm.ProviderClient = primary
	if fallbackCfg, ok := cfg.Providers["fallback"]; ok {
		fallbackCfg.APIKey = config.ResolveAPIKey(fallbackCfg.Family, fallbackCfg)
		fallback, err := providers.Build(ctx, fallbackCfg, observability.NewHTTPClient(nil, string(fallbackCfg.Family)))
		if err != nil {
			return fmt.Errorf("build fallback provider: %w", err)
		}
		client = retry.New(primary, fallback, retry.Config{
			PrimaryModelID:  primaryCfg.Model,
			FallbackModelID: fallbackCfg.Model,
		})
	}

	tools := demoToolStack()

	result, err := runTurn(ctx, client, tools, []message.Message{
		message.System("You are a helpful family assistant. Use tools when they would help answer the request."),
		message.User(prompt),
	}, cfg.ToolMaxIterations)
	if err != nil {
		return fmt.Errorf("run turn: %w", err)
	}

	fmt.Println(result.Content)
	for _, t := range result.ExecutedTools {
		fmt.Printf("  [tool] %s(%s) -> %s\n", t.Name, string(t.Arguments), t.Response)
	}
	return nil
}

// demoToolStack registers two illustrative local tools so the loop has
// something to call; a real deployment supplies its own LocalProvider
// registrations and/or toolstack.RemoteProvider MCP servers.
func demoToolStack() toolstack.ToolProvider {
	local := toolstack.NewLocalProvider()
	_ = local.Register("current_time", "Returns the current server time in RFC3339.", map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}, func(ctx context.Context, args json.RawMessage) (any, error) {
		return time.Now().UTC().Format(time.RFC3339), nil
	})
	_ = local.Register("add_note", "Records a short note.", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title": map[string]any{"type": "string"},
		},
		"required": []any{"title"},
	}, func(ctx context.Context, args json.RawMessage) (any, error) {
		var in struct {
			Title string `json:"title"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		return fmt.Sprintf("Noted: %q", in.Title), nil
	})
	return local
}
