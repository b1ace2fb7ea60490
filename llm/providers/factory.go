// Package providers selects and constructs an llm.ProviderClient from a
// config.ProviderConfig by consulting the explicit `provider` family
// first, then inferring from the model id prefix.
package providers

import (
	"context"
	"fmt"
	"net/http"

	"llmcore/config"
	"llmcore/llm"
	"llmcore/llm/anthropic"
	"llmcore/llm/google"
	"llmcore/llm/openai"
	"llmcore/llm/proxy"
)

// Build constructs the llm.ProviderClient for cfg's family (explicit or
// inferred from cfg.Model). httpClient may be nil to accept each client's
// own default.
func Build(ctx context.Context, cfg config.ProviderConfig, httpClient *http.Client) (llm.ProviderClient, error) {
	switch config.InferFamily(cfg.Family, cfg.Model) {
	case config.FamilyOpenAI:
		return openai.New(cfg, httpClient), nil
	case config.FamilyAnthropic:
		return anthropic.New(cfg, httpClient), nil
	case config.FamilyGoogle:
		return google.New(ctx, cfg, httpClient)
	case config.FamilyProxy:
		return proxy.New(cfg, httpClient), nil
	default:
		return nil, fmt.Errorf("providers: unsupported family for model %q", cfg.Model)
	}
}

// BuildAll constructs one ProviderClient per entry in cfgs, keyed the same
// way the map itself is keyed (typically a logical model name). A single
// construction failure aborts the whole batch; callers that want partial
// results should call Build per-entry instead.
func BuildAll(ctx context.Context, cfgs map[string]config.ProviderConfig, httpClient *http.Client) (map[string]llm.ProviderClient, error) {
	out := make(map[string]llm.ProviderClient, len(cfgs))
	for name, cfg := range cfgs {
		client, err := Build(ctx, cfg, httpClient)
		if err != nil {
			return nil, fmt.Errorf("providers: building %q: %w", name, err)
		}
		out[name] = client
	}
	return out, nil
}
