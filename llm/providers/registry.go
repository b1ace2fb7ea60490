package providers

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"llmcore/config"
	"llmcore/llm"
)

// Registry lazily builds and caches one llm.ProviderClient per model id:
// clients are long-lived and shared across turns, never rebuilt per call.
// Scoped per-instance rather than process-global, since a caller may
// legitimately want more than one registry (e.g. one per tenant).
type Registry struct {
	httpClient *http.Client

	mu      sync.Mutex
	configs map[string]config.ProviderConfig
	built   map[string]llm.ProviderClient
}

// NewRegistry creates an empty Registry. cfgs maps model id to its
// ProviderConfig; httpClient may be nil to accept each client's default.
func NewRegistry(cfgs map[string]config.ProviderConfig, httpClient *http.Client) *Registry {
	return &Registry{
		httpClient: httpClient,
		configs:    cfgs,
		built:      make(map[string]llm.ProviderClient),
	}
}

// Get returns the cached client for modelID, building and caching it on
// first request. Returns an error if modelID has no registered config.
func (r *Registry) Get(ctx context.Context, modelID string) (llm.ProviderClient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if client, ok := r.built[modelID]; ok {
		return client, nil
	}
	cfg, ok := r.configs[modelID]
	if !ok {
		return nil, fmt.Errorf("providers: no configuration registered for model %q", modelID)
	}
	client, err := Build(ctx, cfg, r.httpClient)
	if err != nil {
		return nil, err
	}
	r.built[modelID] = client
	return client, nil
}
