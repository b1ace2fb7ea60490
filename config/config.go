// Package config defines provider and tool-stack configuration: per-family
// provider settings, model-parameter pattern rules, environment-variable
// credential fallback, and YAML document loading.
package config

import "strings"

// ProviderFamily names one of the four vendor families.
type ProviderFamily string

const (
	FamilyOpenAI    ProviderFamily = "openai"
	FamilyAnthropic ProviderFamily = "anthropic"
	FamilyGoogle    ProviderFamily = "google"
	FamilyProxy     ProviderFamily = "proxy"
)

// ModelParameterRule is one entry of `model_parameters`: a pattern that
// either matches a model id exactly, or, if it ends in "-", matches any
// model id with that prefix.
type ModelParameterRule struct {
	Pattern string         `yaml:"pattern"`
	Kwargs  map[string]any `yaml:"kwargs"`
}

// Matches reports whether rule applies to modelID.
func (r ModelParameterRule) Matches(modelID string) bool {
	if strings.HasSuffix(r.Pattern, "-") {
		return strings.HasPrefix(modelID, r.Pattern)
	}
	return r.Pattern == modelID
}

// ResolveModelParameters merges default kwargs with every matching rule's
// kwargs (later rules win). The "reasoning" subkey is hoisted into a
// separate return value; it is only honored for proxy models, never
// native providers.
func ResolveModelParameters(modelID string, defaults map[string]any, rules []ModelParameterRule, isProxy bool) (kwargs map[string]any, reasoning map[string]any) {
	kwargs = cloneMap(defaults)
	if v, ok := kwargs["reasoning"]; ok {
		delete(kwargs, "reasoning")
		if isProxy {
			if m, ok := v.(map[string]any); ok {
				reasoning = cloneMap(m)
			}
		}
	}
	for _, rule := range rules {
		if !rule.Matches(modelID) {
			continue
		}
		for k, v := range rule.Kwargs {
			if k == "reasoning" {
				if isProxy {
					if m, ok := v.(map[string]any); ok {
						reasoning = cloneMap(m)
					}
				}
				continue
			}
			kwargs[k] = v
		}
	}
	return kwargs, reasoning
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ProviderConfig is the configuration for a single provider client
// instance.
type ProviderConfig struct {
	Family ProviderFamily `yaml:"provider"`
	Model  string         `yaml:"model"`

	APIKey  string `yaml:"api_key,omitempty"`
	APIBase string `yaml:"api_base,omitempty"`

	DefaultKwargs   map[string]any       `yaml:"default_kwargs,omitempty"`
	ModelParameters []ModelParameterRule `yaml:"model_parameters,omitempty"`

	FallbackModelID         string         `yaml:"fallback_model_id,omitempty"`
	FallbackModelParameters map[string]any `yaml:"fallback_model_parameters,omitempty"`

	AnthropicPromptCache AnthropicPromptCacheConfig `yaml:"anthropic_prompt_cache,omitempty"`
}

// AnthropicPromptCacheConfig controls Anthropic prompt-cache-control
// annotation on the system prompt and tool definitions.
type AnthropicPromptCacheConfig struct {
	Enabled     bool `yaml:"enabled,omitempty"`
	CacheSystem bool `yaml:"cache_system,omitempty"`
	CacheTools  bool `yaml:"cache_tools,omitempty"`
}

// APIKeyEnvVar returns the environment variable name consulted when
// APIKey is empty.
func (f ProviderFamily) APIKeyEnvVar() string {
	switch f {
	case FamilyOpenAI:
		return "OPENAI_API_KEY"
	case FamilyGoogle:
		return "GEMINI_API_KEY"
	case FamilyAnthropic:
		return "ANTHROPIC_API_KEY"
	default:
		return ""
	}
}

// InferFamily consults the explicit `provider` value first; if absent, it
// infers the family from the model id prefix.
func InferFamily(explicit ProviderFamily, modelID string) ProviderFamily {
	if explicit != "" {
		return explicit
	}
	switch {
	case hasAnyPrefix(modelID, "gpt-", "o1-", "o3-"):
		return FamilyOpenAI
	case strings.HasPrefix(modelID, "gemini-"):
		return FamilyGoogle
	case strings.HasPrefix(modelID, "claude-"):
		return FamilyAnthropic
	default:
		return FamilyProxy
	}
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// ObservabilityConfig feeds observability.InitOTel.
type ObservabilityConfig struct {
	OTLPEndpoint   string `yaml:"otlp_endpoint,omitempty"`
	ServiceName    string `yaml:"service_name,omitempty"`
	ServiceVersion string `yaml:"service_version,omitempty"`
	Environment    string `yaml:"environment,omitempty"`
	LogLevel       string `yaml:"log_level,omitempty"`
	LogPath        string `yaml:"log_path,omitempty"`
}

// MCPServerConfig launches one stdio MCP server for toolstack.RemoteProvider.
type MCPServerConfig struct {
	Name    string            `yaml:"name"`
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
}

// Root is the top-level configuration document.
type Root struct {
	Providers     map[string]ProviderConfig `yaml:"providers"`
	Observability ObservabilityConfig       `yaml:"observability,omitempty"`
	MCPServers    []MCPServerConfig         `yaml:"mcp_servers,omitempty"`

	RequestBufferMaxSize int `yaml:"request_buffer_max_size,omitempty"`
	ToolMaxIterations    int `yaml:"tool_max_iterations,omitempty"`
	StructuredMaxRetries int `yaml:"structured_max_retries,omitempty"`
}
