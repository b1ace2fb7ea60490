package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults applied when a Root document omits them.
const (
	DefaultRequestBufferMaxSize = 100
	DefaultToolMaxIterations    = 5
	DefaultStructuredMaxRetries = 2
)

// LoadDotEnv loads a local .env file (if present) into the process
// environment for local/dev runs. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	err := godotenv.Load(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Load reads a YAML configuration document from path and applies defaults
// where the document is silent.
func Load(path string) (*Root, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var root Root
	if err := yaml.Unmarshal(b, &root); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	applyDefaults(&root)
	return &root, nil
}

func applyDefaults(root *Root) {
	if root.RequestBufferMaxSize <= 0 {
		root.RequestBufferMaxSize = DefaultRequestBufferMaxSize
	}
	if root.ToolMaxIterations <= 0 {
		root.ToolMaxIterations = DefaultToolMaxIterations
	}
	if root.StructuredMaxRetries <= 0 {
		root.StructuredMaxRetries = DefaultStructuredMaxRetries
	}
}

// ResolveAPIKey returns cfg.APIKey if set, else the provider family's
// environment variable.
func ResolveAPIKey(family ProviderFamily, cfg ProviderConfig) string {
	if cfg.APIKey != "" {
		return cfg.APIKey
	}
	if v := family.APIKeyEnvVar(); v != "" {
		return os.Getenv(v)
	}
	return ""
}

// BoolEnv parses a LITELLM_DEBUG/DEBUG_LLM_MESSAGES-style boolean-ish
// environment variable: "1", "true", "yes", "on" (case-insensitive) are
// true, as is anything else strconv.ParseBool reads as true (e.g. "t");
// everything else, including unset, is false.
func BoolEnv(name string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(name)))
	switch v {
	case "1", "true", "yes", "on":
		return true
	default:
		b, err := strconv.ParseBool(v)
		return err == nil && b
	}
}
