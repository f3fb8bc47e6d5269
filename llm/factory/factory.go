package factory

import (
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/landau/llm"
	"github.com/BaSui01/landau/llm/providers"
	claude "github.com/BaSui01/landau/llm/providers/anthropic"
	"github.com/BaSui01/landau/llm/providers/gemini"
	"github.com/BaSui01/landau/llm/providers/openai"
	"go.uber.org/zap"
)

// ProviderConfig is the generic configuration accepted by the factory function.
// It uses a flat structure with an Extra map for provider-specific fields.
type ProviderConfig struct {
	APIKey  string         `json:"api_key" yaml:"api_key"`
	BaseURL string         `json:"base_url" yaml:"base_url"`
	Model   string         `json:"model,omitempty" yaml:"model,omitempty"`
	Timeout time.Duration  `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Extra   map[string]any `json:"extra,omitempty" yaml:"extra,omitempty"`
}

func (c ProviderConfig) extraString(key string) string {
	if c.Extra == nil {
		return ""
	}
	v, _ := c.Extra[key].(string)
	return v
}

func (c ProviderConfig) extraInt(key string) int {
	if c.Extra == nil {
		return 0
	}
	switch v := c.Extra[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

// NewProviderFromConfig creates a Provider instance based on the provider name.
//
// Supported names: openai, azure, anthropic, claude, gemini.
func NewProviderFromConfig(name string, cfg ProviderConfig, logger *zap.Logger) (llm.Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	base := providers.BaseProviderConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
	}

	switch strings.ToLower(strings.TrimSpace(name)) {
	case "openai":
		return openai.NewProvider(providers.OpenAIConfig{
			BaseProviderConfig: base,
			Organization:       cfg.extraString("organization"),
			APIVersion:         cfg.extraString("api_version"),
		}, logger), nil

	case "azure":
		version := cfg.extraString("api_version")
		if version == "" {
			return nil, fmt.Errorf("azure provider requires extra.api_version")
		}
		if base.BaseURL == "" {
			return nil, fmt.Errorf("azure provider requires base_url")
		}
		return openai.NewProvider(providers.OpenAIConfig{BaseProviderConfig: base, APIVersion: version}, logger), nil

	case "anthropic", "claude":
		return claude.NewProvider(providers.ClaudeConfig{
			BaseProviderConfig: base,
			MaxTokens:          cfg.extraInt("max_tokens"),
		}, logger), nil

	case "gemini", "google":
		return gemini.NewProvider(providers.GeminiConfig{BaseProviderConfig: base}, logger), nil

	default:
		return nil, fmt.Errorf("unsupported provider %q", name)
	}
}

// SupportedProviders returns the provider names accepted by NewProviderFromConfig.
func SupportedProviders() []string {
	return []string{"openai", "azure", "anthropic", "claude", "gemini", "google"}
}
