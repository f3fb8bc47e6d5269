package embedding

import "time"

// OpenAIConfig configures the OpenAI embedding provider.
// Setting APIVersion switches to an Azure OpenAI deployment named by Model.
type OpenAIConfig struct {
	APIKey     string        `json:"api_key" yaml:"api_key"`
	BaseURL    string        `json:"base_url" yaml:"base_url"`
	Model      string        `json:"model,omitempty" yaml:"model,omitempty"`           // text-embedding-3-large
	Dimensions int           `json:"dimensions,omitempty" yaml:"dimensions,omitempty"` // 0 keeps the model default
	APIVersion string        `json:"api_version,omitempty" yaml:"api_version,omitempty"`
	MaxBatch   int           `json:"max_batch,omitempty" yaml:"max_batch,omitempty"` // <= 2048
	Timeout    time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// DefaultOpenAIConfig returns default OpenAI embedding config.
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		BaseURL:  "https://api.openai.com",
		Model:    "text-embedding-3-large",
		MaxBatch: 2048,
		Timeout:  30 * time.Second,
	}
}
