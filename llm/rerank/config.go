package rerank

import "time"

// CohereConfig configures the Cohere reranker provider.
// BaseURL may point at an Azure-hosted Cohere endpoint.
type CohereConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"` // rerank-multilingual-v3.0
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// DefaultCohereConfig returns default Cohere reranker config.
func DefaultCohereConfig() CohereConfig {
	return CohereConfig{
		BaseURL: "https://api.cohere.ai",
		Model:   "rerank-multilingual-v3.0",
		Timeout: 30 * time.Second,
	}
}
