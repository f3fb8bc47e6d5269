// =============================================================================
// 📦 Landau 默认配置
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Log:       DefaultLogConfig(),
		LLM:       DefaultLLMConfig(),
		Embedding: DefaultEmbeddingConfig(),
		Rerank:    DefaultRerankConfig(),
		Store:     DefaultStoreConfig(),
		Retrieval: DefaultRetrievalConfig(),
		App:       DefaultAppConfig(),
		Cache:     DefaultCacheConfig(),
		Telemetry: DefaultTelemetryConfig(),
		Documents: DefaultDocuments(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    5 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    1,
		RateLimitBurst:  5,
		SessionTTL:      2 * time.Hour,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:        "info",
		Format:       "json",
		OutputPaths:  []string{"stdout"},
		EnableCaller: true,
		MaxSizeMB:    10,
		MaxBackups:   5,
		MaxAgeDays:   30,
		Compress:     true,
	}
}

// DefaultLLMConfig 返回默认对话模型配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:    "openai",
		Model:       "gpt-4o",
		Timeout:     2 * time.Minute,
		Temperature: 0.3,
		TopP:        0.4,
	}
}

func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		BaseURL: "https://api.openai.com",
		Model:   "text-embedding-3-large",
		Timeout: 30 * time.Second,
	}
}

func DefaultRerankConfig() RerankConfig {
	return RerankConfig{
		BaseURL: "https://api.cohere.ai",
		Model:   "rerank-multilingual-v3.0",
		Timeout: 30 * time.Second,
	}
}

// DefaultStoreConfig 返回默认段落库配置（Chroma，与原有部署一致）
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Type:               "chroma",
		ChromaURL:          "http://localhost:8000",
		EmbeddingCacheSize: 1024,
		Timeout:            30 * time.Second,
		MaxOpenConns:       25,
		MaxIdleConns:       5,
		ConnMaxLifetime:    5 * time.Minute,
	}
}

// DefaultRetrievalConfig 返回工具检索的默认参数
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		CollectionName:       "default",
		TopK:                 200,
		TopN:                 5,
		NumMultiquery:        0,
		RerankScoreThreshold: 0.1,
		UseRerank:            true,
		ExtendResults:        true,
		ExtendRadius:         4,
		LongFormMarkers:      []string{"FEYNMAN"},
	}
}

func DefaultAppConfig() AppConfig {
	return AppConfig{
		MaxToolRecursion:     5,
		MaxMessages:          -1,
		MaxParallelToolCalls: 3,
		Language:             "de",
		ExamTrainer:          true,
	}
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled: false,
		Addr:    "localhost:6379",
		TTL:     10 * time.Minute,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "landau",
		SampleRate:   0.1,
	}
}

// DefaultDocuments 默认讲义目录
func DefaultDocuments() []DocumentConfig {
	return []DocumentConfig{
		{ID: "FEYNMANI", Name: "Feynman Vorlesungen Vol. I", Description: "Größtenteils Mechanik, Strahlung, and Wärmelehre"},
		{ID: "FEYNMANII", Name: "Feynman Vorlesungen Vol. II", Description: "Elektromagnetismus und Materie"},
		{ID: "FEYNMANIII", Name: "Feynman Vorlesungen Vol. III", Description: "Quantenmechanik"},
	}
}
