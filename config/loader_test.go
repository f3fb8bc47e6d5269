// 配置加载器测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, "chroma", cfg.Store.Type)
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath(filepath.Join(t.TempDir(), "nope.yaml")).Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultRetrievalConfig(), cfg.Retrieval)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
server:
  http_port: 8888
  read_timeout: 60s
store:
  type: sqlite
  dsn: "file::memory:"
retrieval:
  top_n: 3
  use_rerank: false
app:
  language: en
documents:
  - id: EX1
    name: Experimentalphysik 1
    description: Mechanik
  - id: EX2
    name: Experimentalphysik 2
`)

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 9091, cfg.Server.MetricsPort)
	assert.Equal(t, "sqlite", cfg.Store.Type)
	assert.Equal(t, 3, cfg.Retrieval.TopN)
	assert.Equal(t, 200, cfg.Retrieval.TopK)
	assert.False(t, cfg.Retrieval.UseRerank)
	assert.Equal(t, "en", cfg.App.Language)
	require.Len(t, cfg.Documents, 2)
	assert.Equal(t, DocumentConfig{ID: "EX1", Name: "Experimentalphysik 1", Description: "Mechanik"}, cfg.Documents[0])
}

func TestLoader_InvalidYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", "server: [")
	_, err := NewLoader().WithConfigPath(path).Load()
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestLoader_EnvOverrides(t *testing.T) {
	t.Setenv("LANDAU_SERVER_HTTP_PORT", "9000")
	t.Setenv("LANDAU_LLM_TEMPERATURE", "0.5")
	t.Setenv("LANDAU_RETRIEVAL_USE_RERANK", "false")
	t.Setenv("LANDAU_RETRIEVAL_LONG_FORM_MARKERS", "FEYNMAN, LANDAU")
	t.Setenv("LANDAU_CACHE_TTL", "1m")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.HTTPPort)
	assert.Equal(t, 0.5, cfg.LLM.Temperature)
	assert.False(t, cfg.Retrieval.UseRerank)
	assert.Equal(t, []string{"FEYNMAN", "LANDAU"}, cfg.Retrieval.LongFormMarkers)
	assert.Equal(t, time.Minute, cfg.Cache.TTL)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", "server:\n  http_port: 8888\n")
	t.Setenv("TEST_SERVER_HTTP_PORT", "7777")

	cfg, err := NewLoader().WithConfigPath(path).WithEnvPrefix("TEST").Load()
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Server.HTTPPort)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	t.Setenv("LANDAU_SERVER_HTTP_PORT", "not-a-number")
	_, err := NewLoader().Load()
	assert.ErrorContains(t, err, "LANDAU_SERVER_HTTP_PORT")
}

func TestLoader_DotEnv(t *testing.T) {
	path := writeFile(t, ".env", "LANDAU_LLM_API_KEY=from-dotenv\nLANDAU_LLM_MODEL=from-dotenv\n")
	t.Setenv("LANDAU_LLM_MODEL", "from-env")
	// godotenv 会写入进程环境，测试结束后清理
	t.Cleanup(func() { os.Unsetenv("LANDAU_LLM_API_KEY") })

	cfg, err := NewLoader().WithDotEnv(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.LLM.APIKey)
	assert.Equal(t, "from-env", cfg.LLM.Model)
}

func TestLoader_MissingDotEnvIsIgnored(t *testing.T) {
	_, err := NewLoader().WithDotEnv(filepath.Join(t.TempDir(), ".env")).Load()
	assert.NoError(t, err)
}

func TestLoader_CustomValidator(t *testing.T) {
	_, err := NewLoader().WithValidator(func(c *Config) error {
		return assert.AnError
	}).Load()
	assert.ErrorIs(t, err, assert.AnError)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port", func(c *Config) { c.Server.HTTPPort = 0 }, "invalid HTTP port"},
		{"top_n", func(c *Config) { c.Retrieval.TopN = 0 }, "retrieval.top_n must be greater than 0"},
		{"top_k", func(c *Config) { c.Retrieval.TopK = 2; c.Retrieval.TopN = 3 }, "top_k must be greater than or equal to top_n"},
		{"threshold", func(c *Config) { c.Retrieval.RerankScoreThreshold = 1.5 }, "rerank_score_threshold must be between 0 and 1"},
		{"language", func(c *Config) { c.App.Language = "fr" }, "app.language must be one of"},
		{"store type", func(c *Config) { c.Store.Type = "qdrant" }, "store.type must be one of"},
		{"dsn", func(c *Config) { c.Store.Type = "postgres" }, "store.dsn is required"},
		{"cache", func(c *Config) { c.Cache.Enabled = true; c.Cache.Addr = "" }, "cache.addr is required"},
		{"duplicate document", func(c *Config) {
			c.Documents = []DocumentConfig{{ID: "EX1"}, {ID: "EX1"}}
		}, `duplicate id "EX1"`},
		{"parallel", func(c *Config) { c.App.MaxParallelToolCalls = 0 }, "max_parallel_tool_calls"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}
