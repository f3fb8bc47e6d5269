// =============================================================================
// 📦 Landau 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + .env + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("LANDAU").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → .env → 环境变量
// =============================================================================
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 Landau 的完整配置结构
type Config struct {
	Server    ServerConfig    `yaml:"server" env:"SERVER"`
	Log       LogConfig       `yaml:"log" env:"LOG"`
	LLM       LLMConfig       `yaml:"llm" env:"LLM"`
	Embedding EmbeddingConfig `yaml:"embedding" env:"EMBEDDING"`
	Rerank    RerankConfig    `yaml:"rerank" env:"RERANK"`
	Store     StoreConfig     `yaml:"store" env:"STORE"`
	Retrieval RetrievalConfig `yaml:"retrieval" env:"RETRIEVAL"`
	App       AppConfig       `yaml:"app" env:"APP"`
	Cache     CacheConfig     `yaml:"cache" env:"CACHE"`
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// Documents 讲义目录，只能在 YAML 中配置
	Documents []DocumentConfig `yaml:"documents" env:"-"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	MetricsPort     int           `yaml:"metrics_port" env:"METRICS_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`

	// 每个会话的消息速率限制
	RateLimitRPS   float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`

	// 会话空闲多久后过期
	SessionTTL time.Duration `yaml:"session_ttl" env:"SESSION_TTL"`

	// WebSocket 允许的 Origin 模式，空表示只允许同源
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`

	// File 非空时额外写入滚动日志文件
	File       string `yaml:"file" env:"FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max_backups" env:"MAX_BACKUPS"`
	MaxAgeDays int    `yaml:"max_age_days" env:"MAX_AGE_DAYS"`
	Compress   bool   `yaml:"compress" env:"COMPRESS"`
}

// LLMConfig 对话模型配置
type LLMConfig struct {
	// Provider: openai, azure, anthropic, gemini
	Provider   string        `yaml:"provider" env:"PROVIDER"`
	APIKey     string        `yaml:"api_key" env:"API_KEY"`
	BaseURL    string        `yaml:"base_url" env:"BASE_URL"`
	APIVersion string        `yaml:"api_version" env:"API_VERSION"`
	Model      string        `yaml:"model" env:"MODEL"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`

	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`
	TopP        float64 `yaml:"top_p" env:"TOP_P"`
	MaxTokens   int     `yaml:"max_tokens" env:"MAX_TOKENS"`
}

// EmbeddingConfig 向量化配置
type EmbeddingConfig struct {
	APIKey     string        `yaml:"api_key" env:"API_KEY"`
	BaseURL    string        `yaml:"base_url" env:"BASE_URL"`
	APIVersion string        `yaml:"api_version" env:"API_VERSION"`
	Model      string        `yaml:"model" env:"MODEL"`
	Dimensions int           `yaml:"dimensions" env:"DIMENSIONS"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// RerankConfig 重排序配置，APIKey 为空时不重排
type RerankConfig struct {
	APIKey  string        `yaml:"api_key" env:"API_KEY"`
	BaseURL string        `yaml:"base_url" env:"BASE_URL"`
	Model   string        `yaml:"model" env:"MODEL"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// StoreConfig 段落库配置
type StoreConfig struct {
	// Type: memory, chroma, postgres, sqlite
	Type string `yaml:"type" env:"TYPE"`

	ChromaURL          string        `yaml:"chroma_url" env:"CHROMA_URL"`
	EmbeddingCacheSize int           `yaml:"embedding_cache_size" env:"EMBEDDING_CACHE_SIZE"`
	Timeout            time.Duration `yaml:"timeout" env:"TIMEOUT"`

	// DSN 供 postgres / sqlite 使用
	DSN             string        `yaml:"dsn" env:"DSN"`
	AutoMigrate     bool          `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// RetrievalConfig 工具检索默认参数
type RetrievalConfig struct {
	CollectionName       string   `yaml:"collection_name" env:"COLLECTION_NAME"`
	TopK                 int      `yaml:"top_k" env:"TOP_K"`
	TopN                 int      `yaml:"top_n" env:"TOP_N"`
	NumMultiquery        int      `yaml:"num_multiquery" env:"NUM_MULTIQUERY"`
	RerankScoreThreshold float64  `yaml:"rerank_score_threshold" env:"RERANK_SCORE_THRESHOLD"`
	UseRerank            bool     `yaml:"use_rerank" env:"USE_RERANK"`
	ExtendResults        bool     `yaml:"extend_results" env:"EXTEND_RESULTS"`
	ExtendRadius         int      `yaml:"extend_radius" env:"EXTEND_RADIUS"`
	LongFormMarkers      []string `yaml:"long_form_markers" env:"LONG_FORM_MARKERS"`
}

// AppConfig 对话循环配置
type AppConfig struct {
	MaxToolRecursion     int    `yaml:"max_tool_recursion" env:"MAX_TOOL_RECURSION"`
	MaxMessages          int    `yaml:"max_messages" env:"MAX_MESSAGES"`
	MaxParallelToolCalls int    `yaml:"max_parallel_tool_calls" env:"MAX_PARALLEL_TOOL_CALLS"`
	Language             string `yaml:"language" env:"LANGUAGE"`
	ExamTrainer          bool   `yaml:"exam_trainer" env:"EXAM_TRAINER"`
}

// CacheConfig 检索结果缓存（Redis）
type CacheConfig struct {
	Enabled  bool          `yaml:"enabled" env:"ENABLED"`
	Addr     string        `yaml:"addr" env:"ADDR"`
	Password string        `yaml:"password" env:"PASSWORD"`
	DB       int           `yaml:"db" env:"DB"`
	TTL      time.Duration `yaml:"ttl" env:"TTL"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// DocumentConfig 讲义目录中的一项
type DocumentConfig struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Default     bool   `yaml:"default"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	dotEnvPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix: "LANDAU",
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithDotEnv 设置 .env 文件路径，文件不存在时忽略
func (l *Loader) WithDotEnv(path string) *Loader {
	l.dotEnvPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载并校验配置
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// .env 不覆盖已经存在的环境变量
	if l.dotEnvPath != "" {
		if err := godotenv.Load(l.dotEnvPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", l.dotEnvPath, err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}
	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		envTag := t.Field(i).Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue, ok := os.LookupEnv(envKey)
		if !ok || envValue == "" {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}
	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}
	return nil
}

// =============================================================================
// 🔍 校验
// =============================================================================

var (
	storeTypes = []string{"memory", "chroma", "postgres", "sqlite"}
	languages  = []string{"de", "en"}
)

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}

	r := c.Retrieval
	if strings.TrimSpace(r.CollectionName) == "" {
		errs = append(errs, "retrieval.collection_name must not be empty")
	}
	if r.TopN < 1 {
		errs = append(errs, "retrieval.top_n must be greater than 0")
	}
	if r.TopK < r.TopN {
		errs = append(errs, "retrieval.top_k must be greater than or equal to top_n")
	}
	if r.NumMultiquery < 0 {
		errs = append(errs, "retrieval.num_multiquery must be greater than or equal to 0")
	}
	if r.RerankScoreThreshold < 0 || r.RerankScoreThreshold > 1 {
		errs = append(errs, "retrieval.rerank_score_threshold must be between 0 and 1")
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, "llm.temperature must be between 0 and 2")
	}
	if c.LLM.TopP < 0 || c.LLM.TopP > 1 {
		errs = append(errs, "llm.top_p must be between 0 and 1")
	}

	if c.App.MaxToolRecursion < 0 {
		errs = append(errs, "app.max_tool_recursion must not be negative")
	}
	if c.App.MaxParallelToolCalls < 1 {
		errs = append(errs, "app.max_parallel_tool_calls must be greater than 0")
	}
	if !contains(languages, c.App.Language) {
		errs = append(errs, fmt.Sprintf("app.language must be one of %v", languages))
	}

	if !contains(storeTypes, c.Store.Type) {
		errs = append(errs, fmt.Sprintf("store.type must be one of %v", storeTypes))
	}
	if c.Store.Type == "chroma" && c.Store.ChromaURL == "" {
		errs = append(errs, "store.chroma_url is required for the chroma store")
	}
	if (c.Store.Type == "postgres" || c.Store.Type == "sqlite") && c.Store.DSN == "" {
		errs = append(errs, "store.dsn is required for SQL stores")
	}

	if c.Cache.Enabled && c.Cache.Addr == "" {
		errs = append(errs, "cache.addr is required when the cache is enabled")
	}

	seen := make(map[string]bool, len(c.Documents))
	for _, d := range c.Documents {
		switch {
		case strings.TrimSpace(d.ID) == "":
			errs = append(errs, "documents: id must not be empty")
		case seen[d.ID]:
			errs = append(errs, fmt.Sprintf("documents: duplicate id %q", d.ID))
		}
		seen[d.ID] = true
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}
