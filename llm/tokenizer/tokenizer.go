package tokenizer

import (
	"sync"

	"go.uber.org/zap"
)

// Tokenizer 是统一的 Token 计数接口.
type Tokenizer interface {
	// CountTokens 返回给定文本的 token 数.
	CountTokens(text string) (int, error)

	// Name 返回分词器的名称.
	Name() string
}

// FallbackTokenizer 优先使用 primary，primary 初始化失败（例如编码表无法下载）后
// 永久切换到 fallback，并只记录一次警告。
type FallbackTokenizer struct {
	primary  Tokenizer
	fallback Tokenizer
	logger   *zap.Logger

	mu       sync.Mutex
	degraded bool
}

// NewFallbackTokenizer 创建带降级的分词器.
func NewFallbackTokenizer(primary, fallback Tokenizer, logger *zap.Logger) *FallbackTokenizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FallbackTokenizer{primary: primary, fallback: fallback, logger: logger}
}

// Default 返回 o200k_base 编码的 tiktoken 分词器，失败时降级为估算器.
func Default(logger *zap.Logger) *FallbackTokenizer {
	return NewFallbackTokenizer(NewTiktokenTokenizer(EncodingO200K), NewEstimatorTokenizer(), logger)
}

func (f *FallbackTokenizer) CountTokens(text string) (int, error) {
	f.mu.Lock()
	degraded := f.degraded
	f.mu.Unlock()

	if !degraded {
		n, err := f.primary.CountTokens(text)
		if err == nil {
			return n, nil
		}
		f.mu.Lock()
		if !f.degraded {
			f.degraded = true
			f.logger.Warn("tokenizer degraded to estimator",
				zap.String("primary", f.primary.Name()), zap.Error(err))
		}
		f.mu.Unlock()
	}
	return f.fallback.CountTokens(text)
}

func (f *FallbackTokenizer) Name() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.degraded {
		return f.fallback.Name()
	}
	return f.primary.Name()
}
