package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
)

// JSONCache 检索结果缓存后端。internal/cache.Manager 满足该接口。
type JSONCache interface {
	GetJSON(ctx context.Context, key string, dest any) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

// CacheRecorder 缓存命中指标。
type CacheRecorder interface {
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

// CachedSearcher caches search results keyed by the full request.
// Cache failures are logged and fall through to the wrapped searcher.
type CachedSearcher struct {
	next     Searcher
	cache    JSONCache
	ttl      time.Duration
	recorder CacheRecorder
	logger   *zap.Logger
}

// NewCachedSearcher wraps next with a result cache.
func NewCachedSearcher(next Searcher, cache JSONCache, ttl time.Duration, recorder CacheRecorder, logger *zap.Logger) *CachedSearcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedSearcher{
		next:     next,
		cache:    cache,
		ttl:      ttl,
		recorder: recorder,
		logger:   logger.With(zap.String("component", "retrieval_cache")),
	}
}

// cachedPassage keeps rerank scores, which ScoredPassage does not serialize.
type cachedPassage struct {
	ScoredPassage
	Rerank *float64 `json:"rerank_score,omitempty"`
}

// CacheKey returns the cache key for a request.
func CacheKey(req RetrievalRequest) string {
	raw, _ := json.Marshal(req)
	sum := sha256.Sum256(raw)
	return "landau:retrieval:" + hex.EncodeToString(sum[:])
}

func (c *CachedSearcher) Search(ctx context.Context, req RetrievalRequest) ([]ScoredPassage, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	key := CacheKey(req)

	var cached []cachedPassage
	err := c.cache.GetJSON(ctx, key, &cached)
	if err == nil {
		c.record(true)
		out := make([]ScoredPassage, len(cached))
		for i, cp := range cached {
			out[i] = cp.ScoredPassage
			out[i].RerankScore = cp.Rerank
		}
		return out, nil
	}
	if !errors.Is(err, context.Canceled) {
		c.record(false)
	}

	results, err := c.next.Search(ctx, req)
	if err != nil {
		return nil, err
	}

	toStore := make([]cachedPassage, len(results))
	for i, r := range results {
		toStore[i] = cachedPassage{ScoredPassage: r, Rerank: r.RerankScore}
	}
	if err := c.cache.SetJSON(ctx, key, toStore, c.ttl); err != nil {
		c.logger.Warn("failed to cache retrieval results", zap.Error(err))
	}
	return results, nil
}

func (c *CachedSearcher) record(hit bool) {
	if c.recorder == nil {
		return
	}
	if hit {
		c.recorder.RecordCacheHit("retrieval")
	} else {
		c.recorder.RecordCacheMiss("retrieval")
	}
}
