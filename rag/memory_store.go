package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Embedder 将查询文本转换为向量。embedding.Provider 满足该接口。
type Embedder interface {
	EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error)
}

// ====== 内存段落存储（用于测试和本地开发）======

type memoryEntry struct {
	record    PassageRecord
	embedding []float64
}

type memoryCollection struct {
	entries map[string]memoryEntry
	order   []string
	tocs    map[string]string
}

// MemoryStore 内存段落存储，余弦距离。
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
	embedder    Embedder
	logger      *zap.Logger
}

// NewMemoryStore 创建内存段落存储
func NewMemoryStore(embedder Embedder, logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		collections: make(map[string]*memoryCollection),
		embedder:    embedder,
		logger:      logger.With(zap.String("component", "memory_store")),
	}
}

func (s *MemoryStore) collection(name string, create bool) *memoryCollection {
	c, ok := s.collections[name]
	if !ok && create {
		c = &memoryCollection{entries: make(map[string]memoryEntry), tocs: make(map[string]string)}
		s.collections[name] = c
	}
	return c
}

// Upsert 写入段落及其向量，已存在的标识键被覆盖。
func (s *MemoryStore) Upsert(collection string, records []PassageRecord, embeddings [][]float64) error {
	if len(records) != len(embeddings) {
		return fmt.Errorf("got %d records but %d embeddings", len(records), len(embeddings))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collection(collection, true)
	for i, rec := range records {
		if embeddings[i] == nil {
			return fmt.Errorf("passage %s has no embedding", rec.ID())
		}
		id := rec.ID()
		if _, exists := c.entries[id]; !exists {
			c.order = append(c.order, id)
		}
		c.entries[id] = memoryEntry{record: rec, embedding: embeddings[i]}
	}

	s.logger.Info("passages upserted",
		zap.String("collection", collection),
		zap.Int("count", len(records)),
		zap.Int("total", len(c.entries)))
	return nil
}

// SetTableOfContents 保存文档目录（以换行分隔）。
func (s *MemoryStore) SetTableOfContents(collection, documentID, toc string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collection(collection, true).tocs[documentID] = toc
}

func (s *MemoryStore) Query(ctx context.Context, collection string, queryTexts []string, topK int, documentIDs []string) ([][]Candidate, error) {
	if s.embedder == nil {
		return nil, fmt.Errorf("memory store has no embedder")
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, queryTexts)
	if err != nil {
		return nil, fmt.Errorf("embed queries: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c := s.collection(collection, false)
	if c == nil {
		return nil, fmt.Errorf("%q: %w", collection, ErrCollectionNotFound)
	}

	allowed := make(map[string]bool, len(documentIDs))
	for _, id := range documentIDs {
		allowed[id] = true
	}

	out := make([][]Candidate, len(vectors))
	for qi, vec := range vectors {
		candidates := make([]Candidate, 0, len(c.order))
		for _, id := range c.order {
			e := c.entries[id]
			if len(allowed) > 0 && !allowed[e.record.DocumentID] {
				continue
			}
			candidates = append(candidates, Candidate{
				PassageRecord: e.record,
				Distance:      1.0 - cosineSimilarity(vec, e.embedding),
			})
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].Distance < candidates[j].Distance
		})
		if topK < len(candidates) {
			candidates = candidates[:topK]
		}
		out[qi] = candidates
	}
	return out, nil
}

func (s *MemoryStore) GetByIDs(ctx context.Context, collection string, ids []string) ([]PassageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := s.collection(collection, false)
	if c == nil {
		return nil, fmt.Errorf("%q: %w", collection, ErrCollectionNotFound)
	}
	out := make([]PassageRecord, 0, len(ids))
	for _, id := range ids {
		if e, ok := c.entries[id]; ok {
			out = append(out, e.record)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetWhere(ctx context.Context, collection string, filter Filter) ([]PassageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := s.collection(collection, false)
	if c == nil {
		return nil, fmt.Errorf("%q: %w", collection, ErrCollectionNotFound)
	}
	var out []PassageRecord
	for _, id := range c.order {
		if rec := c.entries[id].record; filter.matches(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *MemoryStore) TableOfContents(ctx context.Context, collection, documentID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := s.collection(collection, false)
	if c == nil {
		return nil, fmt.Errorf("%q: %w", collection, ErrCollectionNotFound)
	}
	toc, ok := c.tocs[documentID]
	if !ok {
		return nil, fmt.Errorf("table of contents for %q: %w", documentID, ErrNotFound)
	}
	return strings.Split(toc, "\n"), nil
}

// cosineSimilarity 计算余弦相似度
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0.0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
