package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/landau/types"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// ChromaConfig configures the Chroma passage store.
//
// Passage metadata uses the keys document_id, chapter_id, section_id,
// paragraph_id, formula_id, document_name, chapter_name, section_name and
// num_tokens. Tables of contents live in the collection metadata under
// "{document_id}_toc".
type ChromaConfig struct {
	BaseURL            string        `json:"base_url"`
	Timeout            time.Duration `json:"timeout,omitempty"`
	EmbeddingCacheSize int           `json:"embedding_cache_size,omitempty"`
}

// ChromaStore implements PassageStore on Chroma's REST API.
type ChromaStore struct {
	cfg      ChromaConfig
	baseURL  string
	client   *http.Client
	embedder Embedder
	vectors  *lru.Cache[string, []float64]
	logger   *zap.Logger
}

// NewChromaStore creates a Chroma-backed PassageStore.
func NewChromaStore(cfg ChromaConfig, embedder Embedder, logger *zap.Logger) (*ChromaStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.EmbeddingCacheSize <= 0 {
		cfg.EmbeddingCacheSize = 1024
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}
	cache, err := lru.New[string, []float64](cfg.EmbeddingCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &ChromaStore{
		cfg:      cfg,
		baseURL:  baseURL,
		client:   &http.Client{Timeout: cfg.Timeout},
		embedder: embedder,
		vectors:  cache,
		logger:   logger.With(zap.String("component", "chroma_store")),
	}, nil
}

type chromaCollection struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Metadata map[string]any `json:"metadata"`
}

type chromaQueryResponse struct {
	IDs       [][]string           `json:"ids"`
	Distances [][]float64          `json:"distances"`
	Metadatas [][]map[string]any   `json:"metadatas"`
	Documents [][]string           `json:"documents"`
}

type chromaGetResponse struct {
	IDs       []string         `json:"ids"`
	Metadatas []map[string]any `json:"metadatas"`
	Documents []string         `json:"documents"`
}

// errChromaNotFound marks a 404 (or "does not exist") answer from Chroma.
var errChromaNotFound = errors.New("chroma: not found")

func (s *ChromaStore) doJSON(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return types.NewServiceUnavailableError("passage store unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		if resp.StatusCode == http.StatusNotFound || strings.Contains(string(raw), "does not exist") {
			return errChromaNotFound
		}
		err := fmt.Errorf("chroma request failed: method=%s path=%s status=%d body=%s", method, path, resp.StatusCode, string(raw))
		if resp.StatusCode >= 500 {
			return types.NewServiceUnavailableError("passage store unavailable", err)
		}
		return err
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (s *ChromaStore) getCollection(ctx context.Context, name string) (*chromaCollection, error) {
	var c chromaCollection
	err := s.doJSON(ctx, http.MethodGet, "/api/v1/collections/"+url.PathEscape(name), nil, &c)
	if errors.Is(err, errChromaNotFound) {
		return nil, fmt.Errorf("%q: %w", name, ErrCollectionNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// embedQueries 先查 LRU 缓存，只为未命中的文本调用 embedding。
func (s *ChromaStore) embedQueries(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	var missing []string
	var missingIdx []int
	for i, t := range texts {
		if v, ok := s.vectors.Get(t); ok {
			out[i] = v
			continue
		}
		missing = append(missing, t)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}
	if s.embedder == nil {
		return nil, fmt.Errorf("chroma store has no embedder")
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("embed queries: %w", err)
	}
	if len(vectors) != len(missing) {
		return nil, fmt.Errorf("embed queries: got %d vectors for %d texts", len(vectors), len(missing))
	}
	for j, v := range vectors {
		out[missingIdx[j]] = v
		s.vectors.Add(missing[j], v)
	}
	return out, nil
}

func (s *ChromaStore) Query(ctx context.Context, collection string, queryTexts []string, topK int, documentIDs []string) ([][]Candidate, error) {
	c, err := s.getCollection(ctx, collection)
	if err != nil {
		return nil, err
	}
	vectors, err := s.embedQueries(ctx, queryTexts)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"query_embeddings": vectors,
		"n_results":        topK,
		"include":          []string{"distances", "metadatas", "documents"},
	}
	if len(documentIDs) > 0 {
		body["where"] = map[string]any{"document_id": map[string]any{"$in": documentIDs}}
	}

	var resp chromaQueryResponse
	if err := s.doJSON(ctx, http.MethodPost, "/api/v1/collections/"+c.ID+"/query", body, &resp); err != nil {
		return nil, err
	}

	out := make([][]Candidate, len(queryTexts))
	for qi := range queryTexts {
		if qi >= len(resp.IDs) {
			break
		}
		ids := resp.IDs[qi]
		candidates := make([]Candidate, 0, len(ids))
		for ri := range ids {
			if ri >= topK {
				break
			}
			rec := recordFromMetadata(index(resp.Metadatas, qi, ri), index(resp.Documents, qi, ri))
			candidates = append(candidates, Candidate{PassageRecord: rec, Distance: index(resp.Distances, qi, ri)})
		}
		out[qi] = candidates
	}
	return out, nil
}

func (s *ChromaStore) GetByIDs(ctx context.Context, collection string, ids []string) ([]PassageRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.get(ctx, collection, map[string]any{"ids": ids})
}

func (s *ChromaStore) GetWhere(ctx context.Context, collection string, filter Filter) ([]PassageRecord, error) {
	body := map[string]any{}
	if where := chromaWhere(filter); where != nil {
		body["where"] = where
	}
	return s.get(ctx, collection, body)
}

func (s *ChromaStore) get(ctx context.Context, collection string, body map[string]any) ([]PassageRecord, error) {
	c, err := s.getCollection(ctx, collection)
	if err != nil {
		return nil, err
	}
	body["include"] = []string{"metadatas", "documents"}

	var resp chromaGetResponse
	if err := s.doJSON(ctx, http.MethodPost, "/api/v1/collections/"+c.ID+"/get", body, &resp); err != nil {
		return nil, err
	}
	out := make([]PassageRecord, 0, len(resp.IDs))
	for i := range resp.IDs {
		var meta map[string]any
		if i < len(resp.Metadatas) {
			meta = resp.Metadatas[i]
		}
		var doc string
		if i < len(resp.Documents) {
			doc = resp.Documents[i]
		}
		out = append(out, recordFromMetadata(meta, doc))
	}
	return out, nil
}

func (s *ChromaStore) TableOfContents(ctx context.Context, collection, documentID string) ([]string, error) {
	c, err := s.getCollection(ctx, collection)
	if err != nil {
		return nil, err
	}
	toc, ok := c.Metadata[documentID+"_toc"].(string)
	if !ok {
		return nil, fmt.Errorf("table of contents for %q: %w", documentID, ErrNotFound)
	}
	return strings.Split(toc, "\n"), nil
}

// Ping 检查 Chroma 心跳接口。
func (s *ChromaStore) Ping(ctx context.Context) error {
	return s.doJSON(ctx, http.MethodGet, "/api/v1/heartbeat", nil, nil)
}

func chromaWhere(f Filter) map[string]any {
	var clauses []map[string]any
	add := func(key, value string) {
		if value != "" {
			clauses = append(clauses, map[string]any{key: value})
		}
	}
	add("document_id", f.DocumentID)
	add("chapter_id", f.ChapterID)
	add("section_id", f.SectionID)
	add("formula_id", f.FormulaID)

	switch len(clauses) {
	case 0:
		return nil
	case 1:
		return clauses[0]
	default:
		return map[string]any{"$and": clauses}
	}
}

func index[T any](rows [][]T, i, j int) T {
	var zero T
	if i >= len(rows) || j >= len(rows[i]) {
		return zero
	}
	return rows[i][j]
}

func recordFromMetadata(meta map[string]any, content string) PassageRecord {
	return PassageRecord{
		DocumentID:   metaString(meta, "document_id"),
		ChapterID:    metaString(meta, "chapter_id"),
		SectionID:    metaString(meta, "section_id"),
		ParagraphID:  metaInt(meta, "paragraph_id"),
		FormulaID:    metaString(meta, "formula_id"),
		DocumentName: metaString(meta, "document_name"),
		ChapterName:  metaString(meta, "chapter_name"),
		SectionName:  metaString(meta, "section_name"),
		NumTokens:    metaInt(meta, "num_tokens"),
		Content:      content,
	}
}

func metaString(meta map[string]any, key string) string {
	switch v := meta[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

func metaInt(meta map[string]any, key string) int {
	switch v := meta[key].(type) {
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	default:
		return 0
	}
}
