package rag

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/landau/llm/tokenizer"
	"github.com/BaSui01/landau/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"
)

// scriptedStore returns preset candidates per query text.
type scriptedStore struct {
	candidates map[string][]Candidate
	records    map[string]PassageRecord
	err        error

	mu          sync.Mutex
	queries     [][]string
	documentIDs []string
}

func (s *scriptedStore) Query(_ context.Context, _ string, texts []string, topK int, documentIDs []string) ([][]Candidate, error) {
	s.mu.Lock()
	s.queries = append(s.queries, texts)
	s.documentIDs = documentIDs
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]Candidate, len(texts))
	for i, q := range texts {
		c := s.candidates[q]
		if topK < len(c) {
			c = c[:topK]
		}
		out[i] = c
	}
	return out, nil
}

func (s *scriptedStore) GetByIDs(_ context.Context, _ string, ids []string) ([]PassageRecord, error) {
	var out []PassageRecord
	for _, id := range ids {
		if r, ok := s.records[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *scriptedStore) GetWhere(context.Context, string, Filter) ([]PassageRecord, error) {
	return nil, nil
}

func (s *scriptedStore) TableOfContents(context.Context, string, string) ([]string, error) {
	return nil, ErrNotFound
}

type scriptedReranker struct {
	scores map[string]float64
	err    error
	calls  int
	query  string
}

func (r *scriptedReranker) Scores(_ context.Context, query string, docs []string) ([]float64, error) {
	r.calls++
	r.query = query
	if r.err != nil {
		return nil, r.err
	}
	out := make([]float64, len(docs))
	for i, d := range docs {
		out[i] = r.scores[d]
	}
	return out, nil
}

type scriptedExpander struct {
	queries []string
	err     error
}

func (e scriptedExpander) Expand(context.Context, string, int) ([]string, error) {
	return e.queries, e.err
}

func candidate(doc string, paragraph int, distance float64) Candidate {
	return Candidate{
		PassageRecord: PassageRecord{
			DocumentID: doc, ChapterID: "1", SectionID: "1", ParagraphID: paragraph,
			Content: fmt.Sprintf("%s-%d", doc, paragraph),
		},
		Distance: distance,
	}
}

func baseRequest() RetrievalRequest {
	return RetrievalRequest{
		Query:          "Was ist ein Qubit?",
		CollectionName: "default",
		TopK:           50,
		TopN:           5,
	}
}

func newTestPipeline(store PassageStore, opts ...PipelineOption) *Pipeline {
	return NewPipeline(store, append([]PipelineOption{WithTokenizer(tokenizer.NewEstimatorTokenizer())}, opts...)...)
}

func TestPipeline_NoRerankOrderingAndScore(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		distances := rapid.SliceOfN(rapid.Float64Range(0, 10), 0, 30).Draw(t, "distances")
		topN := rapid.IntRange(1, 10).Draw(t, "topN")

		cands := make([]Candidate, len(distances))
		for i, d := range distances {
			cands[i] = candidate("EX1", i, d)
		}
		req := baseRequest()
		req.TopN = topN
		req.TopK = 50
		p := newTestPipeline(&scriptedStore{candidates: map[string][]Candidate{req.Query: cands}})

		out, err := p.Search(context.Background(), req)
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if len(out) != min(topN, len(distances)) {
			t.Fatalf("got %d results, want %d", len(out), min(topN, len(distances)))
		}
		sorted := append([]float64(nil), distances...)
		sort.Float64s(sorted)
		for i, r := range out {
			if r.Distance != sorted[i] {
				t.Fatalf("result %d has distance %v, want %v", i, r.Distance, sorted[i])
			}
			if r.Score != 1/(1+r.Distance) {
				t.Fatalf("score %v does not match distance %v", r.Score, r.Distance)
			}
			if r.RerankScore != nil {
				t.Fatalf("rerank score set without rerank")
			}
		}
	})
}

func TestPipeline_RerankThresholdAndTopN(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(2, 25).Draw(t, "n")
		threshold := rapid.Float64Range(0, 1).Draw(t, "threshold")
		topN := rapid.IntRange(1, 8).Draw(t, "topN")

		cands := make([]Candidate, n)
		scores := make(map[string]float64, n)
		for i := range cands {
			cands[i] = candidate("EX1", i, float64(i))
			scores[cands[i].Content] = rapid.Float64Range(0, 1).Draw(t, fmt.Sprintf("score%d", i))
		}
		req := baseRequest()
		req.UseRerank = true
		req.RerankScoreThreshold = threshold
		req.TopN = topN
		p := newTestPipeline(&scriptedStore{candidates: map[string][]Candidate{req.Query: cands}},
			WithReranker(&scriptedReranker{scores: scores}))

		out, err := p.Search(context.Background(), req)
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if len(out) > topN {
			t.Fatalf("got %d results for top_n %d", len(out), topN)
		}
		for i, r := range out {
			if r.Score <= threshold {
				t.Fatalf("score %v not above threshold %v", r.Score, threshold)
			}
			if i > 0 && out[i-1].Score < r.Score {
				t.Fatalf("results not sorted by rerank score")
			}
		}
	})
}

func TestPipeline_RerankSkippedForSingleCandidate(t *testing.T) {
	req := baseRequest()
	req.UseRerank = true
	reranker := &scriptedReranker{err: errors.New("should not be called")}
	p := newTestPipeline(&scriptedStore{candidates: map[string][]Candidate{req.Query: {candidate("EX1", 0, 0.3)}}},
		WithReranker(reranker))

	out, err := p.Search(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 1.0, out[0].Score)
	assert.Equal(t, 0, reranker.calls)
}

func TestPipeline_RerankRequestedWithoutReranker(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	req := baseRequest()
	req.UseRerank = true
	p := newTestPipeline(&scriptedStore{candidates: map[string][]Candidate{req.Query: {
		candidate("EX1", 0, 1), candidate("EX1", 1, 0),
	}}}, WithLogger(zap.New(core)))

	out, err := p.Search(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 1, out[0].ParagraphID)
	assert.Equal(t, 1.0, out[0].Score)
	assert.Equal(t, 0.5, out[1].Score)

	require.Equal(t, 1, logs.Len())
	assert.Contains(t, logs.All()[0].Message, "no reranker configured")
}

func TestPipeline_NoResultsIsEmpty(t *testing.T) {
	p := newTestPipeline(&scriptedStore{})
	out, err := p.Search(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestPipeline_InvalidRequest(t *testing.T) {
	p := newTestPipeline(&scriptedStore{})
	req := baseRequest()
	req.Query = "  ab "
	_, err := p.Search(context.Background(), req)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))
}

func TestPipeline_StoreUnavailablePropagates(t *testing.T) {
	p := newTestPipeline(&scriptedStore{err: types.NewServiceUnavailableError("down", errors.New("dial tcp"))})
	_, err := p.Search(context.Background(), baseRequest())
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrServiceUnavailable))
	assert.True(t, types.IsRetryable(err))
}

func TestPipeline_MultiqueryDedupAndOriginalRerankQuery(t *testing.T) {
	req := baseRequest()
	req.NumMultiquery = 3
	req.UseRerank = true
	store := &scriptedStore{candidates: map[string][]Candidate{
		req.Query: {candidate("EX1", 0, 0.1), candidate("EX1", 1, 0.2)},
		"alt 1":   {candidate("EX1", 1, 0.05), candidate("EX1", 2, 0.3)},
		"alt 2":   {candidate("EX1", 3, 0.4)},
	}}
	reranker := &scriptedReranker{scores: map[string]float64{"EX1-0": 0.9, "EX1-1": 0.8, "EX1-2": 0.7, "EX1-3": 0.6}}
	p := newTestPipeline(store,
		WithReranker(reranker),
		WithQueryExpander(scriptedExpander{queries: []string{"alt 1", "alt 2"}}))

	out, err := p.Search(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, out, 4)
	assert.Equal(t, []string{req.Query, "alt 1", "alt 2"}, store.queries[0])
	assert.Equal(t, req.Query, reranker.query)
	// first occurrence of EX1.1.1.1 wins
	assert.Equal(t, 0.2, out[1].Distance)
}

func TestPipeline_MultiqueryFailureDegrades(t *testing.T) {
	req := baseRequest()
	req.NumMultiquery = 3
	store := &scriptedStore{candidates: map[string][]Candidate{req.Query: {candidate("EX1", 0, 0.1)}}}
	p := newTestPipeline(store, WithQueryExpander(scriptedExpander{err: errors.New("model down")}))

	out, err := p.Search(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, out, 1)
	assert.Equal(t, []string{req.Query}, store.queries[0])
}

func TestPipeline_PermittedDocumentsForwarded(t *testing.T) {
	req := baseRequest()
	req.PermittedDocumentIDs = []string{"EX1", "EX2"}
	store := &scriptedStore{}
	_, err := newTestPipeline(store).Search(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []string{"EX1", "EX2"}, store.documentIDs)
}

func TestPipeline_ExtendResults(t *testing.T) {
	records := map[string]PassageRecord{}
	for i := range 6 {
		c := candidate("EX1", i, 0)
		records[c.ID()] = c.PassageRecord
	}
	req := baseRequest()
	req.ExtendResults = true
	store := &scriptedStore{
		candidates: map[string][]Candidate{req.Query: {candidate("EX1", 2, 0.1)}},
		records:    records,
	}
	out, err := newTestPipeline(store).Search(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "EX1-0 EX1-1 EX1-2 EX1-3 EX1-4 EX1-5", out[0].Content)
	assert.Equal(t, 2, out[0].ParagraphID)
}

type recordingRecorder struct {
	retrievals []string
	reranks    []string
}

func (r *recordingRecorder) RecordRetrieval(status string, _ time.Duration, _ int) {
	r.retrievals = append(r.retrievals, status)
}
func (r *recordingRecorder) RecordRerank(status string) { r.reranks = append(r.reranks, status) }

func TestPipeline_RecordsMetrics(t *testing.T) {
	req := baseRequest()
	req.UseRerank = true
	rec := &recordingRecorder{}
	store := &scriptedStore{candidates: map[string][]Candidate{req.Query: {candidate("EX1", 0, 0.1), candidate("EX1", 1, 0.2)}}}
	p := newTestPipeline(store, WithReranker(&scriptedReranker{err: errors.New("rate limited")}), WithRecorder(rec))

	_, err := p.Search(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, []string{"error"}, rec.retrievals)
	assert.Equal(t, []string{"error"}, rec.reranks)
}
