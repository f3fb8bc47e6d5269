package rag

import (
	"context"
	"sort"
	"time"

	"github.com/BaSui01/landau/llm/tokenizer"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Reranker 交叉编码器打分，返回与 documents 顺序对齐的分数。
// rerank.Provider 满足该接口。
type Reranker interface {
	Scores(ctx context.Context, query string, documents []string) ([]float64, error)
}

// Recorder 检索指标记录器。
type Recorder interface {
	RecordRetrieval(status string, duration time.Duration, results int)
	RecordRerank(status string)
}

// Searcher 执行一次完整检索。
type Searcher interface {
	Search(ctx context.Context, req RetrievalRequest) ([]ScoredPassage, error)
}

// Pipeline 检索管线：向量搜索 → 重排序 → 过滤截断 → 邻居扩展。
type Pipeline struct {
	store     PassageStore
	reranker  Reranker
	expander  QueryExpander
	tokenizer tokenizer.Tokenizer
	longForm  []string
	radius    int
	recorder  Recorder
	tracer    trace.Tracer
	logger    *zap.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithReranker sets the cross-encoder used when a request asks for reranking.
func WithReranker(r Reranker) PipelineOption { return func(p *Pipeline) { p.reranker = r } }

// WithQueryExpander enables multiquery expansion.
func WithQueryExpander(e QueryExpander) PipelineOption { return func(p *Pipeline) { p.expander = e } }

// WithTokenizer sets the tokenizer used for num_tokens of extended passages.
func WithTokenizer(t tokenizer.Tokenizer) PipelineOption { return func(p *Pipeline) { p.tokenizer = t } }

// WithLongFormMarkers replaces the document id markers that disable extension.
func WithLongFormMarkers(markers ...string) PipelineOption {
	return func(p *Pipeline) { p.longForm = markers }
}

// WithExtendRadius sets the neighbour extension radius.
func WithExtendRadius(radius int) PipelineOption { return func(p *Pipeline) { p.radius = radius } }

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) PipelineOption { return func(p *Pipeline) { p.recorder = r } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) PipelineOption { return func(p *Pipeline) { p.logger = l } }

// NewPipeline 创建检索管线
func NewPipeline(store PassageStore, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		store:    store,
		longForm: DefaultLongFormMarkers,
		radius:   DefaultExtendRadius,
		tracer:   otel.Tracer("github.com/BaSui01/landau/rag"),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.tokenizer == nil {
		p.tokenizer = tokenizer.Default(p.logger)
	}
	p.logger = p.logger.With(zap.String("component", "retrieval"))
	return p
}

// Store returns the passage store the pipeline searches.
func (p *Pipeline) Store() PassageStore { return p.store }

// Search runs the pipeline. No results is an empty slice, not an error.
func (p *Pipeline) Search(ctx context.Context, req RetrievalRequest) (results []ScoredPassage, err error) {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "rag.Search", trace.WithAttributes(
		attribute.String("collection", req.CollectionName),
		attribute.Int("top_k", req.TopK),
		attribute.Int("top_n", req.TopN),
		attribute.Bool("use_rerank", req.UseRerank),
	))
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.Int("results", len(results)))
		span.End()
		if p.recorder != nil {
			p.recorder.RecordRetrieval(status, time.Since(start), len(results))
		}
	}()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	queries := p.queries(ctx, req)
	candidates, err := p.search(ctx, req, queries)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return []ScoredPassage{}, nil
	}

	scored := make([]ScoredPassage, len(candidates))
	for i, c := range candidates {
		scored[i] = ScoredPassage{PassageRecord: c.PassageRecord, Distance: c.Distance}
	}

	reranked := false
	switch {
	case req.UseRerank && p.reranker != nil:
		if err := p.rerank(ctx, queries[0], scored); err != nil {
			return nil, err
		}
		reranked = true
	case req.UseRerank:
		p.logger.Warn("use_rerank requested but no reranker configured, ranking by distance",
			zap.String("collection", req.CollectionName))
	}

	scored = SelectTop(scored, req.TopN, req.RerankScoreThreshold, reranked)

	if req.ExtendResults && len(scored) > 0 {
		scored, err = extend(ctx, p.store, req.CollectionName, scored, p.radius, p.longForm, p.tokenizer)
		if err != nil {
			return nil, err
		}
	}

	p.logger.Debug("retrieval finished",
		zap.String("collection", req.CollectionName),
		zap.Int("queries", len(queries)),
		zap.Int("candidates", len(candidates)),
		zap.Int("results", len(scored)),
		zap.Duration("duration", time.Since(start)))

	if scored == nil {
		scored = []ScoredPassage{}
	}
	return scored, nil
}

func (p *Pipeline) queries(ctx context.Context, req RetrievalRequest) []string {
	queries := []string{req.Query}
	if req.NumMultiquery < 2 || p.expander == nil {
		return queries
	}
	extra, err := p.expander.Expand(ctx, req.Query, req.NumMultiquery)
	if err != nil {
		p.logger.Warn("multiquery expansion failed, using original query only", zap.Error(err))
		return queries
	}
	return append(queries, extra...)
}

// search 对所有查询做向量搜索，按标识键去重（先出现者保留）。
func (p *Pipeline) search(ctx context.Context, req RetrievalRequest, queries []string) ([]Candidate, error) {
	perQuery, err := p.store.Query(ctx, req.CollectionName, queries, req.TopK, req.PermittedDocumentIDs)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var out []Candidate
	for _, candidates := range perQuery {
		for _, c := range candidates {
			id := c.ID()
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, c)
		}
	}
	return out, nil
}

func (p *Pipeline) rerank(ctx context.Context, query string, passages []ScoredPassage) error {
	ctx, span := p.tracer.Start(ctx, "rag.Rerank", trace.WithAttributes(attribute.Int("documents", len(passages))))
	defer span.End()

	var scores []float64
	if len(passages) < 2 {
		scores = make([]float64, len(passages))
		for i := range scores {
			scores[i] = 1.0
		}
	} else {
		docs := make([]string, len(passages))
		for i, ps := range passages {
			docs[i] = ps.Content
		}
		var err error
		scores, err = p.reranker.Scores(ctx, query, docs)
		if p.recorder != nil {
			status := "ok"
			if err != nil {
				status = "error"
			}
			p.recorder.RecordRerank(status)
		}
		if err != nil {
			span.RecordError(err)
			return err
		}
	}
	for i := range passages {
		s := 0.0
		if i < len(scores) {
			s = scores[i]
		}
		passages[i].RerankScore = &s
	}
	return nil
}

// SelectTop sorts, filters and truncates passages. With rerank scores the
// order is rerank score descending, entries not above threshold are dropped
// and score takes the rerank score. Otherwise the order is distance ascending
// and score = 1/(1+distance).
func SelectTop(passages []ScoredPassage, topN int, threshold float64, reranked bool) []ScoredPassage {
	out := make([]ScoredPassage, 0, len(passages))
	if reranked {
		for _, ps := range passages {
			if ps.RerankScore != nil && *ps.RerankScore > threshold {
				ps.Score = *ps.RerankScore
				out = append(out, ps)
			}
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	} else {
		out = append(out, passages...)
		sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
		for i := range out {
			out[i].Score = 1 / (1 + out[i].Distance)
		}
	}
	if topN < len(out) {
		out = out[:topN]
	}
	return out
}
