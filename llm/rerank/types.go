package rerank

import (
	"context"
	"time"
)

// RerankRequest 表示一次重排请求.
type RerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model,omitempty"`
	TopN      int      `json:"top_n,omitempty"` // 0 返回全部
}

// RerankResponse 表示重排响应.
type RerankResponse struct {
	ID        string         `json:"id,omitempty"`
	Provider  string         `json:"provider"`
	Model     string         `json:"model"`
	Results   []RerankResult `json:"results"`
	Usage     RerankUsage    `json:"usage"`
	CreatedAt time.Time      `json:"created_at,omitempty"`
}

// RerankResult 表示单个文档的重排结果.
type RerankResult struct {
	Index          int     `json:"index"`           // Original index in input
	RelevanceScore float64 `json:"relevance_score"` // 0-1 normalized score
}

// RerankUsage 表示用量统计.
type RerankUsage struct {
	SearchUnits int `json:"search_units,omitempty"`
}

// Provider 定义统一的重排提供者接口.
type Provider interface {
	// Rerank 根据查询的关联性重新排序文档.
	Rerank(ctx context.Context, req *RerankRequest) (*RerankResponse, error)

	// Scores 返回与 documents 顺序对齐的相关性分数.
	Scores(ctx context.Context, query string, documents []string) ([]float64, error)

	// Name 返回提供者名称.
	Name() string

	// MaxDocuments 返回单次请求支持的最大文档数.
	MaxDocuments() int
}

// AlignScores 把按相关性排序的结果还原为输入顺序；未返回的文档得分为 0.
func AlignScores(n int, results []RerankResult) []float64 {
	scores := make([]float64, n)
	for _, r := range results {
		if r.Index >= 0 && r.Index < n {
			scores[r.Index] = r.RelevanceScore
		}
	}
	return scores
}

// TrivialScores 是少于两个文档时的分数：每个文档 1.0.
func TrivialScores(n int) []float64 {
	scores := make([]float64, n)
	for i := range scores {
		scores[i] = 1.0
	}
	return scores
}
