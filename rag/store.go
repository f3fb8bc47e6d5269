package rag

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrNotFound 请求的目录、小节或公式不存在。
	ErrNotFound = errors.New("not found")

	// ErrCollectionNotFound 集合不存在，同时匹配 ErrNotFound。
	ErrCollectionNotFound = fmt.Errorf("collection %w", ErrNotFound)
)

// Filter 精确匹配的元数据过滤条件，空字段表示不限制。
type Filter struct {
	DocumentID string
	ChapterID  string
	SectionID  string
	FormulaID  string
}

func (f Filter) matches(p PassageRecord) bool {
	return (f.DocumentID == "" || f.DocumentID == p.DocumentID) &&
		(f.ChapterID == "" || f.ChapterID == p.ChapterID) &&
		(f.SectionID == "" || f.SectionID == p.SectionID) &&
		(f.FormulaID == "" || f.FormulaID == p.FormulaID)
}

// PassageStore 段落向量集合的查询接口。
// 实现必须可并发使用；后端不可达时返回 types.ErrServiceUnavailable。
type PassageStore interface {
	// Query 对每个查询文本返回至多 topK 个候选，documentIDs 非空时只在这些文档中搜索。
	Query(ctx context.Context, collection string, queryTexts []string, topK int, documentIDs []string) ([][]Candidate, error)

	// GetByIDs 按标识键获取段落，不存在的键被跳过。
	GetByIDs(ctx context.Context, collection string, ids []string) ([]PassageRecord, error)

	// GetWhere 按元数据过滤获取段落。
	GetWhere(ctx context.Context, collection string, filter Filter) ([]PassageRecord, error)

	// TableOfContents 返回文档目录的各行，不存在时返回 ErrNotFound。
	TableOfContents(ctx context.Context, collection, documentID string) ([]string, error)
}

func sortByParagraph(records []PassageRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].ParagraphID < records[j].ParagraphID
	})
}
