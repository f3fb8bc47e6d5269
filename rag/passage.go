package rag

import (
	"fmt"
	"strconv"
	"strings"
)

// PassageRecord 是向量集合中的一个段落。
// 标识键为 document_id.chapter_id.section_id.paragraph_id。
type PassageRecord struct {
	DocumentID   string `json:"document_id"`
	ChapterID    string `json:"chapter_id"`
	SectionID    string `json:"section_id"`
	ParagraphID  int    `json:"paragraph_id"`
	FormulaID    string `json:"formula_id,omitempty"`
	DocumentName string `json:"document_name"`
	ChapterName  string `json:"chapter_name"`
	SectionName  string `json:"section_name"`
	Content      string `json:"content"`
	NumTokens    int    `json:"num_tokens"`
}

// ID returns the identity key of the passage.
func (p PassageRecord) ID() string {
	return PassageID(p.DocumentID, p.ChapterID, p.SectionID, p.ParagraphID)
}

// SectionKey identifies the (document, chapter, section) group of the passage.
func (p PassageRecord) SectionKey() string {
	return p.DocumentID + "." + p.ChapterID + "." + p.SectionID
}

// PassageID builds an identity key.
func PassageID(documentID, chapterID, sectionID string, paragraphID int) string {
	return fmt.Sprintf("%s.%s.%s.%d", documentID, chapterID, sectionID, paragraphID)
}

// ParsePassageID splits an identity key. Document ids may contain dots, so
// the last three components are taken from the right.
func ParsePassageID(id string) (documentID, chapterID, sectionID string, paragraphID int, err error) {
	parts := strings.Split(id, ".")
	if len(parts) < 4 {
		return "", "", "", 0, fmt.Errorf("invalid passage id %q", id)
	}
	n := len(parts)
	paragraphID, err = strconv.Atoi(parts[n-1])
	if err != nil {
		return "", "", "", 0, fmt.Errorf("invalid paragraph in passage id %q: %w", id, err)
	}
	return strings.Join(parts[:n-3], "."), parts[n-3], parts[n-2], paragraphID, nil
}

// ScoredPassage 检索结果：段落 + 分数。
type ScoredPassage struct {
	PassageRecord
	Score    float64 `json:"score"`
	Distance float64 `json:"distance"`

	// RerankScore 仅在重排序实际执行时非空
	RerankScore *float64 `json:"-"`
}

// Candidate 向量搜索的原始命中，距离越小越相似。
type Candidate struct {
	PassageRecord
	Distance float64 `json:"distance"`
}

// SectionRecord 一个完整的小节。
type SectionRecord struct {
	DocumentID   string `json:"document_id"`
	ChapterID    string `json:"chapter_id"`
	SectionID    string `json:"section_id"`
	DocumentName string `json:"document_name"`
	ChapterName  string `json:"chapter_name"`
	SectionName  string `json:"section_name"`
	Content      string `json:"content"`
}

// FormulaRecord 一个带编号的公式段落。
type FormulaRecord struct {
	DocumentID   string `json:"document_id"`
	ChapterID    string `json:"chapter_id"`
	SectionID    string `json:"section_id"`
	FormulaID    string `json:"formula_id"`
	DocumentName string `json:"document_name"`
	ChapterName  string `json:"chapter_name"`
	SectionName  string `json:"section_name"`
	Content      string `json:"content"`
}
