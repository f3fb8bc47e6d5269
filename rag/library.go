package rag

import (
	"context"
	"fmt"
	"strings"
)

// Library 文档查找：目录、小节、公式。
type Library struct {
	store PassageStore
}

// NewLibrary creates a Library over store.
func NewLibrary(store PassageStore) *Library {
	return &Library{store: store}
}

// TableOfContents returns the stored TOC lines of a document.
func (l *Library) TableOfContents(ctx context.Context, collection, documentID string) ([]string, error) {
	return l.store.TableOfContents(ctx, collection, documentID)
}

// Section 返回小节的全部段落，按段落序号排序并以换行连接。
func (l *Library) Section(ctx context.Context, collection, documentID, chapterID, sectionID string) (SectionRecord, error) {
	records, err := l.store.GetWhere(ctx, collection, Filter{
		DocumentID: documentID,
		ChapterID:  chapterID,
		SectionID:  sectionID,
	})
	if err != nil {
		return SectionRecord{}, err
	}
	if len(records) == 0 {
		return SectionRecord{}, fmt.Errorf("section %s.%s in %q: %w", chapterID, sectionID, documentID, ErrNotFound)
	}
	sortByParagraph(records)

	parts := make([]string, len(records))
	for i, r := range records {
		parts[i] = r.Content
	}
	first := records[0]
	return SectionRecord{
		DocumentID:   documentID,
		ChapterID:    chapterID,
		SectionID:    sectionID,
		DocumentName: first.DocumentName,
		ChapterName:  first.ChapterName,
		SectionName:  first.SectionName,
		Content:      strings.Join(parts, "\n"),
	}, nil
}

// Formula 返回文档中第一个匹配 formulaID 的段落。
func (l *Library) Formula(ctx context.Context, collection, documentID, formulaID string) (FormulaRecord, error) {
	records, err := l.store.GetWhere(ctx, collection, Filter{DocumentID: documentID, FormulaID: formulaID})
	if err != nil {
		return FormulaRecord{}, err
	}
	if len(records) == 0 {
		return FormulaRecord{}, fmt.Errorf("formula %q in %q: %w", formulaID, documentID, ErrNotFound)
	}
	r := records[0]
	return FormulaRecord{
		DocumentID:   r.DocumentID,
		ChapterID:    r.ChapterID,
		SectionID:    r.SectionID,
		FormulaID:    r.FormulaID,
		DocumentName: r.DocumentName,
		ChapterName:  r.ChapterName,
		SectionName:  r.SectionName,
		Content:      r.Content,
	}, nil
}
