package reference

import (
	"fmt"
	"strconv"

	"github.com/BaSui01/landau/rag"
)

// MissingFieldError 构造引用时缺少必需字段。
type MissingFieldError struct {
	Kind  Kind
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s reference: missing field '%s'", e.Kind, e.Field)
}

var commonFields = []string{
	"document_id", "chapter_id", "section_id",
	"document_name", "chapter_name", "section_name", "content",
}

// FromFields builds a reference of the given kind from a flat field map,
// as found in store metadata or decoded JSON.
func FromFields(fields map[string]any, kind Kind) (Reference, error) {
	get := func(name string) (string, error) {
		v, ok := fields[name]
		if !ok || v == nil {
			return "", &MissingFieldError{Kind: kind, Field: name}
		}
		return stringify(v), nil
	}

	values := make(map[string]string, len(commonFields))
	for _, name := range commonFields {
		s, err := get(name)
		if err != nil {
			return nil, err
		}
		values[name] = s
	}
	c := Common{
		DocumentID:   values["document_id"],
		ChapterID:    values["chapter_id"],
		SectionID:    values["section_id"],
		DocumentName: values["document_name"],
		ChapterName:  values["chapter_name"],
		SectionName:  values["section_name"],
		Content:      values["content"],
	}

	switch kind {
	case KindSection:
		return Section{Common: c}, nil
	case KindSnippet:
		para, err := get("paragraph_id")
		if err != nil {
			return nil, err
		}
		raw, ok := fields["score"]
		if !ok || raw == nil {
			return nil, &MissingFieldError{Kind: kind, Field: "score"}
		}
		score, err := toFloat(raw)
		if err != nil {
			return nil, fmt.Errorf("snippet reference: invalid score: %w", err)
		}
		return Snippet{Common: c, ParagraphID: para, Score: score}, nil
	case KindFormula:
		f, err := get("formula_id")
		if err != nil {
			return nil, err
		}
		return Formula{Common: c, FormulaID: f}, nil
	default:
		return nil, fmt.Errorf("unknown reference kind %s", kind)
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	default:
		return fmt.Sprint(t)
	}
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case string:
		return strconv.ParseFloat(t, 64)
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

// FromPassage 检索结果 → Snippet。
func FromPassage(p rag.ScoredPassage) Snippet {
	return Snippet{
		Common: Common{
			DocumentID:   p.DocumentID,
			ChapterID:    p.ChapterID,
			SectionID:    p.SectionID,
			DocumentName: p.DocumentName,
			ChapterName:  p.ChapterName,
			SectionName:  p.SectionName,
			Content:      p.Content,
		},
		ParagraphID: strconv.Itoa(p.ParagraphID),
		Score:       p.Score,
	}
}

func FromSection(s rag.SectionRecord) Section {
	return Section{Common: Common{
		DocumentID:   s.DocumentID,
		ChapterID:    s.ChapterID,
		SectionID:    s.SectionID,
		DocumentName: s.DocumentName,
		ChapterName:  s.ChapterName,
		SectionName:  s.SectionName,
		Content:      s.Content,
	}}
}

func FromFormula(f rag.FormulaRecord) Formula {
	return Formula{
		Common: Common{
			DocumentID:   f.DocumentID,
			ChapterID:    f.ChapterID,
			SectionID:    f.SectionID,
			DocumentName: f.DocumentName,
			ChapterName:  f.ChapterName,
			SectionName:  f.SectionName,
			Content:      f.Content,
		},
		FormulaID: f.FormulaID,
	}
}
