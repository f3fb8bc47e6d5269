package reference

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind 引用种类。
type Kind int

const (
	KindSection Kind = iota + 1
	KindSnippet
	KindFormula
)

func (k Kind) String() string {
	switch k {
	case KindSection:
		return "section"
	case KindSnippet:
		return "snippet"
	case KindFormula:
		return "formula"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Language 引用渲染语言。
type Language string

const (
	German  Language = "de"
	English Language = "en"
)

// UnsupportedLanguageError is returned when rendering in a language other than de or en.
type UnsupportedLanguageError struct {
	Language Language
}

func (e *UnsupportedLanguageError) Error() string {
	return fmt.Sprintf("language '%s' not supported", e.Language)
}

// Reference is one of Section, Snippet or Formula.
type Reference interface {
	Kind() Kind
	Key() string
	Fields() Common
	// Print renders the reference as Markdown. An empty language means German.
	Print(lang Language) (string, error)

	isReference()
}

// Common 三种引用共有的字段。
type Common struct {
	DocumentID   string `json:"document_id"`
	ChapterID    string `json:"chapter_id"`
	SectionID    string `json:"section_id"`
	DocumentName string `json:"document_name"`
	ChapterName  string `json:"chapter_name"`
	SectionName  string `json:"section_name"`
	Content      string `json:"content"`
}

func (c Common) sectionKey() string {
	return fmt.Sprintf("%s %s.%s", c.DocumentID, c.ChapterID, c.SectionID)
}

// Section 整个小节。
type Section struct {
	Common
}

// Snippet 检索得到的段落，带相关性分数。
type Snippet struct {
	Common
	ParagraphID string  `json:"paragraph_id"`
	Score       float64 `json:"score"`
}

// Formula 带编号的公式。
type Formula struct {
	Common
	FormulaID string `json:"formula_id"`
}

func (Section) Kind() Kind { return KindSection }
func (Snippet) Kind() Kind { return KindSnippet }
func (Formula) Kind() Kind { return KindFormula }

func (r Section) Fields() Common { return r.Common }
func (r Snippet) Fields() Common { return r.Common }
func (r Formula) Fields() Common { return r.Common }

func (Section) isReference() {}
func (Snippet) isReference() {}
func (Formula) isReference() {}

// Key: "{document_id} {chapter_id}.{section_id}"
func (r Section) Key() string { return r.sectionKey() }

// Key: "{document_id} {chapter_id}.{section_id}/{paragraph_id}"
func (r Snippet) Key() string { return r.sectionKey() + "/" + r.ParagraphID }

// Key: "{document_id} {chapter_id}.{section_id} ({formula_id})"
func (r Formula) Key() string { return r.sectionKey() + " (" + r.FormulaID + ")" }

type labels struct {
	title, key, docID, docName, chapID, chap, secID, sec, content string
	paragraph, score, formula                                   string
}

var labelSets = map[Language]labels{
	German: {
		key: "Zitationsschlüssel", docID: "Dokumenten ID", docName: "Dokumentenname",
		chapID: "Kapitel ID", chap: "Kapitel", secID: "Sektion ID", sec: "Sektion",
		content: "Inhalt", paragraph: "Paragraph ID", score: "Score", formula: "Formel ID",
	},
	English: {
		key: "Citation Key", docID: "Document ID", docName: "Document Name",
		chapID: "Chapter ID", chap: "Chapter", secID: "Section ID", sec: "Section",
		content: "Content", paragraph: "Paragraph ID", score: "Score", formula: "Formula ID",
	},
}

var titles = map[Language]map[Kind]string{
	German:  {KindSection: "Sektions Referenz", KindSnippet: "Snippet Referenz", KindFormula: "Formel Referenz"},
	English: {KindSection: "Section Reference", KindSnippet: "Snippet Reference", KindFormula: "Formula Reference"},
}

func render(lang Language, kind Kind, key string, c Common, extra func(l labels, b *strings.Builder)) (string, error) {
	if lang == "" {
		lang = German
	}
	l, ok := labelSets[lang]
	if !ok {
		return "", &UnsupportedLanguageError{Language: lang}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n", titles[lang][kind])
	fmt.Fprintf(&b, "**%s**: [%s]\n", l.key, key)
	fmt.Fprintf(&b, "**%s**: %s\n", l.docID, c.DocumentID)
	fmt.Fprintf(&b, "**%s**: %s\n", l.docName, c.DocumentName)
	fmt.Fprintf(&b, "**%s**: %s\n", l.chapID, c.ChapterID)
	fmt.Fprintf(&b, "**%s**: %s\n", l.chap, c.ChapterName)
	fmt.Fprintf(&b, "**%s**: %s\n", l.secID, c.SectionID)
	fmt.Fprintf(&b, "**%s**: %s\n", l.sec, c.SectionName)
	if extra != nil {
		extra(l, &b)
	}
	fmt.Fprintf(&b, "**%s**:\n%s", l.content, c.Content)
	return b.String(), nil
}

func (r Section) Print(lang Language) (string, error) {
	return render(lang, KindSection, r.Key(), r.Common, nil)
}

func (r Snippet) Print(lang Language) (string, error) {
	return render(lang, KindSnippet, r.Key(), r.Common, func(l labels, b *strings.Builder) {
		fmt.Fprintf(b, "**%s**: %s\n", l.paragraph, r.ParagraphID)
		fmt.Fprintf(b, "**%s**: %.1f%%\n", l.score, r.Score*100)
	})
}

func (r Formula) Print(lang Language) (string, error) {
	return render(lang, KindFormula, r.Key(), r.Common, func(l labels, b *strings.Builder) {
		fmt.Fprintf(b, "**%s**: %s\n", l.formula, r.FormulaID)
	})
}

var keyLine = regexp.MustCompile(`\*\*(?:Zitationsschlüssel|Citation Key)\*\*: \[([^\]\n]+)\]`)

// ParseKey extracts the citation key from a rendered reference.
func ParseKey(text string) (string, bool) {
	m := keyLine.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}
