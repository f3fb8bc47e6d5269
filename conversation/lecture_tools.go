package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/landau/llm/tools"
	"github.com/BaSui01/landau/rag"
	"github.com/BaSui01/landau/reference"
	"github.com/BaSui01/landau/types"
	"go.uber.org/zap"
)

// TransientReply 后端不可达时给用户和模型的提示。
const TransientReply = "Der Server ist aktuell nicht erreichbar. Versuchen Sie es später erneut."

const (
	tocNotFound        = "Es konnte kein Inhaltsverzeichnis gefunden werden."
	queryResponseHead  = "## Tool Response\n\n"
	queryResponseTrail = "\n## Ende der Antwort\nWenn informationen hieraus benutzt werden, müssen die Quellen korrekt zitiert werden."
)

type queryVectorDBArgs struct {
	Query string `json:"query" jsonschema:"Eine natürlichsprachliche Abfrage, die an die Datenbank gesendet wird. Zum Beispiel: 'Wofür wird er Paritäts Operator benutzt?' oder 'Was ist das Ohm'sche Gesetz?'. Dieser Parameter darf NIEMALS leer sein."`
}

type tableOfContentsArgs struct {
	ScriptID string `json:"script_id" validate:"notblank" jsonschema:"Die ID des Skripts, dessen Inhaltsverzeichnis abgefragt werden soll. Z.B. 'EX1', 'EX2' usw."`
}

type sectionArgs struct {
	ScriptID  string `json:"script_id" validate:"notblank" jsonschema:"Die ID des Skripts, aus dem die Sektion abgefragt werden soll. Z.B. 'EX1', 'EX2' usw..."`
	ChapterID string `json:"chapter_id" validate:"notblank" jsonschema:"Eine Kapitel-ID aus dem Inhaltsverzeichnis oder der Semantischen Suche, z.B. '1' oder '4' usw..."`
	SectionID string `json:"section_id" validate:"notblank" jsonschema:"Eine Sektions-ID aus dem Inhaltsverzeichnis oder der Semantischen Suche, z.B. '1' oder '2' usw..."`
}

type formulaArgs struct {
	ScriptID  string `json:"script_id" validate:"notblank" jsonschema:"Die ID des Skripts, aus dem die Formel abgefragt werden soll. Z.B. 'EX1', 'EX2' usw..."`
	FormulaID string `json:"formula_id" validate:"notblank" jsonschema:"Die formel ID, z.B. '3.13' oder '15.3' usw..."`
}

var (
	queryVectorDBSchema = tools.MustSchemaFor[queryVectorDBArgs](ToolQueryVectorDB,
		"Frage eine Semantische Vektor-Datenbank mit natürlicher Sprache ab, die relevante Ausschnitte aus allen Vorlesungsskripten basierend auf der Abfrage zurückgibt.\n"+
			"Mögliche Anwendungen sind die Suche nach Formeln, Definitionen, Gesetzen und anderen Konzepten basierend auf deren Namen.\n"+
			"Funktioniert gut für das Suchen von Konzepten die für das Lösen von Aufgaben benötigt werden.\n"+
			"Wenn snippets aus diesem Tool verwendet werden müssen sie Zitiert werden.\n"+
			"Falls nichts relevantes gefunden wird, präziere die Frage.\n"+
			"Es ist besser Fragen aufzuteilen, z.b. \"Drei Fälle des gedämpften Oszillators: Überdämpfung, kritische Dämpfung, Unterdämpfung\" -> \"Überdämpfung des gedämpften Oszillators\", \"Kritische Dämpfung des gedämpften Oszillators\", \"Unterdämpfung des gedämpften Oszillators\"")
	tableOfContentsSchema = tools.MustSchemaFor[tableOfContentsArgs](ToolTableOfContents,
		"Erfrage das Inhaltsverzeichnis eines spezifischen Vorlesungsskripts.\nGibt das Inhaltsverzeichnis mit Sektions-IDs zurück.")
	sectionSchema = tools.MustSchemaFor[sectionArgs](ToolSection,
		"Rufe eine spezifische Sektion aus einem Vorlesungsskript basierend auf der Skript-ID und der Sektions-ID aus dem Inhaltsverzeichnis oder der Vektorsuche des Skripts ab.\n"+
			"Mögliche Anwendungen sind das tiefere Eintauchen in ein spezifisches Konzept wenn der User nach mehr informationen fragt oder wenn ein spezifischer Abschnitt zusammengefasst wird.\n"+
			"Wenn snippets aus diesem Tool verwendet werden müssen sie zitiert werden.")
	formulaSchema = tools.MustSchemaFor[formulaArgs](ToolFormula,
		"Rufe eine spezifische Formel aus einem Vorlesungsskript basierend auf der Skript-ID und der Formel-ID ab.\n"+
			"Mögliche Anwendungen sind wenn der User eine spezifische Formel sucht oder im text eine wichtige Formel referenziert wird.")
)

// LectureTools 默认模式下提供给模型的四个检索工具。
type LectureTools struct {
	searcher rag.Searcher
	library  *rag.Library
	defaults rag.RetrievalDefaults
	timeout  time.Duration
	logger   *zap.Logger
}

func NewLectureTools(searcher rag.Searcher, library *rag.Library, defaults rag.RetrievalDefaults, logger *zap.Logger) *LectureTools {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LectureTools{
		searcher: searcher,
		library:  library,
		defaults: defaults,
		timeout:  30 * time.Second,
		logger:   logger.With(zap.String("component", "lecture_tools")),
	}
}

// Names lists the tools in registration order.
func (t *LectureTools) Names() []string {
	return []string{ToolFormula, ToolSection, ToolTableOfContents, ToolQueryVectorDB}
}

// Register adds the lecture tools to reg.
func (t *LectureTools) Register(reg tools.ToolRegistry) error {
	entries := []struct {
		fn     tools.ToolFunc
		schema types.ToolSchema
	}{
		{t.retrieveFormula, formulaSchema},
		{t.retrieveSection, sectionSchema},
		{t.retrieveTableOfContents, tableOfContentsSchema},
		{t.queryVectorDB, queryVectorDBSchema},
	}
	for _, e := range entries {
		if err := reg.Register(e.fn, tools.ToolMetadata{Schema: e.schema, Timeout: t.timeout}); err != nil {
			return err
		}
	}
	return nil
}

// decodeArgs 解析并校验工具参数。
func decodeArgs[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, err
	}
	if err := rag.ValidateStruct(v); err != nil {
		return v, err
	}
	return v, nil
}

func badArguments(prefix string, err error) error {
	return tools.Fail(fmt.Sprintf("%s Bad arguments. Error: %s", prefix, errorText(err)), err)
}

func errorText(err error) string {
	if e, ok := types.AsError(err); ok {
		return e.Message
	}
	return err.Error()
}

func notPermitted(prefix string, permitted []string) error {
	return tools.Fail(fmt.Sprintf("%s Document not permitted. Only the following documents are currently permitted: %v", prefix, permitted), nil)
}

func isUnavailable(err error) bool {
	return types.IsErrorCode(err, types.ErrServiceUnavailable) || types.IsRetryable(err)
}

func unavailable(err error) error {
	return tools.Fail(TransientReply, err)
}

func permittedFor(ctx context.Context) ([]string, *Session) {
	s, ok := SessionFromContext(ctx)
	if !ok {
		return nil, nil
	}
	return s.PermittedDocuments(), s
}

func isPermitted(permitted []string, id string) bool {
	if len(permitted) == 0 {
		return true
	}
	for _, p := range permitted {
		if p == id {
			return true
		}
	}
	return false
}

func register(s *Session, refs ...reference.Reference) {
	if s != nil {
		s.References().Register(refs...)
	}
}

func (t *LectureTools) queryVectorDB(ctx context.Context, raw json.RawMessage) (string, error) {
	const prefix = "Database query failed."
	args, err := decodeArgs[queryVectorDBArgs](raw)
	if err != nil {
		return "", badArguments(prefix, err)
	}
	permitted, s := permittedFor(ctx)

	passages, err := t.searcher.Search(ctx, t.defaults.Request(args.Query, permitted))
	switch {
	case err == nil:
	case types.IsErrorCode(err, types.ErrInvalidRequest):
		return "", badArguments(prefix, err)
	case isUnavailable(err):
		return "", unavailable(err)
	default:
		return "", err
	}

	refs := make([]reference.Reference, len(passages))
	rendered := make([]string, len(passages))
	for i, p := range passages {
		snippet := reference.FromPassage(p)
		refs[i] = snippet
		if rendered[i], err = snippet.Print(reference.German); err != nil {
			return "", err
		}
	}
	register(s, refs...)

	t.logger.Debug("vector search", zap.String("query", args.Query), zap.Int("results", len(passages)))
	return queryResponseHead + strings.Join(rendered, "\n\n") + queryResponseTrail, nil
}

func (t *LectureTools) retrieveTableOfContents(ctx context.Context, raw json.RawMessage) (string, error) {
	const prefix = "Table of Contents retrieval failed."
	args, err := decodeArgs[tableOfContentsArgs](raw)
	if err != nil {
		return "", badArguments(prefix, err)
	}
	permitted, _ := permittedFor(ctx)
	if !isPermitted(permitted, args.ScriptID) {
		return "", notPermitted(prefix, permitted)
	}

	toc, err := t.library.TableOfContents(ctx, t.defaults.CollectionName, args.ScriptID)
	switch {
	case err == nil && len(toc) > 0:
		return strings.Join(toc, "\n"), nil
	case err == nil, errors.Is(err, rag.ErrNotFound):
		return tocNotFound, nil
	case isUnavailable(err):
		return "", unavailable(err)
	default:
		return "", err
	}
}

func (t *LectureTools) retrieveSection(ctx context.Context, raw json.RawMessage) (string, error) {
	const prefix = "Section retrieval failed."
	args, err := decodeArgs[sectionArgs](raw)
	if err != nil {
		return "", badArguments("section retrieval failed.", err)
	}
	permitted, s := permittedFor(ctx)
	if !isPermitted(permitted, args.ScriptID) {
		return "", notPermitted(prefix, permitted)
	}
	return t.sectionText(ctx, s, args.ScriptID, args.ChapterID, args.SectionID)
}

// sectionText 读取小节、登记引用并渲染。
func (t *LectureTools) sectionText(ctx context.Context, s *Session, doc, chapter, section string) (string, error) {
	rec, err := t.library.Section(ctx, t.defaults.CollectionName, doc, chapter, section)
	switch {
	case err == nil:
	case errors.Is(err, rag.ErrNotFound):
		return fmt.Sprintf("Die Sektion %s.%s konnte nicht gefunden werden.", chapter, section), nil
	case isUnavailable(err):
		return "", unavailable(err)
	default:
		return "", err
	}
	ref := reference.FromSection(rec)
	register(s, ref)
	return ref.Print(reference.German)
}

func (t *LectureTools) retrieveFormula(ctx context.Context, raw json.RawMessage) (string, error) {
	const prefix = "Formula retrieval failed."
	args, err := decodeArgs[formulaArgs](raw)
	if err != nil {
		return "", badArguments(prefix, err)
	}
	permitted, s := permittedFor(ctx)
	if !isPermitted(permitted, args.ScriptID) {
		return "", notPermitted(prefix, permitted)
	}

	rec, err := t.library.Formula(ctx, t.defaults.CollectionName, args.ScriptID, args.FormulaID)
	switch {
	case err == nil:
	case errors.Is(err, rag.ErrNotFound):
		return fmt.Sprintf("Die Anfrage ist fehlgeschlagen. Es wurde keine Formel mit ID '%s' in Skript '%s' gefunden.", args.FormulaID, args.ScriptID), nil
	case isUnavailable(err):
		return "", unavailable(err)
	default:
		return "", err
	}
	ref := reference.FromFormula(rec)
	register(s, ref)
	return ref.Print(reference.German)
}
