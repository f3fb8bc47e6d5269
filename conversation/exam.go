package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
	"sync"

	"github.com/BaSui01/landau/llm/tools"
	"github.com/BaSui01/landau/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ExamSection 可供出题的小节。
type ExamSection struct {
	DocumentID string `json:"document_id"`
	ChapterID  string `json:"chapter_id"`
	SectionID  string `json:"section_id"`
	Title      string `json:"title"`
}

// Label renders the section as "{chapter}.{section} {title} | {document}".
func (e ExamSection) Label() string {
	line := e.ChapterID + "." + e.SectionID
	if e.Title != "" {
		line += " " + e.Title
	}
	return line + " | " + e.DocumentID
}

var (
	sectionLine      = regexp.MustCompile(`^(\d+)\.(\d+)\s*(.*)$`)
	excludedSections = []string{"ausblick", "zusammenfassung", "anhang"}
)

// ParseSectionLine parses a table-of-contents line into an exam section.
// Lines without a "{chapter}.{section}" prefix and outlook, summary or appendix
// sections are rejected.
func ParseSectionLine(line, documentID string) (ExamSection, bool) {
	m := sectionLine.FindStringSubmatch(line)
	if m == nil {
		return ExamSection{}, false
	}
	lower := strings.ToLower(line)
	for _, word := range excludedSections {
		if strings.Contains(lower, word) {
			return ExamSection{}, false
		}
	}
	return ExamSection{DocumentID: documentID, ChapterID: m[1], SectionID: m[2], Title: strings.TrimSpace(m[3])}, true
}

type questionSetupArgs struct {
	Topic string `json:"topic,omitempty" jsonschema:"Das Thema, zu dem eine Frage gestellt werden soll. Z.B. 'Elektromagnetismus', 'Quantenmechanik' usw...; Wenn nicht angegeben, wird ein zufälliges Thema ausgewählt."`
}

var questionSetupSchema = tools.MustSchemaFor[questionSetupArgs](ToolQuestionSetup,
	"Stellt dem Nutzer eine Frage aus einem bestimmten Thema oder einem zufälligen Thema.")

// ExamTrainer 考试训练模式：随机挑选小节，让模型就该小节提问。
type ExamTrainer struct {
	lecture *LectureTools

	randMu sync.Mutex
	intn   func(n int) int

	logger *zap.Logger
}

func NewExamTrainer(lecture *LectureTools, logger *zap.Logger) *ExamTrainer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExamTrainer{
		lecture: lecture,
		intn:    rand.IntN,
		logger:  logger.With(zap.String("component", "exam_trainer")),
	}
}

// WithRandom replaces the section picker, mostly for tests.
func (e *ExamTrainer) WithRandom(intn func(n int) int) *ExamTrainer {
	e.intn = intn
	return e
}

// Register adds question_setup to reg.
func (e *ExamTrainer) Register(reg tools.ToolRegistry) error {
	return reg.Register(e.questionSetup, tools.ToolMetadata{Schema: questionSetupSchema, Timeout: e.lecture.timeout})
}

// AvailableSections collects the exam sections of the given documents.
// Documents whose table of contents cannot be found contribute nothing.
func (e *ExamTrainer) AvailableSections(ctx context.Context, documentIDs []string) ([]ExamSection, error) {
	tocs := make([][]string, len(documentIDs))
	g, gctx := errgroup.WithContext(ctx)
	for i, doc := range documentIDs {
		g.Go(func() error {
			toc, err := e.lecture.library.TableOfContents(gctx, e.lecture.defaults.CollectionName, doc)
			if err != nil {
				if isUnavailable(err) {
					return err
				}
				e.logger.Debug("no table of contents", zap.String("document_id", doc), zap.Error(err))
				return nil
			}
			tocs[i] = toc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var sections []ExamSection
	for i, doc := range documentIDs {
		for _, line := range tocs[i] {
			if sec, ok := ParseSectionLine(line, doc); ok {
				sections = append(sections, sec)
			}
		}
	}
	return sections, nil
}

// Prepare switches s to the exam-trainer profile and loads its available sections.
func (e *ExamTrainer) Prepare(ctx context.Context, s *Session) error {
	sections, err := e.AvailableSections(ctx, s.effectiveDocuments())
	if err != nil {
		return err
	}
	s.SetProfile(ProfileExamTrainer)
	s.setAvailableSections(sections)
	return nil
}

func (e *ExamTrainer) pick(sections []ExamSection) ExamSection {
	e.randMu.Lock()
	defer e.randMu.Unlock()
	return sections[e.intn(len(sections))]
}

// candidates 按主题检索小节；没有结果时退回全部可用小节。
func (e *ExamTrainer) candidates(ctx context.Context, s *Session, topic string) []ExamSection {
	available := s.availableSections()
	if topic == "" {
		return available
	}
	req := e.lecture.defaults.Request(topic, s.PermittedDocuments())
	req.TopN = 10
	req.TopK = max(req.TopK, req.TopN)
	req.RerankScoreThreshold = 0.5
	req.ExtendResults = false

	hits, err := e.lecture.searcher.Search(ctx, req)
	if err != nil {
		e.logger.Warn("topic search failed, using random section", zap.String("topic", topic), zap.Error(err))
		return available
	}
	seen := make(map[string]bool)
	var out []ExamSection
	for _, h := range hits {
		sec := ExamSection{DocumentID: h.DocumentID, ChapterID: h.ChapterID, SectionID: h.SectionID, Title: h.SectionName}
		if key := h.SectionKey(); !seen[key] {
			seen[key] = true
			out = append(out, sec)
		}
	}
	if len(out) == 0 {
		e.logger.Info("no section matches topic", zap.String("topic", topic))
		return available
	}
	return out
}

// Setup picks a section, resets the conversation and installs the exam prompt
// followed by the request for a question about that section.
func (e *ExamTrainer) Setup(ctx context.Context, s *Session, topic string) (ExamSection, error) {
	candidates := e.candidates(ctx, s, topic)
	if len(candidates) == 0 {
		return ExamSection{}, types.NewError(types.ErrNotFound, "no sections available for the exam trainer").WithHTTPStatus(404)
	}
	sec := e.pick(candidates)

	text, err := e.lecture.sectionText(ctx, s, sec.DocumentID, sec.ChapterID, sec.SectionID)
	if err != nil {
		if !isUnavailable(err) {
			return ExamSection{}, err
		}
		text = TransientReply
	}

	request := "Stell mir eine Frage zur folgenden Sektion:\n\n" + text
	if topic != "" {
		request = fmt.Sprintf("Stell mir eine Frage zur folgenden Sektion, sie sollte mit %s zutun haben:\n\n%s", topic, text)
	}

	s.resetHistory()
	s.setExamSection(sec, text)
	s.setSystemMessage(RenderExamTrainerPrompt(text, s.CopilotContext()))
	s.append(types.NewUserMessage(request))

	e.logger.Info("exam question prepared",
		zap.String("session_id", s.ID),
		zap.String("section", sec.Label()))
	return sec, nil
}

func (e *ExamTrainer) questionSetup(ctx context.Context, raw json.RawMessage) (string, error) {
	args, err := decodeArgs[questionSetupArgs](raw)
	if err != nil {
		return "", badArguments("Question setup failed.", err)
	}
	s, ok := SessionFromContext(ctx)
	if !ok {
		return "", fmt.Errorf("question_setup called outside of a session")
	}
	sec, err := e.Setup(ctx, s, strings.TrimSpace(args.Topic))
	if err != nil {
		return "", err
	}
	return SectionAnnouncement(sec), nil
}

// SectionAnnouncement 告诉用户题目来自哪一节。
func SectionAnnouncement(sec ExamSection) string {
	return fmt.Sprintf("Hier ist eine Frage aus **%s** Kapitel **%s**, Sektion **%s** (**%s**).",
		sec.DocumentID, sec.ChapterID, sec.SectionID, sec.Title)
}
