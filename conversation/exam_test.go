package conversation

import (
	"strings"
	"testing"

	"github.com/BaSui01/landau/llm"
	"github.com/BaSui01/landau/llm/tools"
	"github.com/BaSui01/landau/rag"
	"github.com/BaSui01/landau/testutil"
	"github.com/BaSui01/landau/testutil/fixtures"
	"github.com/BaSui01/landau/testutil/mocks"
	"github.com/BaSui01/landau/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSectionLine(t *testing.T) {
	var got []string
	for _, line := range strings.Split(fixtures.LectureTOC, "\n") {
		if sec, ok := ParseSectionLine(line, "EX1"); ok {
			got = append(got, sec.Label())
		}
	}
	assert.Equal(t, []string{"1.1 Motivation | EX1", "3.1 Zustände | EX1", "3.2 Qubits | EX1"}, got)

	for _, line := range []string{"7.2 Ausblick", "8.1 Anhang A", "", "Kapitel 3"} {
		_, ok := ParseSectionLine(line, "EX1")
		assert.False(t, ok, line)
	}
}

func TestExamTrainer_AvailableSections(t *testing.T) {
	_, lecture := lectureFixture(t)
	exam := NewExamTrainer(lecture, nil)

	sections, err := exam.AvailableSections(testutil.TestContext(t), []string{"EX1", "EX2"})
	require.NoError(t, err)
	require.Len(t, sections, 3)
	assert.Equal(t, ExamSection{DocumentID: "EX1", ChapterID: "3", SectionID: "2", Title: "Qubits"}, sections[2])
}

func TestExamTrainer_AvailableSectionsUnavailable(t *testing.T) {
	store := downStore{}
	lecture := NewLectureTools(nil, nil, rag.DefaultRetrievalDefaults(), nil)
	lecture.library = rag.NewLibrary(store)
	_, err := NewExamTrainer(lecture, nil).AvailableSections(testutil.TestContext(t), []string{"EX1"})
	assert.True(t, types.IsErrorCode(err, types.ErrServiceUnavailable))
}

func TestExamTrainer_Setup(t *testing.T) {
	_, lecture := lectureFixture(t)
	exam := NewExamTrainer(lecture, nil).WithRandom(func(n int) int { return n - 1 })
	s := newTestSession()
	ctx := testutil.TestContext(t)
	s.append(types.NewUserMessage("alte Frage"))

	require.NoError(t, exam.Prepare(ctx, s))
	assert.Equal(t, ProfileExamTrainer, s.Profile())

	sec, err := exam.Setup(ctx, s, "")
	require.NoError(t, err)
	assert.Equal(t, "3.2 Qubits | EX1", sec.Label())

	current, ok := s.CurrentExamSection()
	require.True(t, ok)
	assert.Equal(t, sec, current)

	history := s.History()
	require.Len(t, history, 2)
	assert.Equal(t, types.RoleSystem, history[0].Role)
	assert.Contains(t, history[0].Content, "\n## Aktuelle Sektion\n\n## Sektions Referenz\n")
	assert.Equal(t, types.RoleUser, history[1].Role)
	assert.True(t, strings.HasPrefix(history[1].Content, "Stell mir eine Frage zur folgenden Sektion:\n\n## Sektions Referenz\n**Zitationsschlüssel**: [EX1 3.2]"))
	assert.True(t, s.References().Has("EX1 3.2"))
	assert.True(t, s.takeHistoryReset())
}

func TestExamTrainer_SetupWithTopic(t *testing.T) {
	_, lecture := lectureFixture(t)
	exam := NewExamTrainer(lecture, nil).WithRandom(func(int) int { return 0 })
	s := newTestSession()
	ctx := testutil.TestContext(t)
	require.NoError(t, exam.Prepare(ctx, s))

	// 所有段落都在 3.2，主题检索只会得到这一节
	sec, err := exam.Setup(ctx, s, "Qubits und Messungen")
	require.NoError(t, err)
	assert.Equal(t, "3", sec.ChapterID)
	assert.Equal(t, "2", sec.SectionID)

	history := s.History()
	assert.True(t, strings.HasPrefix(history[len(history)-1].Content,
		"Stell mir eine Frage zur folgenden Sektion, sie sollte mit Qubits und Messungen zutun haben:\n\n"))
}

func TestExamTrainer_SetupWithoutSections(t *testing.T) {
	_, lecture := lectureFixture(t)
	exam := NewExamTrainer(lecture, nil)
	s := newTestSession()
	require.NoError(t, s.SetPermittedDocuments([]string{"EX2"}))
	ctx := testutil.TestContext(t)
	require.NoError(t, exam.Prepare(ctx, s))

	_, err := exam.Setup(ctx, s, "")
	assert.True(t, types.IsErrorCode(err, types.ErrNotFound))
}

func TestSectionAnnouncement(t *testing.T) {
	sec := ExamSection{DocumentID: "EX1", ChapterID: "3", SectionID: "2", Title: "Qubits"}
	assert.Equal(t, "Hier ist eine Frage aus **EX1** Kapitel **3**, Sektion **2** (**Qubits**).", SectionAnnouncement(sec))
}

func examLoop(t *testing.T, provider llm.Provider) *Loop {
	t.Helper()
	_, lecture := lectureFixture(t)
	exam := NewExamTrainer(lecture, nil).WithRandom(func(n int) int { return n - 1 })
	reg := tools.NewDefaultRegistry(nil)
	require.NoError(t, lecture.Register(reg))
	require.NoError(t, exam.Register(reg))
	return newTestLoop(t, provider, reg, DefaultConfig(), WithExamTrainer(exam))
}

func TestLoop_StartExam(t *testing.T) {
	provider := mocks.NewScriptedProvider(llm.StyleIndexedFragment, mocks.TextTurn("Was ist ein Qubit?"))
	l := examLoop(t, provider)
	s := newTestSession()

	reply, err := l.StartExam(testutil.TestContext(t), s)
	require.NoError(t, err)
	assert.Equal(t, "Was ist ein Qubit?", reply.Content)
	require.NotEmpty(t, reply.Elements)
	assert.Equal(t, "Sektion", reply.Elements[0].Name)
	assert.Equal(t, "Hier ist eine Frage aus **EX1** Kapitel **3**, Sektion **2** (**Qubits**).", reply.Elements[0].Content)

	call := provider.GetLastCall()
	require.NotNil(t, call)
	assert.Empty(t, call.Request.Tools)
	require.Len(t, call.Request.Messages, 2)
	assert.Equal(t, ProfileExamTrainer, s.Profile())

	history := s.History()
	require.Len(t, history, 3)
	assert.Equal(t, types.RoleAssistant, history[2].Role)
}

func TestLoop_QuestionSetupResetsHistory(t *testing.T) {
	style := llm.StyleIndexedFragment
	provider := mocks.NewScriptedProvider(style,
		mocks.ToolTurn(style, "", fixtures.ToolCall("q1", ToolQuestionSetup, map[string]string{})),
		mocks.TextTurn("Neue Frage"),
	)
	l := examLoop(t, provider)
	s := newTestSession()
	s.SetProfile(ProfileExamTrainer)
	s.setAvailableSections([]ExamSection{{DocumentID: "EX1", ChapterID: "3", SectionID: "2", Title: "Qubits"}})

	reply, err := l.Run(testutil.TestContext(t), s, "Gib mir eine neue Frage")
	require.NoError(t, err)
	assert.Equal(t, "Neue Frage", reply.Content)

	calls := provider.GetCalls()
	require.Len(t, calls, 2)
	require.Len(t, calls[0].Request.Tools, 1)
	assert.Equal(t, ToolQuestionSetup, calls[0].Request.Tools[0].Name)
	assert.Empty(t, calls[1].Request.Tools)

	// 旧对话被清空，question_setup 的工具消息也不进入历史
	history := s.History()
	assert.Empty(t, toolMessages(history))
	require.Len(t, history, 3)
	assert.Equal(t, types.RoleSystem, history[0].Role)
	assert.True(t, strings.HasPrefix(history[1].Content, "Stell mir eine Frage zur folgenden Sektion:"))
	assert.Equal(t, "Neue Frage", history[2].Content)
}
