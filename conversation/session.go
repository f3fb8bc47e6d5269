package conversation

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/BaSui01/landau/reference"
	"github.com/BaSui01/landau/types"
)

// Profile 对话模式。
type Profile string

const (
	ProfileDefault     Profile = "default"
	ProfileExamTrainer Profile = "exam_trainer"
)

// ErrTurnInProgress is returned when a session already runs a turn.
var ErrTurnInProgress = types.NewError(types.ErrTurnInProgress, "a turn is already in progress for this session").
	WithHTTPStatus(409)

// Session 单个用户会话的全部状态。字段通过方法访问，可被工具并发读取。
type Session struct {
	ID        string
	CreatedAt time.Time

	// turn 保证同一会话同一时刻只有一个轮次
	turn sync.Mutex

	mu             sync.RWMutex
	catalog        *Catalog
	history        []types.Message
	userMessages   int
	permitted      []string
	language       reference.Language
	profile        Profile
	copilotContext string
	references     *reference.Set
	exam           examState
	historyReset   bool
}

type examState struct {
	available []ExamSection
	current   *ExamSection
	text      string
}

// NewSession creates an empty session. A nil catalog allows every document id.
func NewSession(id string, catalog *Catalog) *Session {
	if catalog == nil {
		catalog = NewCatalog()
	}
	return &Session{
		ID:         id,
		CreatedAt:  time.Now(),
		catalog:    catalog,
		language:   reference.German,
		profile:    ProfileDefault,
		references: reference.NewSet(),
	}
}

// History returns a copy of the conversation.
func (s *Session) History() []types.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return types.CloneMessages(s.history)
}

func (s *Session) UserMessages() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userMessages
}

// References 会话中模型见过的引用。
func (s *Session) References() *reference.Set { return s.references }

// PermittedDocuments returns the selected document ids; nil means all catalog documents.
func (s *Session) PermittedDocuments() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.permitted)
}

// SetPermittedDocuments restricts retrieval to ids. Unknown ids are rejected;
// an empty selection lifts the restriction.
func (s *Session) SetPermittedDocuments(ids []string) error {
	for _, id := range ids {
		if !s.catalog.Has(id) {
			return types.NewError(types.ErrInvalidRequest, fmt.Sprintf("unknown document id %q", id)).WithHTTPStatus(400)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(ids) == 0 {
		s.permitted = nil
		return nil
	}
	s.permitted = slices.Clone(ids)
	return nil
}

// effectiveDocuments 未限制时返回目录中的全部文档。
func (s *Session) effectiveDocuments() []string {
	if p := s.PermittedDocuments(); len(p) > 0 {
		return p
	}
	return s.catalog.IDs()
}

func (s *Session) Language() reference.Language {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.language
}

func (s *Session) SetLanguage(lang reference.Language) error {
	switch lang {
	case reference.German, reference.English:
	default:
		return &reference.UnsupportedLanguageError{Language: lang}
	}
	s.mu.Lock()
	s.language = lang
	s.mu.Unlock()
	return nil
}

func (s *Session) Profile() Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

func (s *Session) SetProfile(p Profile) {
	s.mu.Lock()
	s.profile = p
	s.mu.Unlock()
}

func (s *Session) CopilotContext() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copilotContext
}

// SetCopilotContext pins the conversation to a document the user is reading.
func (s *Session) SetCopilotContext(text string) {
	s.mu.Lock()
	s.copilotContext = text
	s.mu.Unlock()
}

// CurrentExamSection 当前考试训练的小节，未开始时返回 false。
func (s *Session) CurrentExamSection() (ExamSection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.exam.current == nil {
		return ExamSection{}, false
	}
	return *s.exam.current, true
}

// setSystemMessage replaces the leading system message or inserts one.
func (s *Session) setSystemMessage(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := types.NewSystemMessage(content)
	if len(s.history) > 0 && s.history[0].Role == types.RoleSystem {
		s.history[0] = msg
		return
	}
	s.history = append([]types.Message{msg}, s.history...)
}

func (s *Session) hasSystemMessage() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history) > 0 && s.history[0].Role == types.RoleSystem
}

func (s *Session) addUserMessage(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, types.NewUserMessage(text))
	s.userMessages++
}

func (s *Session) append(msgs ...types.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, msgs...)
}

// resetHistory 清空历史并标记，当前工具批次的结果不再追加。
func (s *Session) resetHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
	s.historyReset = true
}

func (s *Session) takeHistoryReset() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	reset := s.historyReset
	s.historyReset = false
	return reset
}

func (s *Session) setExamSection(sec ExamSection, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exam.current = &sec
	s.exam.text = text
}

func (s *Session) setAvailableSections(sections []ExamSection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exam.available = slices.Clone(sections)
}

func (s *Session) availableSections() []ExamSection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.exam.available)
}

type sessionKey struct{}

func withSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext returns the session whose turn is running on ctx.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	return s, ok && s != nil
}
