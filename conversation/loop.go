package conversation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/BaSui01/landau/citation"
	"github.com/BaSui01/landau/internal/ctxkeys"
	"github.com/BaSui01/landau/llm"
	"github.com/BaSui01/landau/llm/stream"
	"github.com/BaSui01/landau/llm/tools"
	"github.com/BaSui01/landau/types"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	quotaElementName    = "Message Quota Reached"
	quotaElementContent = "You have reached the maximum amount of messages. Please start a new chat to continue."
)

// Config 对话循环参数。
type Config struct {
	Model                string
	Temperature          float32
	TopP                 float32
	MaxTokens            int
	MaxToolRecursion     int
	MaxMessages          int // <= 0 不限制
	MaxParallelToolCalls int
}

func DefaultConfig() Config {
	return Config{
		Temperature:          0.3,
		TopP:                 0.4,
		MaxToolRecursion:     5,
		MaxMessages:          -1,
		MaxParallelToolCalls: DefaultMaxParallelToolCalls,
	}
}

// Recorder receives loop metrics.
type Recorder interface {
	RecordLLMStream(provider, status string, duration time.Duration)
	RecordHallucination(count int)
}

// Reply is the outcome of one turn.
type Reply struct {
	Content    string          `json:"content"`
	Elements   []types.Element `json:"elements"`
	Citations  citation.Result `json:"-"`
	ToolRounds int             `json:"tool_rounds"`
	// Transient is set when the provider could not be reached and Content is the apology.
	Transient bool `json:"transient,omitempty"`
}

// Loop drives turns against one provider and one tool registry. Safe for concurrent use
// across sessions.
type Loop struct {
	provider   llm.Provider
	normalizer *stream.Normalizer
	registry   tools.ToolRegistry
	dispatcher *Dispatcher
	exam       *ExamTrainer
	catalog    *Catalog
	cfg        Config
	recorder   Recorder
	hook       TransitionHook
	tracer     trace.Tracer
	logger     *zap.Logger
}

type LoopOption func(*Loop)

func WithExamTrainer(e *ExamTrainer) LoopOption { return func(l *Loop) { l.exam = e } }
func WithCatalog(c *Catalog) LoopOption         { return func(l *Loop) { l.catalog = c } }
func WithRecorder(r Recorder) LoopOption        { return func(l *Loop) { l.recorder = r } }

// WithTransitionHook observes state changes of every turn.
func WithTransitionHook(h TransitionHook) LoopOption { return func(l *Loop) { l.hook = h } }

// WithExecutor replaces the default tool executor, e.g. one carrying a metrics observer.
func WithExecutor(e tools.ToolExecutor) LoopOption {
	return func(l *Loop) { l.dispatcher = NewDispatcher(e, l.logger) }
}

func WithLogger(logger *zap.Logger) LoopOption { return func(l *Loop) { l.logger = logger } }

// NewLoop creates a loop. The normalizer follows provider.StreamStyle().
func NewLoop(provider llm.Provider, registry tools.ToolRegistry, cfg Config, opts ...LoopOption) (*Loop, error) {
	if provider == nil {
		return nil, errors.New("conversation: provider is required")
	}
	if registry == nil {
		registry = tools.NewDefaultRegistry(nil)
	}
	l := &Loop{
		provider: provider,
		registry: registry,
		catalog:  NewCatalog(),
		cfg:      cfg,
		tracer:   otel.Tracer("github.com/BaSui01/landau/conversation"),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = zap.NewNop()
	}
	l.logger = l.logger.With(zap.String("component", "loop"), zap.String("provider", provider.Name()))

	n, err := stream.New(provider.StreamStyle(), l.logger)
	if err != nil {
		return nil, err
	}
	l.normalizer = n
	if l.dispatcher == nil {
		l.dispatcher = NewDispatcher(tools.NewDefaultExecutor(registry, l.logger), l.logger)
	}
	return l, nil
}

// Config returns the loop configuration.
func (l *Loop) Config() Config { return l.cfg }

// Catalog returns the document catalog used for system prompts.
func (l *Loop) Catalog() *Catalog { return l.catalog }

// RunOption configures a single turn.
type RunOption func(*runOptions)

type runOptions struct {
	pub    stream.Publisher
	notify tools.Observer
}

// WithPublisher streams the answer text to pub while it is generated.
func WithPublisher(pub stream.Publisher) RunOption { return func(o *runOptions) { o.pub = pub } }

// WithToolNotifier reports tool start and finish, e.g. to the chat client.
func WithToolNotifier(o tools.Observer) RunOption { return func(r *runOptions) { r.notify = o } }

type run struct {
	loop    *Loop
	session *Session
	state   State
	opts    runOptions
	logger  *zap.Logger
}

func (l *Loop) begin(ctx context.Context, s *Session, name string, opts []RunOption) (context.Context, *run, trace.Span) {
	turnID := uuid.NewString()
	ctx = ctxkeys.WithSessionID(ctx, s.ID)
	ctx = ctxkeys.WithTurnID(ctx, turnID)
	ctx = withSession(ctx, s)
	ctx, span := l.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("session.id", s.ID),
		attribute.String("turn.id", turnID),
		attribute.String("profile", string(s.Profile())),
	))

	r := &run{
		loop:    l,
		session: s,
		state:   StateAwaitingModel,
		opts:    runOptions{pub: stream.Discard},
		logger:  l.logger.With(zap.String("session_id", s.ID), zap.String("turn_id", turnID)),
	}
	for _, opt := range opts {
		opt(&r.opts)
	}
	return ctx, r, span
}

func endSpan(span trace.Span, reply *Reply, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else if reply != nil {
		span.SetAttributes(attribute.Int("tool_rounds", reply.ToolRounds), attribute.Bool("transient", reply.Transient))
	}
	span.End()
}

// Run executes one user turn on s. A second concurrent turn on the same session
// fails with ErrTurnInProgress.
func (l *Loop) Run(ctx context.Context, s *Session, userText string, opts ...RunOption) (reply *Reply, err error) {
	if strings.TrimSpace(userText) == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "message must not be empty").WithHTTPStatus(400)
	}
	if !s.turn.TryLock() {
		return nil, ErrTurnInProgress
	}
	defer s.turn.Unlock()

	ctx, r, span := l.begin(ctx, s, "conversation.Run", opts)
	defer func() { endSpan(span, reply, err) }()

	if s.Profile() == ProfileExamTrainer {
		// 考试模式：最多一轮工具，不附加 post-prompt
		if !s.hasSystemMessage() {
			s.setSystemMessage(RenderExamTrainerPrompt("", s.CopilotContext()))
		}
		s.addUserMessage(userText)
		return r.execute(ctx, 1, false)
	}

	s.setSystemMessage(RenderSystemPrompt(l.catalog, s.PermittedDocuments(), s.CopilotContext()))
	s.addUserMessage(userText)
	return r.execute(ctx, l.cfg.MaxToolRecursion, true)
}

// StartExam switches s to the exam trainer, picks a section and lets the model ask
// the first question.
func (l *Loop) StartExam(ctx context.Context, s *Session, opts ...RunOption) (reply *Reply, err error) {
	if l.exam == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "exam trainer is not enabled").WithHTTPStatus(400)
	}
	if !s.turn.TryLock() {
		return nil, ErrTurnInProgress
	}
	defer s.turn.Unlock()

	ctx, r, span := l.begin(ctx, s, "conversation.StartExam", opts)
	defer func() { endSpan(span, reply, err) }()

	if err := l.exam.Prepare(ctx, s); err != nil {
		return nil, err
	}
	sec, err := l.exam.Setup(ctx, s, "")
	if err != nil {
		return nil, err
	}
	s.takeHistoryReset()

	reply, err = r.execute(ctx, 0, false)
	if err != nil {
		return nil, err
	}
	reply.Elements = append([]types.Element{{
		Name:    "Sektion",
		Content: SectionAnnouncement(sec),
		Display: types.DisplayInline,
	}}, reply.Elements...)
	return reply, nil
}

func (r *run) transition(ctx context.Context, to State) error {
	from := r.state
	if !CanTransition(from, to) {
		return ErrInvalidTransition{From: from, To: to}
	}
	r.state = to
	r.logger.Debug("state transition", zap.String("from", string(from)), zap.String("to", string(to)))
	if r.loop.hook != nil {
		r.loop.hook(ctx, r.session.ID, from, to)
	}
	return nil
}

func (r *run) fail(ctx context.Context) {
	if r.state != StateFailed {
		_ = r.transition(ctx, StateFailed)
	}
}

// execute 运行状态机直到模型给出不含工具调用的回答。
func (r *run) execute(ctx context.Context, maxRounds int, postPrompt bool) (*Reply, error) {
	l, s := r.loop, r.session
	rounds := 0
	for {
		withTools := rounds < maxRounds
		res, err := r.stream(ctx, withTools, postPrompt)
		if err != nil {
			r.fail(ctx)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if isUnavailable(err) {
				r.logger.Warn("provider unavailable, ending turn", zap.Error(err))
				return r.transientReply(ctx, rounds), nil
			}
			return nil, err
		}

		calls := res.ToolCalls
		if !withTools && len(calls) > 0 {
			r.logger.Warn("model requested tools on a tool-free request, ignoring", zap.Int("calls", len(calls)))
			calls = nil
		}
		calls = ApplyToolConstraints(calls, l.cfg.MaxParallelToolCalls)

		cited, err := citation.Reconcile(res.Text, s.References(), s.Language())
		if err != nil {
			r.fail(ctx)
			return nil, err
		}
		// 划线只影响展示，历史保留模型原文
		assistant := types.NewAssistantMessage(res.Text).WithToolCalls(calls)

		if len(calls) == 0 {
			s.append(assistant)
			if err := r.transition(ctx, StateDone); err != nil {
				return nil, err
			}
			return r.finish(cited, rounds), nil
		}

		if err := r.transition(ctx, StateDispatchingTools); err != nil {
			return nil, err
		}
		results, err := l.dispatcher.Dispatch(ctx, calls, r.opts.notify)
		reset := s.takeHistoryReset()
		if err != nil {
			// 带 tool_calls 的助手消息只和它的结果一起写入历史
			r.fail(ctx)
			return nil, err
		}
		// question_setup 会重置历史，此时这一批不再属于新对话
		if !reset {
			msgs := make([]types.Message, 0, len(results)+1)
			msgs = append(msgs, assistant)
			for _, res := range results {
				msgs = append(msgs, res.ToMessage())
			}
			s.append(msgs...)
		}
		rounds++
		if err := r.transition(ctx, StateAwaitingModel); err != nil {
			return nil, err
		}
	}
}

func (r *run) request(withTools, postPrompt bool) *llm.ChatRequest {
	l, s := r.loop, r.session
	history := s.History()
	if postPrompt {
		history = injectPostPrompt(history)
	}
	req := &llm.ChatRequest{
		Model:       l.cfg.Model,
		Messages:    history,
		MaxTokens:   l.cfg.MaxTokens,
		Temperature: l.cfg.Temperature,
		TopP:        l.cfg.TopP,
	}
	if withTools {
		req.Tools = l.toolsFor(s.Profile())
	}
	return req
}

// toolsFor 考试模式只提供 question_setup，默认模式提供其余全部工具。
func (l *Loop) toolsFor(p Profile) []types.ToolSchema {
	all := l.registry.List()
	return slices.DeleteFunc(all, func(t types.ToolSchema) bool {
		return (t.Name == ToolQuestionSetup) != (p == ProfileExamTrainer)
	})
}

func (r *run) stream(ctx context.Context, withTools, postPrompt bool) (*stream.Result, error) {
	l := r.loop
	if err := r.transition(ctx, StateStreaming); err != nil {
		return nil, err
	}
	req := r.request(withTools, postPrompt)

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := time.Now()
	chunks, err := l.provider.Stream(streamCtx, req)
	if err == nil {
		var res *stream.Result
		res, err = l.normalizer.Normalize(streamCtx, chunks, r.opts.pub)
		if err == nil {
			r.record("ok", start)
			r.logger.Debug("model stream finished",
				zap.Bool("tools_offered", withTools),
				zap.Int("tool_calls", len(res.ToolCalls)),
				zap.Int("text_len", len(res.Text)))
			return res, nil
		}
	}

	switch {
	case ctx.Err() != nil:
		r.record("cancelled", start)
	case isUnavailable(err):
		r.record("unavailable", start)
	default:
		r.record("error", start)
	}
	return nil, fmt.Errorf("model stream: %w", err)
}

func (r *run) record(status string, start time.Time) {
	if rec := r.loop.recorder; rec != nil {
		rec.RecordLLMStream(r.loop.provider.Name(), status, time.Since(start))
	}
}

func (r *run) finish(cited citation.Result, rounds int) *Reply {
	l, s := r.loop, r.session
	elements := cited.AllElements()
	if l.cfg.MaxMessages > 0 && s.UserMessages() >= l.cfg.MaxMessages {
		elements = append(elements, types.Element{
			Name:    quotaElementName,
			Content: quotaElementContent,
			Display: types.DisplayInline,
		})
	}
	if cited.Hallucinated() {
		r.logger.Info("answer cites unknown references", zap.Strings("keys", cited.Unmatched))
		if l.recorder != nil {
			l.recorder.RecordHallucination(len(cited.Unmatched))
		}
	}
	return &Reply{
		Content:    cited.Text,
		Elements:   elements,
		Citations:  cited,
		ToolRounds: rounds,
	}
}

// transientReply 以固定提示结束本轮，不重试。
func (r *run) transientReply(ctx context.Context, rounds int) *Reply {
	s := r.session
	// 发布失败不影响回复本身
	if err := r.opts.pub.Start(ctx); err == nil {
		_ = r.opts.pub.Update(ctx, TransientReply)
	}
	s.append(types.NewAssistantMessage(TransientReply))
	return &Reply{Content: TransientReply, Elements: []types.Element{}, ToolRounds: rounds, Transient: true}
}
