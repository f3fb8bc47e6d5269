package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/BaSui01/landau/api"
	"github.com/BaSui01/landau/conversation"
	"github.com/BaSui01/landau/rag"
	"github.com/BaSui01/landau/reference"
	"github.com/BaSui01/landau/types"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

// =============================================================================
// 💬 聊天 WebSocket Handler
// =============================================================================

// SessionHeader 响应头，携带本连接使用的会话 ID
const SessionHeader = "X-Session-ID"

const writeTimeout = 10 * time.Second

// ChatHandler 聊天 WebSocket 处理器：每条连接绑定一个会话，
// 文本增量、工具状态与最终答复以 JSON 帧推送给客户端。
type ChatHandler struct {
	loop           *conversation.Loop
	sessions       *conversation.Registry
	limiter        *SessionLimiter
	originPatterns []string
	logger         *zap.Logger
}

// ChatOption configures a ChatHandler.
type ChatOption func(*ChatHandler)

// WithSessionLimiter 限制每个会话的消息速率
func WithSessionLimiter(l *SessionLimiter) ChatOption {
	return func(h *ChatHandler) { h.limiter = l }
}

// WithOriginPatterns 允许的跨域来源（host 模式，如 "chat.example.org"）
func WithOriginPatterns(patterns ...string) ChatOption {
	return func(h *ChatHandler) { h.originPatterns = patterns }
}

// NewChatHandler 创建聊天处理器
func NewChatHandler(loop *conversation.Loop, sessions *conversation.Registry, logger *zap.Logger, opts ...ChatOption) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &ChatHandler{
		loop:     loop,
		sessions: sessions,
		logger:   logger.With(zap.String("handler", "chat")),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register 注册路由
func (h *ChatHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/chat", h.HandleChat)
}

// HandleChat 升级为 WebSocket；?session_id= 恢复已有会话，缺省时新建
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	session := h.sessions.GetOrCreate(r.URL.Query().Get("session_id"))
	w.Header().Set(SessionHeader, session.ID)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &chatConn{
		conn:    conn,
		session: session,
		handler: h,
		logger:  h.logger.With(zap.String("session_id", session.ID)),
	}
	c.serve(r.Context())
}

// chatConn 一条 WebSocket 连接
type chatConn struct {
	conn    *websocket.Conn
	session *conversation.Session
	handler *ChatHandler
	logger  *zap.Logger
	turns   sync.WaitGroup
}

func (c *chatConn) serve(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer func() {
		cancel()
		c.turns.Wait()
		_ = c.conn.Close(websocket.StatusNormalClosure, "closing")
	}()

	c.logger.Debug("chat connection opened")
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				c.logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}

		var msg api.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError(ctx, "invalid message: "+err.Error())
			continue
		}
		c.dispatch(ctx, msg)
	}
}

func (c *chatConn) dispatch(ctx context.Context, msg api.ClientMessage) {
	switch msg.Type {
	case api.TypeMessage:
		if !c.handler.limiter.Allow(c.session.ID) {
			c.sendError(ctx, "rate limit exceeded, please wait a moment")
			return
		}
		c.startTurn(ctx, func(ctx context.Context, opts ...conversation.RunOption) (*conversation.Reply, error) {
			return c.handler.loop.Run(ctx, c.session, msg.Content, opts...)
		})
	case api.TypeExamSetup:
		c.startTurn(ctx, func(ctx context.Context, opts ...conversation.RunOption) (*conversation.Reply, error) {
			return c.handler.loop.StartExam(ctx, c.session, opts...)
		})
	case api.TypeSettings:
		if err := c.applySettings(msg); err != nil {
			c.sendError(ctx, errorMessage(err))
		}
	default:
		c.sendError(ctx, fmt.Sprintf("unknown message type %q", msg.Type))
	}
}

// startTurn 在后台执行一个轮次，读循环保持运行以处理控制帧；
// 同一会话的并发轮次由 Loop 拒绝。
func (c *chatConn) startTurn(ctx context.Context, turn func(context.Context, ...conversation.RunOption) (*conversation.Reply, error)) {
	c.turns.Add(1)
	go func() {
		defer c.turns.Done()

		reply, err := turn(ctx, conversation.WithPublisher(c), conversation.WithToolNotifier(c))
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("turn failed", zap.Error(err))
				c.sendError(ctx, errorMessage(err))
			}
			return
		}
		c.send(ctx, api.ServerMessage{
			Type:     api.TypeFinal,
			Content:  reply.Content,
			Elements: reply.Elements,
		})
	}()
}

func (c *chatConn) applySettings(msg api.ClientMessage) error {
	if msg.PermittedDocumentIDs != nil {
		if err := c.session.SetPermittedDocuments(msg.PermittedDocumentIDs); err != nil {
			return err
		}
	}
	if msg.Language != "" {
		if err := c.session.SetLanguage(reference.Language(msg.Language)); err != nil {
			return err
		}
	}
	switch conversation.Profile(msg.Profile) {
	case "":
	case conversation.ProfileDefault:
		c.session.SetProfile(conversation.ProfileDefault)
	case conversation.ProfileExamTrainer:
		return types.NewError(types.ErrInvalidRequest, `use an "exam_setup" message to start the exam trainer`)
	default:
		return types.NewError(types.ErrInvalidRequest, fmt.Sprintf("unknown profile %q", msg.Profile))
	}
	if msg.CopilotContext != nil {
		c.session.SetCopilotContext(*msg.CopilotContext)
	}
	return nil
}

// Start implements stream.Publisher.
func (c *chatConn) Start(ctx context.Context) error {
	return c.write(ctx, api.ServerMessage{Type: api.TypeStart})
}

// Update implements stream.Publisher.
func (c *chatConn) Update(ctx context.Context, content string) error {
	return c.write(ctx, api.ServerMessage{Type: api.TypeUpdate, Content: content})
}

// ToolStarted implements tools.Observer.
func (c *chatConn) ToolStarted(ctx context.Context, call types.ToolCall) {
	c.send(ctx, api.ServerMessage{Type: api.TypeTool, Name: call.Name, Status: api.ToolStarted})
}

// ToolFinished implements tools.Observer.
func (c *chatConn) ToolFinished(ctx context.Context, result types.ToolResult) {
	c.send(ctx, api.ServerMessage{Type: api.TypeTool, Name: result.Name, Status: api.ToolFinished})
}

func (c *chatConn) sendError(ctx context.Context, message string) {
	c.send(ctx, api.ServerMessage{Type: api.TypeError, Message: message})
}

func (c *chatConn) send(ctx context.Context, msg api.ServerMessage) {
	if err := c.write(ctx, msg); err != nil {
		c.logger.Debug("websocket write failed", zap.String("type", msg.Type), zap.Error(err))
	}
}

func (c *chatConn) write(ctx context.Context, msg api.ServerMessage) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, c.conn, msg); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// errorMessage 面向用户的错误文本，内部错误不外泄
func errorMessage(err error) string {
	if apiErr, ok := types.AsError(err); ok {
		return apiErr.Message
	}
	var langErr *reference.UnsupportedLanguageError
	if errors.As(err, &langErr) {
		return langErr.Error()
	}
	if errors.Is(err, rag.ErrNotFound) {
		return err.Error()
	}
	return "internal server error"
}
