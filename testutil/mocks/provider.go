// MockProvider 的 LLM 提供商测试模拟实现。
//
// 支持按轮次脚本化的流式输出与错误注入场景。
package mocks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/BaSui01/landau/llm"
	"github.com/BaSui01/landau/testutil/fixtures"
	"github.com/BaSui01/landau/types"
)

// Turn 是一次 Stream 调用的脚本：Err 非空时 Stream 直接失败，否则依次发送 Chunks。
type Turn struct {
	Chunks []llm.StreamChunk
	Err    error
}

// TextTurn 只输出文本的一轮
func TextTurn(parts ...string) Turn {
	return Turn{Chunks: fixtures.TextChunks(parts...)}
}

// ToolTurn 输出可选文本和工具调用的一轮
func ToolTurn(style llm.StreamStyle, text string, calls ...types.ToolCall) Turn {
	var chunks []llm.StreamChunk
	if text != "" {
		chunks = fixtures.TextChunks(text)
	}
	return Turn{Chunks: append(chunks, fixtures.ToolCallChunks(style, calls...)...)}
}

// MockProvider 是 LLM Provider 的模拟实现
type MockProvider struct {
	mu sync.RWMutex

	name     string
	style    llm.StreamStyle
	response string
	err      error
	turns    []Turn
	next     int
	delay    time.Duration

	calls          []MockProviderCall
	completionFunc func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)
	streamFunc     func(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error)
}

// MockProviderCall 记录单次调用
type MockProviderCall struct {
	Request *llm.ChatRequest
	Stream  bool
}

// NewMockProvider 创建新的 MockProvider
func NewMockProvider() *MockProvider {
	return &MockProvider{
		name:     "mock",
		style:    llm.StyleIndexedFragment,
		response: "Mock response",
	}
}

// WithStyle 设置流式编码方式
func (m *MockProvider) WithStyle(style llm.StreamStyle) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.style = style
	return m
}

// WithResponse 设置 Completion 的固定响应，也是轮次用尽后的流式输出
func (m *MockProvider) WithResponse(response string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = response
	return m
}

// WithError 设置所有调用返回的错误
func (m *MockProvider) WithError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithTurns 追加流式脚本
func (m *MockProvider) WithTurns(turns ...Turn) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, turns...)
	return m
}

// WithDelay 设置每个分片之间的延迟
func (m *MockProvider) WithDelay(d time.Duration) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithCompletionFunc 设置自定义 Completion 函数
func (m *MockProvider) WithCompletionFunc(fn func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completionFunc = fn
	return m
}

// WithStreamFunc 设置自定义 Stream 函数
func (m *MockProvider) WithStreamFunc(fn func(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error)) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamFunc = fn
	return m
}

func (m *MockProvider) Name() string { return m.name }

func (m *MockProvider) StreamStyle() llm.StreamStyle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.style
}

func (m *MockProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return &llm.HealthStatus{Healthy: false}, m.err
	}
	return &llm.HealthStatus{Healthy: true, Latency: time.Millisecond}, nil
}

func (m *MockProvider) record(req *llm.ChatRequest, stream bool) {
	cp := *req
	cp.Messages = types.CloneMessages(req.Messages)
	cp.Tools = append([]types.ToolSchema(nil), req.Tools...)
	m.calls = append(m.calls, MockProviderCall{Request: &cp, Stream: stream})
}

func (m *MockProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	m.mu.Lock()
	m.record(req, false)
	fn, err, response := m.completionFunc, m.err, m.response
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if fn != nil {
		return fn(ctx, req)
	}
	return fixtures.SimpleResponse(response), nil
}

func (m *MockProvider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	m.mu.Lock()
	m.record(req, true)
	fn, err, delay := m.streamFunc, m.err, m.delay
	turn := TextTurn(m.response)
	if m.next < len(m.turns) {
		turn = m.turns[m.next]
		m.next++
	}
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if fn != nil {
		return fn(ctx, req)
	}
	if turn.Err != nil {
		return nil, turn.Err
	}

	ch := make(chan llm.StreamChunk)
	go func() {
		defer close(ch)
		for _, c := range turn.Chunks {
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return
				}
			}
			select {
			case ch <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// GetCalls 返回全部调用记录
func (m *MockProvider) GetCalls() []MockProviderCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]MockProviderCall(nil), m.calls...)
}

// GetCallCount 返回调用次数
func (m *MockProvider) GetCallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.calls)
}

// GetLastCall 返回最后一次调用
func (m *MockProvider) GetLastCall() *MockProviderCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.calls) == 0 {
		return nil
	}
	c := m.calls[len(m.calls)-1]
	return &c
}

// Reset 清空调用记录与脚本进度
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.next = 0
}

// NewErrorProvider 总是失败的 provider
func NewErrorProvider(err error) *MockProvider {
	if err == nil {
		err = errors.New("mock provider error")
	}
	return NewMockProvider().WithError(err)
}

// NewScriptedProvider 按轮次输出的 provider
func NewScriptedProvider(style llm.StreamStyle, turns ...Turn) *MockProvider {
	return NewMockProvider().WithStyle(style).WithTurns(turns...)
}
