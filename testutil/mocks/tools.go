package mocks

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/BaSui01/landau/llm/tools"
	"github.com/BaSui01/landau/types"
)

// ToolCall 记录一次工具调用
type ToolCall struct {
	Name      string
	Arguments json.RawMessage
	Time      time.Time
}

// MockToolSet 可记录调用的桩工具集合
type MockToolSet struct {
	mu      sync.Mutex
	results map[string]string
	errs    map[string]error
	block   map[string]chan struct{}
	calls   []ToolCall
}

// NewMockToolSet 创建桩工具集合
func NewMockToolSet() *MockToolSet {
	return &MockToolSet{
		results: make(map[string]string),
		errs:    make(map[string]error),
		block:   make(map[string]chan struct{}),
	}
}

// WithToolResult 设置工具返回文本
func (m *MockToolSet) WithToolResult(name, result string) *MockToolSet {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[name] = result
	return m
}

// WithToolError 设置工具返回错误
func (m *MockToolSet) WithToolError(name string, err error) *MockToolSet {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[name] = err
	return m
}

// WithBlockingTool 工具在 release 关闭前不返回（忽略 ctx）
func (m *MockToolSet) WithBlockingTool(name string, release chan struct{}) *MockToolSet {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.block[name] = release
	return m
}

// Func 返回名为 name 的工具函数
func (m *MockToolSet) Func(name string) tools.ToolFunc {
	return func(ctx context.Context, args json.RawMessage) (string, error) {
		m.mu.Lock()
		m.calls = append(m.calls, ToolCall{Name: name, Arguments: args, Time: time.Now()})
		release := m.block[name]
		result, err := m.results[name], m.errs[name]
		m.mu.Unlock()

		if release != nil {
			<-release
		}
		return result, err
	}
}

// Register 把所有已配置的工具注册到 registry
func (m *MockToolSet) Register(registry tools.ToolRegistry, names ...string) error {
	for _, name := range names {
		schema := types.ToolSchema{Name: name, Parameters: json.RawMessage(`{"type":"object"}`)}
		if err := registry.Register(m.Func(name), tools.ToolMetadata{Schema: schema}); err != nil {
			return err
		}
	}
	return nil
}

// GetCalls 返回调用记录
func (m *MockToolSet) GetCalls() []ToolCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ToolCall(nil), m.calls...)
}

// GetCallsForTool 返回某个工具的调用记录
func (m *MockToolSet) GetCallsForTool(name string) []ToolCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ToolCall
	for _, c := range m.calls {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}
