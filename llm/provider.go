package llm

import (
	"context"
	"time"

	"github.com/BaSui01/landau/types"
)

// ChatRequest 是统一的聊天请求。Tools 为空时模型只能以纯文本作答。
type ChatRequest struct {
	Model       string             `json:"model"`
	Messages    []types.Message    `json:"messages"`
	MaxTokens   int                `json:"max_tokens,omitempty"`
	Temperature float32            `json:"temperature,omitempty"`
	TopP        float32            `json:"top_p,omitempty"`
	Stop        []string           `json:"stop,omitempty"`
	Tools       []types.ToolSchema `json:"tools,omitempty"`
	ToolChoice  string             `json:"tool_choice,omitempty"` // auto/none/<tool name>
	Timeout     time.Duration      `json:"timeout,omitempty"`
}

type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

type ChatChoice struct {
	Index        int           `json:"index"`
	FinishReason string        `json:"finish_reason,omitempty"`
	Message      types.Message `json:"message"`
}

type ChatResponse struct {
	ID        string       `json:"id,omitempty"`
	Provider  string       `json:"provider,omitempty"`
	Model     string       `json:"model"`
	Choices   []ChatChoice `json:"choices"`
	Usage     ChatUsage    `json:"usage,omitempty"`
	CreatedAt time.Time    `json:"created_at,omitempty"`
}

// FirstContent 返回第一个选项的文本内容。
func (r *ChatResponse) FirstContent() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// ToolUseDelta 是 delta-object 编码中的一个工具调用片段。
// Name 非空表示开启一个新的调用，否则 PartialJSON 追加到当前打开的调用。
type ToolUseDelta struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
}

// ToolCallFragment 是 indexed-fragment 编码中的一个片段，同一 Index 的字段可能分多次到达。
type ToolCallFragment struct {
	Index     int    `json:"index"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// StreamChunk 是 provider 原始增量分片。每个 provider 只填写与其 StreamStyle 对应的工具字段。
type StreamChunk struct {
	ID            string             `json:"id,omitempty"`
	Provider      string             `json:"provider,omitempty"`
	Model         string             `json:"model,omitempty"`
	Text          string             `json:"text,omitempty"`
	ToolUse       *ToolUseDelta      `json:"tool_use,omitempty"`
	ToolFragments []ToolCallFragment `json:"tool_fragments,omitempty"`
	ToolCalls     []types.ToolCall   `json:"tool_calls,omitempty"`
	FinishReason  string             `json:"finish_reason,omitempty"`
	Usage         *ChatUsage         `json:"usage,omitempty"` // 最终 chunk 可带 usage
	Err           *types.Error       `json:"error,omitempty"`
}

// HealthStatus 表示 Provider 健康检查结果。
type HealthStatus struct {
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
}

// Provider 定义了统一的 LLM 适配接口。
// 工具调用通过 ChatRequest.Tools 传递，工具执行由 conversation 包负责。
type Provider interface {
	// Completion 发起同步聊天请求，返回完整响应
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Stream 发起流式聊天请求，返回增量分片通道。通道在流结束或 ctx 取消时关闭。
	Stream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error)

	// HealthCheck 执行轻量级健康检查
	HealthCheck(ctx context.Context) (*HealthStatus, error)

	// Name 返回 Provider 的唯一标识
	Name() string

	// StreamStyle 返回该 Provider 流式分片使用的增量编码
	StreamStyle() StreamStyle
}
