// =============================================================================
// 📦 测试数据工厂 - LLM 响应与流式分片
// =============================================================================
package fixtures

import (
	"encoding/json"
	"time"

	"github.com/BaSui01/landau/llm"
	"github.com/BaSui01/landau/types"
)

// SimpleResponse 返回简单的文本响应
func SimpleResponse(content string) *llm.ChatResponse {
	return &llm.ChatResponse{
		ID:       "resp-001",
		Provider: "mock",
		Model:    "gpt-4o",
		Choices: []llm.ChatChoice{
			{
				Index:        0,
				FinishReason: "stop",
				Message:      types.NewAssistantMessage(content),
			},
		},
		Usage: llm.ChatUsage{
			PromptTokens:     10,
			CompletionTokens: 20,
			TotalTokens:      30,
		},
		CreatedAt: time.Now(),
	}
}

// ToolCall 构造一个工具调用，args 会被序列化为 JSON
func ToolCall(id, name string, args any) types.ToolCall {
	raw, err := json.Marshal(args)
	if err != nil {
		panic(err)
	}
	return types.ToolCall{ID: id, Name: name, Arguments: raw}
}

// =============================================================================
// 🌊 StreamChunk 工厂
// =============================================================================

// TextChunks 每段文本一个分片
func TextChunks(parts ...string) []llm.StreamChunk {
	out := make([]llm.StreamChunk, len(parts))
	for i, p := range parts {
		out[i] = llm.StreamChunk{Text: p}
	}
	return out
}

// ToolCallChunks 按 provider 的编码方式输出工具调用分片。
// indexed 与 delta 编码会把参数拆成两段，以覆盖拼接逻辑。
func ToolCallChunks(style llm.StreamStyle, calls ...types.ToolCall) []llm.StreamChunk {
	var out []llm.StreamChunk
	switch style {
	case llm.StyleIndexedFragment:
		for i, c := range calls {
			head, tail := split(string(c.Arguments))
			out = append(out,
				llm.StreamChunk{ToolFragments: []llm.ToolCallFragment{{Index: i, ID: c.ID, Name: c.Name, Arguments: head}}},
				llm.StreamChunk{ToolFragments: []llm.ToolCallFragment{{Index: i, Arguments: tail}}},
			)
		}
	case llm.StyleDeltaObject:
		for _, c := range calls {
			head, tail := split(string(c.Arguments))
			out = append(out,
				llm.StreamChunk{ToolUse: &llm.ToolUseDelta{ID: c.ID, Name: c.Name}},
				llm.StreamChunk{ToolUse: &llm.ToolUseDelta{PartialJSON: head}},
				llm.StreamChunk{ToolUse: &llm.ToolUseDelta{PartialJSON: tail}},
			)
		}
	default:
		out = append(out, llm.StreamChunk{ToolCalls: calls})
	}
	return append(out, llm.StreamChunk{FinishReason: "tool_calls"})
}

func split(s string) (string, string) {
	return s[:len(s)/2], s[len(s)/2:]
}

// ErrorChunk 携带错误的分片
func ErrorChunk(err *types.Error) llm.StreamChunk {
	return llm.StreamChunk{Err: err}
}
