/*
Package types 提供 landau 各层共享的基础类型定义。

types 是最底层的公共包，不依赖任何内部包，为 rag、llm、conversation、
api 等上层模块提供统一的类型契约，以避免循环依赖。

  - Message / Role：对话消息（system、user、assistant、tool）
  - ToolCall：模型发出的工具调用（id + name + JSON 参数）
  - ToolSchema：暴露给模型的工具定义
  - Element：附加在回复上的展示元素（引用、提示）
  - Error / ErrorCode：结构化错误，含 HTTP 状态码与 Retryable 标记
*/
package types
