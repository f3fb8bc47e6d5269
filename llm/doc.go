/*
包 llm 提供统一的大语言模型接入层。

# 概述

本包屏蔽不同模型服务商在鉴权、错误语义和流式协议上的差异，对上层
（conversation 包中的工具编排循环）暴露一致的请求模型与流式分片结构。

# 核心接口

  - [Provider]：Completion / Stream / HealthCheck / Name / StreamStyle
  - [ChatRequest] / [ChatResponse]：聊天请求与响应
  - [StreamChunk]：provider 原始增量分片
  - [StreamStyle]：流式增量编码的能力枚举，在配置阶段确定

# 流式编码

三种 provider 增量编码分别落在 [StreamChunk] 的不同字段：

  - [StyleDeltaObject]：ToolUse，先以 id+name 开启工具调用，再追加 partial_json
  - [StyleIndexedFragment]：ToolFragments，按 index 合并 id、name 与参数片段
  - [StylePreStructured]：ToolCalls，每个分片携带完整的工具调用

归一化逻辑见 llm/stream 包。
*/
package llm
