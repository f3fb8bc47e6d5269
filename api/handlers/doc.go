/*
Package handlers 提供 Landau HTTP API 的请求处理器。

# 核心类型

  - RetrievalHandler：脚本后端：/api/v1/query、/api/v1/toc、/api/v1/section、/api/v1/formula
  - ChatHandler：/api/v1/chat WebSocket，驱动 conversation.Loop 并推送增量文本与工具状态
  - HealthHandler：/health、/healthz、/ready、/version
  - SessionLimiter：基于 golang.org/x/time/rate 的按会话限流

# 错误映射

WriteError 把 *types.Error 按其状态码或错误码输出，rag.ErrNotFound 映射为 404，
其余错误统一为 500 且不外泄内部信息。响应体的 detail 字段与脚本后端一致。
*/
package handlers
