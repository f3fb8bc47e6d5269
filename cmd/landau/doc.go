/*
Package main 提供 Landau 服务端程序入口。

# 概述

cmd/landau 启动讲义问答服务：检索 API、WebSocket 对话、健康检查与
Prometheus 指标。配置来自 YAML 文件、.env 与 LANDAU_ 前缀的环境变量。

# 子命令

  - serve：构建全部组件并启动 API 与 Metrics 两个服务器
  - health：请求 /ready，非 200 时以非零状态退出
  - version：打印构建注入的 Version、BuildTime、GitCommit

# 组件装配

serve 依次创建：遥测 → 指标 → 对话模型 → 向量化与重排序 → 段落库
（memory、chroma、postgres 或 sqlite）→ 检索流水线（可选 Redis 缓存）→
工具注册表 → 对话循环 → 会话注册表 → HTTP 路由与中间件链。

中间件链：Recovery、RequestID、OTelTracing、MetricsMiddleware、
SecurityHeaders、RequestLogger、CORS。

# 关闭

收到 SIGINT/SIGTERM 或任一服务器出错时，两个服务器优雅关闭，
随后释放 Redis、数据库连接池并刷新未导出的 span。
*/
package main
