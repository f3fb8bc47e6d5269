// Package telemetry 初始化 OpenTelemetry 链路追踪。
// 禁用时保持全局 noop TracerProvider，不连接任何外部服务；
// 检索管线与对话循环通过 otel.Tracer 创建的 span 因此零开销。
package telemetry
