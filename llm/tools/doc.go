// Package tools 提供模型可调用工具的注册、参数 Schema 生成与并发执行。
//
// 工具失败不会中断调用方：执行器总是为每个调用产出一个结果，
// 失败时结果内容是给模型阅读的错误说明。
package tools
