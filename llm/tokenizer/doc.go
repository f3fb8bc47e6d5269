// Package tokenizer 提供统一的 Token 计数接口，
// 支持 tiktoken 精确计数与字符估算器，用于重新计算扩展段落的 num_tokens。
package tokenizer
