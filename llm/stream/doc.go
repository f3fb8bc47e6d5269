// Package stream 把 provider 原始增量分片归一化为 (文本, 工具调用列表)。
//
// 每种 [llm.StreamStyle] 对应一种累积策略，文本发布与参数解析逻辑共享。
// 文本在每次追加后都经过数学定界符修正再发布，发布端只会看到规范化的文本。
package stream
