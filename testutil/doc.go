/*
Package testutil 提供测试共享的辅助函数。

# 子包

  - testutil/mocks: MockProvider（按轮次脚本化的流式输出）与 MockToolSet（可记录调用的桩工具）
  - testutil/fixtures: ChatResponse、各编码方式的 StreamChunk、讲义段落样例
*/
package testutil
