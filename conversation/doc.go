/*
Package conversation 实现讲义问答的对话循环。

一次用户轮次按状态机推进：

	AwaitingModel → Streaming → Done
	                          ↘ DispatchingTools → AwaitingModel

模型流经 llm/stream 归一化为文本与工具调用，工具调用经约束过滤后并发执行，
结果以 tool 消息追加到会话历史，再次请求模型，直到模型给出不含工具调用的回答
或达到递归上限。最终回答在返回前与会话中登记过的引用对齐（见 citation 包）。

会话（Session）持有历史、已见引用、允许的文档与语言设置；同一会话同一时刻只允许一个轮次。
*/
package conversation
