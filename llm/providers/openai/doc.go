/*
包 openai 实现 OpenAI Chat Completions 适配器。

流式输出中的工具调用以 indexed fragment 形式到达：同一 index 的 id、name
与参数字符串分多次下发，由 llm/stream 包合并。配置 APIVersion 后按
Azure OpenAI 的部署路径与 api-key 头访问。
*/
package openai
