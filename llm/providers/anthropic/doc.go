/*
包 claude 实现 Anthropic Messages API 适配器。

Claude 与 OpenAI 的差异：

 1. 认证使用 x-api-key 请求头而非 Bearer Token
 2. system 消息单独传递
 3. 工具结果作为 user 消息中的 tool_result 块
 4. 流式工具调用以 delta object 形式到达：content_block_start 携带 id 与
    name，随后的 input_json_delta 追加参数片段
*/
package claude
