/*
包 gemini 实现 Google Gemini generateContent 适配器。

Gemini 的流式输出在每个分片中携带完整的 functionCall（args 为对象），
即 pre-structured 编码。响应中缺失调用 id 时由适配器生成。
*/
package gemini
