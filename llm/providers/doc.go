/*
包 providers 汇集各模型服务商适配器共用的配置、错误映射与 SSE 读取逻辑。

子包 openai、anthropic、gemini 分别实现三种流式增量编码：

  - openai：indexed fragment（同样支持 Azure OpenAI 部署）
  - anthropic：delta object
  - gemini：pre-structured
*/
package providers
