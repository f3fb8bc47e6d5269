/*
包 metrics 提供基于 Prometheus 的指标采集。

Collector 通过 promauto.With 注册到调用方传入的 Registry，所有指标按 namespace 隔离：

  - HTTP：请求总数与耗时，状态码归类为 2xx/3xx/4xx/5xx。
  - 检索：管线执行次数、耗时、返回段落数，重排序调用次数。
  - 工具：按工具名与结果（ok/error）计数，执行耗时与并发数。
  - LLM：按 provider/status 统计流式请求，被划掉的引用数。
  - 缓存与数据库：命中/未命中，连接池连接数。

Collector 同时实现检索管线、工具执行器与对话循环所需的记录接口，
由 cmd/landau 在启动时注入。
*/
package metrics
