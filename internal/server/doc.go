/*
包 server 管理 HTTP 服务器的生命周期：非阻塞启动、优雅关闭与异步错误传播。

Landau 同时运行 API 服务器和 Prometheus 指标服务器，两者各用一个 Manager；
cmd/landau 通过 WaitForShutdown 等待 SIGINT/SIGTERM 或任一服务器出错，
然后依次关闭。
*/
package server
