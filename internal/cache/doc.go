/*
包 cache 提供基于 Redis 的检索结果缓存。

Manager 封装 go-redis 客户端，提供字符串与 JSON 两种读写方式，
后台定时 Ping 检测连接，Close 时停止检测并释放连接。
未命中返回 ErrCacheMiss，rag.CachedSearcher 据此回退到真实检索。
*/
package cache
