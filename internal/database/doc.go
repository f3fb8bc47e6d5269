/*
包 database 打开 SQL 段落存储使用的 GORM 连接（Postgres + pgvector 或
纯 Go 的 SQLite），并管理连接池。

PoolManager 配置 database/sql 连接池，后台定时探活，并把打开/空闲连接数
上报给 StatsRecorder（通常是 internal/metrics.Collector）。
*/
package database
