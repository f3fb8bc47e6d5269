// Package config 提供 Landau 的配置加载。
//
// 配置按 默认值 → YAML 文件 → .env 文件 → 环境变量 的顺序合并，
// 最后统一校验。进程启动后配置只读。
package config
