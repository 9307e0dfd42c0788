// Package util 提供通用工具相关的子包。
//
// 子包列表：
//   - xpool: 泛型 Worker Pool，可配置 worker/队列大小、优雅关闭
//   - xttl: 容量有界的 FIFO TTL 缓存，值按 JSON 快照存储，支持并发预加载
//
// 设计原则：
//   - 泛型 API，零值不可用的类型必须通过 New 创建
//   - 所有导出类型并发安全
package util
